package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
)

// ConsentEventTypeENUMType consent event type ENUM value type
type ConsentEventTypeENUMType string

const (
	// ConsentEventTypeConsentCreated a new consent was recorded
	ConsentEventTypeConsentCreated ConsentEventTypeENUMType = "CONSENT_CREATED"

	// ConsentEventTypeConsentRevoked a consent was permanently deactivated
	ConsentEventTypeConsentRevoked ConsentEventTypeENUMType = "CONSENT_REVOKED"

	// ConsentEventTypeResearchRequested a researcher filed an access request
	ConsentEventTypeResearchRequested ConsentEventTypeENUMType = "RESEARCH_REQUESTED"

	// ConsentEventTypeResearchApproved a contributor approved an access request
	ConsentEventTypeResearchApproved ConsentEventTypeENUMType = "RESEARCH_APPROVED"

	// ConsentEventTypeOwnershipTransferred the registry owner changed
	ConsentEventTypeOwnershipTransferred ConsentEventTypeENUMType = "OWNERSHIP_TRANSFERRED"
)

// ConsentEvent one domain event recorded alongside the mutation that caused
// it. Events form the registry's outbox: they are appended inside the
// mutating transaction and drained to external consumers afterward.
type ConsentEvent struct {
	// ID event entry ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required"`

	// Seq registry operation sequence that produced this event. Gives
	// consumers a total order and a deduplication key on replay.
	Seq uint64 `json:"seq" gorm:"column:seq;not null;uniqueIndex" validate:"required"`

	// EventType consent event type
	EventType ConsentEventTypeENUMType `json:"type" gorm:"column:type;not null" validate:"required,consent_event_type"`

	// ConsentID the consent this event concerns. Empty for registry-level
	// events such as ownership transfers.
	ConsentID string `json:"consent_id,omitempty" gorm:"column:consent_id;index;default:null"`

	// Payload the event payload
	Payload datatypes.JSON `json:"payload,omitempty" gorm:"column:payload;default:null"`

	// Delivered whether the event reached the external sink
	Delivered bool `json:"delivered" gorm:"column:delivered;not null;index"`
	// DeliveredAt when the event reached the external sink
	DeliveredAt *time.Time `json:"delivered_at,omitempty" gorm:"column:delivered_at;default:null"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// ParsePayload parse the payload based on the event type
func (e ConsentEvent) ParsePayload(validator *validator.Validate) (interface{}, error) {
	switch e.EventType {
	case ConsentEventTypeConsentCreated:
		var parsed ConsentCreatedPayload
		if err := json.Unmarshal(e.Payload, &parsed); err != nil {
			return nil, fmt.Errorf("consent event '%s' payload parse failed [%w]", e.EventType, err)
		}
		return parsed, validator.Struct(&parsed)

	case ConsentEventTypeConsentRevoked:
		var parsed ConsentRevokedPayload
		if err := json.Unmarshal(e.Payload, &parsed); err != nil {
			return nil, fmt.Errorf("consent event '%s' payload parse failed [%w]", e.EventType, err)
		}
		return parsed, validator.Struct(&parsed)

	case ConsentEventTypeResearchRequested:
		var parsed ResearchRequestedPayload
		if err := json.Unmarshal(e.Payload, &parsed); err != nil {
			return nil, fmt.Errorf("consent event '%s' payload parse failed [%w]", e.EventType, err)
		}
		return parsed, validator.Struct(&parsed)

	case ConsentEventTypeResearchApproved:
		var parsed ResearchApprovedPayload
		if err := json.Unmarshal(e.Payload, &parsed); err != nil {
			return nil, fmt.Errorf("consent event '%s' payload parse failed [%w]", e.EventType, err)
		}
		return parsed, validator.Struct(&parsed)

	case ConsentEventTypeOwnershipTransferred:
		var parsed OwnershipTransferredPayload
		if err := json.Unmarshal(e.Payload, &parsed); err != nil {
			return nil, fmt.Errorf("consent event '%s' payload parse failed [%w]", e.EventType, err)
		}
		return parsed, validator.Struct(&parsed)
	}
	return nil, nil
}

// ConsentCreatedPayload payload of a consent creation event
type ConsentCreatedPayload struct {
	// ConsentID the new consent
	ConsentID string `json:"consent_id" validate:"required,consent_id"`
	// Contributor the creating principal
	Contributor string `json:"contributor" validate:"required"`
	// DataHash the granted content reference
	DataHash string `json:"data_hash" validate:"required"`
	// DataType free-text classification
	DataType string `json:"data_type"`
	// Description free-text description
	Description string `json:"description"`
}

// ConsentRevokedPayload payload of a consent revocation event
type ConsentRevokedPayload struct {
	// ConsentID the revoked consent
	ConsentID string `json:"consent_id" validate:"required,consent_id"`
	// Contributor the revoking principal
	Contributor string `json:"contributor" validate:"required"`
}

// ResearchRequestedPayload payload of a research request event
type ResearchRequestedPayload struct {
	// ConsentID the targeted consent
	ConsentID string `json:"consent_id" validate:"required,consent_id"`
	// Researcher the requesting principal
	Researcher string `json:"researcher" validate:"required"`
	// Purpose the stated justification
	Purpose string `json:"purpose" validate:"required"`
}

// ResearchApprovedPayload payload of a research approval event
type ResearchApprovedPayload struct {
	// ConsentID the consent granting access
	ConsentID string `json:"consent_id" validate:"required,consent_id"`
	// Researcher the approved principal
	Researcher string `json:"researcher" validate:"required"`
}

// OwnershipTransferredPayload payload of a registry ownership transfer event
type OwnershipTransferredPayload struct {
	// PreviousOwner the outgoing registry owner
	PreviousOwner string `json:"previous_owner" validate:"required"`
	// NewOwner the incoming registry owner
	NewOwner string `json:"new_owner" validate:"required"`
}
