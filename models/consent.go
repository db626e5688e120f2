package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ConsentRecord one contributor's grant of an off-chain data reference for
// potential research use
type ConsentRecord struct {
	// ID consent ID, derived from the contributor, the data hash, and the
	// registry operation sequence at creation time
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required,consent_id"`

	// Contributor principal identifier of the creator; immutable
	Contributor string `json:"contributor" gorm:"column:contributor;not null;index" validate:"required"`

	// DataHash opaque content reference pointing at off-chain encrypted data.
	// The registry never interprets or dereferences it.
	DataHash string `json:"data_hash" gorm:"column:data_hash;not null" validate:"required"`

	// DataType free-text classification of the referenced data
	DataType string `json:"data_type" gorm:"column:data_type"`
	// Description free-text human description of the referenced data
	Description string `json:"description" gorm:"column:description"`

	// Active whether the consent still stands. Starts true, permanently false
	// after revocation.
	Active bool `json:"active" gorm:"column:active;not null"`

	// AccessCount number of recorded data accesses. Only ever increments.
	AccessCount uint64 `json:"access_count" gorm:"column:access_count;not null"`

	// Seq registry operation sequence at creation time. Orders a contributor's
	// consents by creation.
	Seq uint64 `json:"seq" gorm:"column:seq;not null;uniqueIndex" validate:"required"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// ResearchRequest a researcher's recorded ask for access to one consent
type ResearchRequest struct {
	// ID request entry ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required,uuid_rfc4122"`

	// ConsentID the consent this request targets
	ConsentID string `json:"consent_id" gorm:"column:consent_id;not null;uniqueIndex:request_position" validate:"required,consent_id"`

	// Position 0-based index of this request within the consent's request
	// sequence. Approvals address a request by position, so insertion order
	// is significant.
	Position int `json:"position" gorm:"column:position;not null;uniqueIndex:request_position" validate:"gte=0"`

	// Researcher principal identifier of the requester
	Researcher string `json:"researcher" gorm:"column:researcher;not null" validate:"required"`

	// Purpose free-text justification for the request
	Purpose string `json:"purpose" gorm:"column:purpose;not null" validate:"required"`

	// Approved whether the contributor approved this request. Flips false to
	// true exactly once; never the reverse.
	Approved bool `json:"approved" gorm:"column:approved;not null"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// ResearchAuthorization membership of one researcher in a consent's
// approved-access set. Membership only grows; revoking the consent leaves
// the set untouched, so consumers must check Active alongside this set.
type ResearchAuthorization struct {
	// ID authorization entry ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required"`

	// ConsentID the consent granting access
	ConsentID string `json:"consent_id" gorm:"column:consent_id;not null;uniqueIndex:authorized_member" validate:"required,consent_id"`

	// Researcher the authorized principal
	Researcher string `json:"researcher" gorm:"column:researcher;not null;uniqueIndex:authorized_member" validate:"required"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

/*
NewConsentID derive a consent ID from the creating identity and inputs.

The registry operation sequence acts as the nonce, so two creations with
identical contributor and data hash still produce distinct IDs.

	@param contributor string - creating principal
	@param dataHash string - content reference being granted
	@param seq uint64 - registry operation sequence of the creation
	@returns lowercase hex consent ID
*/
func NewConsentID(contributor string, dataHash string, seq uint64) string {
	digest := sha256.New()
	digest.Write([]byte(contributor))
	digest.Write([]byte{0x00})
	digest.Write([]byte(dataHash))
	digest.Write([]byte{0x00})
	digest.Write([]byte(fmt.Sprintf("%d", seq)))
	return hex.EncodeToString(digest.Sum(nil))
}
