package db

import (
	"context"
	"fmt"
	"time"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/medsynapse/consent-ledger/models"
	"gorm.io/gorm"
)

// CommonListEntryQueryFilter common query filter when listing data entries
type CommonListEntryQueryFilter struct {
	Limit  *int
	Offset *int
}

// ConsentEventQueryFilter consent event query filter conditions
type ConsentEventQueryFilter struct {
	CommonListEntryQueryFilter
	// EventTypes the specific event types to query for
	EventTypes []models.ConsentEventTypeENUMType
	// TargetConsentID fetch only events concerning this consent
	TargetConsentID *string
	// EventsAfter filter for events after this timestamp
	EventsAfter *time.Time
	// EventsBefore filter for events before this timestamp
	EventsBefore *time.Time
}

// ResearchRequestQueryFilter research request query filter conditions
type ResearchRequestQueryFilter struct {
	CommonListEntryQueryFilter
	// TargetResearcher fetch only requests filed by this researcher
	TargetResearcher *string
	// ApprovedOnly fetch only approved requests
	ApprovedOnly bool
}

// Database the database handle for interacting with the database
type Database interface {
	// ------------------------------------------------------------------------------------
	// Registry parameters

	/*
		GetRegistryParams fetch the global singleton registry parameter entry

			@param ctx context.Context - execution context
			@returns the entry
	*/
	GetRegistryParams(ctx context.Context) (models.RegistryParams, error)

	/*
		InitializeRegistry set the registry owner on first use

			@param ctx context.Context - execution context
			@param owner string - initial registry owner
			@returns the parameter entry
	*/
	InitializeRegistry(ctx context.Context, owner string) (models.RegistryParams, error)

	/*
		TransferOwnership hand registry-level administrative rights to a new owner

			@param ctx context.Context - execution context
			@param caller string - requesting principal; must be the current owner
			@param newOwner string - incoming owner
			@returns the updated parameter entry
	*/
	TransferOwnership(ctx context.Context, caller string, newOwner string) (models.RegistryParams, error)

	// ------------------------------------------------------------------------------------
	// Consents

	/*
		CreateConsent record a new consent grant

			@param ctx context.Context - execution context
			@param contributor string - creating principal
			@param dataHash string - opaque content reference; must be non-empty
			@param dataType string - free-text classification
			@param description string - free-text description
			@returns the consent entry
	*/
	CreateConsent(
		ctx context.Context, contributor, dataHash, dataType, description string,
	) (models.ConsentRecord, error)

	/*
		GetConsent fetch a consent by ID

			@param ctx context.Context - execution context
			@param consentID string - consent ID
			@returns the consent entry
	*/
	GetConsent(ctx context.Context, consentID string) (models.ConsentRecord, error)

	/*
		ListConsentsByContributor list every consent a contributor ever created,
		in creation order

			@param ctx context.Context - execution context
			@param contributor string - the contributor
			@returns the consent entries
	*/
	ListConsentsByContributor(ctx context.Context, contributor string) ([]models.ConsentRecord, error)

	/*
		RevokeConsent permanently deactivate a consent

			@param ctx context.Context - execution context
			@param caller string - requesting principal; must be the contributor
			@param consentID string - consent ID
			@returns the updated consent entry
	*/
	RevokeConsent(ctx context.Context, caller string, consentID string) (models.ConsentRecord, error)

	/*
		RecordDataAccess increment a consent's access counter

			@param ctx context.Context - execution context
			@param caller string - requesting principal; must be an authorized researcher
			@param consentID string - consent ID
			@returns the updated consent entry
	*/
	RecordDataAccess(ctx context.Context, caller string, consentID string) (models.ConsentRecord, error)

	// ------------------------------------------------------------------------------------
	// Research requests and authorizations

	/*
		SubmitResearchRequest append a research request to a consent

			@param ctx context.Context - execution context
			@param researcher string - requesting principal
			@param consentID string - consent ID
			@param purpose string - stated justification; must be non-empty
			@returns the request entry
	*/
	SubmitResearchRequest(
		ctx context.Context, researcher string, consentID string, purpose string,
	) (models.ResearchRequest, error)

	/*
		ApproveResearchRequest approve a request by position and admit the
		requesting researcher into the consent's authorized set

			@param ctx context.Context - execution context
			@param caller string - requesting principal; must be the contributor
			@param consentID string - consent ID
			@param position int - request position within the consent
			@returns the updated request entry
	*/
	ApproveResearchRequest(
		ctx context.Context, caller string, consentID string, position int,
	) (models.ResearchRequest, error)

	/*
		ListResearchRequests list the requests filed against a consent, in
		insertion order

			@param ctx context.Context - execution context
			@param consentID string - consent ID
			@param filters ResearchRequestQueryFilter - entry listing filter
			@returns the request entries
	*/
	ListResearchRequests(
		ctx context.Context, consentID string, filters ResearchRequestQueryFilter,
	) ([]models.ResearchRequest, error)

	/*
		IsAuthorizedResearcher whether a researcher belongs to a consent's
		authorized set

			@param ctx context.Context - execution context
			@param consentID string - consent ID
			@param researcher string - the principal to check
			@returns set membership
	*/
	IsAuthorizedResearcher(ctx context.Context, consentID string, researcher string) (bool, error)

	/*
		ListAuthorizedResearchers list a consent's authorized set, in admission order

			@param ctx context.Context - execution context
			@param consentID string - consent ID
			@returns the authorized principals
	*/
	ListAuthorizedResearchers(ctx context.Context, consentID string) ([]string, error)

	// ------------------------------------------------------------------------------------
	// Consent events

	/*
		ListConsentEvents list recorded consent events

			@param ctx context.Context - execution context
			@param filters ConsentEventQueryFilter - entry listing filter
			@returns the event entries in sequence order
	*/
	ListConsentEvents(
		ctx context.Context, filters ConsentEventQueryFilter,
	) ([]models.ConsentEvent, error)

	/*
		ListUndeliveredEvents list events not yet delivered to the external sink

			@param ctx context.Context - execution context
			@param limit int - max entries to return; 0 for no limit
			@returns the event entries in sequence order
	*/
	ListUndeliveredEvents(ctx context.Context, limit int) ([]models.ConsentEvent, error)

	/*
		MarkEventDelivered record that an event reached the external sink

			@param ctx context.Context - execution context
			@param eventID string - the event entry ID
	*/
	MarkEventDelivered(ctx context.Context, eventID string) error
}

// databaseImpl implements Database
type databaseImpl struct {
	goutils.Component
	db        *gorm.DB
	validator *validator.Validate
}

// newDatabase define a new database client
func newDatabase(_ context.Context, sqlClient *gorm.DB) (Database, error) {
	logTags := log.Fields{"package": "consent-ledger", "module": "db", "component": "db-client"}

	instance := &databaseImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		db:        sqlClient,
		validator: validator.New(),
	}

	if err := models.RegisterWithValidator(instance.validator); err != nil {
		return nil, fmt.Errorf("failed to install custom validation macros [%w]", err)
	}

	return instance, nil
}
