// Package registry - consent authorization ledger controller
package registry

import (
	"context"
	"fmt"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/medsynapse/consent-ledger/db"
	"github.com/medsynapse/consent-ledger/models"
)

// ConsentRegistry the authoritative ledger of consent records and their
// research-request sub-records. Every mutating operation applies atomically
// inside a single database transaction and records its domain event in the
// same transaction.
type ConsentRegistry interface {
	/*
		CreateConsent record a new consent grant

			@param ctx context.Context - execution context
			@param caller string - creating principal
			@param dataHash string - opaque content reference; must be non-empty
			@param dataType string - free-text classification
			@param description string - free-text description
			@param activeDBClient db.Database - existing database transaction
			@returns the consent entry
	*/
	CreateConsent(
		ctx context.Context,
		caller, dataHash, dataType, description string,
		activeDBClient db.Database,
	) (models.ConsentRecord, error)

	/*
		RequestAccess file a research request against a consent

			@param ctx context.Context - execution context
			@param caller string - requesting principal
			@param consentID string - consent ID
			@param purpose string - stated justification; must be non-empty
			@param activeDBClient db.Database - existing database transaction
			@returns the request entry
	*/
	RequestAccess(
		ctx context.Context, caller string, consentID string, purpose string,
		activeDBClient db.Database,
	) (models.ResearchRequest, error)

	/*
		ApproveRequest approve a research request by position

			@param ctx context.Context - execution context
			@param caller string - requesting principal; must be the contributor
			@param consentID string - consent ID
			@param requestIndex int - request position within the consent
			@param activeDBClient db.Database - existing database transaction
	*/
	ApproveRequest(
		ctx context.Context, caller string, consentID string, requestIndex int,
		activeDBClient db.Database,
	) error

	/*
		RevokeConsent permanently deactivate a consent

			@param ctx context.Context - execution context
			@param caller string - requesting principal; must be the contributor
			@param consentID string - consent ID
			@param activeDBClient db.Database - existing database transaction
	*/
	RevokeConsent(
		ctx context.Context, caller string, consentID string, activeDBClient db.Database,
	) error

	/*
		RecordAccess record one data access by an authorized researcher

			@param ctx context.Context - execution context
			@param caller string - requesting principal; must be an authorized researcher
			@param consentID string - consent ID
			@param activeDBClient db.Database - existing database transaction
	*/
	RecordAccess(
		ctx context.Context, caller string, consentID string, activeDBClient db.Database,
	) error

	/*
		IsAuthorized whether a researcher belongs to a consent's authorized set.

		Membership reflects approval bookkeeping only; revocation does not clear
		the set, so pair this with GetConsentInfo's Active flag before treating
		membership as a live capability.

			@param ctx context.Context - execution context
			@param consentID string - consent ID
			@param researcher string - the principal to check
			@param activeDBClient db.Database - existing database transaction
			@returns set membership
	*/
	IsAuthorized(
		ctx context.Context, consentID string, researcher string, activeDBClient db.Database,
	) (bool, error)

	/*
		GetConsentInfo fetch a consent snapshot.

		The snapshot excludes the request and authorized-researcher collections;
		use ListResearchRequests and ListAuthorizedResearchers for those.

			@param ctx context.Context - execution context
			@param consentID string - consent ID
			@param activeDBClient db.Database - existing database transaction
			@returns the consent entry
	*/
	GetConsentInfo(
		ctx context.Context, consentID string, activeDBClient db.Database,
	) (models.ConsentRecord, error)

	/*
		GetContributorConsents list the IDs of every consent a contributor ever
		created, in creation order

			@param ctx context.Context - execution context
			@param contributor string - the contributor
			@param activeDBClient db.Database - existing database transaction
			@returns the consent IDs
	*/
	GetContributorConsents(
		ctx context.Context, contributor string, activeDBClient db.Database,
	) ([]string, error)

	/*
		ListResearchRequests list the requests filed against a consent, in
		insertion order

			@param ctx context.Context - execution context
			@param consentID string - consent ID
			@param activeDBClient db.Database - existing database transaction
			@returns the request entries
	*/
	ListResearchRequests(
		ctx context.Context, consentID string, activeDBClient db.Database,
	) ([]models.ResearchRequest, error)

	/*
		ListAuthorizedResearchers list a consent's authorized set

			@param ctx context.Context - execution context
			@param consentID string - consent ID
			@param activeDBClient db.Database - existing database transaction
			@returns the authorized principals
	*/
	ListAuthorizedResearchers(
		ctx context.Context, consentID string, activeDBClient db.Database,
	) ([]string, error)

	/*
		TotalConsents number of consents ever created

			@param ctx context.Context - execution context
			@param activeDBClient db.Database - existing database transaction
			@returns the counter
	*/
	TotalConsents(ctx context.Context, activeDBClient db.Database) (uint64, error)

	/*
		Owner the current registry owner

			@param ctx context.Context - execution context
			@param activeDBClient db.Database - existing database transaction
			@returns the owner principal
	*/
	Owner(ctx context.Context, activeDBClient db.Database) (string, error)

	/*
		TransferOwnership hand registry-level administrative rights to a new owner

			@param ctx context.Context - execution context
			@param caller string - requesting principal; must be the current owner
			@param newOwner string - incoming owner
			@param activeDBClient db.Database - existing database transaction
	*/
	TransferOwnership(
		ctx context.Context, caller string, newOwner string, activeDBClient db.Database,
	) error
}

// consentRegistry implements ConsentRegistry
type consentRegistry struct {
	goutils.Component

	persistence db.Client
}

/*
NewConsentRegistry define a new consent registry

Initializes the registry parameter singleton on first use; on an existing
database the owner argument is ignored in favor of the recorded owner.

	@param ctx context.Context - execution context
	@param persistence db.Client - persistence layer client
	@param owner string - initial registry owner
	@returns registry instance
*/
func NewConsentRegistry(
	ctx context.Context, persistence db.Client, owner string,
) (ConsentRegistry, error) {
	logTags := log.Fields{"module": "registry", "component": "consent-registry"}

	instance := &consentRegistry{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		persistence: persistence,
	}

	// Prepare the registry parameter singleton
	if dbErr := persistence.UseDatabaseInTransaction(
		ctx, func(dbCtx context.Context, dbClient db.Database) error {
			params, err := dbClient.InitializeRegistry(dbCtx, owner)
			if err != nil {
				return fmt.Errorf("failed to initialize registry parameters [%w]", err)
			}
			log.WithFields(logTags).WithField("owner", params.Owner).Debug("Registry ready")
			return nil
		},
	); dbErr != nil {
		return nil, fmt.Errorf("failed to prepare registry parameters [%w]", dbErr)
	}

	return instance, nil
}

/*
CreateConsent record a new consent grant

	@param ctx context.Context - execution context
	@param caller string - creating principal
	@param dataHash string - opaque content reference; must be non-empty
	@param dataType string - free-text classification
	@param description string - free-text description
	@param activeDBClient db.Database - existing database transaction
	@returns the consent entry
*/
func (r *consentRegistry) CreateConsent(
	ctx context.Context,
	caller, dataHash, dataType, description string,
	activeDBClient db.Database,
) (models.ConsentRecord, error) {
	var consentEntry models.ConsentRecord

	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, r.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			consentEntry, err = dbClient.CreateConsent(dbCtx, caller, dataHash, dataType, description)
			return err
		},
	); dbErr != nil {
		return models.ConsentRecord{}, fmt.Errorf(
			"failed to create consent for '%s' [%w]", caller, dbErr,
		)
	}

	return consentEntry, nil
}

/*
RequestAccess file a research request against a consent

	@param ctx context.Context - execution context
	@param caller string - requesting principal
	@param consentID string - consent ID
	@param purpose string - stated justification; must be non-empty
	@param activeDBClient db.Database - existing database transaction
	@returns the request entry
*/
func (r *consentRegistry) RequestAccess(
	ctx context.Context, caller string, consentID string, purpose string,
	activeDBClient db.Database,
) (models.ResearchRequest, error) {
	var requestEntry models.ResearchRequest

	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, r.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			requestEntry, err = dbClient.SubmitResearchRequest(dbCtx, caller, consentID, purpose)
			return err
		},
	); dbErr != nil {
		return models.ResearchRequest{}, fmt.Errorf(
			"failed to file research request against consent %s [%w]", consentID, dbErr,
		)
	}

	return requestEntry, nil
}

/*
ApproveRequest approve a research request by position

	@param ctx context.Context - execution context
	@param caller string - requesting principal; must be the contributor
	@param consentID string - consent ID
	@param requestIndex int - request position within the consent
	@param activeDBClient db.Database - existing database transaction
*/
func (r *consentRegistry) ApproveRequest(
	ctx context.Context, caller string, consentID string, requestIndex int,
	activeDBClient db.Database,
) error {
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, r.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			_, err := dbClient.ApproveResearchRequest(dbCtx, caller, consentID, requestIndex)
			return err
		},
	); dbErr != nil {
		return fmt.Errorf(
			"failed to approve request %d of consent %s [%w]", requestIndex, consentID, dbErr,
		)
	}

	return nil
}

/*
RevokeConsent permanently deactivate a consent

	@param ctx context.Context - execution context
	@param caller string - requesting principal; must be the contributor
	@param consentID string - consent ID
	@param activeDBClient db.Database - existing database transaction
*/
func (r *consentRegistry) RevokeConsent(
	ctx context.Context, caller string, consentID string, activeDBClient db.Database,
) error {
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, r.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			_, err := dbClient.RevokeConsent(dbCtx, caller, consentID)
			return err
		},
	); dbErr != nil {
		return fmt.Errorf("failed to revoke consent %s [%w]", consentID, dbErr)
	}

	return nil
}

/*
RecordAccess record one data access by an authorized researcher

	@param ctx context.Context - execution context
	@param caller string - requesting principal; must be an authorized researcher
	@param consentID string - consent ID
	@param activeDBClient db.Database - existing database transaction
*/
func (r *consentRegistry) RecordAccess(
	ctx context.Context, caller string, consentID string, activeDBClient db.Database,
) error {
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, r.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			_, err := dbClient.RecordDataAccess(dbCtx, caller, consentID)
			return err
		},
	); dbErr != nil {
		return fmt.Errorf("failed to record access on consent %s [%w]", consentID, dbErr)
	}

	return nil
}

/*
IsAuthorized whether a researcher belongs to a consent's authorized set

	@param ctx context.Context - execution context
	@param consentID string - consent ID
	@param researcher string - the principal to check
	@param activeDBClient db.Database - existing database transaction
	@returns set membership
*/
func (r *consentRegistry) IsAuthorized(
	ctx context.Context, consentID string, researcher string, activeDBClient db.Database,
) (bool, error) {
	var authorized bool

	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, r.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			authorized, err = dbClient.IsAuthorizedResearcher(dbCtx, consentID, researcher)
			return err
		},
	); dbErr != nil {
		return false, fmt.Errorf(
			"failed to check authorization on consent %s [%w]", consentID, dbErr,
		)
	}

	return authorized, nil
}

/*
GetConsentInfo fetch a consent snapshot

	@param ctx context.Context - execution context
	@param consentID string - consent ID
	@param activeDBClient db.Database - existing database transaction
	@returns the consent entry
*/
func (r *consentRegistry) GetConsentInfo(
	ctx context.Context, consentID string, activeDBClient db.Database,
) (models.ConsentRecord, error) {
	var consentEntry models.ConsentRecord

	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, r.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			consentEntry, err = dbClient.GetConsent(dbCtx, consentID)
			return err
		},
	); dbErr != nil {
		return models.ConsentRecord{}, fmt.Errorf("failed to fetch consent %s [%w]", consentID, dbErr)
	}

	return consentEntry, nil
}

/*
GetContributorConsents list the IDs of every consent a contributor ever
created, in creation order

	@param ctx context.Context - execution context
	@param contributor string - the contributor
	@param activeDBClient db.Database - existing database transaction
	@returns the consent IDs
*/
func (r *consentRegistry) GetContributorConsents(
	ctx context.Context, contributor string, activeDBClient db.Database,
) ([]string, error) {
	var consentIDs []string

	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, r.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			entries, err := dbClient.ListConsentsByContributor(dbCtx, contributor)
			if err != nil {
				return err
			}
			consentIDs = []string{}
			for _, entry := range entries {
				consentIDs = append(consentIDs, entry.ID)
			}
			return nil
		},
	); dbErr != nil {
		return nil, fmt.Errorf(
			"failed to list consents of contributor '%s' [%w]", contributor, dbErr,
		)
	}

	return consentIDs, nil
}

/*
ListResearchRequests list the requests filed against a consent, in insertion
order

	@param ctx context.Context - execution context
	@param consentID string - consent ID
	@param activeDBClient db.Database - existing database transaction
	@returns the request entries
*/
func (r *consentRegistry) ListResearchRequests(
	ctx context.Context, consentID string, activeDBClient db.Database,
) ([]models.ResearchRequest, error) {
	var requestEntries []models.ResearchRequest

	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, r.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			requestEntries, err = dbClient.ListResearchRequests(
				dbCtx, consentID, db.ResearchRequestQueryFilter{},
			)
			return err
		},
	); dbErr != nil {
		return nil, fmt.Errorf("failed to list requests of consent %s [%w]", consentID, dbErr)
	}

	return requestEntries, nil
}

/*
ListAuthorizedResearchers list a consent's authorized set

	@param ctx context.Context - execution context
	@param consentID string - consent ID
	@param activeDBClient db.Database - existing database transaction
	@returns the authorized principals
*/
func (r *consentRegistry) ListAuthorizedResearchers(
	ctx context.Context, consentID string, activeDBClient db.Database,
) ([]string, error) {
	var researchers []string

	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, r.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			var err error
			researchers, err = dbClient.ListAuthorizedResearchers(dbCtx, consentID)
			return err
		},
	); dbErr != nil {
		return nil, fmt.Errorf(
			"failed to list authorized researchers of consent %s [%w]", consentID, dbErr,
		)
	}

	return researchers, nil
}

/*
TotalConsents number of consents ever created

	@param ctx context.Context - execution context
	@param activeDBClient db.Database - existing database transaction
	@returns the counter
*/
func (r *consentRegistry) TotalConsents(
	ctx context.Context, activeDBClient db.Database,
) (uint64, error) {
	var total uint64

	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, r.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			params, err := dbClient.GetRegistryParams(dbCtx)
			if err != nil {
				return err
			}
			total = params.TotalConsents
			return nil
		},
	); dbErr != nil {
		return 0, fmt.Errorf("failed to fetch total consent count [%w]", dbErr)
	}

	return total, nil
}

/*
Owner the current registry owner

	@param ctx context.Context - execution context
	@param activeDBClient db.Database - existing database transaction
	@returns the owner principal
*/
func (r *consentRegistry) Owner(ctx context.Context, activeDBClient db.Database) (string, error) {
	var owner string

	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, r.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			params, err := dbClient.GetRegistryParams(dbCtx)
			if err != nil {
				return err
			}
			owner = params.Owner
			return nil
		},
	); dbErr != nil {
		return "", fmt.Errorf("failed to fetch registry owner [%w]", dbErr)
	}

	return owner, nil
}

/*
TransferOwnership hand registry-level administrative rights to a new owner

	@param ctx context.Context - execution context
	@param caller string - requesting principal; must be the current owner
	@param newOwner string - incoming owner
	@param activeDBClient db.Database - existing database transaction
*/
func (r *consentRegistry) TransferOwnership(
	ctx context.Context, caller string, newOwner string, activeDBClient db.Database,
) error {
	if dbErr := db.ActiveSessionWrapper(
		ctx, activeDBClient, r.persistence, func(dbCtx context.Context, dbClient db.Database) error {
			_, err := dbClient.TransferOwnership(dbCtx, caller, newOwner)
			return err
		},
	); dbErr != nil {
		return fmt.Errorf("failed to transfer registry ownership [%w]", dbErr)
	}

	return nil
}
