package db

import (
	"context"
	"fmt"

	"github.com/medsynapse/consent-ledger/models"
)

// ======================================================================================
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
func (d *databaseImpl) CreateConsent(
	_ context.Context, contributor, dataHash, dataType, description string,
) (models.ConsentRecord, error) {
	if contributor == "" {
		return models.ConsentRecord{}, models.NewRegistryError(
			models.ErrorKindInvalidInput, "contributor cannot be empty",
		)
	}
	if dataHash == "" {
		return models.ConsentRecord{}, models.NewRegistryError(
			models.ErrorKindInvalidInput, "data hash cannot be empty",
		)
	}

	seq, err := d.nextOpSequence(true)
	if err != nil {
		return models.ConsentRecord{}, fmt.Errorf("failed to allocate operation sequence [%w]", err)
	}

	newEntry := ConsentDBEntry{
		ConsentRecord: models.ConsentRecord{
			ID:          models.NewConsentID(contributor, dataHash, seq),
			Contributor: contributor,
			DataHash:    dataHash,
			DataType:    dataType,
			Description: description,
			Active:      true,
			Seq:         seq,
		},
	}

	if err := d.validator.Struct(&newEntry); err != nil {
		return models.ConsentRecord{}, fmt.Errorf("new consent entry is not valid [%w]", err)
	}

	if tmp := d.db.Create(&newEntry); tmp.Error != nil {
		return models.ConsentRecord{}, fmt.Errorf("new consent entry failed insert [%w]", tmp.Error)
	}

	// Record this event
	if _, err := d.defineNewConsentEvent(
		models.ConsentEventTypeConsentCreated,
		newEntry.ID,
		seq,
		models.ConsentCreatedPayload{
			ConsentID:   newEntry.ID,
			Contributor: contributor,
			DataHash:    dataHash,
			DataType:    dataType,
			Description: description,
		},
	); err != nil {
		return models.ConsentRecord{}, fmt.Errorf(
			"failed to record consent creation event [%w]", err,
		)
	}

	return newEntry.ConsentRecord, nil
}

// getConsentEntry find a consent by ID
func (d *databaseImpl) getConsentEntry(consentID string) (ConsentDBEntry, error) {
	var entries []ConsentDBEntry
	if tmp := d.db.Where("id = ?", consentID).Find(&entries); tmp.Error != nil {
		return ConsentDBEntry{}, fmt.Errorf("failed to read consents table [%w]", tmp.Error)
	}
	if len(entries) == 0 {
		return ConsentDBEntry{}, models.NewRegistryError(
			models.ErrorKindNotFound, "consent %s does not exist", consentID,
		)
	}
	return entries[0], nil
}

/*
GetConsent fetch a consent by ID

	@param ctx context.Context - execution context
	@param consentID string - consent ID
	@returns the consent entry
*/
func (d *databaseImpl) GetConsent(
	_ context.Context, consentID string,
) (models.ConsentRecord, error) {
	entry, err := d.getConsentEntry(consentID)
	if err != nil {
		return models.ConsentRecord{}, fmt.Errorf("failed to fetch consent %s [%w]", consentID, err)
	}

	return entry.ConsentRecord, nil
}

/*
ListConsentsByContributor list every consent a contributor ever created, in
creation order

	@param ctx context.Context - execution context
	@param contributor string - the contributor
	@returns the consent entries
*/
func (d *databaseImpl) ListConsentsByContributor(
	_ context.Context, contributor string,
) ([]models.ConsentRecord, error) {
	var entries []ConsentDBEntry
	tmp := d.db.
		Where("contributor = ?", contributor).
		Order("seq").
		Find(&entries)
	if tmp.Error != nil {
		return nil, fmt.Errorf(
			"failed to list consents of contributor '%s' [%w]", contributor, tmp.Error,
		)
	}

	result := []models.ConsentRecord{}
	for _, entry := range entries {
		result = append(result, entry.ConsentRecord)
	}

	return result, nil
}

/*
RevokeConsent permanently deactivate a consent

	@param ctx context.Context - execution context
	@param caller string - requesting principal; must be the contributor
	@param consentID string - consent ID
	@returns the updated consent entry
*/
func (d *databaseImpl) RevokeConsent(
	_ context.Context, caller string, consentID string,
) (models.ConsentRecord, error) {
	entry, err := d.getConsentEntry(consentID)
	if err != nil {
		return models.ConsentRecord{}, fmt.Errorf("failed to fetch consent %s [%w]", consentID, err)
	}

	if caller != entry.Contributor {
		return models.ConsentRecord{}, models.NewRegistryError(
			models.ErrorKindNotAuthorized, "only the contributor can revoke consent %s", consentID,
		)
	}
	if !entry.Active {
		return models.ConsentRecord{}, models.NewRegistryError(
			models.ErrorKindAlreadyRevoked, "consent %s is already revoked", consentID,
		)
	}

	seq, err := d.nextOpSequence(false)
	if err != nil {
		return models.ConsentRecord{}, fmt.Errorf("failed to allocate operation sequence [%w]", err)
	}

	entry.Active = false
	// Updates with a struct skips zero-value fields, so flip Active with an
	// explicit column write.
	if tmp := d.db.Model(&entry).Update("active", false); tmp.Error != nil {
		return models.ConsentRecord{}, fmt.Errorf(
			"failed to revoke consent %s [%w]", consentID, tmp.Error,
		)
	}

	// Record this event
	if _, err := d.defineNewConsentEvent(
		models.ConsentEventTypeConsentRevoked,
		entry.ID,
		seq,
		models.ConsentRevokedPayload{ConsentID: entry.ID, Contributor: entry.Contributor},
	); err != nil {
		return models.ConsentRecord{}, fmt.Errorf(
			"failed to record consent revocation event [%w]", err,
		)
	}

	return entry.ConsentRecord, nil
}

/*
RecordDataAccess increment a consent's access counter

	@param ctx context.Context - execution context
	@param caller string - requesting principal; must be an authorized researcher
	@param consentID string - consent ID
	@returns the updated consent entry
*/
func (d *databaseImpl) RecordDataAccess(
	ctx context.Context, caller string, consentID string,
) (models.ConsentRecord, error) {
	entry, err := d.getConsentEntry(consentID)
	if err != nil {
		return models.ConsentRecord{}, fmt.Errorf("failed to fetch consent %s [%w]", consentID, err)
	}

	authorized, err := d.IsAuthorizedResearcher(ctx, consentID, caller)
	if err != nil {
		return models.ConsentRecord{}, fmt.Errorf(
			"failed to check authorization on consent %s [%w]", consentID, err,
		)
	}
	if !authorized {
		return models.ConsentRecord{}, models.NewRegistryError(
			models.ErrorKindNotAuthorized,
			"'%s' is not an authorized researcher of consent %s", caller, consentID,
		)
	}

	if _, err := d.nextOpSequence(false); err != nil {
		return models.ConsentRecord{}, fmt.Errorf("failed to allocate operation sequence [%w]", err)
	}

	entry.AccessCount++
	if tmp := d.db.Model(&entry).Update("access_count", entry.AccessCount); tmp.Error != nil {
		return models.ConsentRecord{}, fmt.Errorf(
			"failed to record access on consent %s [%w]", consentID, tmp.Error,
		)
	}

	return entry.ConsentRecord, nil
}
