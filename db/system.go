package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/medsynapse/consent-ledger/models"
)

// GlobalRegistryParamEntryID ID of the singleton registry parameter entry
const GlobalRegistryParamEntryID = "registry-parameters"

// getRegistryParamsEntry fetch the registry param entry
func (d *databaseImpl) getRegistryParamsEntry() (RegistryParamsDBEntry, error) {
	var entries []RegistryParamsDBEntry
	dbErr := d.db.Where("id = ?", GlobalRegistryParamEntryID).Find(&entries).Error
	if dbErr != nil {
		return RegistryParamsDBEntry{}, fmt.Errorf("failed to read registry params table [%w]", dbErr)
	}
	if len(entries) == 0 {
		return RegistryParamsDBEntry{}, models.NewRegistryError(
			models.ErrorKindNotFound, "registry is not initialized",
		)
	}
	return entries[0], nil
}

/*
GetRegistryParams fetch the global singleton registry parameter entry

	@param ctx context.Context - execution context
	@returns the entry
*/
func (d *databaseImpl) GetRegistryParams(_ context.Context) (models.RegistryParams, error) {
	entry, err := d.getRegistryParamsEntry()
	if err != nil {
		return entry.RegistryParams, fmt.Errorf("unable to fetch registry parameter entry [%w]", err)
	}
	return entry.RegistryParams, nil
}

/*
InitializeRegistry set the registry owner on first use

Re-initialization is a no-op returning the existing entry; the owner can only
change afterward through TransferOwnership.

	@param ctx context.Context - execution context
	@param owner string - initial registry owner
	@returns the parameter entry
*/
func (d *databaseImpl) InitializeRegistry(
	_ context.Context, owner string,
) (models.RegistryParams, error) {
	entry, err := d.getRegistryParamsEntry()
	if err == nil {
		return entry.RegistryParams, nil
	}
	var regErr *models.RegistryError
	if !errors.As(err, &regErr) || regErr.Kind != models.ErrorKindNotFound {
		return models.RegistryParams{}, err
	}

	if owner == "" {
		return models.RegistryParams{}, models.NewRegistryError(
			models.ErrorKindInvalidInput, "registry owner cannot be empty",
		)
	}

	newEntry := RegistryParamsDBEntry{
		RegistryParams: models.RegistryParams{
			ID:    GlobalRegistryParamEntryID,
			Owner: owner,
		},
	}

	if err := d.validator.Struct(&newEntry); err != nil {
		return models.RegistryParams{}, fmt.Errorf("registry parameter entry is not valid [%w]", err)
	}

	if tmp := d.db.Create(&newEntry); tmp.Error != nil {
		return models.RegistryParams{}, fmt.Errorf(
			"failed to setup singleton registry params table [%w]", tmp.Error,
		)
	}

	return newEntry.RegistryParams, nil
}

/*
TransferOwnership hand registry-level administrative rights to a new owner

	@param ctx context.Context - execution context
	@param caller string - requesting principal; must be the current owner
	@param newOwner string - incoming owner
	@returns the updated parameter entry
*/
func (d *databaseImpl) TransferOwnership(
	_ context.Context, caller string, newOwner string,
) (models.RegistryParams, error) {
	entry, err := d.getRegistryParamsEntry()
	if err != nil {
		return models.RegistryParams{}, fmt.Errorf("unable to fetch registry parameter entry [%w]", err)
	}

	if caller != entry.Owner {
		return models.RegistryParams{}, models.NewRegistryError(
			models.ErrorKindNotAuthorized, "only the registry owner can transfer ownership",
		)
	}
	if newOwner == "" {
		return models.RegistryParams{}, models.NewRegistryError(
			models.ErrorKindInvalidInput, "new registry owner cannot be empty",
		)
	}

	previousOwner := entry.Owner
	entry.Owner = newOwner
	entry.OpSequence++
	if tmp := d.db.Updates(&entry); tmp.Error != nil {
		return models.RegistryParams{}, fmt.Errorf("registry ownership update failed [%w]", tmp.Error)
	}

	// Record this event
	if _, err := d.defineNewConsentEvent(
		models.ConsentEventTypeOwnershipTransferred,
		"",
		entry.OpSequence,
		models.OwnershipTransferredPayload{PreviousOwner: previousOwner, NewOwner: newOwner},
	); err != nil {
		return models.RegistryParams{}, fmt.Errorf(
			"failed to record ownership transfer event [%w]", err,
		)
	}

	return entry.RegistryParams, nil
}

// nextOpSequence advance the registry operation counter and return the new value.
// Must run inside the mutating transaction so sequence allocation and the
// mutation it tags land together.
func (d *databaseImpl) nextOpSequence(consentCreated bool) (uint64, error) {
	entry, err := d.getRegistryParamsEntry()
	if err != nil {
		return 0, fmt.Errorf("unable to fetch registry parameter entry [%w]", err)
	}

	entry.OpSequence++
	if consentCreated {
		entry.TotalConsents++
	}
	if tmp := d.db.Updates(&entry); tmp.Error != nil {
		return 0, fmt.Errorf("registry operation counter update failed [%w]", tmp.Error)
	}

	return entry.OpSequence, nil
}
