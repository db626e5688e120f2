package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/medsynapse/consent-ledger/models"
	"github.com/oklog/ulid/v2"
)

// ======================================================================================
// Research requests

/*
SubmitResearchRequest append a research request to a consent

A request can be filed against a revoked consent; only approval semantics
consider the consent state, and callers are expected to check Active.

	@param ctx context.Context - execution context
	@param researcher string - requesting principal
	@param consentID string - consent ID
	@param purpose string - stated justification; must be non-empty
	@returns the request entry
*/
func (d *databaseImpl) SubmitResearchRequest(
	_ context.Context, researcher string, consentID string, purpose string,
) (models.ResearchRequest, error) {
	if researcher == "" {
		return models.ResearchRequest{}, models.NewRegistryError(
			models.ErrorKindInvalidInput, "researcher cannot be empty",
		)
	}
	if purpose == "" {
		return models.ResearchRequest{}, models.NewRegistryError(
			models.ErrorKindInvalidInput, "request purpose cannot be empty",
		)
	}

	entry, err := d.getConsentEntry(consentID)
	if err != nil {
		return models.ResearchRequest{}, fmt.Errorf("failed to fetch consent %s [%w]", consentID, err)
	}

	// The new request takes the next position in the consent's sequence
	var pending int64
	if tmp := d.db.Model(&ResearchRequestDBEntry{}).
		Where("consent_id = ?", consentID).
		Count(&pending); tmp.Error != nil {
		return models.ResearchRequest{}, fmt.Errorf(
			"failed to count requests of consent %s [%w]", consentID, tmp.Error,
		)
	}

	seq, err := d.nextOpSequence(false)
	if err != nil {
		return models.ResearchRequest{}, fmt.Errorf("failed to allocate operation sequence [%w]", err)
	}

	newEntry := ResearchRequestDBEntry{
		ResearchRequest: models.ResearchRequest{
			ID:         uuid.NewString(),
			ConsentID:  entry.ID,
			Position:   int(pending),
			Researcher: researcher,
			Purpose:    purpose,
		},
	}

	if err := d.validator.Struct(&newEntry); err != nil {
		return models.ResearchRequest{}, fmt.Errorf("new research request entry is not valid [%w]", err)
	}

	if tmp := d.db.Create(&newEntry); tmp.Error != nil {
		return models.ResearchRequest{}, fmt.Errorf(
			"new research request entry failed insert [%w]", tmp.Error,
		)
	}

	// Record this event
	if _, err := d.defineNewConsentEvent(
		models.ConsentEventTypeResearchRequested,
		entry.ID,
		seq,
		models.ResearchRequestedPayload{ConsentID: entry.ID, Researcher: researcher, Purpose: purpose},
	); err != nil {
		return models.ResearchRequest{}, fmt.Errorf(
			"failed to record research request event [%w]", err,
		)
	}

	return newEntry.ResearchRequest, nil
}

/*
ApproveResearchRequest approve a request by position and admit the requesting
researcher into the consent's authorized set

Approving an already-approved request succeeds and re-emits the approval
event; the set admission is a no-op.

	@param ctx context.Context - execution context
	@param caller string - requesting principal; must be the contributor
	@param consentID string - consent ID
	@param position int - request position within the consent
	@returns the updated request entry
*/
func (d *databaseImpl) ApproveResearchRequest(
	_ context.Context, caller string, consentID string, position int,
) (models.ResearchRequest, error) {
	entry, err := d.getConsentEntry(consentID)
	if err != nil {
		return models.ResearchRequest{}, fmt.Errorf("failed to fetch consent %s [%w]", consentID, err)
	}

	if caller != entry.Contributor {
		return models.ResearchRequest{}, models.NewRegistryError(
			models.ErrorKindNotAuthorized,
			"only the contributor can approve requests of consent %s", consentID,
		)
	}

	var requests []ResearchRequestDBEntry
	if tmp := d.db.
		Where("consent_id = ? AND position = ?", consentID, position).
		Find(&requests); tmp.Error != nil {
		return models.ResearchRequest{}, fmt.Errorf(
			"failed to read requests of consent %s [%w]", consentID, tmp.Error,
		)
	}
	if len(requests) == 0 {
		return models.ResearchRequest{}, models.NewRegistryError(
			models.ErrorKindIndexOutOfRange,
			"consent %s has no request at position %d", consentID, position,
		)
	}
	request := requests[0]

	seq, err := d.nextOpSequence(false)
	if err != nil {
		return models.ResearchRequest{}, fmt.Errorf("failed to allocate operation sequence [%w]", err)
	}

	request.Approved = true
	if tmp := d.db.Model(&request).Update("approved", true); tmp.Error != nil {
		return models.ResearchRequest{}, fmt.Errorf(
			"failed to approve request %d of consent %s [%w]", position, consentID, tmp.Error,
		)
	}

	// Admit the researcher into the authorized set. Set semantics: re-adding
	// an existing member changes nothing.
	if err := d.admitAuthorizedResearcher(entry.ID, request.Researcher); err != nil {
		return models.ResearchRequest{}, fmt.Errorf(
			"failed to authorize researcher '%s' on consent %s [%w]",
			request.Researcher, consentID, err,
		)
	}

	// Record this event
	if _, err := d.defineNewConsentEvent(
		models.ConsentEventTypeResearchApproved,
		entry.ID,
		seq,
		models.ResearchApprovedPayload{ConsentID: entry.ID, Researcher: request.Researcher},
	); err != nil {
		return models.ResearchRequest{}, fmt.Errorf(
			"failed to record research approval event [%w]", err,
		)
	}

	return request.ResearchRequest, nil
}

/*
ListResearchRequests list the requests filed against a consent, in insertion
order

	@param ctx context.Context - execution context
	@param consentID string - consent ID
	@param filters ResearchRequestQueryFilter - entry listing filter
	@returns the request entries
*/
func (d *databaseImpl) ListResearchRequests(
	_ context.Context, consentID string, filters ResearchRequestQueryFilter,
) ([]models.ResearchRequest, error) {
	if _, err := d.getConsentEntry(consentID); err != nil {
		return nil, fmt.Errorf("failed to fetch consent %s [%w]", consentID, err)
	}

	query := d.db.Model(&ResearchRequestDBEntry{}).Where("consent_id = ?", consentID)

	if filters.TargetResearcher != nil {
		query = query.Where("researcher = ?", *filters.TargetResearcher)
	}
	if filters.ApprovedOnly {
		query = query.Where("approved = ?", true)
	}

	if filters.Limit != nil {
		query = query.Limit(*filters.Limit)
	}
	if filters.Offset != nil {
		query = query.Offset(*filters.Offset)
	}

	query = query.Order("position")

	var entries []ResearchRequestDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list requests of consent %s [%w]", consentID, tmp.Error)
	}

	result := []models.ResearchRequest{}
	for _, entry := range entries {
		result = append(result, entry.ResearchRequest)
	}

	return result, nil
}

// ======================================================================================
// Authorized researchers

// admitAuthorizedResearcher add a researcher to a consent's authorized set
func (d *databaseImpl) admitAuthorizedResearcher(consentID string, researcher string) error {
	var existing []ResearchAuthorizationDBEntry
	if tmp := d.db.
		Where("consent_id = ? AND researcher = ?", consentID, researcher).
		Find(&existing); tmp.Error != nil {
		return fmt.Errorf("failed to read authorized researchers table [%w]", tmp.Error)
	}
	if len(existing) > 0 {
		// Already a member
		return nil
	}

	newEntry := ResearchAuthorizationDBEntry{
		ResearchAuthorization: models.ResearchAuthorization{
			ID:         ulid.Make().String(),
			ConsentID:  consentID,
			Researcher: researcher,
		},
	}

	if err := d.validator.Struct(&newEntry); err != nil {
		return fmt.Errorf("new authorization entry is not valid [%w]", err)
	}

	if tmp := d.db.Create(&newEntry); tmp.Error != nil {
		return fmt.Errorf("new authorization entry failed insert [%w]", tmp.Error)
	}

	return nil
}

/*
IsAuthorizedResearcher whether a researcher belongs to a consent's authorized
set

The set reflects approval bookkeeping only. A revoked consent keeps its
members, so callers must also check the consent's Active flag before treating
membership as a live capability.

	@param ctx context.Context - execution context
	@param consentID string - consent ID
	@param researcher string - the principal to check
	@returns set membership
*/
func (d *databaseImpl) IsAuthorizedResearcher(
	_ context.Context, consentID string, researcher string,
) (bool, error) {
	if _, err := d.getConsentEntry(consentID); err != nil {
		return false, fmt.Errorf("failed to fetch consent %s [%w]", consentID, err)
	}

	var count int64
	if tmp := d.db.Model(&ResearchAuthorizationDBEntry{}).
		Where("consent_id = ? AND researcher = ?", consentID, researcher).
		Count(&count); tmp.Error != nil {
		return false, fmt.Errorf("failed to read authorized researchers table [%w]", tmp.Error)
	}

	return count > 0, nil
}

/*
ListAuthorizedResearchers list a consent's authorized set, in admission order

	@param ctx context.Context - execution context
	@param consentID string - consent ID
	@returns the authorized principals
*/
func (d *databaseImpl) ListAuthorizedResearchers(
	_ context.Context, consentID string,
) ([]string, error) {
	if _, err := d.getConsentEntry(consentID); err != nil {
		return nil, fmt.Errorf("failed to fetch consent %s [%w]", consentID, err)
	}

	var entries []ResearchAuthorizationDBEntry
	tmp := d.db.
		Where("consent_id = ?", consentID).
		Order("id").
		Find(&entries)
	if tmp.Error != nil {
		return nil, fmt.Errorf(
			"failed to list authorized researchers of consent %s [%w]", consentID, tmp.Error,
		)
	}

	result := []string{}
	for _, entry := range entries {
		result = append(result, entry.Researcher)
	}

	return result, nil
}
