package db_test

import (
	"context"
	"testing"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/medsynapse/consent-ledger/db"
	"github.com/medsynapse/consent-ledger/models"
	"github.com/stretchr/testify/assert"
)

// TestDBConsentEventOutbox verifies event sequencing, payload content, and
// delivery bookkeeping.
func TestDBConsentEventOutbox(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()
	uut, _ := setupTestDB(t)

	contributor := uuid.NewString()
	researcher := uuid.NewString()

	// -------------------------------------------------------------------------
	// 1 – Run one full consent lifecycle
	var consent models.ConsentRecord
	err := uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		c, err := dbClient.CreateConsent(ctx, contributor, "QmLifecycle", "lab_results", "panel")
		if err != nil {
			return err
		}
		consent = c
		if _, err := dbClient.SubmitResearchRequest(ctx, researcher, c.ID, "diabetes study"); err != nil {
			return err
		}
		if _, err := dbClient.ApproveResearchRequest(ctx, contributor, c.ID, 0); err != nil {
			return err
		}
		_, err = dbClient.RevokeConsent(ctx, contributor, c.ID)
		return err
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 2 – Events appear in operation order with strictly increasing sequence
	var events []models.ConsentEvent
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		events, err = dbClient.ListConsentEvents(ctx, db.ConsentEventQueryFilter{})
		return err
	})
	assert.Nil(err)
	assert.Len(events, 4)

	expectedOrder := []models.ConsentEventTypeENUMType{
		models.ConsentEventTypeConsentCreated,
		models.ConsentEventTypeResearchRequested,
		models.ConsentEventTypeResearchApproved,
		models.ConsentEventTypeConsentRevoked,
	}
	validate := validator.New()
	assert.Nil(models.RegisterWithValidator(validate))
	for idx, event := range events {
		assert.Equal(expectedOrder[idx], event.EventType)
		assert.Equal(consent.ID, event.ConsentID)
		assert.False(event.Delivered)
		if idx > 0 {
			assert.Greater(event.Seq, events[idx-1].Seq)
		}

		// Payloads parse back into the expected types
		parsed, err := event.ParsePayload(validate)
		assert.Nil(err)
		assert.NotNil(parsed)
	}

	// -------------------------------------------------------------------------
	// 3 – Filtering by consent scopes the listing
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		unknown := models.NewConsentID(uuid.NewString(), "y", 1)
		scoped, err := dbClient.ListConsentEvents(ctx, db.ConsentEventQueryFilter{
			TargetConsentID: &unknown,
		})
		if err != nil {
			return err
		}
		assert.Empty(scoped)
		return nil
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 4 – Delivery bookkeeping: mark the first two delivered
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		if err := dbClient.MarkEventDelivered(ctx, events[0].ID); err != nil {
			return err
		}
		return dbClient.MarkEventDelivered(ctx, events[1].ID)
	})
	assert.Nil(err)

	var pending []models.ConsentEvent
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		pending, err = dbClient.ListUndeliveredEvents(ctx, 0)
		return err
	})
	assert.Nil(err)
	assert.Len(pending, 2)
	assert.Equal(events[2].ID, pending[0].ID)
	assert.Equal(events[3].ID, pending[1].ID)

	// Limit applies to the undelivered scan
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		pending, err = dbClient.ListUndeliveredEvents(ctx, 1)
		return err
	})
	assert.Nil(err)
	assert.Len(pending, 1)
	assert.Equal(events[2].ID, pending[0].ID)
}
