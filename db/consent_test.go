package db_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/medsynapse/consent-ledger/db"
	"github.com/medsynapse/consent-ledger/models"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

// setupTestDB prepare a unique temporary database with tables and an
// initialized registry, returning the client and the registry owner.
func setupTestDB(t *testing.T) (db.Client, string) {
	assert := assert.New(t)
	utCtx := context.Background()

	testDB := fmt.Sprintf("/tmp/consent_ledger_ut_%s.db", ulid.Make().String())
	log.WithField("db", testDB).Debug("Test database")

	uut, err := db.NewConnection(db.GetSqliteDialector(testDB), logger.Error)
	assert.Nil(err)

	assert.Nil(uut.RunSQLInTransaction(utCtx, db.DefineTables))

	owner := uuid.NewString()
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		_, err := dbClient.InitializeRegistry(ctx, owner)
		return err
	})
	assert.Nil(err)

	return uut, owner
}

// TestDBCreateConsent verifies the behavior of `Database.CreateConsent` and
// `Database.GetConsent`.
func TestDBCreateConsent(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()
	uut, _ := setupTestDB(t)

	contributor := uuid.NewString()

	// -------------------------------------------------------------------------
	// 1 – Create a new consent
	var consent1 models.ConsentRecord
	err := uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		c, err := dbClient.CreateConsent(ctx, contributor, "QmTestHash123", "lab_results", "glucose panel")
		if err != nil {
			return err
		}
		consent1 = c
		return nil
	})
	assert.Nil(err)
	assert.NotEmpty(consent1.ID)
	assert.True(consent1.Active)
	assert.Equal(uint64(0), consent1.AccessCount)

	// 2 – Get back the consent and verify its content
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		c, err := dbClient.GetConsent(ctx, consent1.ID)
		if err != nil {
			return err
		}
		assert.Equal(contributor, c.Contributor)
		assert.Equal("QmTestHash123", c.DataHash)
		assert.Equal("lab_results", c.DataType)
		assert.Equal("glucose panel", c.Description)
		return nil
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 3 – Create a second consent with identical arguments; the ID must differ
	var consent2 models.ConsentRecord
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		c, err := dbClient.CreateConsent(ctx, contributor, "QmTestHash123", "lab_results", "glucose panel")
		if err != nil {
			return err
		}
		consent2 = c
		return nil
	})
	assert.Nil(err)
	assert.NotEqual(consent1.ID, consent2.ID)

	// -------------------------------------------------------------------------
	// 4 – Empty data hash is rejected and nothing is stored
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		_, err := dbClient.CreateConsent(ctx, contributor, "", "lab_results", "no hash")
		return err
	})
	assert.Error(err)
	assert.Equal(models.ErrorKindInvalidInput, models.ErrorKindOf(err))

	var consents []models.ConsentRecord
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		consents, err = dbClient.ListConsentsByContributor(ctx, contributor)
		return err
	})
	assert.Nil(err)
	assert.Len(consents, 2)

	// -------------------------------------------------------------------------
	// 5 – Total consent counter reflects the two successful creations only
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		params, err := dbClient.GetRegistryParams(ctx)
		if err != nil {
			return err
		}
		assert.Equal(uint64(2), params.TotalConsents)
		return nil
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 6 – Creation events were recorded in order
	var events []models.ConsentEvent
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		events, err = dbClient.ListConsentEvents(ctx, db.ConsentEventQueryFilter{})
		return err
	})
	assert.Nil(err)
	assert.Len(events, 2)
	assert.Equal(models.ConsentEventTypeConsentCreated, events[0].EventType)
	assert.Equal(consent1.ID, events[0].ConsentID)
	assert.Equal(consent2.ID, events[1].ConsentID)
	assert.Less(events[0].Seq, events[1].Seq)

	// -------------------------------------------------------------------------
	// 7 – Fetching an unknown consent fails with not-found
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		_, err := dbClient.GetConsent(ctx, models.NewConsentID(uuid.NewString(), "x", 99))
		return err
	})
	assert.Error(err)
	assert.Equal(models.ErrorKindNotFound, models.ErrorKindOf(err))
}

// TestDBListConsentsByContributor verifies creation-order listing per
// contributor.
func TestDBListConsentsByContributor(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()
	uut, _ := setupTestDB(t)

	contributorA := uuid.NewString()
	contributorB := uuid.NewString()

	// Interleave creations of two contributors
	var created []string
	for idx := 0; idx < 3; idx++ {
		err := uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
			c, err := dbClient.CreateConsent(ctx, contributorA, uuid.NewString(), "imaging", "")
			if err != nil {
				return err
			}
			created = append(created, c.ID)
			if _, err := dbClient.CreateConsent(ctx, contributorB, uuid.NewString(), "imaging", ""); err != nil {
				return err
			}
			return nil
		})
		assert.Nil(err)
	}

	// A's listing contains exactly A's consents, in creation order
	var consents []models.ConsentRecord
	err := uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		var err error
		consents, err = dbClient.ListConsentsByContributor(ctx, contributorA)
		return err
	})
	assert.Nil(err)
	assert.Len(consents, 3)
	for idx, entry := range consents {
		assert.Equal(created[idx], entry.ID)
		assert.Equal(contributorA, entry.Contributor)
	}

	// Unknown contributor gets an empty listing
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		var err error
		consents, err = dbClient.ListConsentsByContributor(ctx, uuid.NewString())
		return err
	})
	assert.Nil(err)
	assert.Empty(consents)
}

// TestDBRevokeConsent verifies revocation rules and their events.
func TestDBRevokeConsent(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()
	uut, owner := setupTestDB(t)

	contributor := uuid.NewString()

	// -------------------------------------------------------------------------
	// 1 – Create a consent
	var consent models.ConsentRecord
	err := uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		c, err := dbClient.CreateConsent(ctx, contributor, uuid.NewString(), "lab_results", "")
		if err != nil {
			return err
		}
		consent = c
		return nil
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 2 – A non-contributor cannot revoke, not even the registry owner
	for _, caller := range []string{uuid.NewString(), owner} {
		err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
			_, err := dbClient.RevokeConsent(ctx, caller, consent.ID)
			return err
		})
		assert.Error(err)
		assert.Equal(models.ErrorKindNotAuthorized, models.ErrorKindOf(err))
	}

	// -------------------------------------------------------------------------
	// 3 – The contributor revokes; the record flips inactive
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		updated, err := dbClient.RevokeConsent(ctx, contributor, consent.ID)
		if err != nil {
			return err
		}
		assert.False(updated.Active)
		return nil
	})
	assert.Nil(err)

	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		c, err := dbClient.GetConsent(ctx, consent.ID)
		if err != nil {
			return err
		}
		assert.False(c.Active)
		return nil
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 4 – A second revocation fails with already-revoked
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		_, err := dbClient.RevokeConsent(ctx, contributor, consent.ID)
		return err
	})
	assert.Error(err)
	assert.Equal(models.ErrorKindAlreadyRevoked, models.ErrorKindOf(err))

	// -------------------------------------------------------------------------
	// 5 – Exactly one revocation event was recorded
	var events []models.ConsentEvent
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		events, err = dbClient.ListConsentEvents(ctx, db.ConsentEventQueryFilter{
			EventTypes: []models.ConsentEventTypeENUMType{models.ConsentEventTypeConsentRevoked},
		})
		return err
	})
	assert.Nil(err)
	assert.Len(events, 1)
	assert.Equal(consent.ID, events[0].ConsentID)
}

// TestDBRecordDataAccess verifies access counting and its authorization gate.
func TestDBRecordDataAccess(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()
	uut, _ := setupTestDB(t)

	contributor := uuid.NewString()
	researcher := uuid.NewString()

	// -------------------------------------------------------------------------
	// 1 – Create a consent with one approved request
	var consent models.ConsentRecord
	err := uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		c, err := dbClient.CreateConsent(ctx, contributor, uuid.NewString(), "lab_results", "")
		if err != nil {
			return err
		}
		consent = c
		if _, err := dbClient.SubmitResearchRequest(ctx, researcher, c.ID, "diabetes study"); err != nil {
			return err
		}
		_, err = dbClient.ApproveResearchRequest(ctx, contributor, c.ID, 0)
		return err
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 2 – An unauthorized caller cannot record access; counter stays put
	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		_, err := dbClient.RecordDataAccess(ctx, uuid.NewString(), consent.ID)
		return err
	})
	assert.Error(err)
	assert.Equal(models.ErrorKindNotAuthorized, models.ErrorKindOf(err))

	err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
		c, err := dbClient.GetConsent(ctx, consent.ID)
		if err != nil {
			return err
		}
		assert.Equal(uint64(0), c.AccessCount)
		return nil
	})
	assert.Nil(err)

	// -------------------------------------------------------------------------
	// 3 – The authorized researcher increments the counter by exactly one per call
	for expected := uint64(1); expected <= 3; expected++ {
		err = uut.UseDatabaseInTransaction(utCtx, func(ctx context.Context, dbClient db.Database) error {
			updated, err := dbClient.RecordDataAccess(ctx, researcher, consent.ID)
			if err != nil {
				return err
			}
			assert.Equal(expected, updated.AccessCount)
			return nil
		})
		assert.Nil(err)
	}
}
