package consentledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	consentledger "github.com/medsynapse/consent-ledger"
	"github.com/medsynapse/consent-ledger/db"
	"github.com/medsynapse/consent-ledger/models"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

// memorySink collects delivered events for inspection
type memorySink struct {
	lock     sync.Mutex
	received []models.ConsentEvent
}

func (s *memorySink) HandleEvent(_ context.Context, event models.ConsentEvent) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.received = append(s.received, event)
	return nil
}

func (s *memorySink) events() []models.ConsentEvent {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]models.ConsentEvent{}, s.received...)
}

// TestConsentLedger runs one consent workflow end-to-end through the public
// constructors, with the relay feeding a sink from the same database.
func TestConsentLedger(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	testDB := fmt.Sprintf("/tmp/consent_ledger_ut_%s.db", ulid.Make().String())
	log.WithField("db", testDB).Debug("Test database")
	dialector := db.GetSqliteDialector(testDB)

	// Install the schema
	dbClient, err := db.NewConnection(dialector, logger.Error)
	assert.Nil(err)
	assert.Nil(dbClient.RunSQLInTransaction(utCtx, db.DefineTables))

	owner := uuid.NewString()
	uut, err := consentledger.NewConsentRegistry(utCtx, dialector, logger.Error, owner)
	assert.Nil(err)

	sink := &memorySink{}
	outbox, err := consentledger.NewEventRelay(utCtx, dialector, logger.Error, sink)
	assert.Nil(err)

	contributor := uuid.NewString()
	researcher := uuid.NewString()

	// -------------------------------------------------------------------------
	// 1 – Full workflow: create, request, approve, access, revoke
	consent, err := uut.CreateConsent(utCtx, contributor, "QmGlucosePanel", "lab_results", "glucose panel", nil)
	assert.Nil(err)

	request, err := uut.RequestAccess(utCtx, researcher, consent.ID, "diabetes study", nil)
	assert.Nil(err)
	assert.Equal(0, request.Position)

	assert.Nil(uut.ApproveRequest(utCtx, contributor, consent.ID, 0, nil))

	authorized, err := uut.IsAuthorized(utCtx, consent.ID, researcher, nil)
	assert.Nil(err)
	assert.True(authorized)

	assert.Nil(uut.RecordAccess(utCtx, researcher, consent.ID, nil))
	assert.Nil(uut.RevokeConsent(utCtx, contributor, consent.ID, nil))

	info, err := uut.GetConsentInfo(utCtx, consent.ID, nil)
	assert.Nil(err)
	assert.False(info.Active)
	assert.Equal(uint64(1), info.AccessCount)

	total, err := uut.TotalConsents(utCtx, nil)
	assert.Nil(err)
	assert.Equal(uint64(1), total)

	// -------------------------------------------------------------------------
	// 2 – The relay drains the workflow's events in order
	runCtx, cancel := context.WithCancel(utCtx)
	defer cancel()
	runReturn := make(chan error, 1)
	go func() {
		runReturn <- outbox.Run(runCtx, time.Millisecond*10)
	}()

	assert.Eventually(func() bool {
		return len(sink.events()) == 4
	}, time.Second*5, time.Millisecond*10)

	received := sink.events()
	expectedOrder := []models.ConsentEventTypeENUMType{
		models.ConsentEventTypeConsentCreated,
		models.ConsentEventTypeResearchRequested,
		models.ConsentEventTypeResearchApproved,
		models.ConsentEventTypeConsentRevoked,
	}
	for idx, event := range received {
		assert.Equal(expectedOrder[idx], event.EventType)
		assert.Equal(consent.ID, event.ConsentID)
	}

	cancel()
	select {
	case err := <-runReturn:
		assert.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		assert.FailNow("relay loop did not stop on context cancellation")
	}

	// -------------------------------------------------------------------------
	// 3 – A second registry against the same database sees the same state
	other, err := consentledger.NewConsentRegistry(utCtx, dialector, logger.Error, uuid.NewString())
	assert.Nil(err)

	currentOwner, err := other.Owner(utCtx, nil)
	assert.Nil(err)
	assert.Equal(owner, currentOwner)

	consentIDs, err := other.GetContributorConsents(utCtx, contributor, nil)
	assert.Nil(err)
	assert.Equal([]string{consent.ID}, consentIDs)
}
