// Package db - persistence layer
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/medsynapse/consent-ledger/models"
	"github.com/oklog/ulid/v2"
	"gorm.io/datatypes"
)

// defineNewConsentEvent append a new consent event to the outbox
func (d *databaseImpl) defineNewConsentEvent(
	eventType models.ConsentEventTypeENUMType,
	consentID string,
	seq uint64,
	payload interface{},
) (models.ConsentEvent, error) {

	newEntry := ConsentEventDBEntry{
		ConsentEvent: models.ConsentEvent{
			ID:        ulid.Make().String(),
			Seq:       seq,
			EventType: eventType,
			ConsentID: consentID,
		},
	}

	if payload != nil {
		if err := d.validator.Struct(payload); err != nil {
			return models.ConsentEvent{}, fmt.Errorf(
				"new consent event '%s' payload entry is not valid [%w]", eventType, err,
			)
		}

		payloadStr, _ := json.Marshal(&payload)
		newEntry.Payload = datatypes.JSON(payloadStr)
	}

	if err := d.validator.Struct(&newEntry); err != nil {
		return models.ConsentEvent{}, fmt.Errorf(
			"new consent event '%s' entry is not valid [%w]", eventType, err,
		)
	}

	if tmp := d.db.Create(&newEntry); tmp.Error != nil {
		return models.ConsentEvent{}, fmt.Errorf(
			"new consent event '%s' insert failed [%w]", eventType, tmp.Error,
		)
	}

	return newEntry.ConsentEvent, nil
}

/*
ListConsentEvents list recorded consent events

	@param ctx context.Context - execution context
	@param filters ConsentEventQueryFilter - entry listing filter
	@returns the event entries in sequence order
*/
func (d *databaseImpl) ListConsentEvents(
	_ context.Context, filters ConsentEventQueryFilter,
) ([]models.ConsentEvent, error) {
	query := d.db.Model(&ConsentEventDBEntry{})

	if len(filters.EventTypes) > 0 {
		query = query.Where("type in ?", filters.EventTypes)
	}

	if filters.TargetConsentID != nil {
		query = query.Where("consent_id = ?", *filters.TargetConsentID)
	}

	if filters.EventsAfter != nil {
		query = query.Where("created_at >= ?", *filters.EventsAfter)
	}
	if filters.EventsBefore != nil {
		query = query.Where("created_at <= ?", *filters.EventsBefore)
	}

	if filters.Limit != nil {
		query = query.Limit(*filters.Limit)
	}
	if filters.Offset != nil {
		query = query.Offset(*filters.Offset)
	}

	query = query.Order("seq")

	var entries []ConsentEventDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list recorded consent events [%w]", tmp.Error)
	}

	result := []models.ConsentEvent{}
	for _, entry := range entries {
		result = append(result, entry.ConsentEvent)
	}

	return result, nil
}

/*
ListUndeliveredEvents list events not yet delivered to the external sink

	@param ctx context.Context - execution context
	@param limit int - max entries to return; 0 for no limit
	@returns the event entries in sequence order
*/
func (d *databaseImpl) ListUndeliveredEvents(
	_ context.Context, limit int,
) ([]models.ConsentEvent, error) {
	query := d.db.Model(&ConsentEventDBEntry{}).Where("delivered = ?", false).Order("seq")

	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []ConsentEventDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list undelivered consent events [%w]", tmp.Error)
	}

	result := []models.ConsentEvent{}
	for _, entry := range entries {
		result = append(result, entry.ConsentEvent)
	}

	return result, nil
}

/*
MarkEventDelivered record that an event reached the external sink

	@param ctx context.Context - execution context
	@param eventID string - the event entry ID
*/
func (d *databaseImpl) MarkEventDelivered(_ context.Context, eventID string) error {
	var entry ConsentEventDBEntry
	if tmp := d.db.Where("id = ?", eventID).First(&entry); tmp.Error != nil {
		return fmt.Errorf("failed to fetch consent event %s [%w]", eventID, tmp.Error)
	}

	now := time.Now()
	entry.Delivered = true
	entry.DeliveredAt = &now
	if tmp := d.db.Updates(&entry); tmp.Error != nil {
		return fmt.Errorf("failed to mark consent event %s delivered [%w]", eventID, tmp.Error)
	}

	return nil
}
