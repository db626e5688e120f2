// Package relay - outbox delivery of consent events to external consumers
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/medsynapse/consent-ledger/db"
	"github.com/medsynapse/consent-ledger/models"
)

// Sink receives consent events drained from the outbox. Implementations
// must tolerate redelivery: an event is marked delivered only after
// HandleEvent returns nil, so a crash in between causes the same event to
// arrive again (at-least-once).
type Sink interface {
	/*
		HandleEvent process one consent event

			@param ctx context.Context - execution context
			@param event models.ConsentEvent - the event
	*/
	HandleEvent(ctx context.Context, event models.ConsentEvent) error
}

// EventRelay drains undelivered consent events to a sink in sequence order
type EventRelay interface {
	/*
		DeliverPending deliver all currently undelivered events

		Delivery stops at the first sink failure so sequence order is never
		violated for a consumer; the failed event and everything after it stay
		in the outbox for the next attempt.

			@param ctx context.Context - execution context
			@returns number of events delivered
	*/
	DeliverPending(ctx context.Context) (int, error)

	/*
		Run periodically deliver pending events until the context ends

			@param ctx context.Context - execution context
			@param interval time.Duration - poll interval
	*/
	Run(ctx context.Context, interval time.Duration) error
}

// eventRelay implements EventRelay
type eventRelay struct {
	goutils.Component

	persistence db.Client
	sink        Sink
	batchLimit  int
}

/*
NewEventRelay define a new consent event relay

	@param persistence db.Client - persistence layer client
	@param sink Sink - destination for drained events
	@returns relay instance
*/
func NewEventRelay(persistence db.Client, sink Sink) (EventRelay, error) {
	if sink == nil {
		return nil, fmt.Errorf("event relay requires a sink")
	}

	logTags := log.Fields{"module": "relay", "component": "event-relay"}

	return &eventRelay{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		persistence: persistence,
		sink:        sink,
		batchLimit:  64,
	}, nil
}

/*
DeliverPending deliver all currently undelivered events

	@param ctx context.Context - execution context
	@returns number of events delivered
*/
func (r *eventRelay) DeliverPending(ctx context.Context) (int, error) {
	logTags := r.GetLogTagsForContext(ctx)
	delivered := 0

	for {
		var pending []models.ConsentEvent
		if dbErr := r.persistence.UseDatabase(
			ctx, func(dbCtx context.Context, dbClient db.Database) error {
				var err error
				pending, err = dbClient.ListUndeliveredEvents(dbCtx, r.batchLimit)
				return err
			},
		); dbErr != nil {
			return delivered, fmt.Errorf("failed to scan outbox [%w]", dbErr)
		}

		if len(pending) == 0 {
			return delivered, nil
		}

		for _, event := range pending {
			// Hand the event off first; only a sink that accepted the event gets
			// it marked delivered. State mutation already committed, so a sink
			// failure never rolls anything back.
			if err := r.sink.HandleEvent(ctx, event); err != nil {
				log.WithError(err).
					WithFields(logTags).
					WithField("event_seq", event.Seq).
					Error("Event sink rejected event")
				return delivered, fmt.Errorf(
					"sink rejected consent event seq %d [%w]", event.Seq, err,
				)
			}

			if dbErr := r.persistence.UseDatabaseInTransaction(
				ctx, func(dbCtx context.Context, dbClient db.Database) error {
					return dbClient.MarkEventDelivered(dbCtx, event.ID)
				},
			); dbErr != nil {
				return delivered, fmt.Errorf(
					"failed to mark consent event seq %d delivered [%w]", event.Seq, dbErr,
				)
			}

			delivered++
		}

		if len(pending) < r.batchLimit {
			return delivered, nil
		}
	}
}

/*
Run periodically deliver pending events until the context ends

	@param ctx context.Context - execution context
	@param interval time.Duration - poll interval
*/
func (r *eventRelay) Run(ctx context.Context, interval time.Duration) error {
	logTags := r.GetLogTagsForContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			count, err := r.DeliverPending(ctx)
			if err != nil {
				// Leave the failed event in the outbox and retry on the next tick
				log.WithError(err).WithFields(logTags).Error("Outbox delivery pass failed")
				continue
			}
			if count > 0 {
				log.WithFields(logTags).WithField("delivered", count).Debug("Outbox drained")
			}
		}
	}
}
