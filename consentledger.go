// Package consentledger - consent-authorization ledger for off-chain data references
package consentledger

import (
	"context"
	"fmt"

	"github.com/medsynapse/consent-ledger/db"
	"github.com/medsynapse/consent-ledger/registry"
	"github.com/medsynapse/consent-ledger/relay"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

/*
NewConsentRegistry initialize a consent registry instance.

Each instance is backed by a SQL database; two instances using the same
database are essentially copies of each other.

	@param ctx context.Context - execution context
	@param dbDialector gorm.Dialector - GORM dialector
	@param dbLogLevel logger.LogLevel - SQL log level
	@param owner string - initial registry owner; ignored when the database
	    already holds a registry
	@returns new registry instance
*/
func NewConsentRegistry(
	ctx context.Context,
	dbDialector gorm.Dialector,
	dbLogLevel logger.LogLevel,
	owner string,
) (registry.ConsentRegistry, error) {
	// Prepare persistence
	persistence, err := db.NewConnection(dbDialector, dbLogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized persistence client [%w]", err)
	}

	instance, err := registry.NewConsentRegistry(ctx, persistence, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized consent registry [%w]", err)
	}

	return instance, nil
}

/*
NewEventRelay initialize an outbox relay delivering consent events to a sink.

The relay shares the registry's database; run it beside (or apart from) the
registry process to feed downstream indexers with at-least-once delivery.

	@param ctx context.Context - execution context
	@param dbDialector gorm.Dialector - GORM dialector
	@param dbLogLevel logger.LogLevel - SQL log level
	@param sink relay.Sink - destination for drained events
	@returns new relay instance
*/
func NewEventRelay(
	_ context.Context,
	dbDialector gorm.Dialector,
	dbLogLevel logger.LogLevel,
	sink relay.Sink,
) (relay.EventRelay, error) {
	// Prepare persistence
	persistence, err := db.NewConnection(dbDialector, dbLogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized persistence client [%w]", err)
	}

	instance, err := relay.NewEventRelay(persistence, sink)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized event relay [%w]", err)
	}

	return instance, nil
}
