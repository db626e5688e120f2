package models

import "time"

// RegistryParams registry-wide operating parameters
type RegistryParams struct {
	// ID param entry ID. It must always be registry-parameters
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required,oneof=registry-parameters"`

	// Owner principal identifier holding registry-level administrative
	// rights. Orthogonal to per-consent contributor rights: the owner cannot
	// revoke or approve on behalf of a contributor.
	Owner string `json:"owner" gorm:"column:owner;not null" validate:"required"`

	// TotalConsents number of consents ever created. Never decremented.
	TotalConsents uint64 `json:"total_consents" gorm:"column:total_consents;not null"`

	// OpSequence monotonic counter incremented by every mutating operation.
	// Feeds consent ID derivation and event sequencing.
	OpSequence uint64 `json:"op_sequence" gorm:"column:op_sequence;not null"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}
