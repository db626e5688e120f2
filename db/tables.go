package db

import "github.com/medsynapse/consent-ledger/models"

// --------------------------------------------------------------------------------------
// Registry parameters

// RegistryParamsDBEntry registry parameter DB entry
type RegistryParamsDBEntry struct {
	models.RegistryParams
}

// TableName hard code table name
func (RegistryParamsDBEntry) TableName() string {
	return "registry_params"
}

// --------------------------------------------------------------------------------------
// Consents

// ConsentDBEntry consent record DB entry
type ConsentDBEntry struct {
	models.ConsentRecord
}

// TableName hard code table name
func (ConsentDBEntry) TableName() string {
	return "consents"
}

// --------------------------------------------------------------------------------------
// Research requests

// ResearchRequestDBEntry research request DB entry
type ResearchRequestDBEntry struct {
	models.ResearchRequest
	Consent ConsentDBEntry `gorm:"constraint:OnDelete:CASCADE;foreignKey:ConsentID" validate:"-"`
}

// TableName hard code table name
func (ResearchRequestDBEntry) TableName() string {
	return "research_requests"
}

// --------------------------------------------------------------------------------------
// Authorized researchers

// ResearchAuthorizationDBEntry approved-access set member DB entry
type ResearchAuthorizationDBEntry struct {
	models.ResearchAuthorization
	Consent ConsentDBEntry `gorm:"constraint:OnDelete:CASCADE;foreignKey:ConsentID" validate:"-"`
}

// TableName hard code table name
func (ResearchAuthorizationDBEntry) TableName() string {
	return "authorized_researchers"
}

// --------------------------------------------------------------------------------------
// Consent events

// ConsentEventDBEntry consent event outbox DB entry
type ConsentEventDBEntry struct {
	models.ConsentEvent
}

// TableName hard code table name
func (ConsentEventDBEntry) TableName() string {
	return "consent_events"
}
