package models

import (
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
)

/*
RegisterWithValidator register with the validator this custom validation support

	@param v *validator.Validate - the validator to register against
	@return whether successful
*/
func RegisterWithValidator(v *validator.Validate) error {
	if err := v.RegisterValidation(
		"consent_event_type", validateConsentEventType,
	); err != nil {
		return err
	}

	if err := v.RegisterValidation(
		"consent_id", validateConsentID,
	); err != nil {
		return err
	}

	return nil
}

func validateConsentEventType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch ConsentEventTypeENUMType(fl.Field().String()) {
	case ConsentEventTypeConsentCreated:
		fallthrough
	case ConsentEventTypeConsentRevoked:
		fallthrough
	case ConsentEventTypeResearchRequested:
		fallthrough
	case ConsentEventTypeResearchApproved:
		fallthrough
	case ConsentEventTypeOwnershipTransferred:
		return true
	}
	return false
}

// consentIDPattern consent IDs are lowercase hex SHA-256 digests
var consentIDPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func validateConsentID(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	return consentIDPattern.MatchString(fl.Field().String())
}
