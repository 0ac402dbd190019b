package validator

import (
	"trafficSOS/internal/domain"

	"github.com/go-playground/validator/v10"
)

func RegisterCustomValidations(validate *validator.Validate) {
	validate.RegisterValidation("lat", validateLat)
	validate.RegisterValidation("lng", validateLng)
	validate.RegisterValidation("crash_type", validateCrashType)
	validate.RegisterValidation("role", validateRole)
	validate.RegisterValidation("case_status", validateCaseStatus)
	validate.RegisterValidation("accident_id", validateAccidentID)
}

func validateLat(fl validator.FieldLevel) bool {
	lat := fl.Field().Float()
	return lat >= -90.0 && lat <= 90.0
}

func validateLng(fl validator.FieldLevel) bool {
	lng := fl.Field().Float()
	return lng >= -180.0 && lng <= 180.0
}

func validateCrashType(fl validator.FieldLevel) bool {
	return domain.CrashType(fl.Field().String()).Valid()
}

func validateRole(fl validator.FieldLevel) bool {
	return domain.Role(fl.Field().String()).Valid()
}

func validateCaseStatus(fl validator.FieldLevel) bool {
	return domain.CaseStatus(fl.Field().String()).Valid()
}

func validateAccidentID(fl validator.FieldLevel) bool {
	return domain.ValidAccidentID(fl.Field().String())
}
