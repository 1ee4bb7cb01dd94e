// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

// deviceIDPattern is the minimum-entropy syntactic gate for device
// identifiers: at least 10 characters of a restricted alphabet, so trivially
// guessable ids never reach the activation path.
var deviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-_]{10,128}$`)

func init() {
	validate = validator.New()
	validate.RegisterValidation("device_id", validateDeviceID)
	validate.RegisterValidation("license_key", validateLicenseKey)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateDeviceID(fl validator.FieldLevel) bool {
	return deviceIDPattern.MatchString(fl.Field().String())
}

var licenseKeyPattern = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

func validateLicenseKey(fl validator.FieldLevel) bool {
	return licenseKeyPattern.MatchString(fl.Field().String())
}

// IsValidDeviceID validates a device identifier outside struct validation.
func IsValidDeviceID(deviceID string) bool {
	return deviceIDPattern.MatchString(deviceID)
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return e.Field() + " must be at least " + e.Param() + " characters"
	case "max":
		return e.Field() + " must be at most " + e.Param() + " characters"
	case "device_id":
		return "Device ID must be 10-128 characters of letters, numbers, dashes or underscores"
	case "license_key":
		return "License key must use the XXXX-XXXX-XXXX-XXXX format"
	default:
		return e.Field() + " is invalid"
	}
}
