// internal/services/errors.go
package services

import (
	"errors"
	"net/http"
)

// ServiceError is an expected, user-facing outcome. Handlers translate the
// triple into an HTTP response; the code is stable API surface, the message
// is advisory.
type ServiceError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Hint       string `json:"hint,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

var (
	ErrMalformedToken = &ServiceError{
		Code: "INVALID_TOKEN_FORMAT", Message: "Invalid token format", HTTPStatus: http.StatusBadRequest,
	}
	ErrRateLimited = &ServiceError{
		Code: "RATE_LIMITED", Message: "Too many download attempts. Please try again later.", HTTPStatus: http.StatusTooManyRequests,
	}
	ErrBotDetected = &ServiceError{
		Code: "BOT_DETECTED", Message: "Automated access detected. Please use a regular browser.", HTTPStatus: http.StatusForbidden,
	}
	ErrPiracyDetected = &ServiceError{
		Code: "PIRACY_DETECTED", Message: "Excessive download activity detected. Please contact support.", HTTPStatus: http.StatusTooManyRequests,
	}
	ErrTokenNotFound = &ServiceError{
		Code: "TOKEN_NOT_FOUND", Message: "Invalid or expired download link", HTTPStatus: http.StatusNotFound,
	}
	ErrDownloadLimitExceeded = &ServiceError{
		Code: "DOWNLOAD_LIMIT_EXCEEDED", Message: "Download limit exceeded", HTTPStatus: http.StatusGone,
	}
	ErrTokenExpired = &ServiceError{
		Code: "TOKEN_EXPIRED", Message: "Download link has expired", HTTPStatus: http.StatusGone,
	}
	ErrTokenDeactivated = &ServiceError{
		Code: "TOKEN_DEACTIVATED", Message: "Download token deactivated", HTTPStatus: http.StatusGone,
	}
	ErrAccessCodeRequired = &ServiceError{
		Code: "ACCESS_CODE_REQUIRED", Message: "Access code required for download", HTTPStatus: http.StatusForbidden,
		Hint: "Check your email for the access code",
	}
	ErrAccessCodeInvalid = &ServiceError{
		Code: "INVALID_ACCESS_CODE", Message: "Invalid access code", HTTPStatus: http.StatusForbidden,
	}
	ErrSecurityBlocked = &ServiceError{
		Code: "SECURITY_BLOCK", Message: "Access denied due to security concerns", HTTPStatus: http.StatusForbidden,
	}
	ErrActivationRateLimited = &ServiceError{
		Code: "ACTIVATION_RATE_LIMIT", Message: "Too many activation attempts. Please try again later.", HTTPStatus: http.StatusTooManyRequests,
	}
	ErrInvalidDeviceID = &ServiceError{
		Code: "INVALID_DEVICE_ID", Message: "Invalid device ID format", HTTPStatus: http.StatusBadRequest,
	}
	ErrLicenseNotFound = &ServiceError{
		Code: "LICENSE_NOT_FOUND", Message: "License not found", HTTPStatus: http.StatusNotFound,
	}
	ErrActivationLimitReached = &ServiceError{
		Code: "ACTIVATION_LIMIT_REACHED", Message: "Maximum activation limit reached", HTTPStatus: http.StatusForbidden,
	}
	ErrDeviceNotActivated = &ServiceError{
		Code: "DEVICE_NOT_ACTIVATED", Message: "Device not found or already deactivated", HTTPStatus: http.StatusNotFound,
	}
	ErrStorageFailure = &ServiceError{
		Code: "STORAGE_FAILURE", Message: "Internal server error", HTTPStatus: http.StatusInternalServerError,
	}
)

// LicenseInvalidError builds the licensing rejection with its specific reason.
func LicenseInvalidError(reason string) *ServiceError {
	return &ServiceError{
		Code:       "LICENSE_INVALID",
		Message:    reason,
		HTTPStatus: http.StatusForbidden,
	}
}

// AsServiceError unwraps err to a *ServiceError if it is one.
func AsServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}
