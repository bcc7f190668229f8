package pipeline

import (
	"fmt"
	"net/http"

	"tiergate/internal/models"
	"tiergate/internal/quota"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindForbidden  ErrorKind = "forbidden"
	KindLimited    ErrorKind = "limited"
	KindProvider   ErrorKind = "provider"
	KindInternal   ErrorKind = "internal"
)

// Error is a terminal pipeline failure. Handlers render it in their own wire
// shape using Status and Code.
type Error struct {
	Kind         ErrorKind
	Status       int
	Code         string
	Message      string
	RequestID    string
	Limit        *quota.LimitError
	AllowedTiers []models.Tier
	Err          error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Code: "invalid_request", Message: msg}
}

func internalError(requestID string, err error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Code: "internal_error",
		Message: "internal error", RequestID: requestID, Err: err}
}
