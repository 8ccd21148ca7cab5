package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	Validation    Kind = "validation"
	Auth          Kind = "auth"
	Forbidden     Kind = "forbidden"
	Conflict      Kind = "conflict"
	Configuration Kind = "configuration"
	Transient     Kind = "transient"
	Provider      Kind = "provider"
	Internal      Kind = "internal"
)

const genericMessage = "An unexpected error occurred."

// AppError carries a user-safe message next to the internal cause.
type AppError struct {
	Kind      Kind
	Code      string            // stable snake_case code for clients
	PublicMsg string            // safe to show to the caller
	Fields    map[string]string // per-field validation messages (optional)
	Upstream  bool              // provider failed on its side (5xx / transport)
	Err       error             // internal cause, logged only
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Code, e.Err)
	}
	if e.PublicMsg != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Code, e.PublicMsg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Code)
}

func (e *AppError) Unwrap() error { return e.Err }

func ValidationErr(publicMsg string, fields map[string]string) *AppError {
	return &AppError{Kind: Validation, Code: "invalid_request", PublicMsg: publicMsg, Fields: fields}
}

func AuthErr(publicMsg string) *AppError {
	return &AppError{Kind: Auth, Code: "unauthorized", PublicMsg: publicMsg}
}

func ForbiddenErr(publicMsg string) *AppError {
	return &AppError{Kind: Forbidden, Code: "forbidden", PublicMsg: publicMsg}
}

func ConflictErr(code, publicMsg string) *AppError {
	return &AppError{Kind: Conflict, Code: code, PublicMsg: publicMsg}
}

func ConfigurationErr(code, publicMsg string) *AppError {
	return &AppError{Kind: Configuration, Code: code, PublicMsg: publicMsg}
}

// Transient error codes.
const (
	CodeIndexBuilding    = "index_building"
	CodeStoreUnavailable = "store_unavailable"
)

var transientMessages = map[string]string{
	CodeIndexBuilding:    "The data store is not ready yet. Please retry in a moment.",
	CodeStoreUnavailable: "The data store is temporarily unavailable. Please retry in a moment.",
}

// TransientErr marks a retry-safe infrastructure failure under code.
func TransientErr(code string, err error) *AppError {
	msg, ok := transientMessages[code]
	if !ok {
		msg = "The service is temporarily unavailable. Please retry in a moment."
	}
	return &AppError{Kind: Transient, Code: code, PublicMsg: msg, Err: err}
}

// ProviderErr wraps a failed call to an external payment provider. upstream
// marks failures on the provider side, which are reported as 503.
func ProviderErr(provider string, upstream bool, err error) *AppError {
	return &AppError{
		Kind:      Provider,
		Code:      "provider_error",
		PublicMsg: fmt.Sprintf("The payment provider %s could not complete the request.", provider),
		Upstream:  upstream,
		Err:       err,
	}
}

// Wrap marks err as internal unless it already is an AppError.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return &AppError{Kind: Internal, Code: "internal_error", PublicMsg: genericMessage, Err: err}
}

func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

func HTTPStatus(err error) int {
	if ae, ok := As(err); ok {
		switch ae.Kind {
		case Validation, Configuration:
			return http.StatusBadRequest
		case Auth:
			return http.StatusUnauthorized
		case Forbidden:
			return http.StatusForbidden
		case Conflict:
			return http.StatusConflict
		case Transient:
			return http.StatusServiceUnavailable
		case Provider:
			if ae.Upstream {
				return http.StatusServiceUnavailable
			}
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

func Code(err error) string {
	if ae, ok := As(err); ok && ae.Code != "" {
		return ae.Code
	}
	return "internal_error"
}

func PublicMessage(err error) string {
	if ae, ok := As(err); ok && ae.PublicMsg != "" {
		return ae.PublicMsg
	}
	return genericMessage
}
