package tenant

import (
	"errors"
	"net/http"
)

// Machine-readable codes returned to clients on tenant failures.
const (
	CodeNotFound           = "TENANT_NOT_FOUND"
	CodeAccessDenied       = "TENANT_ACCESS_DENIED"
	CodeAccessForbidden    = "TENANT_ACCESS_FORBIDDEN"
	CodeContextMissing     = "TENANT_CONTEXT_MISSING"
	CodeProvisioningFailed = "TENANT_PROVISIONING_FAILED"
	CodeLimitReached       = "TENANT_LIMIT_REACHED"
)

// ErrTenantNotFound is returned by registry lookups that match nothing.
var ErrTenantNotFound = errors.New("tenant not found")

// Error is a tenant resolution, authorization or provisioning failure with a
// stable code and the HTTP status it maps to.
type Error struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrNotResolved        = &Error{Code: CodeNotFound, Status: http.StatusNotFound, Message: "No tenant matches this request"}
	ErrAccessDenied       = &Error{Code: CodeAccessDenied, Status: http.StatusForbidden, Message: "Tenant is not active or its subscription has expired"}
	ErrAccessForbidden    = &Error{Code: CodeAccessForbidden, Status: http.StatusForbidden, Message: "You do not have access to this tenant"}
	ErrContextMissing     = &Error{Code: CodeContextMissing, Status: http.StatusBadRequest, Message: "This action requires a tenant context"}
	ErrProvisioningFailed = &Error{Code: CodeProvisioningFailed, Status: http.StatusServiceUnavailable, Message: "Tenant database is not available"}
	ErrLimitReached       = &Error{Code: CodeLimitReached, Status: http.StatusForbidden, Message: "Tenant plan limit reached"}
)

// Wrap returns a copy of a sentinel carrying a cause and optional message override.
func Wrap(sentinel *Error, cause error, message string) *Error {
	e := *sentinel
	e.Err = cause
	if message != "" {
		e.Message = message
	}
	return &e
}
