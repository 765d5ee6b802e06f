package apierror

import (
	"errors"
	"fmt"
)

// Category is the normalized failure taxonomy exposed to callers
type Category int

const (
	Other Category = iota
	Network
	Unauthorized
	Forbidden
	NotFound
	Validation
	RateLimited
	ServerError
	SessionExpired
	AuthenticationRequired
)

var categoryNames = map[Category]string{
	Other:                  "other",
	Network:                "network",
	Unauthorized:           "unauthorized",
	Forbidden:              "forbidden",
	NotFound:               "not_found",
	Validation:             "validation",
	RateLimited:            "rate_limited",
	ServerError:            "server_error",
	SessionExpired:         "session_expired",
	AuthenticationRequired: "authentication_required",
}

var categoryCodes = map[Category]string{
	Other:                  "REQUEST_FAILED",
	Network:                "NETWORK_ERROR",
	Unauthorized:           "UNAUTHORIZED",
	Forbidden:              "FORBIDDEN",
	NotFound:               "NOT_FOUND",
	Validation:             "VALIDATION_ERROR",
	RateLimited:            "RATE_LIMITED",
	ServerError:            "SERVER_ERROR",
	SessionExpired:         "SESSION_EXPIRED",
	AuthenticationRequired: "AUTHENTICATION_REQUIRED",
}

var categoryMessages = map[Category]string{
	Other:                  "The request could not be completed.",
	Network:                "Unable to reach the server. Please check your connection.",
	Unauthorized:           "You are not authorized. Please sign in again.",
	Forbidden:              "You do not have permission to perform this action.",
	NotFound:               "The requested resource was not found.",
	Validation:             "The submitted data is invalid.",
	RateLimited:            "Too many requests. Please try again later.",
	ServerError:            "The server encountered an error. Please try again later.",
	SessionExpired:         "Your session has expired. Please sign in again.",
	AuthenticationRequired: "Authentication required. Please sign in.",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return categoryNames[Other]
}

// Code returns the stable machine-readable code of the category
func (c Category) Code() string {
	if code, ok := categoryCodes[c]; ok {
		return code
	}
	return categoryCodes[Other]
}

// Message returns the user-facing message of the category
func (c Category) Message() string {
	if msg, ok := categoryMessages[c]; ok {
		return msg
	}
	return categoryMessages[Other]
}

// ErrorRecord is the normalized error returned from every failed call
type ErrorRecord struct {
	Category Category
	Message  string
	Status   int    // 0 when no response was received
	Code     string // backend-provided code, or the category code
	Details  any
	Err      error // underlying cause, never shown to users
}

func (e *ErrorRecord) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Category, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *ErrorRecord) Unwrap() error {
	return e.Err
}

// Is matches any ErrorRecord of the same category, so the category sentinels
// below work with errors.Is.
func (e *ErrorRecord) Is(target error) bool {
	t, ok := target.(*ErrorRecord)
	if !ok {
		return false
	}
	return t.Category == e.Category
}

// Category sentinels for errors.Is
var (
	ErrOther                  = &ErrorRecord{Category: Other}
	ErrNetwork                = &ErrorRecord{Category: Network}
	ErrUnauthorized           = &ErrorRecord{Category: Unauthorized}
	ErrForbidden              = &ErrorRecord{Category: Forbidden}
	ErrNotFound               = &ErrorRecord{Category: NotFound}
	ErrValidation             = &ErrorRecord{Category: Validation}
	ErrRateLimited            = &ErrorRecord{Category: RateLimited}
	ErrServerError            = &ErrorRecord{Category: ServerError}
	ErrSessionExpired         = &ErrorRecord{Category: SessionExpired}
	ErrAuthenticationRequired = &ErrorRecord{Category: AuthenticationRequired}
)

// New builds a record with the category's default message and code
func New(category Category, status int, cause error) *ErrorRecord {
	return &ErrorRecord{
		Category: category,
		Message:  category.Message(),
		Status:   status,
		Code:     category.Code(),
		Err:      cause,
	}
}

// CategoryOf extracts the category from an error chain
func CategoryOf(err error) (Category, bool) {
	var rec *ErrorRecord
	if !errors.As(err, &rec) {
		return Other, false
	}
	return rec.Category, true
}
