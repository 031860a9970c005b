package core

import "errors"

// Kind classifies domain errors so the gateway can report them uniformly.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindForbidden       Kind = "forbidden"
	KindUnauthenticated Kind = "unauthenticated"
	KindInternal        Kind = "internal"
)

// Error codes shared across services.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeUserNotFound  = "user_not_found"
	ErrCodeChatNotFound  = "chat_not_found"
	ErrCodeGroupNotFound = "group_not_found"
	ErrCodeNotMember     = "not_member"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeLoginRequired = "login_required"
	ErrCodeRateLimited   = "rate_limited"
	ErrCodeInternal      = "internal_error"
)

// CoreError wraps a kind, a machine-readable code and a human-readable message.
type CoreError struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func newError(kind Kind, code, msg string) *CoreError {
	return &CoreError{Kind: kind, Code: code, Message: msg}
}

// Validation builds a ValidationError.
func Validation(code, msg string) *CoreError { return newError(KindValidation, code, msg) }

// NotFound builds a NotFoundError.
func NotFound(code, msg string) *CoreError { return newError(KindNotFound, code, msg) }

// Conflict builds a ConflictError.
func Conflict(code, msg string) *CoreError { return newError(KindConflict, code, msg) }

// Forbidden builds an AuthorizationError.
func Forbidden(code, msg string) *CoreError { return newError(KindForbidden, code, msg) }

// Unauthenticated builds an AuthenticationError.
func Unauthenticated(code, msg string) *CoreError { return newError(KindUnauthenticated, code, msg) }

var (
	ErrBadRequest    = Validation(ErrCodeBadRequest, "bad request")
	ErrUserNotFound  = NotFound(ErrCodeUserNotFound, "User does not exist")
	ErrChatNotFound  = NotFound(ErrCodeChatNotFound, "Chat does not exist")
	ErrGroupNotFound = NotFound(ErrCodeGroupNotFound, "Group does not exist")
	ErrLoginRequired = Unauthenticated(ErrCodeLoginRequired, "login required")
	ErrWrongActor    = Forbidden(ErrCodeUnauthorized, "payload user does not match session")
	ErrRateLimited   = Validation(ErrCodeRateLimited, "too many requests")
)

// AsCoreError extracts a CoreError from err, if any.
func AsCoreError(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
