package service

import (
	"database/sql"
	"errors"

	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidID          = errors.New("invalid id")
	ErrAdNotFound         = errors.New("ad not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrChatNotFound       = errors.New("chat not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidStatus      = errors.New("invalid status transition")
	ErrAdNotEditable      = errors.New("ad can no longer be edited")
	ErrAdNotActive        = errors.New("ad is not active")
	ErrSelfChat           = errors.New("cannot start a chat about your own ad")
	ErrNotParticipant     = errors.New("not a participant of this chat")
	ErrEmptyMessage       = errors.New("message body is empty")
	ErrMessageTooLong     = errors.New("message body is too long")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrWeakPassword       = errors.New("password must be at least 8 characters long")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserBanned         = errors.New("user is banned")
	ErrSelfModification   = errors.New("admins cannot change their own role or status")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrPaymentProvider    = errors.New("payment provider error")
)

func fail(span trace.Span, status *string, err error) error {
	*status = "error"
	span.RecordError(err)
	return err
}

// notFound translates sql.ErrNoRows into the given sentinel and marks the
// metric status accordingly. Other errors are recorded and returned as is.
func notFound(span trace.Span, status *string, err, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		*status = "not_found"
		return sentinel
	}
	return fail(span, status, err)
}
