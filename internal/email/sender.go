// Package email renders transactional mail and delivers it through Resend or
// SMTP with idempotency and retries.
package email

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when no delivery provider is set up.
var ErrNotConfigured = errors.New("email not configured")

// Message is a rendered email ready for delivery.
type Message struct {
	To             []string
	Subject        string
	HTML           string
	Text           string
	Tags           map[string]string
	IdempotencyKey string
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) (string, error)
}

// Tracker is implemented by senders that can report or cancel a message
// after it was accepted.
type Tracker interface {
	Status(ctx context.Context, providerID string) (string, error)
	Cancel(ctx context.Context, providerID string) error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || errors.Is(err, ErrNotConfigured) || errors.Is(err, context.Canceled)
}
