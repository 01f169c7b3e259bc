// Package store defines the interface for database implementations of the off-chain profile records used by the
// wallet microservice.
package store

import (
	"context"
	"errors"
)

// DB defines required methods for the off-chain nominee records. Records are keyed by the account id.
type DB interface {
	// GetNomineeEmail returns the record for the account or ErrDataNotFound if the account has no nominee yet.
	GetNomineeEmail(ctx context.Context, accountID string) (NomineeRecord, error)
	// SetNomineeEmail creates the record for the account or overwrites the existing one.
	SetNomineeEmail(ctx context.Context, accountID, email string) error
}

// Errors returned
var (
	ErrDataNotFound = errors.New("data was not found in store")
	ErrNoAccount    = errors.New("account id is required")
)
