// Package token issues and redeems the short-lived, single-use tokens that
// let the exporter fetch unpublished markup through the site's own HTTP stack.
//
// A token authorizes one fetch for one content item. Redemption removes the
// token from the store on the first attempt, whatever the outcome, so a token
// presented for the wrong item or after expiry is burned.
package token

import (
	"context"
	"errors"
	"time"
)

const (
	// TTL is how long a token stays redeemable in strict mode.
	TTL = 5 * time.Minute

	// Param is the query/form field a token travels in.
	Param = "quant_token"

	entropyBytes = 32
)

var (
	// ErrCreate is returned by Create when the token could not be persisted.
	ErrCreate = errors.New("token: create failed")

	// ErrNotFound is returned by a Store when no row carries the value.
	ErrNotFound = errors.New("token: not found")
)

// Token is one issued token as persisted.
type Token struct {
	Value     string
	OwnerID   int64
	CreatedAt time.Time
}

// Expired reports whether the token is past its TTL at now. The boundary
// itself counts as expired.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.CreatedAt.Add(TTL))
}

// Store persists tokens. Take must atomically delete every row carrying value
// and return the most recent of them, or ErrNotFound.
type Store interface {
	Insert(ctx context.Context, t Token) error
	Take(ctx context.Context, value string) (Token, error)
}

// Outcome classifies a redemption attempt.
type Outcome string

const (
	OutcomeAccepted      Outcome = "accepted"
	OutcomeMissing       Outcome = "missing"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeStoreError    Outcome = "store_error"
	OutcomeExpired       Outcome = "expired"
	OutcomeOwnerMismatch Outcome = "owner_mismatch"
)
