package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/xerrors"
)

// Metrics is implemented by the metrics package.
type Metrics interface {
	IncTokensIssued()
	IncTokensFailed()
	IncTokenRedemption(outcome string)
}

type Options struct {
	Store   Store
	Logger  log.Logger
	Metrics Metrics

	// Now defaults to time.Now. Tests pin it.
	Now func() time.Time

	// Rand defaults to crypto/rand.Reader.
	Rand io.Reader
}

// Service issues and validates tokens against a Store.
type Service struct {
	store   Store
	logger  log.Logger
	metrics Metrics
	now     func() time.Time
	rand    io.Reader
}

func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, xerrors.New("token store is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	return &Service{
		store:   opts.Store,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
		rand:    opts.Rand,
	}, nil
}

func (s *Service) generate() (string, error) {
	b := make([]byte, entropyBytes)
	if _, err := io.ReadFull(s.rand, b); err != nil {
		return "", xerrors.Wrap(err, "read random bytes")
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Create mints a token for ownerID and persists it. Failures wrap ErrCreate
// and are not retried.
func (s *Service) Create(ctx context.Context, ownerID int64) (string, error) {
	value, err := s.generate()
	if err == nil {
		err = s.store.Insert(ctx, Token{Value: value, OwnerID: ownerID, CreatedAt: s.now()})
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncTokensFailed()
		}
		s.logger.Error(ctx, err, "token create failed", "nid", ownerID)
		return "", fmt.Errorf("%w: %w", ErrCreate, err)
	}
	if s.metrics != nil {
		s.metrics.IncTokensIssued()
	}
	return value, nil
}

// Validate redeems the token carried by r for expectedOwner.
func (s *Service) Validate(ctx context.Context, r *http.Request, expectedOwner int64, strict bool) bool {
	return s.Redeem(ctx, FromRequest(r), expectedOwner, strict) == OutcomeAccepted
}

// Redeem consumes value and classifies the attempt. The stored row is gone
// after any call that reached the store, accepted or not.
func (s *Service) Redeem(ctx context.Context, value string, expectedOwner int64, strict bool) Outcome {
	out := s.redeem(ctx, value, expectedOwner, strict)
	if s.metrics != nil {
		s.metrics.IncTokenRedemption(string(out))
	}
	return out
}

func (s *Service) redeem(ctx context.Context, value string, expectedOwner int64, strict bool) Outcome {
	if value == "" {
		return OutcomeMissing
	}

	tok, err := s.store.Take(ctx, value)
	switch {
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case err != nil:
		s.logger.Warn(ctx, "token lookup failed, treating as invalid", "error", err)
		return OutcomeStoreError
	}

	if !strict {
		return OutcomeAccepted
	}
	if tok.Expired(s.now()) {
		return OutcomeExpired
	}
	if tok.OwnerID != expectedOwner {
		return OutcomeOwnerMismatch
	}
	return OutcomeAccepted
}

// FromRequest returns the token carried in the query string or form body,
// or "" when there is none.
func FromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if v := r.URL.Query().Get(Param); v != "" {
		return v
	}
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		return r.PostFormValue(Param)
	}
	return ""
}
