package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/passportlabs/scorer"
	"github.com/passportlabs/scorer/internal/domain"
	"github.com/passportlabs/scorer/internal/usecase"
	"github.com/passportlabs/scorer/siwe"
)

var tracer = otel.Tracer("auth")

// SessionStore persists bearer sessions issued after authentication. The
// stored session keeps the consumed nonce so later credential submissions
// can be checked against it without trusting client input.
type SessionStore interface {
	Create(ctx context.Context, session domain.Session, ttl time.Duration) (string, error)
	// Lookup resolves a bearer token to a session, NotFoundError otherwise.
	Lookup(ctx context.Context, token string) (domain.Session, error)
}

type AuthService struct {
	nonces   usecase.NonceStore
	sessions SessionStore

	allowlist    []string
	nonceTTL     time.Duration
	sessionTTL   time.Duration
	verifyBudget time.Duration
}

func NewAuthService(
	nonces usecase.NonceStore,
	sessions SessionStore,
	allowlist []string,
	nonceTTL time.Duration,
	sessionTTL time.Duration,
	verifyBudget time.Duration,
) *AuthService {
	return &AuthService{
		nonces:       nonces,
		sessions:     sessions,
		allowlist:    allowlist,
		nonceTTL:     nonceTTL,
		sessionTTL:   sessionTTL,
		verifyBudget: verifyBudget,
	}
}

type AuthResult struct {
	Address string
	Token   string
	Nonce   string
}

// IssueNonce creates the one-time token a signing challenge must carry.
func (s *AuthService) IssueNonce(ctx context.Context) (domain.Nonce, error) {
	ctx, span := tracer.Start(ctx, "Auth.Service.IssueNonce")
	defer span.End()

	nonce, err := s.nonces.Create(ctx, s.nonceTTL)
	if err != nil {
		span.RecordError(errors.Wrap(err, "nonce creation failed"))
		return domain.Nonce{}, err
	}
	return nonce, nil
}

// Authenticate validates a signed SIWE challenge. Every check must pass;
// the identity is always the recovered signer, never the address claimed
// inside the message body.
func (s *AuthService) Authenticate(ctx context.Context, message, signature string) (*AuthResult, error) {
	ctx, span := tracer.Start(ctx, "Auth.Service.Authenticate")
	defer span.End()

	parsed, err := siwe.Parse(message)
	if err != nil {
		span.RecordError(err)
		return nil, domain.AuthenticationError{Reason: "malformed message"}
	}

	if !siwe.ValidateDomain(parsed.Domain, s.allowlist) {
		err := domain.AuthenticationError{Reason: "domain not allowed"}
		span.RecordError(err)
		return nil, err
	}

	if !siwe.ValidateExpiration(parsed.ExpirationTime) {
		err := domain.AuthenticationError{Reason: "message expired"}
		span.RecordError(err)
		return nil, err
	}

	if parsed.Address != "" && !scorer.ValidAddress(parsed.Address) {
		err := domain.AuthenticationError{Reason: "malformed address"}
		span.RecordError(err)
		return nil, err
	}

	used, err := s.nonces.Use(ctx, parsed.Nonce)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		span.RecordError(errors.Wrap(err, "nonce consumption failed"))
		return nil, err
	}
	if !used {
		err := domain.AuthenticationError{Reason: "nonce unknown, expired or already used"}
		span.RecordError(err)
		return nil, err
	}

	var recovered string
	err = bounded(ctx, s.verifyBudget, func() error {
		var rerr error
		recovered, rerr = siwe.Recover(message, signature)
		return rerr
	})
	if err != nil {
		span.RecordError(err)
		return nil, domain.AuthenticationError{Reason: "signature invalid"}
	}

	token, err := s.sessions.Create(ctx, domain.Session{Address: recovered, Nonce: parsed.Nonce}, s.sessionTTL)
	if err != nil {
		span.RecordError(errors.Wrap(err, "session creation failed"))
		return nil, err
	}

	return &AuthResult{Address: recovered, Token: token, Nonce: parsed.Nonce}, nil
}

// Identify resolves a bearer token to the authenticated session.
func (s *AuthService) Identify(ctx context.Context, token string) (domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Auth.Service.Identify")
	defer span.End()

	session, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		span.RecordError(err)
		return domain.Session{}, err
	}
	return session, nil
}

// bounded runs fn with a hard time budget so a single malformed input
// cannot stall request handling on a cryptographic call.
func bounded(ctx context.Context, budget time.Duration, fn func() error) error {
	if budget <= 0 {
		return fn()
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
