package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/snatchshot/core/internal/api"
)

// Supported identity providers.
const (
	ProviderApple  = "apple"
	ProviderGoogle = "google"
)

var (
	// ErrUnknownProvider indicates an assertion from a provider the backend
	// does not accept.
	ErrUnknownProvider = errors.New("unknown identity provider")
	// ErrExpiredAssertion indicates an identity token past its expiry.
	ErrExpiredAssertion = errors.New("identity token expired")
)

// Assertion is a third-party identity token handed over by a sign-in flow,
// ready to be exchanged with the backend for a session.
type Assertion struct {
	Provider string
	IDToken  string
	Nonce    string
}

// TokenInfo holds the unverified claims extracted from an identity token.
// Signature verification belongs to the backend; the client only inspects
// claims to reject obviously stale assertions before the network round-trip.
type TokenInfo struct {
	Issuer    string
	Subject   string
	ExpiresAt time.Time
}

// Inspect decodes the claims of an identity token without verifying its
// signature.
func Inspect(idToken string) (TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("parse identity token: %w", err)
	}

	info := TokenInfo{}
	if issuer, err := claims.GetIssuer(); err == nil {
		info.Issuer = issuer
	}
	if subject, err := claims.GetSubject(); err == nil {
		info.Subject = subject
	}
	if expires, err := claims.GetExpirationTime(); err == nil && expires != nil {
		info.ExpiresAt = expires.Time
	}
	return info, nil
}

// Validate checks the assertion locally before it is sent to the backend.
func (a Assertion) Validate(now time.Time) error {
	if a.Provider != ProviderApple && a.Provider != ProviderGoogle {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, a.Provider)
	}
	if a.IDToken == "" {
		return fmt.Errorf("identity token must not be empty")
	}

	info, err := Inspect(a.IDToken)
	if err != nil {
		return err
	}
	if !info.ExpiresAt.IsZero() && info.ExpiresAt.Before(now) {
		return fmt.Errorf("%w: expired at %s", ErrExpiredAssertion, info.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// Session is a backend-issued authentication session.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Exchanger verifies an identity assertion with the backend. Implemented by
// the database API client.
type Exchanger interface {
	ExchangeIdentity(ctx context.Context, req api.IdentityExchangeRequest) (api.SessionResponse, error)
}

// Exchange validates the assertion and trades it with the backend for a
// session.
func Exchange(ctx context.Context, ex Exchanger, assertion Assertion) (Session, error) {
	if err := assertion.Validate(time.Now().UTC()); err != nil {
		return Session{}, err
	}

	resp, err := ex.ExchangeIdentity(ctx, api.IdentityExchangeRequest{
		Provider: assertion.Provider,
		IDToken:  assertion.IDToken,
		Nonce:    assertion.Nonce,
	})
	if err != nil {
		return Session{}, fmt.Errorf("exchange %s assertion: %w", assertion.Provider, err)
	}
	if resp.Token == "" {
		return Session{}, fmt.Errorf("backend returned empty session token")
	}

	return Session{
		Token:     resp.Token,
		UserID:    resp.UserID,
		ExpiresAt: resp.ExpiresAt,
	}, nil
}
