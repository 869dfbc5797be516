package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/snatchshot/core/internal/api"
)

// signTestToken builds a signed JWT for claim-inspection tests. The signing
// key is irrelevant because Inspect never verifies signatures.
func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return signed
}

type fakeExchanger struct {
	gotReq api.IdentityExchangeRequest
	resp   api.SessionResponse
	err    error
}

func (f *fakeExchanger) ExchangeIdentity(_ context.Context, req api.IdentityExchangeRequest) (api.SessionResponse, error) {
	f.gotReq = req
	return f.resp, f.err
}

func TestInspect(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signTestToken(t, jwt.MapClaims{
		"iss": "https://accounts.google.com",
		"sub": "user-42",
		"exp": expiry.Unix(),
	})

	info, err := Inspect(token)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if info.Issuer != "https://accounts.google.com" {
		t.Fatalf("unexpected issuer: %q", info.Issuer)
	}
	if info.Subject != "user-42" {
		t.Fatalf("unexpected subject: %q", info.Subject)
	}
	if !info.ExpiresAt.Equal(expiry) {
		t.Fatalf("unexpected expiry: %s, want %s", info.ExpiresAt, expiry)
	}
}

func TestInspectRejectsMalformedToken(t *testing.T) {
	if _, err := Inspect("not-a-jwt"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}

func TestAssertionValidate(t *testing.T) {
	now := time.Now().UTC()
	valid := signTestToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
	expired := signTestToken(t, jwt.MapClaims{"exp": now.Add(-time.Hour).Unix()})

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   error
	}{
		{
			name:      "valid google assertion",
			assertion: Assertion{Provider: ProviderGoogle, IDToken: valid},
		},
		{
			name:      "valid apple assertion",
			assertion: Assertion{Provider: ProviderApple, IDToken: valid, Nonce: "n-1"},
		},
		{
			name:      "unknown provider",
			assertion: Assertion{Provider: "facebook", IDToken: valid},
			wantErr:   ErrUnknownProvider,
		},
		{
			name:      "expired token",
			assertion: Assertion{Provider: ProviderGoogle, IDToken: expired},
			wantErr:   ErrExpiredAssertion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.assertion.Validate(now)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate returned error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAssertionValidateEmptyToken(t *testing.T) {
	err := Assertion{Provider: ProviderGoogle}.Validate(time.Now())
	if err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestExchange(t *testing.T) {
	token := signTestToken(t, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
		"sub": "user-42",
	})
	expiry := time.Now().Add(24 * time.Hour)
	ex := &fakeExchanger{resp: api.SessionResponse{
		Token:     "session-token",
		UserID:    "user-42",
		ExpiresAt: expiry,
	}}

	session, err := Exchange(context.Background(), ex, Assertion{
		Provider: ProviderApple,
		IDToken:  token,
		Nonce:    "n-9",
	})
	if err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}

	if session.Token != "session-token" || session.UserID != "user-42" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if ex.gotReq.Provider != ProviderApple || ex.gotReq.Nonce != "n-9" {
		t.Fatalf("unexpected exchange request: %+v", ex.gotReq)
	}
}

func TestExchangeRejectsInvalidAssertionWithoutNetworkCall(t *testing.T) {
	ex := &fakeExchanger{}
	_, err := Exchange(context.Background(), ex, Assertion{Provider: "facebook", IDToken: "x"})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if ex.gotReq.Provider != "" {
		t.Fatalf("backend must not be called for invalid assertions")
	}
}

func TestExchangeRejectsEmptySessionToken(t *testing.T) {
	token := signTestToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	ex := &fakeExchanger{resp: api.SessionResponse{UserID: "user-42"}}

	if _, err := Exchange(context.Background(), ex, Assertion{
		Provider: ProviderGoogle,
		IDToken:  token,
	}); err == nil {
		t.Fatalf("expected error for empty session token")
	}
}
