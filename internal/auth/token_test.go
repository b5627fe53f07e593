package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, secret, issuer string, expiresIn time.Duration) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "u-alice",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
		UserID:   "u-alice",
		Email:    "alice@example.com",
		Username: "alice",
		FullName: "Alice Doe",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestValidateAcceptsValidToken(t *testing.T) {
	v := NewJWTValidator(testSecret, "tripchat")

	identity, err := v.Validate(context.Background(), mintToken(t, testSecret, "tripchat", time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if identity.ID != "u-alice" || identity.Email != "alice@example.com" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if identity.Username != "alice" || identity.FullName != "Alice Doe" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestValidateUsernameFallsBackToEmail(t *testing.T) {
	v := NewJWTValidator(testSecret, "")

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "u-bob",
		Email:  "bob@example.com",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	identity, err := v.Validate(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if identity.Username != "bob@example.com" {
		t.Fatalf("expected email fallback, got %q", identity.Username)
	}
}

func TestValidateRejectsMissingToken(t *testing.T) {
	v := NewJWTValidator(testSecret, "tripchat")
	if _, err := v.Validate(context.Background(), ""); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	v := NewJWTValidator(testSecret, "tripchat")
	token := mintToken(t, testSecret, "tripchat", -time.Hour)
	if _, err := v.Validate(context.Background(), token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	v := NewJWTValidator(testSecret, "tripchat")
	token := mintToken(t, "other-secret", "tripchat", time.Hour)
	if _, err := v.Validate(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	v := NewJWTValidator(testSecret, "tripchat")
	token := mintToken(t, testSecret, "someone-else", time.Hour)
	if _, err := v.Validate(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	v := NewJWTValidator(testSecret, "tripchat")
	if _, err := v.Validate(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestBearerTokenFromQuery(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/chat/trip-1?token=query-token", nil)
	if got := BearerToken(r); got != "query-token" {
		t.Fatalf("expected query token, got %q", got)
	}
}

func TestBearerTokenFromHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/chat/trip-1", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	if got := BearerToken(r); got != "header-token" {
		t.Fatalf("expected header token, got %q", got)
	}
}

func TestBearerTokenQueryWinsOverHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/chat/trip-1?token=query-token", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	if got := BearerToken(r); got != "query-token" {
		t.Fatalf("expected query precedence, got %q", got)
	}
}

func TestBearerTokenAbsent(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/chat/trip-1", nil)
	if got := BearerToken(r); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if got := BearerToken(r); got != "" {
		t.Fatalf("expected empty token for non-bearer scheme, got %q", got)
	}
}
