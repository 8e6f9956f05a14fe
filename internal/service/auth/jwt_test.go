package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-min-32-chars-long-1234567890"

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(testSecret, "go-microservice", "go-microservice-api")
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}
	return v
}

// TestNewVerifierWeakSecret tests that weak secrets are rejected.
func TestNewVerifierWeakSecret(t *testing.T) {
	_, err := NewVerifier("short", "iss", "aud")
	if !errors.Is(err, ErrWeakKey) {
		t.Errorf("Expected ErrWeakKey, got %v", err)
	}
}

// TestIssueAndVerify tests a token round trip.
func TestIssueAndVerify(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.IssueToken("42", "admin", 15*time.Minute)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Failed to verify token: %v", err)
	}
	if claims.Subject != "42" {
		t.Errorf("Expected subject '42', got '%s'", claims.Subject)
	}
	if claims.Role != "admin" {
		t.Errorf("Expected role 'admin', got '%s'", claims.Role)
	}
	if claims.Issuer != "go-microservice" {
		t.Errorf("Expected issuer 'go-microservice', got '%s'", claims.Issuer)
	}
}

// TestVerifyRejects tests the rejection cases.
func TestVerifyRejects(t *testing.T) {
	v := newTestVerifier(t)

	otherIssuer, _ := NewVerifier(testSecret, "someone-else", "go-microservice-api")
	otherAudience, _ := NewVerifier(testSecret, "go-microservice", "other-api")
	otherKey, _ := NewVerifier(strings.Repeat("x", 40), "go-microservice", "go-microservice-api")

	sign := func(signer *Verifier) string {
		tok, err := signer.IssueToken("1", "user", time.Minute)
		if err != nil {
			t.Fatalf("Failed to issue token: %v", err)
		}
		return tok
	}

	expired := &Verifier{key: v.key, issuer: v.issuer, audience: v.audience,
		now: func() time.Time { return time.Now().Add(-time.Hour) }}

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    "go-microservice",
			Audience:  jwt.ClaimStrings{"go-microservice-api"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("Failed to build unsigned token: %v", err)
	}

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  "1",
			Issuer:   "go-microservice",
			Audience: jwt.ClaimStrings{"go-microservice-api"},
		},
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("Failed to build token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong issuer", sign(otherIssuer)},
		{"wrong audience", sign(otherAudience)},
		{"wrong key", sign(otherKey)},
		{"expired", sign(expired)},
		{"alg none", noneToken},
		{"missing exp", noExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			if err == nil {
				t.Fatal("Expected verification error, got none")
			}
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Expected ErrInvalidToken, got %v", err)
			}
		})
	}
}
