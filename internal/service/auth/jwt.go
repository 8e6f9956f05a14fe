package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeyLength is the minimum HMAC key size in bytes.
const MinKeyLength = 32

var (
	// ErrWeakKey is returned when the signing key is shorter than MinKeyLength
	ErrWeakKey = errors.New("JWT key too weak")
	// ErrInvalidToken wraps every verification failure
	ErrInvalidToken = errors.New("invalid token")
)

// Claims extends JWT claims with role / Étend les claims JWT avec le rôle
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Verifier validates HMAC-signed bearer tokens / Valide les tokens bearer signés HMAC
type Verifier struct {
	key      []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewVerifier creates a verifier bound to an issuer and audience / Crée un vérificateur
func NewVerifier(secret, issuer, audience string) (*Verifier, error) {
	if len(secret) < MinKeyLength {
		return nil, ErrWeakKey
	}
	return &Verifier{
		key:      []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}, nil
}

// Issuer returns the expected "iss" claim.
func (v *Verifier) Issuer() string { return v.issuer }

// Audience returns the expected "aud" claim.
func (v *Verifier) Audience() string { return v.audience }

// IssueToken signs an HS256 token for subject valid for ttl / Signe un token HS256
func (v *Verifier) IssueToken(subject, role string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			Audience:  jwt.ClaimStrings{v.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates signature, algorithm, issuer, audience and expiry / Valide le token JWT
func (v *Verifier) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
		}
		return v.key, nil
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, jwt.ErrTokenInvalidClaims)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
