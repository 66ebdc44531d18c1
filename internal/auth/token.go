// Package auth turns bearer tokens issued by the identity provider into principals.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/papertrail/internal/shared"
)

// ErrInvalidToken indicates a token that cannot be trusted.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims carried by access tokens. The principal id is read from sub, falling back to
// the legacy id claim.
type Claims struct {
	Role   string `json:"role"`
	UserID string `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 access tokens.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier constructs a Verifier. An empty issuer disables the issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, leeway: 30 * time.Second}
}

// Verify parses token and returns the principal it names.
func (v *Verifier) Verify(token string) (shared.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return shared.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject := claims.Subject
	if subject == "" {
		subject = claims.UserID
	}
	id, err := uuid.Parse(subject)
	if err != nil {
		return shared.Principal{}, fmt.Errorf("%w: subject is not a principal id", ErrInvalidToken)
	}
	role, ok := shared.ParseRole(claims.Role)
	if !ok {
		return shared.Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return shared.Principal{ID: id, Role: role}, nil
}

// Signer mints tokens for local development and tests.
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSigner constructs a Signer sharing the verifier's secret and issuer.
func NewSigner(secret, issuer string) *Signer {
	return &Signer{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Sign returns a token for p valid for ttl.
func (s *Signer) Sign(p shared.Principal, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
