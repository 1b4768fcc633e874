// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Bearer token configuration.
const (
	DefaultTokenTTL      = 90 * 24 * time.Hour
	MinTokenSecretLength = 32
)

// TokenClaims is the verified content of a bearer token.
type TokenClaims struct {
	SubjectID ulid.ULID
	IssuedAt  time.Time
}

// TokenCodec signs and verifies HS256 bearer tokens.
// It performs no I/O and is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// TokenOption configures a TokenCodec.
type TokenOption func(*TokenCodec)

// WithTokenClock overrides the time source used for iat and expiry checks.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec creates a TokenCodec keyed by secret.
func NewTokenCodec(secret []byte, ttl time.Duration, opts ...TokenOption) (*TokenCodec, error) {
	if len(secret) < MinTokenSecretLength {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("min", MinTokenSecretLength).
			Errorf("token secret must be at least %d bytes", MinTokenSecretLength)
	}
	if ttl <= 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("ttl", ttl.String()).
			Errorf("token TTL must be positive")
	}

	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			// iat is checked against ttl below
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured token lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue creates a signed token for subjectID issued now.
func (c *TokenCodec) Issue(subjectID ulid.ULID) (string, error) {
	if subjectID.Compare(ulid.ULID{}) == 0 {
		return "", oops.Code("TOKEN_INVALID_SUBJECT").Errorf("subject ID cannot be zero")
	}

	issuedAt := c.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subjectID.String(),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.ttl)),
		ID:        ulid.Make().String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").
			With("subject", subjectID.String()).
			Wrap(err)
	}
	return signed, nil
}

// Verify checks the token signature and lifetime and returns its claims.
// Any decoding or signature problem yields TOKEN_MALFORMED; a token older
// than the TTL yields TOKEN_EXPIRED.
func (c *TokenCodec) Verify(token string) (TokenClaims, error) {
	if token == "" {
		return TokenClaims{}, oops.Code(CodeTokenMalformed).Errorf("token cannot be empty")
	}

	var claims jwt.RegisteredClaims
	if _, err := c.parser.ParseWithClaims(token, &claims, c.keyFunc); err != nil {
		return TokenClaims{}, oops.Code(CodeTokenMalformed).
			With("reason", err.Error()).
			Errorf("invalid token")
	}

	if claims.IssuedAt == nil {
		return TokenClaims{}, oops.Code(CodeTokenMalformed).Errorf("token has no issue time")
	}
	subjectID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return TokenClaims{}, oops.Code(CodeTokenMalformed).Errorf("token has an invalid subject")
	}

	issuedAt := claims.IssuedAt.UTC()
	if c.now().Sub(issuedAt) > c.ttl {
		return TokenClaims{}, oops.Code(CodeTokenExpired).
			With("issued_at", issuedAt).
			Errorf("token has expired")
	}

	return TokenClaims{SubjectID: subjectID, IssuedAt: issuedAt}, nil
}

func (c *TokenCodec) keyFunc(*jwt.Token) (any, error) {
	return c.secret, nil
}
