// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID   ulid.ULID
	Role     Role
	IssuedAt time.Time
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Guard turns bearer tokens into identities for protected operations.
type Guard struct {
	tokens *TokenCodec
	store  CredentialStore
	opts   options
}

// NewGuard creates a new Guard.
func NewGuard(tokens *TokenCodec, store CredentialStore, opts ...Option) (*Guard, error) {
	if tokens == nil {
		return nil, oops.Code("GUARD_INVALID_DEPENDENCY").Errorf("token codec is required")
	}
	if store == nil {
		return nil, oops.Code("GUARD_INVALID_DEPENDENCY").Errorf("credential store is required")
	}
	return &Guard{tokens: tokens, store: store, opts: buildOptions(opts)}, nil
}

// Authenticate verifies token and loads its subject. The account must
// still be active and its password must not have changed after the token
// was issued.
func (g *Guard) Authenticate(ctx context.Context, token string) (id Identity, err error) {
	ctx, span := g.opts.startSpan(ctx, "auth.Guard.Authenticate")
	defer func() {
		recordTokenCheck(err)
		endSpan(span, err)
	}()

	claims, err := g.tokens.Verify(token)
	if err != nil {
		return Identity{}, err
	}

	cred, err := g.store.FindByID(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, errUserGone()
		}
		return Identity{}, oops.Code("AUTH_AUTHENTICATE_FAILED").
			With("operation", "find credential by id").
			With("user_id", claims.SubjectID.String()).
			Wrap(err)
	}
	if !cred.Active {
		return Identity{}, errUserGone()
	}
	if cred.ChangedPasswordAfter(claims.IssuedAt) {
		g.opts.logger.InfoContext(ctx, "rejected token issued before password change",
			"user_id", cred.ID.String())
		return Identity{}, oops.Code(CodeStaleToken).
			Errorf("user recently changed password, please log in again")
	}

	return Identity{UserID: cred.ID, Role: cred.Role, IssuedAt: claims.IssuedAt}, nil
}

// Authorize checks the identity role against the allowed roles.
func (g *Guard) Authorize(id Identity, allowed ...Role) error {
	return Authorize(id, allowed...)
}

// Authorize returns AUTH_FORBIDDEN unless id.Role is one of allowed.
// An empty allowed list forbids everyone.
func Authorize(id Identity, allowed ...Role) error {
	if slices.Contains(allowed, id.Role) {
		return nil
	}

	names := make([]string, len(allowed))
	for i, r := range allowed {
		names[i] = r.String()
	}
	return oops.Code(CodeForbidden).
		With("role", id.Role.String()).
		With("allowed", strings.Join(names, ",")).
		Errorf("you do not have permission to perform this action")
}
