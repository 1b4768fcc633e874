// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"

	"github.com/trailhead/trailhead/pkg/errutil"
)

// dummyPassword is hashed once per Service so that logins for unknown
// accounts run a full verification with the configured cost.
//
//nolint:gosec // G101: not a credential
const dummyPassword = "trailhead-login-timing-equalizer"

// SignupInput is the client-supplied signup payload. It carries no role:
// a decoded "role" field is dropped and every signup gets DefaultRole.
type SignupInput struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// Service provides authentication operations.
type Service struct {
	store             CredentialStore
	hasher            PasswordHasher
	tokens            *TokenCodec
	resets            *ResetTokenManager
	minPasswordLength int
	opts              options

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new Service.
func NewAuthService(
	store CredentialStore,
	hasher PasswordHasher,
	tokens *TokenCodec,
	resets *ResetTokenManager,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	if store == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("credential store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("token codec is required")
	}
	if resets == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("reset token manager is required")
	}

	minLength := cfg.MinPasswordLength
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}

	return &Service{
		store:             store,
		hasher:            hasher,
		tokens:            tokens,
		resets:            resets,
		minPasswordLength: minLength,
		opts:              buildOptions(opts),
	}, nil
}

// Signup creates an active account with DefaultRole and returns it together
// with a fresh bearer token.
func (s *Service) Signup(ctx context.Context, in SignupInput) (cred *UserCredential, token string, err error) {
	ctx, span := s.opts.startSpan(ctx, "auth.Service.Signup")
	defer func() { endSpan(span, err) }()

	email := NormalizeEmail(in.Email)
	if err = ValidateEmail(email); err != nil {
		return nil, "", err
	}
	if err = ValidatePassword(in.Password, in.PasswordConfirm, s.minPasswordLength); err != nil {
		return nil, "", err
	}

	cred, err = s.create(ctx, email, in.Password, DefaultRole)
	if err != nil {
		return nil, "", err
	}

	token, err = s.tokens.Issue(cred.ID)
	if err != nil {
		return nil, "", oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "issue token").
			With("user_id", cred.ID.String()).
			Wrap(err)
	}

	s.opts.logger.InfoContext(ctx, "account created", "user_id", cred.ID.String())
	return cred, token, nil
}

// CreateUser provisions an account with the given role. It is the privileged
// path used by operators; no token is issued.
func (s *Service) CreateUser(ctx context.Context, email, password string, role Role) (cred *UserCredential, err error) {
	ctx, span := s.opts.startSpan(ctx, "auth.Service.CreateUser",
		attribute.String("user.role", role.String()))
	defer func() { endSpan(span, err) }()

	if !role.Valid() {
		return nil, oops.Code(CodeInvalidRole).With("role", role.String()).Errorf("unknown role %q", role)
	}
	email = NormalizeEmail(email)
	if err = ValidateEmail(email); err != nil {
		return nil, err
	}
	if err = ValidatePassword(password, password, s.minPasswordLength); err != nil {
		return nil, err
	}

	cred, err = s.create(ctx, email, password, role)
	if err != nil {
		return nil, err
	}
	s.opts.logger.InfoContext(ctx, "account provisioned",
		"user_id", cred.ID.String(),
		"role", role.String(),
	)
	return cred, nil
}

func (s *Service) create(ctx context.Context, email, password string, role Role) (*UserCredential, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	cred, err := NewUserCredential(email, hash, s.opts.now())
	if err != nil {
		return nil, err
	}
	cred.Role = role

	if err := s.store.Insert(ctx, cred); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, oops.Code(CodeEmailTaken).
				Wrapf(ErrDuplicateEmail, "an account with this email already exists")
		}
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "insert credential").
			Wrap(err)
	}
	return cred, nil
}

// Login authenticates by email and password and returns a bearer token.
// Unknown, deactivated and wrong-password attempts are indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (token string, err error) {
	ctx, span := s.opts.startSpan(ctx, "auth.Service.Login")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	if email == "" || password == "" {
		recordLogin(StatusFailure)
		return "", oops.Code(CodeInvalidCredentials).Errorf("please provide email and password")
	}

	cred, lookupErr := s.store.FindByEmail(ctx, email)

	var (
		targetHash string
		exists     bool
	)
	switch {
	case lookupErr == nil && cred.Active:
		targetHash = cred.PasswordHash
		exists = true
	case lookupErr == nil || errors.Is(lookupErr, ErrNotFound):
		targetHash = s.dummy()
	default:
		recordLogin(StatusError)
		return "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find credential by email").
			Wrap(lookupErr)
	}

	// Always verify so that response time does not reveal whether the account exists.
	valid := s.hasher.Verify(password, targetHash)
	now := s.opts.now()

	if !exists || !valid {
		recordLogin(StatusFailure)
		if !exists {
			return "", errInvalidCredentials()
		}
		// Throttle hints are error context for the caller and logs; the
		// message stays identical to the unknown-account case.
		throttle := s.recordFailure(ctx, cred)
		return "", oops.
			With("retry_after", throttle.Delay).
			With("requires_captcha", throttle.RequiresCaptcha).
			Wrap(errInvalidCredentials())
	}

	// Lockout is checked after verification to keep timing constant.
	if cred.IsLockedAt(now) {
		recordLogin(StatusLocked)
		s.opts.logger.WarnContext(ctx, "login refused for locked account", "user_id", cred.ID.String())
		return "", oops.Code(CodeAccountLocked).
			With("locked_until", *cred.LockedUntil).
			Errorf("account is temporarily locked")
	}

	s.recordSuccess(ctx, cred, password)

	token, err = s.tokens.Issue(cred.ID)
	if err != nil {
		recordLogin(StatusError)
		return "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue token").
			With("user_id", cred.ID.String()).
			Wrap(err)
	}

	recordLogin(StatusSuccess)
	s.opts.logger.InfoContext(ctx, "login succeeded", "user_id", cred.ID.String())
	return token, nil
}

// recordFailure bumps the failure counter and returns the throttling state
// the next attempt faces. Best effort: a lost write only weakens throttling.
// Attempts during a lockout neither extend nor lift it.
func (s *Service) recordFailure(ctx context.Context, cred *UserCredential) RateLimitResult {
	now := s.opts.now()
	if cred.IsLockedAt(now) {
		return CheckFailures(cred.FailedLogins, cred.LockedUntil, now)
	}
	failures := NextLoginFailures(cred.FailedLogins, now)
	throttle := CheckFailures(failures.Count, failures.LockedUntil, now)
	err := s.store.Update(ctx, cred.ID, CredentialUpdate{LoginFailures: &failures}, Precondition{})
	if err != nil {
		errutil.LogErrorContext(ctx, s.opts.logger, "failed to record login failure",
			oops.With("user_id", cred.ID.String()).Wrap(err))
		return throttle
	}
	switch {
	case failures.LockedUntil != nil:
		s.opts.logger.WarnContext(ctx, "account locked after repeated login failures",
			"user_id", cred.ID.String(),
			"locked_until", *failures.LockedUntil,
		)
	case throttle.RequiresCaptcha:
		s.opts.logger.InfoContext(ctx, "login failures past captcha threshold",
			"user_id", cred.ID.String(),
			"failures", failures.Count,
		)
	}
	return throttle
}

// recordSuccess clears throttling state and upgrades a legacy digest.
// The version precondition keeps an upgrade from reverting a concurrent
// password change.
func (s *Service) recordSuccess(ctx context.Context, cred *UserCredential, password string) {
	var update CredentialUpdate
	if cred.FailedLogins != 0 || cred.LockedUntil != nil {
		update.LoginFailures = &LoginFailures{}
	}
	if s.hasher.NeedsUpgrade(cred.PasswordHash) {
		if newHash, err := s.hasher.Hash(password); err == nil {
			update.PasswordHash = &newHash
		}
	}
	if update.LoginFailures == nil && update.PasswordHash == nil {
		return
	}

	err := s.store.Update(ctx, cred.ID, update, Precondition{Version: cred.Version})
	if err != nil && !errors.Is(err, ErrConcurrentModification) {
		errutil.LogErrorContext(ctx, s.opts.logger, "failed to record login success",
			oops.With("user_id", cred.ID.String()).Wrap(err))
	}
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one, and returns a fresh token. Tokens issued
// before the change stop authenticating. Token and change timestamps have
// one-second resolution, so a token issued within the same second as the
// change stays valid until it expires.
func (s *Service) ChangePassword(
	ctx context.Context,
	userID ulid.ULID,
	currentPassword, newPassword, confirm string,
) (token string, err error) {
	ctx, span := s.opts.startSpan(ctx, "auth.Service.ChangePassword",
		attribute.String("user.id", userID.String()))
	defer func() { endSpan(span, err) }()

	cred, err := s.activeCredential(ctx, userID)
	if err != nil {
		return "", err
	}

	if !s.hasher.Verify(currentPassword, cred.PasswordHash) {
		return "", oops.Code(CodeInvalidCredentials).Errorf("your current password is wrong")
	}
	if err = ValidatePassword(newPassword, confirm, s.minPasswordLength); err != nil {
		return "", err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	changedAt := s.opts.stamp()
	update := CredentialUpdate{PasswordHash: &hash, PasswordChangedAt: &changedAt}
	err = s.store.Update(ctx, cred.ID, update, Precondition{Version: cred.Version})
	switch {
	case errors.Is(err, ErrNotFound):
		return "", errUserGone()
	case errors.Is(err, ErrConcurrentModification):
		return "", oops.Code(CodeConflict).
			Wrapf(ErrConcurrentModification, "account was modified concurrently, try again")
	case err != nil:
		return "", oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", cred.ID.String()).
			Wrap(err)
	}

	token, err = s.tokens.Issue(cred.ID)
	if err != nil {
		return "", oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "issue token").
			Wrap(err)
	}

	s.opts.logger.InfoContext(ctx, "password changed", "user_id", cred.ID.String())
	return token, nil
}

// RequestPasswordReset emails a reset link to the account with the given email.
func (s *Service) RequestPasswordReset(ctx context.Context, email string, link ResetLinkFunc) error {
	return s.resets.Request(ctx, email, link)
}

// RedeemPasswordReset sets a new password using a reset token and returns
// the updated account with a fresh bearer token.
func (s *Service) RedeemPasswordReset(ctx context.Context, resetToken, newPassword string) (*UserCredential, string, error) {
	cred, err := s.resets.Redeem(ctx, resetToken, newPassword)
	if err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(cred.ID)
	if err != nil {
		return nil, "", oops.Code("RESET_REDEEM_FAILED").
			With("operation", "issue token").
			With("user_id", cred.ID.String()).
			Wrap(err)
	}
	return cred, token, nil
}

// GetUser returns the active account with the given ID.
func (s *Service) GetUser(ctx context.Context, userID ulid.ULID) (*UserCredential, error) {
	return s.activeCredential(ctx, userID)
}

// Deactivate marks an account inactive and drops any pending reset.
// Its tokens stop authenticating immediately.
func (s *Service) Deactivate(ctx context.Context, userID ulid.ULID) (err error) {
	ctx, span := s.opts.startSpan(ctx, "auth.Service.Deactivate",
		attribute.String("user.id", userID.String()))
	defer func() { endSpan(span, err) }()

	inactive := false
	err = s.store.Update(ctx, userID, CredentialUpdate{Active: &inactive, ClearReset: true}, Precondition{})
	if err != nil {
		return s.adminUpdateError(err, userID, "deactivate")
	}
	s.opts.logger.InfoContext(ctx, "account deactivated", "user_id", userID.String())
	return nil
}

// SetRole changes the role of an account.
func (s *Service) SetRole(ctx context.Context, userID ulid.ULID, role Role) (err error) {
	ctx, span := s.opts.startSpan(ctx, "auth.Service.SetRole",
		attribute.String("user.id", userID.String()),
		attribute.String("user.role", role.String()))
	defer func() { endSpan(span, err) }()

	if !role.Valid() {
		return oops.Code(CodeInvalidRole).With("role", role.String()).Errorf("unknown role %q", role)
	}
	err = s.store.Update(ctx, userID, CredentialUpdate{Role: &role}, Precondition{})
	if err != nil {
		return s.adminUpdateError(err, userID, "set role")
	}
	s.opts.logger.InfoContext(ctx, "role changed", "user_id", userID.String(), "role", role.String())
	return nil
}

// PurgeExpiredResets clears expired pending resets.
func (s *Service) PurgeExpiredResets(ctx context.Context) (int64, error) {
	return s.resets.PurgeExpired(ctx)
}

func (s *Service) activeCredential(ctx context.Context, userID ulid.ULID) (*UserCredential, error) {
	cred, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errUserGone()
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "find credential by id").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if !cred.Active {
		return nil, errUserGone()
	}
	return cred, nil
}

func (s *Service) adminUpdateError(err error, userID ulid.ULID, operation string) error {
	if errors.Is(err, ErrNotFound) {
		return oops.Code("AUTH_USER_NOT_FOUND").
			With("user_id", userID.String()).
			Wrapf(ErrNotFound, "no account with this ID")
	}
	return oops.Code("AUTH_UPDATE_FAILED").
		With("operation", operation).
		With("user_id", userID.String()).
		Wrap(err)
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			errutil.LogError(s.opts.logger, "failed to compute dummy password hash", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("incorrect email or password")
}

func errUserGone() error {
	return oops.Code(CodeUserGone).Errorf("the user belonging to this token no longer exists")
}
