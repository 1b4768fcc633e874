// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/trailhead/trailhead/pkg/errutil"
)

// Reset issuance retries when a concurrent update wins the version check.
const (
	maxIssueRetries = 3
	issueRetryDelay = 20 * time.Millisecond
)

// ResetLinkFunc builds the link embedded in a reset email from the plaintext token.
type ResetLinkFunc func(token string) string

// ResetTokenManager issues and redeems single-use password reset tokens.
type ResetTokenManager struct {
	store             CredentialStore
	hasher            PasswordHasher
	mailer            EmailSender
	ttl               time.Duration
	minPasswordLength int
	opts              options
}

// NewResetTokenManager creates a new ResetTokenManager.
func NewResetTokenManager(
	store CredentialStore,
	hasher PasswordHasher,
	mailer EmailSender,
	cfg Config,
	opts ...Option,
) (*ResetTokenManager, error) {
	if store == nil {
		return nil, oops.Code("RESET_INVALID_DEPENDENCY").Errorf("credential store is required")
	}
	if hasher == nil {
		return nil, oops.Code("RESET_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}
	if mailer == nil {
		return nil, oops.Code("RESET_INVALID_DEPENDENCY").Errorf("email sender is required")
	}

	ttl := cfg.ResetTokenTTL
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	minLength := cfg.MinPasswordLength
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}

	return &ResetTokenManager{
		store:             store,
		hasher:            hasher,
		mailer:            mailer,
		ttl:               ttl,
		minPasswordLength: minLength,
		opts:              buildOptions(opts),
	}, nil
}

// Issue creates a pending reset for the account with the given email and
// returns the plaintext token. Any earlier pending reset is replaced.
// Returns RESET_USER_NOT_FOUND if no active account has the email; whether
// to reveal that to the client is the caller's decision.
func (m *ResetTokenManager) Issue(ctx context.Context, email string) (token string, err error) {
	ctx, span := m.opts.startSpan(ctx, "auth.ResetTokenManager.Issue")
	defer func() { endSpan(span, err) }()

	_, token, _, err = m.issue(ctx, email)
	if err != nil {
		recordReset("issue", StatusFailure)
		return "", err
	}
	recordReset("issue", StatusSuccess)
	return token, nil
}

// Request issues a reset token and emails the link built by link to the
// account owner. If delivery fails the pending reset is cleared again and
// RESET_DELIVERY_FAILED is returned.
func (m *ResetTokenManager) Request(ctx context.Context, email string, link ResetLinkFunc) (err error) {
	ctx, span := m.opts.startSpan(ctx, "auth.ResetTokenManager.Request")
	defer func() { endSpan(span, err) }()

	cred, token, hash, err := m.issue(ctx, email)
	if err != nil {
		recordReset("request", StatusFailure)
		return err
	}

	target := token
	if link != nil {
		target = link(token)
	}
	subject := fmt.Sprintf("Your password reset token (valid for %s)", humanizeTTL(m.ttl))
	body := fmt.Sprintf(
		"Forgot your password? Submit your new password to:\n%s\n\n"+
			"If you didn't request a password reset, please ignore this email.\n",
		target,
	)

	if sendErr := m.mailer.Send(ctx, cred.Email, subject, body); sendErr != nil {
		m.rollback(ctx, cred.ID, hash)
		recordReset("request", "delivery_failed")
		m.opts.logger.WarnContext(ctx, "password reset email delivery failed",
			"user_id", cred.ID.String(),
			"error", sendErr,
		)
		return oops.Code(CodeResetDeliveryFailed).
			With("user_id", cred.ID.String()).
			With("cause", sendErr.Error()).
			Wrapf(ErrDeliveryFailed, "there was an error sending the email, try again later")
	}

	recordReset("request", StatusSuccess)
	m.opts.logger.InfoContext(ctx, "password reset email sent", "user_id", cred.ID.String())
	return nil
}

// Redeem consumes a reset token and sets newPassword. It succeeds at most
// once per issued token; every failure to match a live token is reported as
// RESET_INVALID_OR_EXPIRED.
func (m *ResetTokenManager) Redeem(ctx context.Context, token, newPassword string) (cred *UserCredential, err error) {
	ctx, span := m.opts.startSpan(ctx, "auth.ResetTokenManager.Redeem")
	defer func() { endSpan(span, err) }()

	cred, err = m.redeem(ctx, token, newPassword)
	if err != nil {
		recordReset("redeem", StatusFailure)
		return nil, err
	}
	recordReset("redeem", StatusSuccess)
	m.opts.logger.InfoContext(ctx, "password reset redeemed", "user_id", cred.ID.String())
	return cred, nil
}

// PurgeExpired clears every expired pending reset.
func (m *ResetTokenManager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.store.PurgeExpiredResets(ctx, m.opts.now().UTC())
	if err != nil {
		return 0, oops.Code("RESET_PURGE_FAILED").
			With("operation", "purge expired resets").
			Wrap(err)
	}
	if n > 0 {
		m.opts.logger.Info("purged expired password resets", "count", n)
	}
	return n, nil
}

func (m *ResetTokenManager) issue(ctx context.Context, email string) (*UserCredential, string, string, error) {
	email = NormalizeEmail(email)

	var (
		cred        *UserCredential
		token, hash string
	)
	backoff := retry.WithMaxRetries(maxIssueRetries, retry.NewConstant(issueRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		found, err := m.store.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return errResetUserNotFound()
			}
			return oops.Code("RESET_ISSUE_FAILED").
				With("operation", "find credential by email").
				Wrap(err)
		}
		if !found.Active {
			return errResetUserNotFound()
		}

		t, h, err := GenerateResetToken()
		if err != nil {
			return oops.Code("RESET_ISSUE_FAILED").
				With("operation", "generate reset token").
				Wrap(err)
		}

		pending := &PendingReset{TokenHash: h, ExpiresAt: m.opts.now().UTC().Add(m.ttl)}
		err = m.store.Update(ctx, found.ID, CredentialUpdate{SetReset: pending}, Precondition{Version: found.Version})
		if errors.Is(err, ErrConcurrentModification) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return oops.Code("RESET_ISSUE_FAILED").
				With("operation", "store pending reset").
				With("user_id", found.ID.String()).
				Wrap(err)
		}

		cred, token, hash = found, t, h
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			return nil, "", "", oops.Code(CodeConflict).
				Wrapf(ErrConcurrentModification, "account was modified concurrently, try again")
		}
		return nil, "", "", err
	}

	m.opts.logger.InfoContext(ctx, "password reset issued", "user_id", cred.ID.String())
	return cred, token, hash, nil
}

func (m *ResetTokenManager) redeem(ctx context.Context, token, newPassword string) (*UserCredential, error) {
	if token == "" {
		return nil, errResetInvalid()
	}
	hash := HashResetToken(token)

	cred, err := m.store.FindByResetTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errResetInvalid()
		}
		return nil, oops.Code("RESET_REDEEM_FAILED").
			With("operation", "find credential by reset token").
			Wrap(err)
	}

	now := m.opts.now()
	if cred.PendingReset == nil || !cred.Active {
		return nil, errResetInvalid()
	}
	if cred.PendingReset.IsExpiredAt(now) {
		m.clearReset(ctx, cred.ID, hash, "purge expired reset")
		return nil, errResetInvalid()
	}

	if err := ValidatePassword(newPassword, newPassword, m.minPasswordLength); err != nil {
		return nil, err
	}

	newHash, err := m.hasher.Hash(newPassword)
	if err != nil {
		return nil, oops.Code("RESET_REDEEM_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	changedAt := m.opts.stamp()
	update := CredentialUpdate{
		PasswordHash:      &newHash,
		PasswordChangedAt: &changedAt,
		ClearReset:        true,
		LoginFailures:     &LoginFailures{},
	}
	// The reset digest is the compare-and-swap field: of two racing
	// redemptions only the first clears it.
	err = m.store.Update(ctx, cred.ID, update, Precondition{ResetTokenHash: hash})
	if errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrNotFound) {
		return nil, errResetInvalid()
	}
	if err != nil {
		return nil, oops.Code("RESET_REDEEM_FAILED").
			With("operation", "update password").
			With("user_id", cred.ID.String()).
			Wrap(err)
	}

	update.Apply(cred, now)
	return cred, nil
}

// rollback removes a pending reset whose email could not be delivered.
func (m *ResetTokenManager) rollback(ctx context.Context, id ulid.ULID, hash string) {
	m.clearReset(ctx, id, hash, "roll back undelivered reset")
}

// clearReset removes the pending reset if it still carries hash. A newer
// issuance is left alone.
func (m *ResetTokenManager) clearReset(ctx context.Context, id ulid.ULID, hash, operation string) {
	ctx = context.WithoutCancel(ctx)
	err := m.store.Update(ctx, id, CredentialUpdate{ClearReset: true}, Precondition{ResetTokenHash: hash})
	if err == nil || errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrNotFound) {
		return
	}
	errutil.LogErrorContext(ctx, m.opts.logger, "failed to clear pending reset",
		oops.With("operation", operation).With("user_id", id.String()).Wrap(err))
}

func errResetInvalid() error {
	return oops.Code(CodeResetInvalidOrExpired).Errorf("token is invalid or has expired")
}

func errResetUserNotFound() error {
	return oops.Code(CodeResetUserNotFound).Wrapf(ErrNotFound, "there is no user with this email address")
}

// humanizeTTL renders whole minutes as "10 minutes", anything else as a Go duration.
func humanizeTTL(d time.Duration) string {
	if d%time.Minute == 0 {
		minutes := int(d / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return d.String()
}
