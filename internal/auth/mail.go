// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import "context"

// EmailSender delivers transactional email. Implementations live in
// internal/mail.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}
