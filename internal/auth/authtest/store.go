// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package authtest provides in-memory implementations of the auth
// interfaces for tests and local development.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/trailhead/trailhead/internal/auth"
)

// MemoryStore is a CredentialStore backed by a map. Records are copied on
// the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[ulid.ULID]*auth.UserCredential
	now     func() time.Time
	updates int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[ulid.ULID]*auth.UserCredential),
		now:  time.Now,
	}
}

// FindByID returns the credential with the given ID.
func (s *MemoryStore) FindByID(_ context.Context, id ulid.ULID) (*auth.UserCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return clone(c), nil
}

// FindByEmail returns the credential with the given email.
func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*auth.UserCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.byID {
		if c.Email == email {
			return clone(c), nil
		}
	}
	return nil, auth.ErrNotFound
}

// FindByResetTokenHash returns the credential holding the pending reset digest.
func (s *MemoryStore) FindByResetTokenHash(_ context.Context, tokenHash string) (*auth.UserCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.byID {
		if c.PendingReset != nil && c.PendingReset.TokenHash == tokenHash {
			return clone(c), nil
		}
	}
	return nil, auth.ErrNotFound
}

// Insert stores a copy of cred.
func (s *MemoryStore) Insert(_ context.Context, cred *auth.UserCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.byID {
		if c.Email == cred.Email {
			return auth.ErrDuplicateEmail
		}
	}
	s.byID[cred.ID] = clone(cred)
	return nil
}

// Update applies update under the store lock if pre matches.
func (s *MemoryStore) Update(_ context.Context, id ulid.ULID, update auth.CredentialUpdate, pre auth.Precondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	if !pre.Matches(c) {
		return auth.ErrConcurrentModification
	}
	update.Apply(c, s.now())
	s.updates++
	return nil
}

// PurgeExpiredResets clears pending resets that expired at or before now.
func (s *MemoryStore) PurgeExpiredResets(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, c := range s.byID {
		if c.PendingReset != nil && c.PendingReset.IsExpiredAt(now) {
			auth.CredentialUpdate{ClearReset: true}.Apply(c, s.now())
			n++
		}
	}
	return n, nil
}

// Put stores cred as-is, replacing any record with the same ID. It is a
// test seam for states the service API cannot produce directly.
func (s *MemoryStore) Put(cred *auth.UserCredential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[cred.ID] = clone(cred)
}

// Get returns a copy of the stored record, or nil.
func (s *MemoryStore) Get(id ulid.ULID) *auth.UserCredential {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return nil
	}
	return clone(c)
}

// Updates returns the number of successful Update calls.
func (s *MemoryStore) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func clone(c *auth.UserCredential) *auth.UserCredential {
	out := *c
	if c.PasswordChangedAt != nil {
		t := *c.PasswordChangedAt
		out.PasswordChangedAt = &t
	}
	if c.PendingReset != nil {
		r := *c.PendingReset
		out.PendingReset = &r
	}
	if c.LockedUntil != nil {
		t := *c.LockedUntil
		out.LockedUntil = &t
	}
	return &out
}

// Compile-time interface check.
var _ auth.CredentialStore = (*MemoryStore)(nil)
