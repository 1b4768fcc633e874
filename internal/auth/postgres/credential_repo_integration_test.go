// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

//go:build integration

package postgres_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/auth/postgres"
)

var _ = Describe("CredentialRepository", func() {
	var repo *postgres.CredentialRepository

	newCredential := func(email string) *auth.UserCredential {
		cred, err := auth.NewUserCredential(email, "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$a2V5", time.Now())
		Expect(err).NotTo(HaveOccurred())
		return cred
	}

	BeforeEach(func() {
		_, err := pool.Exec(suiteCtx, `TRUNCATE users`)
		Expect(err).NotTo(HaveOccurred())
		repo = postgres.NewCredentialRepository(pool)
	})

	Describe("Insert and find", func() {
		It("round-trips a credential", func() {
			cred := newCredential("hiker@example.com")
			cred.Role = auth.RoleGuide
			Expect(repo.Insert(suiteCtx, cred)).To(Succeed())

			byID, err := repo.FindByID(suiteCtx, cred.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(byID.Email).To(Equal("hiker@example.com"))
			Expect(byID.Role).To(Equal(auth.RoleGuide))
			Expect(byID.Active).To(BeTrue())
			Expect(byID.Version).To(Equal(int64(1)))
			Expect(byID.PendingReset).To(BeNil())

			byEmail, err := repo.FindByEmail(suiteCtx, "hiker@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(byEmail.ID).To(Equal(cred.ID))
		})

		It("rejects a duplicate email", func() {
			Expect(repo.Insert(suiteCtx, newCredential("dup@example.com"))).To(Succeed())
			err := repo.Insert(suiteCtx, newCredential("dup@example.com"))
			Expect(err).To(MatchError(auth.ErrDuplicateEmail))
		})

		It("reports a missing credential", func() {
			_, err := repo.FindByEmail(suiteCtx, "nobody@example.com")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("Update", func() {
		var cred *auth.UserCredential

		BeforeEach(func() {
			cred = newCredential("update@example.com")
			Expect(repo.Insert(suiteCtx, cred)).To(Succeed())
		})

		It("applies changes and bumps the version", func() {
			role := auth.RoleAdmin
			Expect(repo.Update(suiteCtx, cred.ID, auth.CredentialUpdate{Role: &role},
				auth.Precondition{Version: 1})).To(Succeed())

			got, err := repo.FindByID(suiteCtx, cred.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Role).To(Equal(auth.RoleAdmin))
			Expect(got.Version).To(Equal(int64(2)))
		})

		It("fails a stale version check", func() {
			role := auth.RoleAdmin
			Expect(repo.Update(suiteCtx, cred.ID, auth.CredentialUpdate{Role: &role},
				auth.Precondition{Version: 1})).To(Succeed())

			err := repo.Update(suiteCtx, cred.ID, auth.CredentialUpdate{Role: &role},
				auth.Precondition{Version: 1})
			Expect(err).To(MatchError(auth.ErrConcurrentModification))
		})

		It("lets only one redemption clear a reset", func() {
			pending := &auth.PendingReset{TokenHash: auth.HashResetToken("t"), ExpiresAt: time.Now().Add(time.Hour)}
			Expect(repo.Update(suiteCtx, cred.ID, auth.CredentialUpdate{SetReset: pending},
				auth.Precondition{})).To(Succeed())

			found, err := repo.FindByResetTokenHash(suiteCtx, pending.TokenHash)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal(cred.ID))

			clearReset := auth.CredentialUpdate{ClearReset: true}
			pre := auth.Precondition{ResetTokenHash: pending.TokenHash}
			Expect(repo.Update(suiteCtx, cred.ID, clearReset, pre)).To(Succeed())
			Expect(repo.Update(suiteCtx, cred.ID, clearReset, pre)).To(MatchError(auth.ErrConcurrentModification))
		})
	})

	Describe("PurgeExpiredResets", func() {
		It("clears only expired resets", func() {
			now := time.Now().UTC()
			expired := newCredential("expired@example.com")
			live := newCredential("live@example.com")
			Expect(repo.Insert(suiteCtx, expired)).To(Succeed())
			Expect(repo.Insert(suiteCtx, live)).To(Succeed())

			Expect(repo.Update(suiteCtx, expired.ID, auth.CredentialUpdate{SetReset: &auth.PendingReset{
				TokenHash: auth.HashResetToken("old"), ExpiresAt: now.Add(-time.Minute),
			}}, auth.Precondition{})).To(Succeed())
			Expect(repo.Update(suiteCtx, live.ID, auth.CredentialUpdate{SetReset: &auth.PendingReset{
				TokenHash: auth.HashResetToken("new"), ExpiresAt: now.Add(time.Hour),
			}}, auth.Precondition{})).To(Succeed())

			n, err := repo.PurgeExpiredResets(suiteCtx, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))

			got, err := repo.FindByID(suiteCtx, live.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PendingReset).NotTo(BeNil())
		})
	})
})
