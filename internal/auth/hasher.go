// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2id salt and output sizes.
const (
	argon2SaltLen = 16 // salt length in bytes
	argon2KeyLen  = 32 // output length in bytes

	// Upper bounds accepted when parsing a stored digest.
	maxArgon2Memory = 1 << 20 // 1 GB
	maxArgon2Time   = 64
)

// HashParams is the argon2id cost configuration.
type HashParams struct {
	Time    uint32 `koanf:"time" json:"time,omitempty" jsonschema:"minimum=1"`
	Memory  uint32 `koanf:"memory" json:"memory,omitempty" jsonschema:"minimum=8192,description=memory in KiB"`
	Threads uint8  `koanf:"threads" json:"threads,omitempty" jsonschema:"minimum=1"`
}

// DefaultHashParams returns the OWASP-recommended argon2id parameters.
func DefaultHashParams() HashParams {
	return HashParams{
		Time:    1,
		Memory:  64 * 1024, // 64 MB
		Threads: 4,
	}
}

// Validate checks that the cost parameters are usable.
func (p HashParams) Validate() error {
	if p.Time == 0 || p.Threads == 0 {
		return oops.Code("HASH_PARAMS_INVALID").Errorf("time and threads must be positive")
	}
	if p.Memory < 8*uint32(p.Threads) {
		return oops.Code("HASH_PARAMS_INVALID").
			With("memory", p.Memory).
			Errorf("memory must be at least 8*threads KiB")
	}
	return nil
}

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a self-salted digest of the password.
	Hash(password string) (string, error)

	// Verify reports whether the password matches the digest.
	// A malformed digest never matches.
	Verify(password, hash string) bool

	// NeedsUpgrade returns true if the digest should be recomputed with the
	// current algorithm and cost.
	NeedsUpgrade(hash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id. Legacy bcrypt
// digests are accepted by Verify and reported by NeedsUpgrade.
type Argon2idHasher struct {
	params HashParams
}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher(params HashParams) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params}, nil
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", oops.Code(CodeEmptyPassword).Errorf("password cannot be empty")
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	p := h.params
	hash := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Time,
		p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
	}

	d, ok := parseArgon2id(encodedHash)
	if !ok {
		return false
	}

	computed := argon2.IDKey([]byte(password), d.salt, d.params.Time, d.params.Memory, d.params.Threads, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(computed, d.key) == 1
}

// NeedsUpgrade returns true for bcrypt digests and for argon2id digests
// computed with a lower cost than the hasher's.
func (h *Argon2idHasher) NeedsUpgrade(encodedHash string) bool {
	d, ok := parseArgon2id(encodedHash)
	if !ok {
		return true
	}
	return d.params.Time < h.params.Time ||
		d.params.Memory < h.params.Memory ||
		d.params.Threads < h.params.Threads
}

type argon2Digest struct {
	params HashParams
	salt   []byte
	key    []byte
}

// parseArgon2id decodes a PHC-formatted argon2id digest.
func parseArgon2id(encodedHash string) (argon2Digest, bool) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return argon2Digest{}, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argon2Digest{}, false
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return argon2Digest{}, false
	}
	// threads must fit in uint8; zero values make argon2 panic
	if threads == 0 || threads > 255 || time == 0 || memory == 0 ||
		time > maxArgon2Time || memory > maxArgon2Memory {
		return argon2Digest{}, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return argon2Digest{}, false
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > 1024 {
		return argon2Digest{}, false
	}

	return argon2Digest{
		params: HashParams{Time: time, Memory: memory, Threads: uint8(threads)},
		salt:   salt,
		key:    key,
	}, true
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

// Compile-time interface check.
var _ PasswordHasher = (*Argon2idHasher)(nil)
