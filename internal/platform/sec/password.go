// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// # Argon2id Parameters

const (
	algorithmArgon2ID = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1

	saltLength uint32 = 16
	keyLength  uint32 = 32
)

// ErrMalformedHash is returned when a stored hash cannot be parsed.
var ErrMalformedHash = errors.New("sec: malformed password hash")

// Argon2Params tunes the cost of argon2id hashing.
type Argon2Params struct {
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
}

// DefaultArgon2Params follows the OWASP baseline for argon2id.
var DefaultArgon2Params = Argon2Params{MemoryKB: 64 * 1024, Time: 3, Parallelism: 2}

// PasswordHasher hashes new passwords with argon2id and verifies stored hashes.
//
// # Legacy Hashes
//
// Hashes produced by bcrypt ($2a$, $2b$, $2y$) are still accepted by [PasswordHasher.Verify]
// so that accounts created before the argon2id migration can log in.
type PasswordHasher struct {
	params Argon2Params
}

// NewPasswordHasher validates params and returns a ready hasher.
func NewPasswordHasher(params Argon2Params) (*PasswordHasher, error) {
	if params.MemoryKB < minMemoryKB {
		return nil, fmt.Errorf("sec: argon2 memory must be >= %d KB", minMemoryKB)
	}
	if params.Time < minTimeCost {
		return nil, errors.New("sec: argon2 time must be >= 1")
	}
	if params.Parallelism < minParallelism {
		return nil, errors.New("sec: argon2 parallelism must be >= 1")
	}
	return &PasswordHasher{params: params}, nil
}

// Hash returns an argon2id PHC string for plainTextPassword.
func (h *PasswordHasher) Hash(plainTextPassword string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("sec: failed to read salt: %w", err)
	}

	key := argon2.IDKey([]byte(plainTextPassword), salt, h.params.Time, h.params.MemoryKB, h.params.Parallelism, keyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmArgon2ID,
		argon2.Version,
		h.params.MemoryKB,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether candidate matches storedHash.
//
// A malformed or unsupported hash is a mismatch, never an error, so callers
// cannot tell a corrupt row apart from a wrong password.
func (h *PasswordHasher) Verify(storedHash, candidate string) bool {
	if isBcryptHash(storedHash) {
		return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(candidate)) == nil
	}

	parsed, err := parseArgon2ID(storedHash)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(candidate), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.key)))
	return subtle.ConstantTimeCompare(computed, parsed.key) == 1
}

// # PHC Parsing

type argon2Hash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}

func parseArgon2ID(encoded string) (*argon2Hash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmArgon2ID {
		return nil, ErrMalformedHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return nil, ErrMalformedHash
	}

	parsed := &argon2Hash{}
	for _, pair := range strings.Split(parts[3], ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, ErrMalformedHash
		}
		number, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, ErrMalformedHash
		}
		switch key {
		case "m":
			parsed.memory = uint32(number)
		case "t":
			parsed.time = uint32(number)
		case "p":
			if number > 255 {
				return nil, ErrMalformedHash
			}
			parsed.parallelism = uint8(number)
		default:
			return nil, ErrMalformedHash
		}
	}
	if parsed.memory < minMemoryKB || parsed.time < minTimeCost || parsed.parallelism < minParallelism {
		return nil, ErrMalformedHash
	}

	if parsed.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(parsed.salt) == 0 {
		return nil, ErrMalformedHash
	}
	if parsed.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(parsed.key) == 0 {
		return nil, ErrMalformedHash
	}

	return parsed, nil
}
