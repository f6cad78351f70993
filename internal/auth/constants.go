// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import "time"

// # Authentication Constraints

const (
	// RefreshTokenLength is the byte length of the random refresh token (64 hex chars).
	RefreshTokenLength = 32

	// redisExpiryGrace keeps Redis records alive past their logical expiry so
	// the janitor, not key eviction, decides when they disappear.
	redisExpiryGrace = 24 * time.Hour

	// maxUsernameAttempts bounds random-suffix retries before falling back to a timestamp.
	maxUsernameAttempts = 10
)

// # Input Bounds

const (
	minIdentifierLen = 3
	minNameLen       = 2
	maxNameLen       = 100
	minPasswordLen   = 8
	maxPasswordLen   = 128
	maxEmailLen      = 255
)

// avatarURLFormat renders initials on a fixed palette.
const avatarURLFormat = "https://ui-avatars.com/api/?name=%s&color=7F9CF5&background=EBF4FF"
