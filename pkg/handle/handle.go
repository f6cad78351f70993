// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package handle derives ASCII usernames from arbitrary display names.
//
// # Usage
//
// Registration only asks for a display name; the public username is built
// from it and then suffixed until unique.
package handle

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fallback is used when a name has no usable ASCII letters or digits.
const Fallback = "user"

// maxBaseLen keeps generated usernames within the column limit after suffixing.
const maxBaseLen = 30

// Base converts a display name into a lowercase ASCII username stem.
//
// # Transformation Pipeline
//
// 1. Normalizes to NFD (decomposes accented chars: é → e + combining acute).
// 2. Removes combining marks (accents).
// 3. Keeps only ASCII letters and digits, lowercased.
func Base(name string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn))
	folded, _, _ := transform.String(t, name)

	var builder strings.Builder
	for _, r := range folded {
		if r > unicode.MaxASCII {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(unicode.ToLower(r))
		}
		if builder.Len() == maxBaseLen {
			break
		}
	}

	if builder.Len() == 0 {
		return Fallback
	}
	return builder.String()
}

// WithSuffix appends a random four-digit suffix (1000-9999) to base.
func WithSuffix(base string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return base + strconv.FormatInt(n.Int64()+1000, 10), nil
}

// isMn reports whether the rune is a non-spacing mark (accent).
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
