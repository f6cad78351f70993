// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// normalizeIdentifier canonicalizes an email or username for storage and lookup:
// trimmed, NFC-composed and lower-cased. A Caser holds state, so one is built per call.
func normalizeIdentifier(identifier string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(strings.TrimSpace(identifier)))
}

// avatarURL renders the first letter of up to two words of name.
func avatarURL(name string) string {
	var initials strings.Builder
	for _, word := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(word)
		initials.WriteRune(unicode.ToUpper(r))
		if utf8.RuneCountInString(initials.String()) == 2 {
			break
		}
	}
	return fmt.Sprintf(avatarURLFormat, url.QueryEscape(initials.String()))
}
