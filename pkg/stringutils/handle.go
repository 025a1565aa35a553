// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package stringutils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var asciiReplacer = strings.NewReplacer(
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ø", "o", "Ø", "O",
	"ß", "ss",
	"ð", "d", "Ð", "D",
	"þ", "th", "Þ", "TH",
)

// ToASCII removes diacritics and decomposes ligatures.
//   - "Amélie" → "Amelie"
//   - "Björk" → "Bjork"
//   - "ﬁ" → "fi"
func ToASCII(s string) string {
	s = asciiReplacer.Replace(s)

	// transform.Chain is not safe for concurrent use
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// Handle derives a camelCase handle from a display name. Characters other
// than ASCII letters and digits separate words. Leading digits are dropped
// because handles start with a letter. The result is empty when name holds
// no usable letter.
//   - "Plugin Licenses" → "pluginLicenses"
//   - "Über-Themes 2" → "uberThemes2"
func Handle(name string) string {
	words := strings.FieldsFunc(ToASCII(name), func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})

	var b strings.Builder
	for _, w := range words {
		if b.Len() == 0 {
			w = strings.TrimLeftFunc(w, unicode.IsDigit)
			if w == "" {
				continue
			}
			b.WriteString(strings.ToLower(w))
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(strings.ToLower(w[1:]))
	}
	return b.String()
}
