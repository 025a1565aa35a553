// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/autobrr/digiprod/internal/domain"
)

// KeyGenerator draws license keys uniformly from an alphabet.
type KeyGenerator struct {
	random   io.Reader
	alphabet []rune
	length   int
}

// NewKeyGenerator builds a generator for the configured alphabet and length.
// Repeated alphabet characters count once. A nil random reads crypto/rand.
func NewKeyGenerator(settings domain.Settings, random io.Reader) (*KeyGenerator, error) {
	alphabet := uniqueRunes(settings.LicenseKeyCharacters)
	if len(alphabet) == 0 {
		return nil, fmt.Errorf("%w: licenseKeyCharacters must not be empty", domain.ErrInvalidSettings)
	}
	if settings.LicenseKeyLength <= 0 {
		return nil, fmt.Errorf("%w: licenseKeyLength must be greater than 0", domain.ErrInvalidSettings)
	}
	if random == nil {
		random = rand.Reader
	}

	return &KeyGenerator{
		random:   random,
		alphabet: alphabet,
		length:   settings.LicenseKeyLength,
	}, nil
}

func (g *KeyGenerator) Generate() (string, error) {
	max := big.NewInt(int64(len(g.alphabet)))

	var b strings.Builder
	b.Grow(g.length)
	for range g.length {
		n, err := rand.Int(g.random, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b.WriteRune(g.alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Length is the number of characters in every generated key.
func (g *KeyGenerator) Length() int {
	return g.length
}

// keySpace returns alphabet^length, capped at limit+1. The bool is true when
// the space holds at most limit keys.
func (g *KeyGenerator) keySpace(limit uint64) (uint64, bool) {
	size := uint64(1)
	base := uint64(len(g.alphabet))
	for range g.length {
		size *= base
		if size > limit {
			return limit + 1, false
		}
	}
	return size, true
}

// keyAt returns the index-th key in lexical alphabet order.
func (g *KeyGenerator) keyAt(index uint64) string {
	base := uint64(len(g.alphabet))
	out := make([]rune, g.length)
	for i := g.length - 1; i >= 0; i-- {
		out[i] = g.alphabet[index%base]
		index /= base
	}
	return string(out)
}

func uniqueRunes(s string) []rune {
	seen := make(map[rune]struct{}, len(s))
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// maskLicenseKey keeps the first characters of a key for log correlation.
func maskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "***"
}
