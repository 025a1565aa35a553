// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/digiprod/internal/domain"
	"github.com/autobrr/digiprod/internal/models"
)

// ErrKeySpaceExhausted means no unused key could be found with the current
// alphabet and length. It is a configuration problem, not a transient one.
var ErrKeySpaceExhausted = errors.New("license key space exhausted")

// enumerationLimit is the largest key space the allocator will list in full
// once random generation keeps colliding.
const enumerationLimit = 1 << 16

// KeyOverride lets an integration supply the key for a license. Returning an
// empty key defers to the next override and finally to the generator.
type KeyOverride func(ctx context.Context, l *models.License) (string, error)

type keyStore interface {
	KeyExists(ctx context.Context, key string) (bool, error)
	KeysOfLength(ctx context.Context, length int) ([]string, error)
}

// KeyAllocator hands out license keys that are not stored yet.
type KeyAllocator struct {
	store       keyStore
	settings    domain.SettingsProvider
	random      io.Reader
	onCollision func()
	overrides   []KeyOverride
	mu          sync.RWMutex
}

func NewKeyAllocator(store keyStore, settings domain.SettingsProvider, random io.Reader) *KeyAllocator {
	if random == nil {
		random = rand.Reader
	}
	return &KeyAllocator{
		store:       store,
		settings:    settings,
		random:      random,
		onCollision: func() {},
	}
}

// AddOverride registers a hook that runs before key generation.
func (a *KeyAllocator) AddOverride(fn KeyOverride) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.overrides = append(a.overrides, fn)
}

// Allocate returns a key for l. Keys from overrides are returned as they are.
func (a *KeyAllocator) Allocate(ctx context.Context, l *models.License) (string, error) {
	a.mu.RLock()
	overrides := append([]KeyOverride(nil), a.overrides...)
	a.mu.RUnlock()

	for _, fn := range overrides {
		key, err := fn(ctx, l)
		if err != nil {
			return "", fmt.Errorf("license key override: %w", err)
		}
		if key != "" {
			return key, nil
		}
	}

	settings := a.settings.Current()
	gen, err := NewKeyGenerator(settings, a.random)
	if err != nil {
		return "", err
	}

	maxAttempts := settings.LicenseKeyMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultLicenseKeyMaxAttempts
	}

	for range maxAttempts {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		key, err := gen.Generate()
		if err != nil {
			return "", err
		}
		exists, err := a.store.KeyExists(ctx, key)
		if err != nil {
			return "", err
		}
		if !exists {
			return key, nil
		}
		a.onCollision()
	}

	size, small := gen.keySpace(enumerationLimit)
	if !small {
		log.Error().
			Int("attempts", maxAttempts).
			Int("length", gen.Length()).
			Msg("license key generation kept colliding")
		return "", fmt.Errorf("%w: %d attempts collided", ErrKeySpaceExhausted, maxAttempts)
	}
	return a.pickUnused(ctx, gen, size)
}

// pickUnused lists the whole key space and chooses uniformly among the keys
// nobody holds.
func (a *KeyAllocator) pickUnused(ctx context.Context, gen *KeyGenerator, size uint64) (string, error) {
	taken, err := a.store.KeysOfLength(ctx, gen.Length())
	if err != nil {
		return "", err
	}
	used := make(map[string]struct{}, len(taken))
	for _, k := range taken {
		used[k] = struct{}{}
	}

	free := make([]string, 0, int(size)-min(len(used), int(size)))
	for i := range size {
		key := gen.keyAt(i)
		if _, ok := used[key]; !ok {
			free = append(free, key)
		}
	}
	if len(free) == 0 {
		log.Error().Uint64("keySpace", size).Msg("every license key is in use")
		return "", fmt.Errorf("%w: all %d keys are in use", ErrKeySpaceExhausted, size)
	}

	n, err := rand.Int(a.random, big.NewInt(int64(len(free))))
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return free[n.Int64()], nil
}
