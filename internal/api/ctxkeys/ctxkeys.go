// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ctxkeys

import "context"

// Key is a typed context key to avoid collisions across packages.
type Key int

const (
	ActorID Key = iota
)

// WithActorID returns ctx carrying the acting user.
func WithActorID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, ActorID, id)
}

// ActorIDFrom returns the acting user, or nil for a guest.
func ActorIDFrom(ctx context.Context) *int {
	id, ok := ctx.Value(ActorID).(int)
	if !ok {
		return nil
	}
	return &id
}
