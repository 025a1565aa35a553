// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package events carries host events to the handlers registered for them.
// Handlers are registered explicitly at startup; nothing subscribes itself.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

type Name string

const (
	OrderCompleted   Name = "order.completed"
	OrderPaid        Name = "order.paid"
	PaymentAuthorize Name = "payment.authorize"
	UserActivated    Name = "user.activated"
	UserDeleted      Name = "user.deleted"
	OrderDeleted     Name = "order.deleted"
)

// Customer is the authenticated shopper of an order.
type Customer struct {
	UserID *int   `json:"userId,omitempty"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

type LineItem struct {
	PurchasableID int `json:"purchasableId"`
	Qty           int `json:"qty"`
}

// Order is the host order aggregate as it is delivered with order events.
type Order struct {
	Customer  *Customer  `json:"customer,omitempty"`
	Email     string     `json:"email"`
	LineItems []LineItem `json:"lineItems"`
	ID        int        `json:"id"`
}

// User is the account delivered with user events.
type User struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	ID    int    `json:"id"`
	Admin bool   `json:"admin"`
}

// Event is passed by pointer to every handler of its name. Handlers of
// PaymentAuthorize clear Allow to block the payment. Result carries whatever
// the last handler wants to hand back to the caller.
type Event struct {
	Order   *Order
	User    *User
	ActorID *int
	Result  any
	Name    Name
	OrderID int
	Allow   bool
}

type Handler func(ctx context.Context, ev *Event) error

// Dispatcher maps event names to handlers, run in registration order.
type Dispatcher struct {
	handlers map[Name][]Handler
	mu       sync.RWMutex
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Name][]Handler)}
}

func (d *Dispatcher) On(name Name, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = append(d.handlers[name], h)
}

// Has reports whether any handler listens for name.
func (d *Dispatcher) Has(name Name) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[name]) > 0
}

// Dispatch runs every handler for ev.Name. A failing handler does not stop
// the ones after it; all errors are returned joined.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) error {
	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers[ev.Name]...)
	d.mu.RUnlock()

	if len(handlers) == 0 {
		log.Trace().Str("event", string(ev.Name)).Msg("no handlers registered")
		return nil
	}

	var errs []error
	for i, h := range handlers {
		if err := h(ctx, ev); err != nil {
			log.Error().Err(err).Str("event", string(ev.Name)).Int("handler", i).Msg("event handler failed")
			errs = append(errs, fmt.Errorf("%s handler %d: %w", ev.Name, i, err))
		}
	}
	return errors.Join(errs...)
}
