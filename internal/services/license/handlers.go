// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/digiprod/internal/domain"
	"github.com/autobrr/digiprod/internal/events"
)

var errMissingPayload = errors.New("event payload missing")

// RegisterHandlers wires the licensing handlers into d. Issuance listens on
// both order events and runs only for the one selected by
// generateLicenseOnOrderPaid when the event arrives.
func RegisterHandlers(d *events.Dispatcher, svc *Service, settings domain.SettingsProvider) {
	d.On(events.OrderCompleted, issueOn(svc, settings, false))
	d.On(events.OrderPaid, issueOn(svc, settings, true))

	d.On(events.PaymentAuthorize, func(ctx context.Context, ev *events.Event) error {
		if ev.Order == nil {
			return errMissingPayload
		}
		allow, err := svc.MaybePreventPayment(ctx, ev.Order, ev.ActorID)
		if err != nil {
			ev.Allow = false
			return err
		}
		if !allow {
			ev.Allow = false
		}
		return nil
	})

	d.On(events.UserActivated, func(ctx context.Context, ev *events.Event) error {
		if ev.User == nil {
			return errMissingPayload
		}
		n, err := svc.ReconcileUserActivation(ctx, ev.User)
		ev.Result = map[string]int{"linked": n}
		return err
	})

	d.On(events.UserDeleted, func(ctx context.Context, ev *events.Event) error {
		if ev.User == nil {
			return errMissingPayload
		}
		n, err := svc.ReconcileUserDeletion(ctx, ev.User.ID)
		ev.Result = map[string]int{"released": n}
		return err
	})

	d.On(events.OrderDeleted, func(ctx context.Context, ev *events.Event) error {
		n, err := svc.DetachOrder(ctx, ev.OrderID)
		ev.Result = map[string]int{"detached": n}
		return err
	})
}

func issueOn(svc *Service, settings domain.SettingsProvider, onPaid bool) events.Handler {
	return func(ctx context.Context, ev *events.Event) error {
		if settings.Current().GenerateLicenseOnOrderPaid != onPaid {
			log.Trace().Str("event", string(ev.Name)).Msg("license issuance bound to the other order event")
			return nil
		}
		if ev.Order == nil {
			return errMissingPayload
		}

		report, err := svc.IssueLicenses(ctx, ev.Order)
		if report != nil {
			ev.Result = report
		}
		return err
	}
}
