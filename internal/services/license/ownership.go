// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/digiprod/internal/database"
	"github.com/autobrr/digiprod/internal/dbinterface"
	"github.com/autobrr/digiprod/internal/events"
	"github.com/autobrr/digiprod/internal/models"
)

// ReconcileUserActivation mirrors the activated user and, when enabled, links
// every unowned license bought with the user's email. Running it twice links
// nothing new.
func (s *Service) ReconcileUserActivation(ctx context.Context, u *events.User) (int, error) {
	if u == nil || u.ID <= 0 {
		return 0, errors.New("user id is required")
	}

	mirror := &models.User{ID: u.ID, Email: u.Email, Name: u.Name, Admin: u.Admin, Active: true}
	if err := s.users.Upsert(ctx, mirror); err != nil {
		return 0, errors.Wrapf(err, "mirror user %d", u.ID)
	}

	if !s.settings.Current().AutoAssignLicensesOnUserRegistration {
		return 0, nil
	}

	n, err := s.licenses.LinkUnownedByEmail(ctx, mirror.Email, mirror.ID)
	if err != nil {
		return 0, errors.Wrapf(err, "link licenses to user %d", u.ID)
	}
	if n > 0 {
		s.recorder.LicensesReassigned("activation", int(n))
		log.Info().Int("userId", u.ID).Int64("licenses", n).Msg("linked licenses to activated user")
	}
	return int(n), nil
}

// ReconcileUserDeletion hands the user's licenses back to the user's email and
// removes the mirrored user. Unknown users are a no-op.
func (s *Service) ReconcileUserDeletion(ctx context.Context, userID int) (int, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, models.ErrUserNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "load user %d", userID)
	}

	var released int64
	err = database.RunInTx(ctx, s.db, func(tx dbinterface.TxQuerier) error {
		n, err := models.NewLicenseStore(tx).ReleaseFromUser(ctx, u.ID, u.Email)
		if err != nil {
			return err
		}
		released = n
		return models.NewUserStore(tx).Delete(ctx, u.ID)
	})
	if err != nil {
		return 0, errors.Wrapf(err, "release licenses of user %d", userID)
	}

	if released > 0 {
		s.recorder.LicensesReassigned("user_deleted", int(released))
	}
	log.Info().Int("userId", userID).Int64("licenses", released).Msg("released licenses of deleted user")
	return int(released), nil
}

// DetachOrder clears the order reference of licenses whose order was deleted.
// The licenses themselves stay.
func (s *Service) DetachOrder(ctx context.Context, orderID int) (int, error) {
	n, err := s.licenses.DetachOrder(ctx, orderID)
	if err != nil {
		return 0, errors.Wrapf(err, "detach order %d", orderID)
	}
	log.Debug().Int("orderId", orderID).Int64("licenses", n).Msg("detached licenses from deleted order")
	return int(n), nil
}
