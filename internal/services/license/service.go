// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package license issues license keys for purchased digital products and
// keeps license ownership in step with the host's users and orders.
package license

import (
	"context"
	"io"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/digiprod/internal/dbinterface"
	"github.com/autobrr/digiprod/internal/domain"
	"github.com/autobrr/digiprod/internal/events"
	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/permissions"
)

const defaultInsertAttempts = 5

// Recorder receives licensing counters. The metrics package implements it.
type Recorder interface {
	LicenseIssued()
	LicenseIssueFailed(reason string)
	KeyCollision()
	PaymentDenied()
	LicensesReassigned(reason string, n int)
}

type nopRecorder struct{}

func (nopRecorder) LicenseIssued() {}
func (nopRecorder) LicenseIssueFailed(string) {}
func (nopRecorder) KeyCollision() {}
func (nopRecorder) PaymentDenied() {}
func (nopRecorder) LicensesReassigned(string, int) {}

// PurchasableResolver maps an order line item to the product it sells. It
// returns nil without error for purchasables that are not digital products.
type PurchasableResolver interface {
	ResolveProduct(ctx context.Context, purchasableID int) (*models.Product, error)
}

type storeResolver struct {
	products *models.ProductStore
}

func (r storeResolver) ResolveProduct(ctx context.Context, purchasableID int) (*models.Product, error) {
	p, err := r.products.GetByID(ctx, purchasableID)
	if errors.Is(err, models.ErrProductNotFound) {
		return nil, nil
	}
	return p, err
}

type Options struct {
	Recorder Recorder
	Resolver PurchasableResolver
	// Random feeds key generation. Defaults to crypto/rand.
	Random io.Reader
	// InsertAttempts bounds how often a license insert is retried after a
	// duplicate key violation.
	InsertAttempts uint
}

type Service struct {
	db        dbinterface.TxBeginner
	licenses  *models.LicenseStore
	products  *models.ProductStore
	types     *models.ProductTypeStore
	users     *models.UserStore
	checker   *permissions.Checker
	settings  domain.SettingsProvider
	allocator *KeyAllocator
	resolver  PurchasableResolver
	recorder  Recorder
	attempts  uint
}

func NewService(db dbinterface.TxBeginner, settings domain.SettingsProvider, opts Options) *Service {
	s := &Service{
		db:       db,
		licenses: models.NewLicenseStore(db),
		products: models.NewProductStore(db),
		types:    models.NewProductTypeStore(db),
		users:    models.NewUserStore(db),
		settings: settings,
		recorder: opts.Recorder,
		resolver: opts.Resolver,
		attempts: opts.InsertAttempts,
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.resolver == nil {
		s.resolver = storeResolver{products: s.products}
	}
	if s.attempts == 0 {
		s.attempts = defaultInsertAttempts
	}
	s.checker = permissions.NewChecker(s.users, s.types)
	s.allocator = NewKeyAllocator(s.licenses, settings, opts.Random)
	s.allocator.onCollision = s.recorder.KeyCollision
	return s
}

// Allocator exposes the key allocator so integrations can register overrides.
func (s *Service) Allocator() *KeyAllocator {
	return s.allocator
}

// IssueFailure describes one license unit that could not be created. Unit is
// -1 when the line item itself could not be resolved.
type IssueFailure struct {
	Err       error  `json:"-"`
	Message   string `json:"error"`
	LineItem  int    `json:"lineItem"`
	Unit      int    `json:"unit"`
	ProductID int    `json:"productId"`
}

// IssueReport lists what one issuance run did for an order.
type IssueReport struct {
	Issued        []*models.License `json:"issued"`
	Failures      []IssueFailure    `json:"failures"`
	OrderID       int               `json:"orderId"`
	Skipped       int               `json:"skipped"`
	AlreadyIssued int               `json:"alreadyIssued"`
}

type owner struct {
	userID *int
	name   string
	email  string
}

// IssueLicenses creates one license per purchased unit of every digital
// product in the order. Units that already have a license from an earlier
// delivery of the same order are not issued again. A failing unit is logged
// and reported; the remaining units are still issued.
func (s *Service) IssueLicenses(ctx context.Context, order *events.Order) (*IssueReport, error) {
	if order == nil || order.ID <= 0 {
		return nil, errors.New("order id is required")
	}

	settings := s.settings.Current()
	report := &IssueReport{
		OrderID:  order.ID,
		Issued:   []*models.License{},
		Failures: []IssueFailure{},
	}

	own, err := s.orderOwner(ctx, order, settings)
	if err != nil {
		return report, err
	}

	existing := make(map[int]int)
	wanted := make(map[int]int)

	for i, item := range order.LineItems {
		product, err := s.resolver.ResolveProduct(ctx, item.PurchasableID)
		if err != nil {
			err = errors.Wrapf(err, "resolve purchasable %d", item.PurchasableID)
			s.recorder.LicenseIssueFailed("resolve")
			log.Error().Err(err).
				Int("orderId", order.ID).
				Int("lineItem", i).
				Msg("failed to resolve line item")
			report.Failures = append(report.Failures, IssueFailure{
				Err:      err,
				Message:  err.Error(),
				LineItem: i,
				Unit:     -1,
			})
			continue
		}
		if product == nil || item.Qty <= 0 {
			report.Skipped++
			continue
		}

		have, ok := existing[product.ID]
		if !ok {
			have, err = s.licenses.CountForOrderProduct(ctx, order.ID, product.ID)
			if err != nil {
				return report, errors.Wrapf(err, "count licenses of order %d", order.ID)
			}
			existing[product.ID] = have
		}

		covered := min(max(have-wanted[product.ID], 0), item.Qty)
		wanted[product.ID] += item.Qty
		report.AlreadyIssued += covered

		for unit := covered; unit < item.Qty; unit++ {
			orderID := order.ID
			l := &models.License{
				ProductID:  product.ID,
				OrderID:    &orderID,
				OwnerID:    own.userID,
				OwnerName:  own.name,
				OwnerEmail: own.email,
				Enabled:    true,
			}

			if err := s.createWithKey(ctx, l); err != nil {
				reason := failureReason(err)
				s.recorder.LicenseIssueFailed(reason)
				log.Error().Err(err).
					Int("orderId", order.ID).
					Int("productId", product.ID).
					Int("lineItem", i).
					Int("unit", unit).
					Str("reason", reason).
					Msg("failed to issue license")
				report.Failures = append(report.Failures, IssueFailure{
					Err:       err,
					Message:   err.Error(),
					LineItem:  i,
					Unit:      unit,
					ProductID: product.ID,
				})
				continue
			}

			s.recorder.LicenseIssued()
			log.Info().
				Int("orderId", order.ID).
				Int("licenseId", l.ID).
				Str("sku", product.SKU).
				Str("licenseKey", maskLicenseKey(l.LicenseKey)).
				Msg("license issued")
			report.Issued = append(report.Issued, l)
		}
	}

	return report, nil
}

// orderOwner decides who owns the order's licenses. A registered customer
// owns them directly; otherwise the order email does, optionally matched to
// an existing user.
func (s *Service) orderOwner(ctx context.Context, order *events.Order, settings domain.Settings) (owner, error) {
	if c := order.Customer; c != nil && c.UserID != nil {
		email := c.Email
		if email == "" {
			email = order.Email
		}
		if err := s.ensureUser(ctx, *c.UserID, email, c.Name); err != nil {
			log.Warn().Err(err).
				Int("orderId", order.ID).
				Int("userId", *c.UserID).
				Msg("could not mirror customer, issuing licenses to the order email")
			return owner{email: email, name: c.Name}, nil
		}
		userID := *c.UserID
		return owner{userID: &userID, name: c.Name, email: email}, nil
	}

	return s.resolveOwner(ctx, owner{email: order.Email}, settings)
}

// resolveOwner reconciles own with the user directory. A set user replaces
// the free-form name and email with its own. Without a user, and with
// autoAssignUserOnPurchase, a user whose email matches becomes the owner.
// An unknown user id is a validation error on ownerId.
func (s *Service) resolveOwner(ctx context.Context, own owner, settings domain.Settings) (owner, error) {
	var (
		u   *models.User
		err error
	)
	switch {
	case own.userID != nil:
		u, err = s.users.GetByID(ctx, *own.userID)
		if errors.Is(err, models.ErrUserNotFound) {
			return own, fieldError("ownerId", "exists", "user does not exist")
		}
	case settings.AutoAssignUserOnPurchase && own.email != "":
		u, err = s.users.GetByEmail(ctx, own.email)
		if errors.Is(err, models.ErrUserNotFound) {
			return own, nil
		}
	default:
		return own, nil
	}
	if err != nil {
		return own, errors.Wrap(err, "look up owner")
	}

	userID := u.ID
	name := u.Name
	if name == "" {
		name = own.name
	}
	return owner{userID: &userID, name: name, email: u.Email}, nil
}

// ensureUser mirrors a customer the host knows about but this service has not
// seen yet, so the license can reference it.
func (s *Service) ensureUser(ctx context.Context, id int, email, name string) error {
	_, err := s.users.GetByID(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return err
	}
	return s.users.Upsert(ctx, &models.User{ID: id, Email: email, Name: name, Active: true})
}

// createWithKey allocates a key and inserts l. A duplicate key raced in by a
// concurrent writer triggers a fresh allocation.
func (s *Service) createWithKey(ctx context.Context, l *models.License) error {
	return retry.Do(
		func() error {
			key, err := s.allocator.Allocate(ctx, l)
			if err != nil {
				return err
			}
			l.LicenseKey = key
			err = s.licenses.Create(ctx, l)
			if errors.Is(err, models.ErrDuplicateLicenseKey) {
				s.recorder.KeyCollision()
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(5*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, models.ErrDuplicateLicenseKey)
		}),
	)
}

func failureReason(err error) string {
	switch {
	case models.IsValidationError(err):
		return "validation"
	case errors.Is(err, ErrKeySpaceExhausted):
		return "key_space"
	case errors.Is(err, models.ErrDuplicateLicenseKey):
		return "duplicate_key"
	default:
		return "storage"
	}
}

// MaybePreventPayment reports whether a payment may proceed. Guests are
// refused when logged in users are required and the order holds at least one
// digital product.
func (s *Service) MaybePreventPayment(ctx context.Context, order *events.Order, actorID *int) (bool, error) {
	if actorID != nil || !s.settings.Current().RequireLoggedInUser || order == nil {
		return true, nil
	}

	for _, item := range order.LineItems {
		product, err := s.resolver.ResolveProduct(ctx, item.PurchasableID)
		if err != nil {
			return false, errors.Wrapf(err, "resolve purchasable %d", item.PurchasableID)
		}
		if product != nil {
			s.recorder.PaymentDenied()
			log.Info().
				Int("orderId", order.ID).
				Int("productId", product.ID).
				Msg("payment blocked: digital products require a logged in user")
			return false, nil
		}
	}
	return true, nil
}
