// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/digiprod/internal/api/ctxkeys"
	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/services/license"
)

type LicenseHandler struct {
	service *license.Service
}

func NewLicenseHandler(service *license.Service) *LicenseHandler {
	return &LicenseHandler{service: service}
}

func (h *LicenseHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
	})
}

// List filters with ownerEmail, ownerId, productId, typeId, orderId,
// licenseKey and the createdAfter/createdBefore bounds. editable=true keeps
// only licenses the actor may manage.
func (h *LicenseHandler) List(w http.ResponseWriter, r *http.Request) {
	qp := &queryParser{r: r}
	page := ParsePagination(r, defaultPageSize, maxPageSize)
	query := models.LicenseQuery{
		OwnerEmail:    strings.TrimSpace(r.URL.Query().Get("ownerEmail")),
		OwnerID:       qp.IntPtr("ownerId"),
		ProductID:     qp.Int("productId"),
		TypeID:        qp.Int("typeId"),
		OrderID:       qp.IntPtr("orderId"),
		LicenseKey:    strings.TrimSpace(r.URL.Query().Get("licenseKey")),
		CreatedAfter:  qp.Time("createdAfter"),
		CreatedBefore: qp.Time("createdBefore"),
		Limit:         page.Limit,
		Offset:        page.Offset,
	}
	editable := qp.Bool("editable")
	if !qp.ok(w) {
		return
	}

	var (
		licenses []*models.License
		err      error
	)
	if editable {
		licenses, err = h.service.ListEditableLicenses(r.Context(), ctxkeys.ActorIDFrom(r.Context()), query)
	} else {
		licenses, err = h.service.ListLicenses(r.Context(), query)
	}
	if err != nil {
		RespondServiceError(w, err, "Failed to load licenses")
		return
	}
	RespondJSON(w, http.StatusOK, licenses)
}

func (h *LicenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "id", "license ID")
	if !ok {
		return
	}
	l, err := h.service.GetLicense(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err, "Failed to load license")
		return
	}
	RespondJSON(w, http.StatusOK, l)
}

func (h *LicenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in license.CreateInput
	if !DecodeJSON(w, r, &in) {
		return
	}

	l, err := h.service.CreateLicense(r.Context(), ctxkeys.ActorIDFrom(r.Context()), in)
	if err != nil {
		RespondServiceError(w, err, "Failed to create license")
		return
	}
	RespondJSON(w, http.StatusCreated, l)
}

func (h *LicenseHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "id", "license ID")
	if !ok {
		return
	}
	var in license.UpdateInput
	if !DecodeJSON(w, r, &in) {
		return
	}

	l, err := h.service.UpdateLicense(r.Context(), ctxkeys.ActorIDFrom(r.Context()), id, in)
	if err != nil {
		RespondServiceError(w, err, "Failed to update license")
		return
	}
	RespondJSON(w, http.StatusOK, l)
}

func (h *LicenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "id", "license ID")
	if !ok {
		return
	}
	if err := h.service.DeleteLicense(r.Context(), ctxkeys.ActorIDFrom(r.Context()), id); err != nil {
		RespondServiceError(w, err, "Failed to delete license")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
