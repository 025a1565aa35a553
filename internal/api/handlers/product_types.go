// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/digiprod/internal/api/ctxkeys"
	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/services/catalog"
)

type ProductTypeHandler struct {
	service *catalog.ProductTypeService
}

func NewProductTypeHandler(service *catalog.ProductTypeService) *ProductTypeHandler {
	return &ProductTypeHandler{service: service}
}

type ProductTypePayload struct {
	Name      string                   `json:"name"`
	Handle    string                   `json:"handle"`
	SKUFormat string                   `json:"skuFormat"`
	Sites     []models.ProductTypeSite `json:"sites"`
}

func (p *ProductTypePayload) toModel(id int) *models.ProductType {
	sites := p.Sites
	if sites == nil {
		sites = []models.ProductTypeSite{}
	}
	return &models.ProductType{
		ID:        id,
		Name:      p.Name,
		Handle:    p.Handle,
		SKUFormat: p.SKUFormat,
		Sites:     sites,
	}
}

func (h *ProductTypeHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
	})
}

func (h *ProductTypeHandler) List(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.List(r.Context())
	if err != nil {
		RespondServiceError(w, err, "Failed to load product types")
		return
	}
	RespondJSON(w, http.StatusOK, types)
}

// Get accepts a numeric id or a handle.
func (h *ProductTypeHandler) Get(w http.ResponseWriter, r *http.Request) {
	var (
		pt  *models.ProductType
		err error
	)
	if id, ok := numericParam(r, "id"); ok {
		pt, err = h.service.Get(r.Context(), id)
	} else {
		pt, err = h.service.GetByHandle(r.Context(), chi.URLParam(r, "id"))
	}
	if err != nil {
		RespondServiceError(w, err, "Failed to load product type")
		return
	}
	RespondJSON(w, http.StatusOK, pt)
}

func (h *ProductTypeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload ProductTypePayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	pt := payload.toModel(0)
	if err := h.service.Create(r.Context(), ctxkeys.ActorIDFrom(r.Context()), pt); err != nil {
		RespondServiceError(w, err, "Failed to create product type")
		return
	}
	RespondJSON(w, http.StatusCreated, pt)
}

func (h *ProductTypeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "id", "product type ID")
	if !ok {
		return
	}
	var payload ProductTypePayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	pt := payload.toModel(id)
	if err := h.service.Update(r.Context(), ctxkeys.ActorIDFrom(r.Context()), pt); err != nil {
		RespondServiceError(w, err, "Failed to update product type")
		return
	}
	RespondJSON(w, http.StatusOK, pt)
}

func (h *ProductTypeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "id", "product type ID")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), ctxkeys.ActorIDFrom(r.Context()), id); err != nil {
		RespondServiceError(w, err, "Failed to delete product type")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
