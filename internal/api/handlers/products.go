// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/autobrr/digiprod/internal/api/ctxkeys"
	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/services/catalog"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

type ProductHandler struct {
	service *catalog.ProductService
	now     func() time.Time
}

func NewProductHandler(service *catalog.ProductService) *ProductHandler {
	return &ProductHandler{service: service, now: time.Now}
}

type ProductPayload struct {
	PostDate      *time.Time      `json:"postDate"`
	ExpiryDate    *time.Time      `json:"expiryDate"`
	TaxCategoryID *int            `json:"taxCategoryId"`
	Enabled       *bool           `json:"enabled"`
	Price         decimal.Decimal `json:"price"`
	Title         string          `json:"title"`
	SKU           string          `json:"sku"`
	TypeID        int             `json:"typeId"`
	Promotable    bool            `json:"promotable"`
}

func (p *ProductPayload) toModel(id int) *models.Product {
	product := &models.Product{
		ID:            id,
		TypeID:        p.TypeID,
		Title:         p.Title,
		SKU:           strings.TrimSpace(p.SKU),
		Price:         p.Price,
		TaxCategoryID: p.TaxCategoryID,
		Promotable:    p.Promotable,
		PostDate:      p.PostDate,
		ExpiryDate:    p.ExpiryDate,
		Enabled:       true,
	}
	if p.Enabled != nil {
		product.Enabled = *p.Enabled
	}
	return product
}

// productView adds the status evaluated at response time.
type productView struct {
	*models.Product
	Status    models.ProductStatus `json:"status"`
	Available bool                 `json:"available"`
}

func (h *ProductHandler) view(p *models.Product) productView {
	now := h.now()
	return productView{Product: p, Status: p.Status(now), Available: p.IsAvailable(now)}
}

func (h *ProductHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/restore", h.Restore)
	})
}

// List filters with sku, typeId, type (handle), status, the post and expiry
// date bounds and trashed=include|only. editable=true narrows the result to
// product types the actor may edit.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	qp := &queryParser{r: r}
	page := ParsePagination(r, defaultPageSize, maxPageSize)
	query := models.ProductQuery{
		SKU:              strings.TrimSpace(r.URL.Query().Get("sku")),
		TypeID:           qp.Int("typeId"),
		TypeHandle:       strings.TrimSpace(r.URL.Query().Get("type")),
		Status:           models.ProductStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		PostDateAfter:    qp.Time("postDateAfter"),
		PostDateBefore:   qp.Time("postDateBefore"),
		ExpiryDateAfter:  qp.Time("expiryDateAfter"),
		ExpiryDateBefore: qp.Time("expiryDateBefore"),
		Now:              h.now(),
		Limit:            page.Limit,
		Offset:           page.Offset,
	}
	editable := qp.Bool("editable")
	switch r.URL.Query().Get("trashed") {
	case "":
	case "include":
		query.IncludeTrashed = true
	case "only":
		query.OnlyTrashed = true
	default:
		qp.fail("trashed")
	}
	if !qp.ok(w) {
		return
	}

	var (
		products []*models.Product
		err      error
	)
	if editable {
		products, err = h.service.ListEditable(r.Context(), ctxkeys.ActorIDFrom(r.Context()), query)
	} else {
		products, err = h.service.List(r.Context(), query)
	}
	if err != nil {
		RespondServiceError(w, err, "Failed to load products")
		return
	}

	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, h.view(p))
	}
	RespondJSON(w, http.StatusOK, views)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "id", "product ID")
	if !ok {
		return
	}

	var (
		p   *models.Product
		err error
	)
	if r.URL.Query().Get("trashed") != "" {
		p, err = h.service.GetWithTrashed(r.Context(), id)
	} else {
		p, err = h.service.Get(r.Context(), id)
	}
	if err != nil {
		RespondServiceError(w, err, "Failed to load product")
		return
	}
	RespondJSON(w, http.StatusOK, h.view(p))
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload ProductPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	p := payload.toModel(0)
	if err := h.service.Create(r.Context(), ctxkeys.ActorIDFrom(r.Context()), p); err != nil {
		RespondServiceError(w, err, "Failed to create product")
		return
	}
	RespondJSON(w, http.StatusCreated, h.view(p))
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "id", "product ID")
	if !ok {
		return
	}
	var payload ProductPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	p := payload.toModel(id)
	if err := h.service.Update(r.Context(), ctxkeys.ActorIDFrom(r.Context()), p); err != nil {
		RespondServiceError(w, err, "Failed to update product")
		return
	}
	RespondJSON(w, http.StatusOK, h.view(p))
}

// Delete moves the product to the trash.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "id", "product ID")
	if !ok {
		return
	}
	if err := h.service.SoftDelete(r.Context(), ctxkeys.ActorIDFrom(r.Context()), id); err != nil {
		RespondServiceError(w, err, "Failed to delete product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "id", "product ID")
	if !ok {
		return
	}
	p, err := h.service.Restore(r.Context(), ctxkeys.ActorIDFrom(r.Context()), id)
	if err != nil {
		RespondServiceError(w, err, "Failed to restore product")
		return
	}
	RespondJSON(w, http.StatusOK, h.view(p))
}
