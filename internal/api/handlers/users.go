// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/digiprod/internal/models"
)

// UserHandler keeps the mirror of the host user directory in sync. Only the
// host calls these routes, so there is no actor check.
type UserHandler struct {
	store *models.UserStore
}

func NewUserHandler(store *models.UserStore) *UserHandler {
	return &UserHandler{store: store}
}

type UserPayload struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Admin  bool   `json:"admin"`
	Active *bool  `json:"active"`
}

type PermissionsPayload struct {
	Permissions []string `json:"permissions"`
}

func (h *UserHandler) Routes(r chi.Router) {
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Upsert)
		r.Get("/permissions", h.GetPermissions)
		r.Put("/permissions", h.SetPermissions)
	})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "id", "user ID")
	if !ok {
		return
	}
	u, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err, "Failed to load user")
		return
	}
	RespondJSON(w, http.StatusOK, u)
}

func (h *UserHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "id", "user ID")
	if !ok {
		return
	}
	var payload UserPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	u := &models.User{ID: id, Email: payload.Email, Name: payload.Name, Admin: payload.Admin, Active: true}
	if payload.Active != nil {
		u.Active = *payload.Active
	}
	if err := h.store.Upsert(r.Context(), u); err != nil {
		RespondServiceError(w, err, "Failed to save user")
		return
	}

	log.Debug().Int("userId", id).Msg("user mirror updated")
	RespondJSON(w, http.StatusOK, u)
}

func (h *UserHandler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "id", "user ID")
	if !ok {
		return
	}
	perms, err := h.store.Permissions(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err, "Failed to load permissions")
		return
	}
	RespondJSON(w, http.StatusOK, PermissionsPayload{Permissions: perms})
}

// SetPermissions replaces every permission of the user.
func (h *UserHandler) SetPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "id", "user ID")
	if !ok {
		return
	}
	var payload PermissionsPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	if err := h.store.SetPermissions(r.Context(), id, payload.Permissions); err != nil {
		RespondServiceError(w, err, "Failed to save permissions")
		return
	}
	perms, err := h.store.Permissions(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err, "Failed to load permissions")
		return
	}
	RespondJSON(w, http.StatusOK, PermissionsPayload{Permissions: perms})
}
