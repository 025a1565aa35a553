// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/digiprod/internal/domain"
)

// SettingsStore reads and persists the licensing settings.
type SettingsStore interface {
	Current() domain.Settings
	UpdateSettings(s domain.Settings) error
}

type SettingsHandler struct {
	store SettingsStore
}

func NewSettingsHandler(store SettingsStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

func (h *SettingsHandler) Routes(r chi.Router) {
	r.Get("/", h.Get)
	r.Put("/", h.Update)
}

func (h *SettingsHandler) Get(w http.ResponseWriter, _ *http.Request) {
	RespondJSON(w, http.StatusOK, h.store.Current())
}

// Update takes a partial document; omitted fields keep their current value.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	settings := h.store.Current()
	if !DecodeJSON(w, r, &settings) {
		return
	}

	if err := h.store.UpdateSettings(settings); err != nil {
		if errors.Is(err, domain.ErrInvalidSettings) {
			RespondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		log.Error().Err(err).Msg("failed to save settings")
		RespondError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	log.Info().Msg("licensing settings updated")
	RespondJSON(w, http.StatusOK, h.store.Current())
}
