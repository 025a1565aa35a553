// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/digiprod/internal/api/ctxkeys"
	"github.com/autobrr/digiprod/internal/events"
)

// HookHandler turns webhooks of the host shop into dispatcher events.
type HookHandler struct {
	dispatcher *events.Dispatcher
}

func NewHookHandler(dispatcher *events.Dispatcher) *HookHandler {
	return &HookHandler{dispatcher: dispatcher}
}

type orderDeletedPayload struct {
	ID int `json:"id"`
}

type paymentDecision struct {
	Allow bool `json:"allow"`
}

func (h *HookHandler) Routes(r chi.Router) {
	r.Post("/order-completed", h.orderHook(events.OrderCompleted))
	r.Post("/order-paid", h.orderHook(events.OrderPaid))
	r.Post("/payment-authorize", h.PaymentAuthorize)
	r.Post("/user-activated", h.userHook(events.UserActivated))
	r.Post("/user-deleted", h.userHook(events.UserDeleted))
	r.Post("/order-deleted", h.OrderDeleted)
}

func (h *HookHandler) orderHook(name events.Name) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var order events.Order
		if !DecodeJSON(w, r, &order) {
			return
		}
		if order.ID <= 0 {
			RespondError(w, http.StatusBadRequest, "order id is required")
			return
		}
		h.dispatch(w, r, &events.Event{Name: name, Order: &order, OrderID: order.ID})
	}
}

func (h *HookHandler) userHook(name events.Name) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var user events.User
		if !DecodeJSON(w, r, &user) {
			return
		}
		if user.ID <= 0 {
			RespondError(w, http.StatusBadRequest, "user id is required")
			return
		}
		h.dispatch(w, r, &events.Event{Name: name, User: &user})
	}
}

func (h *HookHandler) OrderDeleted(w http.ResponseWriter, r *http.Request) {
	var payload orderDeletedPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}
	if payload.ID <= 0 {
		RespondError(w, http.StatusBadRequest, "order id is required")
		return
	}
	h.dispatch(w, r, &events.Event{Name: events.OrderDeleted, OrderID: payload.ID})
}

// PaymentAuthorize answers whether the host may take the payment. Any
// handler failure blocks it.
func (h *HookHandler) PaymentAuthorize(w http.ResponseWriter, r *http.Request) {
	var order events.Order
	if !DecodeJSON(w, r, &order) {
		return
	}

	ev := &events.Event{
		Name:    events.PaymentAuthorize,
		Order:   &order,
		OrderID: order.ID,
		ActorID: ctxkeys.ActorIDFrom(r.Context()),
		Allow:   true,
	}
	if err := h.dispatcher.Dispatch(r.Context(), ev); err != nil {
		log.Error().Err(err).Int("orderId", order.ID).Msg("payment check failed, blocking payment")
		ev.Allow = false
	}
	RespondJSON(w, http.StatusOK, paymentDecision{Allow: ev.Allow})
}

// dispatch answers with the handler result, 204 when no handler produced
// one, or 500 when a handler failed.
func (h *HookHandler) dispatch(w http.ResponseWriter, r *http.Request, ev *events.Event) {
	ev.ActorID = ctxkeys.ActorIDFrom(r.Context())
	if err := h.dispatcher.Dispatch(r.Context(), ev); err != nil {
		RespondJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"result": ev.Result,
		})
		return
	}
	if ev.Result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	RespondJSON(w, http.StatusOK, ev.Result)
}
