package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/ariefcatur/go-inventory-trades/internal/tradeflow"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type TradesHandler struct {
	Trades *tradeflow.Service
	Log    *zap.Logger
}

// StaleTradeResp is sent with 409 when an accept turned into a decline.
type StaleTradeResp struct {
	Error string       `json:"error"`
	Trade orders.Trade `json:"trade"`
}

func (h *TradesHandler) Register(r chi.Router) {
	r.Post("/trades", h.createTrade)
	r.Get("/trades/received", h.received)
	r.Get("/trades/sent", h.sent)
	r.Patch("/trades/{id}/accept", h.resolve(h.Trades.AcceptTrade))
	r.Patch("/trades/{id}/decline", h.resolve(h.Trades.DeclineTrade))
	r.Patch("/trades/{id}/cancel", h.resolve(h.Trades.CancelTrade))
}

func (h *TradesHandler) createTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeflow.CreateTradeInput
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	t, err := h.Trades.CreateTrade(ctx, CallerID(r.Context()), req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TradesHandler) received(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Trades.ReceivedTrades)
}

func (h *TradesHandler) sent(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Trades.SentTrades)
}

func (h *TradesHandler) list(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) ([]orders.Trade, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := fn(ctx, CallerID(r.Context()))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type resolveFunc func(ctx context.Context, callerID, tradeID string) (orders.Trade, error)

func (h *TradesHandler) resolve(fn resolveFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		t, err := fn(ctx, CallerID(r.Context()), chi.URLParam(r, "id"))
		if errors.Is(err, orders.ErrTradeStale) {
			writeJSON(w, http.StatusConflict, StaleTradeResp{Error: err.Error(), Trade: t})
			return
		}
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}
