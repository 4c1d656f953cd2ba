package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-inventory-trades/internal/orderflow"
	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/ariefcatur/go-inventory-trades/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	Orders *orderflow.Service
	Cache  *redisx.Cache
	Log    *zap.Logger
}

type CreateOrderResp struct {
	orders.Order
	Idempotent bool `json:"idempotent"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/my-orders", h.myOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Patch("/orders/{id}/status", h.updateStatus)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderflow.CreateOrderInput
	if !decodeJSON(w, r, &req) {
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	caller := CallerID(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// fast path: a replayed key resolves from redis without a write transaction
	if id, ok := h.Cache.LookupIdempotency(ctx, req.IdempotencyKey); ok {
		if prev, err := h.Orders.GetOrder(ctx, caller, id); err == nil && prev.BuyerID == caller {
			writeJSON(w, http.StatusOK, CreateOrderResp{Order: prev, Idempotent: true})
			return
		}
	}

	o, existed, err := h.Orders.CreateOrder(ctx, caller, req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	_ = h.Cache.RememberIdempotency(ctx, req.IdempotencyKey, o.ID)
	_ = h.Cache.PutOrder(ctx, o)

	code := http.StatusCreated
	if existed {
		code = http.StatusOK
	}
	writeJSON(w, code, CreateOrderResp{Order: o, Idempotent: existed})
}

func (h *OrdersHandler) myOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.MyOrders(ctx, CallerID(r.Context()))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	caller := CallerID(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if o, ok := h.Cache.GetOrder(ctx, orderID); ok {
		if !o.IsParty(caller) {
			writeError(w, h.Log, orders.ErrNotOrderParty)
			return
		}
		writeJSON(w, http.StatusOK, o)
		return
	}

	// 2) fallback DB
	o, err := h.Orders.GetOrder(ctx, caller, orderID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	_ = h.Cache.PutOrder(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	status, err := orders.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.UpdateStatus(ctx, CallerID(r.Context()), chi.URLParam(r, "id"), status)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if err := h.Cache.PutOrder(ctx, o); err != nil {
		_ = h.Cache.EvictOrder(ctx, o.ID)
	}
	writeJSON(w, http.StatusOK, o)
}
