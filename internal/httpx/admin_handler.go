package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-inventory-trades/internal/inventory"
	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/ariefcatur/go-inventory-trades/internal/redisx"
	"github.com/ariefcatur/go-inventory-trades/internal/sweep"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type AdminHandler struct {
	Store   orders.Store
	Ledger  inventory.Ledger
	Sweeper *sweep.Sweeper
	Cache   *redisx.Cache
	Log     *zap.Logger
}

type RestockReq struct {
	Stock *int `json:"stock"`
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/sweep", h.runSweep)
	r.Put("/items/{id}/stock", h.restock)
}

func (h *AdminHandler) runSweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.Sweeper.RunOnce(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AdminHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req RestockReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Stock == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var it orders.Item
	err := h.Store.WithTx(ctx, func(tx orders.Tx) error {
		var err error
		it, err = h.Ledger.Restock(ctx, tx.Items(), chi.URLParam(r, "id"), *req.Stock)
		return err
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	_, _ = h.Cache.PutAvailability(ctx, inventory.AvailabilityOf(it))
	writeJSON(w, http.StatusOK, it)
}
