package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-inventory-trades/internal/inventory"
	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/ariefcatur/go-inventory-trades/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ItemsHandler serves the availability read model kept by the projector.
type ItemsHandler struct {
	Items orders.ItemRepo
	Cache *redisx.Cache
	Log   *zap.Logger
}

func (h *ItemsHandler) Register(r chi.Router) {
	r.Get("/items/{id}/availability", h.availability)
}

func (h *ItemsHandler) availability(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if a, ok := h.Cache.GetAvailability(ctx, itemID); ok {
		writeJSON(w, http.StatusOK, a)
		return
	}

	it, err := h.Items.Get(ctx, itemID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	a := inventory.AvailabilityOf(it)
	_, _ = h.Cache.PutAvailability(ctx, a)
	writeJSON(w, http.StatusOK, a)
}
