package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(log *zap.Logger) *chi.Mux {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(log), middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// API groups the handlers served under /api and /admin.
type API struct {
	Orders     *OrdersHandler
	Trades     *TradesHandler
	Items      *ItemsHandler
	Admin      *AdminHandler
	Identity   Identity
	AdminToken string
}

func (a *API) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(a.Identity.Middleware)
		a.Orders.Register(r)
		a.Trades.Register(r)
		a.Items.Register(r)
	})
	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminOnly(a.AdminToken))
		a.Admin.Register(r)
	})
}

// requestLogger replaces middleware.Logger with zap fields and stamps the
// request id on the context so emitted events carry it as trace_id.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(orders.WithTraceID(r.Context(), reqID)))

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", reqID),
			)
		})
	}
}
