package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-floor/internal/auth"
	"github.com/ariefcatur/go-realtime-floor/internal/inventory"
	"github.com/ariefcatur/go-realtime-floor/internal/orders"
	"github.com/ariefcatur/go-realtime-floor/internal/reservations"
	"github.com/ariefcatur/go-realtime-floor/internal/tables"
)

type Deps struct {
	Log          *zap.Logger
	Verbose      bool // expose internal error detail
	Tokens       *auth.Tokens
	WS           http.Handler
	Products     *inventory.Service
	Orders       *orders.Service
	Tables       *tables.Service
	Reservations *reservations.Service
}

func NewRouter(d Deps) *chi.Mux {
	log := d.Log.With(zap.String("component", "http"))
	errs := errorWriter{log: log, verbose: d.Verbose}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(log), middleware.Recoverer)
	r.Use(traceContext)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	// websocket dilayani di luar Timeout; koneksinya long-lived
	if d.WS != nil {
		r.Method(http.MethodGet, "/ws", d.WS)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Use(d.Tokens.Middleware)
		(&ProductsHandler{Svc: d.Products, errs: errs}).Register(r)
		(&OrdersHandler{Svc: d.Orders, errs: errs}).Register(r)
		(&TablesHandler{Svc: d.Tables, errs: errs}).Register(r)
		(&ReservationsHandler{Svc: d.Reservations, errs: errs}).Register(r)
	})
	return r
}

// requestLogger is middleware.Logger on zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// traceContext picks up a caller's traceparent so service spans join it.
func traceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userID returns the caller's subject; auth middleware guarantees claims.
func userID(r *http.Request) string {
	if c, ok := auth.ClaimsFrom(r.Context()); ok {
		return c.Uid
	}
	return ""
}
