package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shifa-clinics/booking-gateway/internal/http/handlers"
	httpmiddleware "github.com/shifa-clinics/booking-gateway/internal/http/middleware"
	"github.com/shifa-clinics/booking-gateway/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	AuthHandler        *handlers.AuthHandler
	CatalogHandler     *handlers.CatalogHandler
	CartHandler        *handlers.CartHandler
	BookingHandler     *handlers.BookingHandler
	WSHandler          *handlers.WSHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Operational endpoints sit outside the visitor cookie.
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Everything visitor-facing carries the visitor cookie.
	r.Group(func(api chi.Router) {
		api.Use(httpmiddleware.Visitor)
		if cfg.AuthHandler != nil {
			api.Mount("/auth", cfg.AuthHandler.Routes())
		}
		if cfg.CatalogHandler != nil {
			api.Mount("/clinics", cfg.CatalogHandler.Routes())
		}
		if cfg.CartHandler != nil {
			api.Mount("/cart", cfg.CartHandler.Routes())
		}
		if cfg.BookingHandler != nil {
			api.Mount("/booking", cfg.BookingHandler.Routes())
		}
		if cfg.WSHandler != nil {
			api.Get("/ws", cfg.WSHandler.Serve)
		}
	})

	return r
}

// CheckOrigin builds the websocket origin check from the CORS allowlist.
func CheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowAny := false
	allow := map[string]struct{}{}
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAny = true
			continue
		}
		if origin != "" {
			allow[origin] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if allowAny {
			return true
		}
		_, ok := allow[origin]
		return ok
	}
}
