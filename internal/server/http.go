// Package server assembles the HTTP surface: middleware chain, public auth
// and OTP routes, and the authenticated user directory routes.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"lm-identity/internal/config"
	"lm-identity/internal/devotp"
	healthhandler "lm-identity/internal/health/handler"
	identityhandler "lm-identity/internal/identity/handler"
	otphandler "lm-identity/internal/otp/handler"
	"lm-identity/internal/security"
	"lm-identity/internal/server/middleware"
	userhandler "lm-identity/internal/user/handler"
)

// Handlers collects the route handlers the router mounts. DevOTP is nil
// unless dev OTP mode is enabled.
type Handlers struct {
	Auth   *identityhandler.AuthHandler
	OTP    *otphandler.OTPHandler
	Users  *userhandler.UserHandler
	Health *healthhandler.HealthHandler
	DevOTP *devotp.Handler
}

// NewRouter builds the full HTTP handler chain.
func NewRouter(cfg *config.Config, tokens *security.TokenProvider, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(httprate.LimitByIP(100, 1*time.Minute))
	r.Use(middleware.RecordClientIP)

	origins := cfg.CORSOriginsList()
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Logger)

	r.Get("/healthz", h.Health.Check)

	// Public auth flows. The refresh token travels only in its cookie, never
	// in a body, so these stay outside the bearer-token middleware.
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)
		r.Post("/google", h.Auth.GoogleLogin)
		r.Post("/refresh", h.Auth.Refresh)
		r.Post("/logout", h.Auth.Logout)
	})

	r.Post("/otp", h.OTP.Issue)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(tokens))
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.Users.Create)
			r.Post("/organization", h.Users.CreateInOrganization)
			r.Get("/validate/{id}", h.Users.Validate)
			r.Get("/{id}", h.Users.Get)
			r.Patch("/{id}/role", h.Users.AssignRole)
		})
	})

	if h.DevOTP != nil {
		r.Get("/dev/otp", h.DevOTP.Get)
	}

	return r
}
