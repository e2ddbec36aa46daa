package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MrEthical07/teamgate"
	"github.com/MrEthical07/teamgate/middleware"
)

// Service is the set of Engine operations the adapter calls.
type Service interface {
	middleware.SessionValidator

	Login(ctx context.Context, email, plainPassword, source string) (string, error)
	VerifyOTP(ctx context.Context, pendingID, code string) (*teamgate.SessionResult, error)
	RequestPasswordReset(ctx context.Context, email, source string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	Register(ctx context.Context, input teamgate.NewAccountInput) (teamgate.Account, error)
	ListAccounts(ctx context.Context) ([]teamgate.Account, error)
	UpdateAccount(ctx context.Context, id string, update teamgate.AccountUpdate) (teamgate.Account, error)
	Logout(ctx context.Context, token string) error
}

// Options configures the router.
type Options struct {
	Logger *slog.Logger
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
	// Ready is consulted by GET /healthz. A nil Ready always reports ok.
	Ready func(ctx context.Context) error
	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable it only behind a proxy that overwrites them.
	TrustProxyHeaders bool
	// RequestTimeout bounds each request. Zero disables the bound.
	RequestTimeout time.Duration
}

// Handler serves the auth routes.
type Handler struct {
	service Service
	logger  *slog.Logger
	ready   func(ctx context.Context) error
}

// NewRouter registers the auth routes and the middleware stack.
func NewRouter(service Service, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		service: service,
		logger:  logger.With("module", "http"),
		ready:   opts.Ready,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(clientAddress)
	r.Use(h.recoverPanics)
	r.Use(h.logRequests)
	if opts.RequestTimeout > 0 {
		r.Use(chimw.Timeout(opts.RequestTimeout))
	}

	r.Get("/healthz", h.healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/verify-otp", h.verifyOTP)
		r.Post("/request-password-reset", h.requestPasswordReset)
		r.Post("/reset-password", h.resetPassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(service))
			r.Post("/logout", h.logout)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(teamgate.RoleAdministrator))
				r.Post("/register", h.register)
				r.Get("/users", h.listUsers)
				r.Put("/users/{userId}", h.updateUser)
			})
		})
	})

	return r
}
