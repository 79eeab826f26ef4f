package handlers

import (
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/ecolearn/ecolearn-api/internal/auth"
	"github.com/ecolearn/ecolearn-api/internal/logging"
	"github.com/ecolearn/ecolearn-api/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth         *auth.AuthHandler
	Points       *PointsHandler
	Verification *VerificationHandler
	Completions  *CompletionHandler
	Leaderboard  *LeaderboardHandler
	Tasks        *TaskHandler
	APIKeys      *APIKeyHandler
	// Live serves the leaderboard websocket; optional.
	Live http.Handler
}

var security = []map[string][]string{{"cookieAuth": {}}, {"bearerAuth": {}}, {"apiKeyAuth": {}}}

func guarded(tag string, mw func(huma.Context, func(huma.Context))) func(o *huma.Operation) {
	return func(o *huma.Operation) {
		o.Tags = []string{tag}
		o.Security = security
		o.Middlewares = append(o.Middlewares, mw)
	}
}

func tagged(tag string) func(o *huma.Operation) {
	return func(o *huma.Operation) {
		o.Tags = []string{tag}
	}
}

func NewAPIConfig() huma.Config {
	config := huma.DefaultConfig("EcoLearn API", "1.0.0")
	config.Info.Description = "Points, badges and leaderboards for environmental learning tasks."
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"cookieAuth": {
			Type: "apiKey",
			In:   "cookie",
			Name: auth.CookieName,
		},
		"bearerAuth": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
		"apiKeyAuth": {
			Type: "apiKey",
			In:   "header",
			Name: "X-API-KEY",
		},
	}
	return config
}

func RegisterRoutes(r *chi.Mux, h Handlers, log *zap.Logger, requestTimeout time.Duration) huma.API {
	huma.NewError = newError

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(h.Auth.AuthMiddleware)

	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	api := humachi.New(r.With(middleware.Timeout(requestTimeout)), NewAPIConfig())

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())
	if h.Live != nil {
		r.Handle("/ws/leaderboard", h.Live)
	}

	// Auth routes
	r.Get("/auth/discord/login", h.Auth.HandleDiscordLogin)
	r.Get("/auth/discord/callback", h.Auth.HandleDiscordCallback)
	huma.Post(api, "/api/auth/register", h.Auth.HandleRegister, tagged("auth"))
	huma.Post(api, "/api/auth/login", h.Auth.HandleLogin, tagged("auth"))
	huma.Get(api, "/api/auth/me", h.Auth.HandleMe, guarded("auth", auth.RequireAuth))

	// Points
	huma.Post(api, "/api/points/award", h.Points.HandleAward, guarded("points", auth.RequireAuth))
	huma.Get(api, "/api/points/stats/{userId}", h.Points.HandleStats, tagged("points"))
	huma.Post(api, "/api/points/reset/{userId}", h.Points.HandleReset, guarded("points", auth.RequireAdmin))

	// Verification
	huma.Post(api, "/api/verification/generate-qr", h.Verification.HandleGenerate, guarded("verification", auth.RequireStaff))
	huma.Post(api, "/api/verification/verify-qr", h.Verification.HandleVerify, guarded("verification", auth.RequireAuth))

	// Completions
	huma.Post(api, "/api/completions", h.Completions.HandleSubmit, guarded("completions", auth.RequireAuth))
	huma.Get(api, "/api/completions/pending", h.Completions.HandlePending, guarded("completions", auth.RequireStaff))
	huma.Post(api, "/api/completions/{id}/verify", h.Completions.HandleVerify, guarded("completions", auth.RequireStaff))
	huma.Post(api, "/api/completions/{id}/reject", h.Completions.HandleReject, guarded("completions", auth.RequireStaff))

	// Leaderboards
	huma.Get(api, "/api/leaderboard/position/{userId}", h.Leaderboard.HandlePosition, tagged("leaderboard"))
	huma.Get(api, "/api/leaderboard/analytics/{scope}", h.Leaderboard.HandleAnalytics, guarded("leaderboard", auth.RequireStaff))
	huma.Get(api, "/api/leaderboard/{period}/{category}", h.Leaderboard.HandleLeaderboard, tagged("leaderboard"))
	huma.Get(api, "/api/leaderboard/{period}", h.Leaderboard.HandlePeriodLeaderboard, tagged("leaderboard"))

	// Tasks
	huma.Get(api, "/api/tasks", h.Tasks.HandleList, tagged("tasks"))
	huma.Get(api, "/api/tasks/{slug}", h.Tasks.HandleGet, tagged("tasks"))
	huma.Post(api, "/api/tasks", h.Tasks.HandleCreate, guarded("tasks", auth.RequireStaff))

	// Device keys
	huma.Post(api, "/api/keys", h.APIKeys.HandleCreate, guarded("keys", auth.RequireStaff))
	huma.Get(api, "/api/keys", h.APIKeys.HandleList, guarded("keys", auth.RequireStaff))
	huma.Delete(api, "/api/keys/{id}", h.APIKeys.HandleDelete, guarded("keys", auth.RequireStaff))

	return api
}
