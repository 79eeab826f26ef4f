package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID uint
	Role   models.Role
}

func (p Principal) IsStaff() bool { return p.Role.IsStaff() }

func (p Principal) IsAdmin() bool { return p.Role == models.RoleAdmin }

type contextKey string

const principalKey contextKey = "principal"

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// AuthMiddleware resolves the caller from, in order, the X-API-KEY header, a
// bearer token or the session cookie. Requests without credentials continue
// anonymously; operations that need a caller enforce it with RequireAuth.
func (h *AuthHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey := r.Header.Get("X-API-KEY"); apiKey != "" {
			p, err := h.principalFromAPIKey(r.Context(), apiKey)
			if err != nil {
				writeHTTPError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
			return
		}

		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			p, _, err := h.ParseToken(strings.TrimSpace(bearer))
			if err != nil {
				writeHTTPError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
			return
		}

		cookie, err := r.Cookie(CookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		p, exp, err := h.ParseToken(cookie.Value)
		if err != nil {
			// A stale cookie must not break public pages.
			next.ServeHTTP(w, r)
			return
		}

		// Sliding session: refresh token if it's more than halfway through its duration
		if time.Until(exp) < TokenDuration/2 {
			if newToken, err := h.GenerateToken(p.UserID, p.Role); err == nil {
				c := sessionCookie(newToken)
				http.SetCookie(w, &c)
			}
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (h *AuthHandler) principalFromAPIKey(ctx context.Context, key string) (Principal, error) {
	var keyModel models.APIKey
	err := h.db.WithContext(ctx).Preload("User").Where("key_hash = ?", models.HashAPIKey(key)).First(&keyModel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Principal{}, apperr.Unauthorized("invalid API key")
		}
		return Principal{}, apperr.Internal("failed to load API key", err)
	}
	if keyModel.Expired(time.Now()) {
		return Principal{}, apperr.Unauthorized("API key expired")
	}
	if keyModel.User.ID == 0 {
		return Principal{}, apperr.Unauthorized("API key owner no longer exists")
	}

	if err := h.db.WithContext(ctx).Model(&keyModel).Update("last_used_at", time.Now().UTC()).Error; err != nil {
		h.log.Warn("Failed to touch API key", zap.Uint("key_id", keyModel.ID), zap.Error(err))
	}
	return Principal{UserID: keyModel.UserID, Role: keyModel.User.Role}, nil
}

// RequireAuth is a huma operation middleware rejecting anonymous callers.
func RequireAuth(ctx huma.Context, next func(huma.Context)) {
	requireRole(ctx, next, func(Principal) bool { return true }, "")
}

// RequireStaff admits teachers, NGO coordinators and admins.
func RequireStaff(ctx huma.Context, next func(huma.Context)) {
	requireRole(ctx, next, Principal.IsStaff, "staff role required")
}

func RequireAdmin(ctx huma.Context, next func(huma.Context)) {
	requireRole(ctx, next, Principal.IsAdmin, "admin role required")
}

func requireRole(ctx huma.Context, next func(huma.Context), allowed func(Principal) bool, denied string) {
	p, ok := FromContext(ctx.Context())
	if !ok {
		writeHumaError(ctx, apperr.Unauthorized("authentication required"))
		return
	}
	if !allowed(p) {
		writeHumaError(ctx, apperr.Forbidden(denied))
		return
	}
	next(ctx)
}

func writeHumaError(ctx huma.Context, e *apperr.AppError) {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.SetStatus(e.Status)
	_ = json.NewEncoder(ctx.BodyWriter()).Encode(e)
}

func writeHTTPError(w http.ResponseWriter, err error) {
	e := apperr.From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e)
}
