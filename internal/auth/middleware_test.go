package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/ecolearn/ecolearn-api/internal/config"
	"github.com/ecolearn/ecolearn-api/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// echoPrincipal reports the principal the middleware attached, if any.
func echoPrincipal(w http.ResponseWriter, r *http.Request) {
	p, ok := FromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = json.NewEncoder(w).Encode(p)
}

func signedToken(t *testing.T, secret string, userID uint, ttl time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    "student",
		"exp":     time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTMiddleware_SlidingSession(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret"}
	handler := NewAuthHandler(cfg, nil, nil, zap.NewNop())
	middleware := handler.AuthMiddleware(http.HandlerFunc(echoPrincipal))

	t.Run("TokenRenewed", func(t *testing.T) {
		// Expires in 11 hours, under TokenDuration/2.
		tokenString := signedToken(t, cfg.JWTSecret, 1, 11*time.Hour)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: tokenString})
		rr := httptest.NewRecorder()
		middleware.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var renewed *http.Cookie
		for _, c := range rr.Result().Cookies() {
			if c.Name == CookieName {
				renewed = c
			}
		}
		require.NotNil(t, renewed, "expected new auth_token cookie to be set")
		assert.NotEqual(t, tokenString, renewed.Value)
	})

	t.Run("TokenNotRenewed", func(t *testing.T) {
		tokenString := signedToken(t, cfg.JWTSecret, 1, 13*time.Hour)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: tokenString})
		rr := httptest.NewRecorder()
		middleware.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Result().Cookies())
	})

	t.Run("StaleCookieIsAnonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: signedToken(t, cfg.JWTSecret, 1, -time.Hour)})
		rr := httptest.NewRecorder()
		middleware.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("Bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signedToken(t, cfg.JWTSecret, 9, time.Hour))
		rr := httptest.NewRecorder()
		middleware.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var p Principal
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
		assert.Equal(t, uint(9), p.UserID)
	})

	t.Run("BadBearerRejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signedToken(t, "wrong-secret", 9, time.Hour))
		rr := httptest.NewRecorder()
		middleware.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), `"code":"UNAUTHORIZED"`)
	})
}

func TestAuthMiddleware_APIKey(t *testing.T) {
	h, db := newTestHandler(t)
	middleware := h.AuthMiddleware(http.HandlerFunc(echoPrincipal))

	teacher := models.User{Username: "ms-rao", Email: "rao@example.com", Role: models.RoleTeacher}
	require.NoError(t, db.Create(&teacher).Error)

	past := time.Now().Add(-time.Hour)
	live := models.APIKey{UserID: teacher.ID, KeyHash: models.HashAPIKey("kiosk-live"), Name: "Library kiosk"}
	expired := models.APIKey{UserID: teacher.ID, KeyHash: models.HashAPIKey("kiosk-expired"), Name: "Old kiosk", ExpiresAt: &past}
	require.NoError(t, db.Create(&live).Error)
	require.NoError(t, db.Create(&expired).Error)

	call := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-KEY", key)
		rr := httptest.NewRecorder()
		middleware.ServeHTTP(rr, req)
		return rr
	}

	t.Run("Valid", func(t *testing.T) {
		rr := call("kiosk-live")
		require.Equal(t, http.StatusOK, rr.Code)
		var p Principal
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
		assert.Equal(t, teacher.ID, p.UserID)
		assert.Equal(t, models.RoleTeacher, p.Role)

		var touched models.APIKey
		require.NoError(t, db.First(&touched, live.ID).Error)
		assert.NotNil(t, touched.LastUsedAt)
	})

	t.Run("Expired", func(t *testing.T) {
		rr := call("kiosk-expired")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "expired")
	})

	t.Run("Unknown", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, call("nope").Code)
	})
}

func newGuardedAPI(t *testing.T, role models.Role) humatest.TestAPI {
	t.Helper()
	_, api := humatest.New(t)
	if role != "" {
		api.UseMiddleware(func(ctx huma.Context, next func(huma.Context)) {
			next(huma.WithContext(ctx, WithPrincipal(ctx.Context(), Principal{UserID: 3, Role: role})))
		})
	}

	type out struct {
		Body struct {
			UserID uint `json:"userId"`
		}
	}
	handler := func(ctx context.Context, _ *struct{}) (*out, error) {
		p, _ := FromContext(ctx)
		o := &out{}
		o.Body.UserID = p.UserID
		return o, nil
	}
	huma.Register(api, huma.Operation{OperationID: "any", Method: http.MethodGet, Path: "/any", Middlewares: huma.Middlewares{RequireAuth}}, handler)
	huma.Register(api, huma.Operation{OperationID: "staff", Method: http.MethodGet, Path: "/staff", Middlewares: huma.Middlewares{RequireStaff}}, handler)
	huma.Register(api, huma.Operation{OperationID: "admin", Method: http.MethodGet, Path: "/admin", Middlewares: huma.Middlewares{RequireAdmin}}, handler)
	return api
}

func TestRequireMiddlewares(t *testing.T) {
	tests := []struct {
		role              models.Role
		any, staff, admin int
	}{
		{"", http.StatusUnauthorized, http.StatusUnauthorized, http.StatusUnauthorized},
		{models.RoleStudent, http.StatusOK, http.StatusForbidden, http.StatusForbidden},
		{models.RoleTeacher, http.StatusOK, http.StatusOK, http.StatusForbidden},
		{models.RoleNGO, http.StatusOK, http.StatusOK, http.StatusForbidden},
		{models.RoleAdmin, http.StatusOK, http.StatusOK, http.StatusOK},
	}
	for _, tt := range tests {
		name := string(tt.role)
		if name == "" {
			name = "anonymous"
		}
		t.Run(name, func(t *testing.T) {
			api := newGuardedAPI(t, tt.role)
			assert.Equal(t, tt.any, api.Get("/any").Code)
			assert.Equal(t, tt.staff, api.Get("/staff").Code)
			assert.Equal(t, tt.admin, api.Get("/admin").Code)
		})
	}

	resp := newGuardedAPI(t, models.RoleStudent).Get("/staff")
	assert.Contains(t, resp.Body.String(), `"code":"FORBIDDEN"`)
	assert.Contains(t, resp.Body.String(), "staff role required")
}
