package auth

import (
	"context"
	"testing"

	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/config"
	"github.com/ecolearn/ecolearn-api/internal/database"
	"github.com/ecolearn/ecolearn-api/internal/models"
	"github.com/ecolearn/ecolearn-api/internal/points"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newTestHandler(t *testing.T) (*AuthHandler, *gorm.DB) {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{JWTSecret: "test-secret"}
	h := NewAuthHandler(cfg, db, points.NewService(db, zap.NewNop()), zap.NewNop())
	h.bcryptCost = bcrypt.MinCost
	return h, db
}

func registerInput(username, email, password string, role models.Role) *RegisterInput {
	in := &RegisterInput{}
	in.Body.Username = username
	in.Body.Email = email
	in.Body.Password = password
	in.Body.Role = role
	in.Body.School = "Green Valley"
	in.Body.Class = "7B"
	return in
}

func TestHandleRegister(t *testing.T) {
	h, db := newTestHandler(t)

	out, err := h.HandleRegister(context.Background(), registerInput("asha", "Asha@Example.com", "planet-first", ""))
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, out.Body.User.Role)
	assert.Equal(t, "asha@example.com", out.Body.User.Email)
	assert.Equal(t, 1, out.Body.User.Level)
	assert.Equal(t, CookieName, out.SetCookie.Name)
	assert.Equal(t, out.Body.Token, out.SetCookie.Value)
	assert.True(t, out.SetCookie.HttpOnly)

	p, _, err := h.ParseToken(out.Body.Token)
	require.NoError(t, err)
	assert.Equal(t, out.Body.User.ID, p.UserID)
	assert.Equal(t, models.RoleStudent, p.Role)

	var stored models.User
	require.NoError(t, db.First(&stored, out.Body.User.ID).Error)
	assert.NotEqual(t, "planet-first", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("planet-first")))

	t.Run("Duplicate", func(t *testing.T) {
		_, err := h.HandleRegister(context.Background(), registerInput("asha", "other@example.com", "planet-first", ""))
		assert.True(t, apperr.Is(err, apperr.CodeConflict))
	})

	t.Run("AdminRefused", func(t *testing.T) {
		_, err := h.HandleRegister(context.Background(), registerInput("root", "root@example.com", "planet-first", models.RoleAdmin))
		assert.True(t, apperr.Is(err, apperr.CodeForbidden))
	})

	t.Run("Teacher", func(t *testing.T) {
		out, err := h.HandleRegister(context.Background(), registerInput("ms-rao", "rao@example.com", "planet-first", models.RoleTeacher))
		require.NoError(t, err)
		assert.Equal(t, models.RoleTeacher, out.Body.User.Role)
	})
}

func TestHandleLogin(t *testing.T) {
	h, _ := newTestHandler(t)
	_, err := h.HandleRegister(context.Background(), registerInput("asha", "asha@example.com", "planet-first", ""))
	require.NoError(t, err)

	login := func(email, password string) (*SessionOutput, error) {
		in := &LoginInput{}
		in.Body.Email = email
		in.Body.Password = password
		return h.HandleLogin(context.Background(), in)
	}

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := login("asha@example.com", "wrong-password")
		assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		_, err := login("nobody@example.com", "planet-first")
		assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
	})

	t.Run("Success", func(t *testing.T) {
		out, err := login(" ASHA@example.com ", "planet-first")
		require.NoError(t, err)
		assert.Equal(t, "asha", out.Body.User.Username)
		assert.Equal(t, 1, out.Body.User.Streak)
		assert.NotEmpty(t, out.Body.Token)
	})

	t.Run("DiscordOnlyAccount", func(t *testing.T) {
		id := "998877"
		_, err := h.linkDiscordUser(context.Background(), discordUser{ID: id, Username: "ravi", Email: "ravi@example.com"})
		require.NoError(t, err)
		_, err = login("ravi@example.com", "")
		assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
	})
}

func TestHandleMe(t *testing.T) {
	h, db := newTestHandler(t)

	user := models.User{Username: "testuser", Email: "test@example.com", Avatar: "avatar_url", Role: models.RoleStudent, TotalPoints: 350}
	require.NoError(t, db.Create(&user).Error)

	t.Run("Authenticated", func(t *testing.T) {
		ctx := WithPrincipal(context.Background(), Principal{UserID: user.ID, Role: user.Role})
		resp, err := h.HandleMe(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, user.Username, resp.Body.Username)
		assert.Equal(t, user.Email, resp.Body.Email)
		assert.Equal(t, 3, resp.Body.Level)
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		_, err := h.HandleMe(context.Background(), nil)
		assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
	})

	t.Run("DeletedUser", func(t *testing.T) {
		ctx := WithPrincipal(context.Background(), Principal{UserID: 4242})
		_, err := h.HandleMe(ctx, nil)
		assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	})
}

func TestParseToken(t *testing.T) {
	h, _ := newTestHandler(t)

	token, err := h.GenerateToken(7, models.RoleTeacher)
	require.NoError(t, err)
	p, _, err := h.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: 7, Role: models.RoleTeacher}, p)
	assert.True(t, p.IsStaff())
	assert.False(t, p.IsAdmin())

	other := NewAuthHandler(&config.Config{JWTSecret: "another-secret"}, nil, nil, zap.NewNop())
	_, _, err = other.ParseToken(token)
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	_, _, err = h.ParseToken("not-a-token")
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
}
