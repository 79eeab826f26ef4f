package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/config"
	"github.com/ecolearn/ecolearn-api/internal/models"
	"github.com/ecolearn/ecolearn-api/internal/points"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	CookieName    = "auth_token"
	TokenDuration = 24 * time.Hour
)

type AuthHandler struct {
	oauthConfig *oauth2.Config
	db          *gorm.DB
	cfg         *config.Config
	points      *points.Service
	log         *zap.Logger

	userAPI    string
	guildsAPI  string
	bcryptCost int
}

// NewAuthHandler wires sessions and Discord login. pts may be nil, in which
// case logins do not touch streaks.
func NewAuthHandler(cfg *config.Config, db *gorm.DB, pts *points.Service, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURL,
			Scopes:       []string{"identify", "email", "guilds"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  DiscordAuthorizeEndpoint,
				TokenURL: DiscordTokenEndpoint,
			},
		},
		db:         db,
		cfg:        cfg,
		points:     pts,
		log:        log,
		userAPI:    DiscordUserAPI,
		guildsAPI:  DiscordUserGuildsAPI,
		bcryptCost: bcrypt.DefaultCost,
	}
}

func (h *AuthHandler) GenerateToken(userID uint, role models.Role) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"exp":     time.Now().Add(TokenDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

// ParseToken validates a session token and returns its principal and expiry.
func (h *AuthHandler) ParseToken(tokenString string) (Principal, time.Time, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(h.cfg.JWTSecret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return Principal{}, time.Time{}, apperr.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, time.Time{}, apperr.Unauthorized("invalid token claims")
	}
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok || userIDFloat <= 0 {
		return Principal{}, time.Time{}, apperr.Unauthorized("invalid token claims")
	}
	role, _ := claims["role"].(string)

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Principal{}, time.Time{}, apperr.Unauthorized("invalid token claims")
	}

	return Principal{UserID: uint(userIDFloat), Role: models.Role(role)}, exp.Time, nil
}

func sessionCookie(token string) http.Cookie {
	return http.Cookie{
		Name:     CookieName,
		Value:    token,
		Expires:  time.Now().Add(TokenDuration),
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
}

type UserView struct {
	ID          uint        `json:"id"`
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	Role        models.Role `json:"role"`
	School      string      `json:"school,omitempty"`
	Class       string      `json:"class,omitempty"`
	Avatar      string      `json:"avatar,omitempty"`
	EcoPoints   int         `json:"ecoPoints"`
	TotalPoints int         `json:"totalPoints"`
	Level       int         `json:"level"`
	Streak      int         `json:"streak"`
}

func NewUserView(u models.User) UserView {
	return UserView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		School:      u.School,
		Class:       u.Class,
		Avatar:      u.Avatar,
		EcoPoints:   u.EcoPoints,
		TotalPoints: u.TotalPoints,
		Level:       u.Level(),
		Streak:      u.Streak,
	}
}

type RegisterInput struct {
	Body struct {
		Username string      `json:"username" minLength:"3" maxLength:"32" doc:"Public display name"`
		Email    string      `json:"email" format:"email"`
		Password string      `json:"password" minLength:"8" maxLength:"72"`
		Role     models.Role `json:"role,omitempty" enum:"student,teacher,ngo" doc:"Defaults to student"`
		School   string      `json:"school,omitempty"`
		Class    string      `json:"class,omitempty"`
		Avatar   string      `json:"avatar,omitempty"`
	}
}

type SessionOutput struct {
	SetCookie http.Cookie `header:"Set-Cookie"`
	Body      struct {
		Token string   `json:"token"`
		User  UserView `json:"user"`
	}
}

func (h *AuthHandler) session(user models.User) (*SessionOutput, error) {
	token, err := h.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, apperr.Internal("failed to generate token", err)
	}
	out := &SessionOutput{SetCookie: sessionCookie(token)}
	out.Body.Token = token
	out.Body.User = NewUserView(user)
	return out, nil
}

func (h *AuthHandler) HandleRegister(ctx context.Context, input *RegisterInput) (*SessionOutput, error) {
	body := input.Body
	role := body.Role
	if role == "" {
		role = models.RoleStudent
	}
	if role == models.RoleAdmin {
		return nil, apperr.Forbidden("admin accounts cannot self-register")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), h.bcryptCost)
	if err != nil {
		return nil, apperr.Internal("failed to hash password", err)
	}

	user := models.User{
		Username:     strings.TrimSpace(body.Username),
		Email:        strings.ToLower(strings.TrimSpace(body.Email)),
		PasswordHash: string(hash),
		Role:         role,
		School:       strings.TrimSpace(body.School),
		Class:        strings.TrimSpace(body.Class),
		Avatar:       body.Avatar,
	}
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("username or email already registered")
		}
		return nil, apperr.Internal("failed to create user", err)
	}

	h.log.Info("User registered", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	return h.session(user)
}

type LoginInput struct {
	Body struct {
		Email    string `json:"email" format:"email"`
		Password string `json:"password"`
	}
}

// HandleLogin checks credentials and counts the login as a day of activity.
func (h *AuthHandler) HandleLogin(ctx context.Context, input *LoginInput) (*SessionOutput, error) {
	var user models.User
	err := h.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(input.Body.Email))).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("invalid email or password")
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Body.Password)) != nil {
		return nil, apperr.Unauthorized("invalid email or password")
	}

	if h.points != nil {
		streak, err := h.points.RecordLogin(ctx, user.ID)
		if err != nil {
			h.log.Warn("Failed to record login streak", zap.Uint("user_id", user.ID), zap.Error(err))
		} else {
			user.Streak = streak
		}
	}

	return h.session(user)
}

type MeOutput struct {
	Body UserView
}

func (h *AuthHandler) HandleMe(ctx context.Context, _ *struct{}) (*MeOutput, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}

	var user models.User
	if err := h.db.WithContext(ctx).First(&user, p.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	return &MeOutput{Body: NewUserView(user)}, nil
}
