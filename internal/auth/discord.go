package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DiscordAuthorizeEndpoint = "https://discord.com/api/oauth2/authorize"
	DiscordTokenEndpoint     = "https://discord.com/api/oauth2/token"
	DiscordUserAPI           = "https://discord.com/api/users/@me"
	DiscordUserGuildsAPI     = "https://discord.com/api/users/@me/guilds"

	stateCookieName = "oauth_state"
)

type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
}

func (h *AuthHandler) HandleDiscordLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauthConfig.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// HandleDiscordCallback links the Discord account to an existing user (by
// Discord id, then by email) or creates a new student, then starts a session.
func (h *AuthHandler) HandleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	state, err := r.Cookie(stateCookieName)
	if err != nil || state.Value == "" || state.Value != r.URL.Query().Get("state") {
		http.Error(w, "Invalid OAuth state", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Code not found", http.StatusBadRequest)
		return
	}

	token, err := h.oauthConfig.Exchange(r.Context(), code)
	if err != nil {
		h.log.Warn("Discord token exchange failed", zap.Error(err))
		http.Error(w, "Failed to exchange token", http.StatusInternalServerError)
		return
	}
	client := h.oauthConfig.Client(r.Context(), token)

	if h.cfg.DiscordGuildID != "" {
		member, err := h.isGuildMember(client)
		if err != nil {
			h.log.Warn("Failed to get user guilds", zap.Error(err))
			http.Error(w, "Failed to get user guilds", http.StatusInternalServerError)
			return
		}
		if !member {
			http.Error(w, "Access denied: You are not a member of the required guild.", http.StatusForbidden)
			return
		}
	}

	var du discordUser
	if err := getJSON(client, h.userAPI, &du); err != nil {
		h.log.Warn("Failed to get Discord user", zap.Error(err))
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}

	user, err := h.linkDiscordUser(r.Context(), du)
	if err != nil {
		h.log.Error("Failed to save Discord user", zap.String("discord_id", du.ID), zap.Error(err))
		http.Error(w, "Failed to save user", http.StatusInternalServerError)
		return
	}

	jwtToken, err := h.GenerateToken(user.ID, user.Role)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	cookie := sessionCookie(jwtToken)
	http.SetCookie(w, &cookie)
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	if h.points != nil {
		if _, err := h.points.RecordLogin(r.Context(), user.ID); err != nil {
			h.log.Warn("Failed to record login streak", zap.Uint("user_id", user.ID), zap.Error(err))
		}
	}

	if h.cfg.FrontendURL != "" {
		http.Redirect(w, r, h.cfg.FrontendURL, http.StatusTemporaryRedirect)
		return
	}
	fmt.Fprintf(w, "Welcome %s! You are logged in.", user.Username)
}

func (h *AuthHandler) isGuildMember(client *http.Client) (bool, error) {
	var guilds []struct {
		ID string `json:"id"`
	}
	if err := getJSON(client, h.guildsAPI, &guilds); err != nil {
		return false, err
	}
	for _, g := range guilds {
		if g.ID == h.cfg.DiscordGuildID {
			return true, nil
		}
	}
	return false, nil
}

func (h *AuthHandler) linkDiscordUser(ctx context.Context, du discordUser) (models.User, error) {
	if du.ID == "" {
		return models.User{}, errors.New("discord user has no id")
	}

	var user models.User
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("discord_id = ?", du.ID).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) && du.Email != "" {
			err = tx.Where("email = ?", du.Email).First(&user).Error
		}
		switch {
		case err == nil:
			user.DiscordID = &du.ID
			if user.Avatar == "" {
				user.Avatar = du.Avatar
			}
			return tx.Save(&user).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			username := du.Username
			var taken int64
			if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&taken).Error; err != nil {
				return err
			}
			if taken > 0 {
				username = fmt.Sprintf("%s-%s", du.Username, du.ID)
			}
			id := du.ID
			user = models.User{
				DiscordID: &id,
				Username:  username,
				Email:     du.Email,
				Avatar:    du.Avatar,
				Role:      models.RoleStudent,
			}
			return tx.Create(&user).Error
		default:
			return err
		}
	})
	return user, err
}

func getJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
