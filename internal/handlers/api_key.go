package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/auth"
	"github.com/ecolearn/ecolearn-api/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIKeyHandler issues device keys for classroom QR kiosks. The plaintext key
// is returned once at creation.
type APIKeyHandler struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewAPIKeyHandler(db *gorm.DB, log *zap.Logger) *APIKeyHandler {
	return &APIKeyHandler{db: db, log: log}
}

type DeviceKeyView struct {
	ID         uint       `json:"id"`
	Name       string     `json:"name"`
	Key        string     `json:"key" doc:"Full key on creation, masked afterwards"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
	Expired    bool       `json:"expired"`
}

func newDeviceKeyView(k models.APIKey, key string, now time.Time) DeviceKeyView {
	if key == "" {
		key = "..." + k.Hint
	}
	return DeviceKeyView{
		ID:         k.ID,
		Name:       k.Name,
		Key:        key,
		CreatedAt:  k.CreatedAt,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
		Expired:    k.Expired(now),
	}
}

type CreateDeviceKeyInput struct {
	Body struct {
		Name       string `json:"name" minLength:"1" maxLength:"64" doc:"Where the kiosk lives"`
		ValidHours int    `json:"validHours,omitempty" minimum:"0" maximum:"8760" doc:"Zero means the key never expires"`
	}
}

type DeviceKeyOutput struct {
	Body DeviceKeyView
}

func (h *APIKeyHandler) HandleCreate(ctx context.Context, input *CreateDeviceKeyInput) (*DeviceKeyOutput, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, apperr.Internal("failed to generate key", err)
	}
	key := hex.EncodeToString(raw)

	now := time.Now().UTC()
	k := models.APIKey{
		UserID:  p.UserID,
		Name:    input.Body.Name,
		KeyHash: models.HashAPIKey(key),
		Hint:    key[len(key)-4:],
	}
	if input.Body.ValidHours > 0 {
		exp := now.Add(time.Duration(input.Body.ValidHours) * time.Hour)
		k.ExpiresAt = &exp
	}

	if err := h.db.WithContext(ctx).Create(&k).Error; err != nil {
		return nil, apperr.Internal("failed to create device key", err)
	}
	h.log.Info("Device key issued", zap.Uint("user_id", p.UserID), zap.Uint("key_id", k.ID), zap.String("name", k.Name))

	return &DeviceKeyOutput{Body: newDeviceKeyView(k, key, now)}, nil
}

type ListDeviceKeysOutput struct {
	Body struct {
		Success bool            `json:"success"`
		Keys    []DeviceKeyView `json:"keys"`
	}
}

func (h *APIKeyHandler) HandleList(ctx context.Context, _ *struct{}) (*ListDeviceKeysOutput, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}

	var keys []models.APIKey
	if err := h.db.WithContext(ctx).Where("user_id = ?", p.UserID).Order("created_at desc, id desc").Find(&keys).Error; err != nil {
		return nil, apperr.Internal("failed to list device keys", err)
	}

	now := time.Now()
	out := &ListDeviceKeysOutput{}
	out.Body.Success = true
	out.Body.Keys = make([]DeviceKeyView, 0, len(keys))
	for _, k := range keys {
		out.Body.Keys = append(out.Body.Keys, newDeviceKeyView(k, "", now))
	}
	return out, nil
}

type DeviceKeyIDInput struct {
	ID uint `path:"id"`
}

// HandleDelete revokes one of the caller's keys. Admins may revoke any key.
func (h *APIKeyHandler) HandleDelete(ctx context.Context, input *DeviceKeyIDInput) (*struct{}, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}

	q := h.db.WithContext(ctx).Where("id = ?", input.ID)
	if !p.IsAdmin() {
		q = q.Where("user_id = ?", p.UserID)
	}
	res := q.Delete(&models.APIKey{})
	if res.Error != nil {
		return nil, apperr.Internal("failed to revoke device key", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("device key")
	}

	h.log.Info("Device key revoked", zap.Uint("user_id", p.UserID), zap.Uint("key_id", input.ID))
	return nil, nil
}
