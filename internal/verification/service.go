// Package verification issues signed task QR codes and checks scans against them.
package verification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/metrics"
	"github.com/ecolearn/ecolearn-api/internal/models"
	"github.com/ecolearn/ecolearn-api/internal/points"
	"github.com/ecolearn/ecolearn-api/internal/scoring"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const qrImageSize = 256

type Options struct {
	Secret          string
	MaxDistanceKM   float64
	RequireLocation bool
	DefaultTTL      time.Duration
}

type Service struct {
	db     *gorm.DB
	points *points.Service
	log    *zap.Logger
	opts   Options
	now    func() time.Time
}

func NewService(db *gorm.DB, pts *points.Service, log *zap.Logger, opts Options) *Service {
	if opts.MaxDistanceKM <= 0 {
		opts.MaxDistanceKM = 0.1
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 24 * time.Hour
	}
	return &Service{db: db, points: pts, log: log, opts: opts, now: time.Now}
}

type GenerateRequest struct {
	TaskSlug   string
	Location   *Location
	ValidUntil *time.Time
}

type GenerateResult struct {
	QRCode    string    `json:"qrCode"`
	QRData    string    `json:"qrData"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Generate signs a payload for a qr-code task and renders it. Without an explicit
// location the task's own coordinates are used.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	var task models.EcoTask
	if err := s.db.WithContext(ctx).Where("slug = ?", req.TaskSlug).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("task")
		}
		return nil, fmt.Errorf("load task: %w", err)
	}
	if task.VerificationMethod != models.VerifyQRCode {
		return nil, apperr.Validation("task is not verified by QR code", task.Slug)
	}

	now := s.now()
	expires := now.Add(s.opts.DefaultTTL)
	if req.ValidUntil != nil {
		expires = *req.ValidUntil
	}

	loc := req.Location
	if loc == nil && task.Latitude != nil && task.Longitude != nil {
		loc = &Location{Latitude: *task.Latitude, Longitude: *task.Longitude}
	}

	payload := newPayload([]byte(s.opts.Secret), task.Slug, loc, expires.UnixMilli())
	data, err := payload.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode qr payload: %w", err)
	}
	img, err := RenderPNG(data, qrImageSize)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&task).Update("qr_payload", data).Error; err != nil {
		return nil, fmt.Errorf("store qr payload: %w", err)
	}

	s.log.Info("QR code generated",
		zap.String("task", task.Slug),
		zap.Time("expires_at", expires),
		zap.Bool("located", loc != nil),
	)

	return &GenerateResult{
		QRCode:    img,
		QRData:    data,
		ExpiresAt: time.UnixMilli(payload.ValidUntil).UTC(),
	}, nil
}

type VerifyRequest struct {
	UserID   uint
	QRData   string
	Location *Location
}

type VerifyResult struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	PointsAwarded int             `json:"pointsAwarded"`
	TaskTitle     string          `json:"taskTitle"`
	TotalPoints   int             `json:"totalPoints"`
	Level         int             `json:"currentLevel"`
	NewBadges     []scoring.Badge `json:"newBadges"`
}

// Verify runs one scan attempt through the expiry, integrity, location and
// duplicate checks in that order. Only a fully verified scan changes state.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	res, err := s.verify(ctx, req)
	metrics.QRVerificationsTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		s.log.Info("QR scan rejected", zap.Uint("user_id", req.UserID), zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (s *Service) verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	payload, err := DecodePayload(req.QRData)
	if err != nil {
		return nil, apperr.HashMismatch("QR code is not a valid EcoLearn code")
	}

	if s.now().UnixMilli() > payload.ValidUntil {
		return nil, apperr.Expired("QR code has expired")
	}

	if !payload.validHash([]byte(s.opts.Secret)) {
		return nil, apperr.HashMismatch("QR code failed integrity check")
	}

	var task models.EcoTask
	if err := s.db.WithContext(ctx).Where("slug = ?", payload.TaskID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.HashMismatch("QR code refers to an unknown task")
		}
		return nil, fmt.Errorf("load task: %w", err)
	}

	if err := s.checkLocation(payload.Location, req.Location); err != nil {
		return nil, err
	}

	ev := models.Evidence{
		Type: models.EvidenceQRScan,
		QR:   &models.QRScanData{Payload: req.QRData},
	}
	if req.Location != nil {
		ev.QR.Latitude = &req.Location.Latitude
		ev.QR.Longitude = &req.Location.Longitude
	}

	award, err := s.points.Award(ctx, points.AwardRequest{
		UserID:   req.UserID,
		TaskSlug: task.Slug,
		Points:   task.Points,
		Evidence: ev,
	})
	if err != nil {
		var ae *apperr.AppError
		if errors.As(err, &ae) && ae.Code == apperr.CodeAlreadyCompleted {
			return nil, ae.WithStatus(http.StatusBadRequest)
		}
		return nil, err
	}

	return &VerifyResult{
		Success:       true,
		Message:       fmt.Sprintf("Task %q verified. You earned %d points!", task.Title, award.PointsAwarded),
		PointsAwarded: award.PointsAwarded,
		TaskTitle:     task.Title,
		TotalPoints:   award.TotalPoints,
		Level:         award.Level,
		NewBadges:     award.NewBadges,
	}, nil
}

func (s *Service) checkLocation(expected, actual *Location) error {
	if expected == nil || actual == nil {
		if s.opts.RequireLocation {
			return apperr.LocationMismatch("location is required to verify this task")
		}
		return nil
	}
	if d := DistanceKM(*expected, *actual); d > s.opts.MaxDistanceKM {
		return apperr.LocationMismatch(fmt.Sprintf("you are %.2f km from the task location", d))
	}
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "verified"
	}
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		switch ae.Code {
		case apperr.CodeExpired:
			return "expired"
		case apperr.CodeHashMismatch:
			return "invalid"
		case apperr.CodeLocationMismatch:
			return "location_mismatch"
		case apperr.CodeAlreadyCompleted:
			return "already_completed"
		}
	}
	return "error"
}
