// Package storage hosts photo evidence on Cloudinary.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/config"
	"github.com/google/uuid"
)

const evidenceFolder = "ecolearn/evidence"

// maxDataURLBytes bounds inline uploads to roughly 7.5 MB of image data.
const maxDataURLBytes = 10 << 20

type imageUploader interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

type CloudinaryUploader struct {
	upload imageUploader
}

// NewCloudinaryUploader returns an error when the credentials are not configured.
func NewCloudinaryUploader(cfg *config.Config) (*CloudinaryUploader, error) {
	if cfg.CloudinaryCloudName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "" {
		return nil, fmt.Errorf("cloudinary configuration is missing")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}
	return &CloudinaryUploader{upload: &cld.Upload}, nil
}

// UploadEvidence stores an inline image data URL and returns its secure URL.
func (u *CloudinaryUploader) UploadEvidence(ctx context.Context, userID uint, taskSlug, dataURL string) (string, error) {
	if err := checkDataURL(dataURL); err != nil {
		return "", err
	}

	overwrite := false
	res, err := u.upload.Upload(ctx, dataURL, uploader.UploadParams{
		PublicID:       fmt.Sprintf("%d/%s-%s", userID, taskSlug, uuid.NewString()),
		Folder:         evidenceFolder,
		Overwrite:      &overwrite,
		ResourceType:   "image",
		Transformation: "c_limit,h_1600,w_1600",
		Tags:           []string{"evidence", taskSlug},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload evidence: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("failed to upload evidence: %s", res.Error.Message)
	}
	return res.SecureURL, nil
}

func checkDataURL(dataURL string) error {
	if !strings.HasPrefix(dataURL, "data:image/") || !strings.Contains(dataURL, ";base64,") {
		return apperr.Validation("photo must be a base64 image data URL", "")
	}
	if len(dataURL) > maxDataURLBytes {
		return apperr.Validation("photo is too large", fmt.Sprintf("%d bytes", len(dataURL)))
	}
	return nil
}
