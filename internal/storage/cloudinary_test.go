package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpload struct {
	params uploader.UploadParams
	file   interface{}
}

func (f *fakeUpload) Upload(_ context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	f.file, f.params = file, params
	return &uploader.UploadResult{SecureURL: "https://res.cloudinary.com/demo/image/upload/" + params.PublicID + ".jpg"}, nil
}

func TestNewCloudinaryUploader_RequiresConfig(t *testing.T) {
	_, err := NewCloudinaryUploader(&config.Config{CloudinaryCloudName: "demo"})
	assert.Error(t, err)
}

func TestUploadEvidence(t *testing.T) {
	fake := &fakeUpload{}
	u := &CloudinaryUploader{upload: fake}

	url, err := u.UploadEvidence(context.Background(), 7, "fix-leaking-tap", "data:image/png;base64,iVBORw0KGgo=")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://res.cloudinary.com/demo/image/upload/7/fix-leaking-tap-"))
	assert.Equal(t, evidenceFolder, fake.params.Folder)
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo=", fake.file)
}

func TestUploadEvidence_RejectsNonImages(t *testing.T) {
	u := &CloudinaryUploader{upload: &fakeUpload{}}

	_, err := u.UploadEvidence(context.Background(), 7, "x", "https://example.com/a.png")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = u.UploadEvidence(context.Background(), 7, "x", "data:text/plain;base64,aGk=")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}
