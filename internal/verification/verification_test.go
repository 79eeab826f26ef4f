package verification

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/apperr"
	"github.com/ecolearn/ecolearn-api/internal/database"
	"github.com/ecolearn/ecolearn-api/internal/models"
	"github.com/ecolearn/ecolearn-api/internal/points"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "test-qr-secret"

type fixture struct {
	db   *gorm.DB
	svc  *Service
	user models.User
	task models.EcoTask
}

func setup(t *testing.T, opts Options) fixture {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	lat, lng := 12.9716, 77.5946
	task := models.EcoTask{
		Slug:               "plant-a-sapling",
		Title:              "Plant a sapling",
		Category:           models.CategoryTreePlanting,
		Points:             50,
		VerificationMethod: models.VerifyQRCode,
		Latitude:           &lat,
		Longitude:          &lng,
		Active:             true,
	}
	require.NoError(t, db.Create(&task).Error)

	user := models.User{Username: "asha", Email: "asha@example.com", Role: models.RoleStudent}
	require.NoError(t, db.Create(&user).Error)

	if opts.Secret == "" {
		opts.Secret = testSecret
	}
	pts := points.NewService(db, zap.NewNop())
	return fixture{db: db, svc: NewService(db, pts, zap.NewNop(), opts), user: user, task: task}
}

func (f fixture) totalPoints(t *testing.T) int {
	t.Helper()
	var u models.User
	require.NoError(t, f.db.First(&u, f.user.ID).Error)
	return u.TotalPoints
}

func (f fixture) completions(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.TaskCompletion{}).Count(&n).Error)
	return n
}

func at(lat, lng float64) *Location {
	return &Location{Latitude: lat, Longitude: lng}
}

func TestDistanceKM(t *testing.T) {
	assert.InDelta(t, 0, DistanceKM(Location{10, 10}, Location{10, 10}), 1e-9)
	// Bengaluru to Chennai is roughly 290 km.
	assert.InDelta(t, 290, DistanceKM(Location{12.9716, 77.5946}, Location{13.0827, 80.2707}), 5)
	// 0.001 degree of latitude is about 111 m.
	assert.InDelta(t, 0.111, DistanceKM(Location{0, 0}, Location{0.001, 0}), 0.001)
}

func TestSign_BindsAllFields(t *testing.T) {
	base := sign([]byte(testSecret), "a", at(1, 2), 100)
	assert.Equal(t, base, sign([]byte(testSecret), "a", at(1, 2), 100))
	assert.NotEqual(t, base, sign([]byte(testSecret), "b", at(1, 2), 100))
	assert.NotEqual(t, base, sign([]byte(testSecret), "a", at(1, 3), 100))
	assert.NotEqual(t, base, sign([]byte(testSecret), "a", at(1, 2), 101))
	assert.NotEqual(t, base, sign([]byte("other"), "a", at(1, 2), 100))
	assert.NotEqual(t, base, sign([]byte(testSecret), "a", nil, 100))
}

func TestGenerate(t *testing.T) {
	f := setup(t, Options{})

	res, err := f.svc.Generate(context.Background(), GenerateRequest{TaskSlug: f.task.Slug})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.QRCode, "data:image/png;base64,"))
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), res.ExpiresAt, time.Minute)

	var p Payload
	require.NoError(t, json.Unmarshal([]byte(res.QRData), &p))
	assert.Equal(t, f.task.Slug, p.TaskID)
	require.NotNil(t, p.Location)
	assert.Equal(t, *f.task.Latitude, p.Location.Latitude)
	assert.NotEmpty(t, p.Nonce)
	assert.True(t, p.validHash([]byte(testSecret)))

	var stored models.EcoTask
	require.NoError(t, f.db.First(&stored, f.task.ID).Error)
	assert.Equal(t, res.QRData, stored.QRPayload)

	_, err = f.svc.Generate(context.Background(), GenerateRequest{TaskSlug: "nope"})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestVerify_Success(t *testing.T) {
	f := setup(t, Options{})
	gen, err := f.svc.Generate(context.Background(), GenerateRequest{TaskSlug: f.task.Slug})
	require.NoError(t, err)

	res, err := f.svc.Verify(context.Background(), VerifyRequest{UserID: f.user.ID, QRData: gen.QRData, Location: at(12.9720, 77.5950)})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 50, res.PointsAwarded)
	assert.Equal(t, "Plant a sapling", res.TaskTitle)
	assert.Equal(t, 50, f.totalPoints(t))

	var c models.TaskCompletion
	require.NoError(t, f.db.First(&c).Error)
	assert.Equal(t, models.EvidenceQRScan, c.Evidence.Data().Type)

	// Replaying the same code is rejected without touching the totals.
	_, err = f.svc.Verify(context.Background(), VerifyRequest{UserID: f.user.ID, QRData: gen.QRData})
	require.Error(t, err)
	ae := apperr.From(err)
	assert.Equal(t, apperr.CodeAlreadyCompleted, ae.Code)
	assert.Equal(t, 400, ae.Status)
	assert.Equal(t, "already completed", ae.Reason)
	assert.Equal(t, 50, f.totalPoints(t))
}

func TestVerify_ExpiredAlwaysRejected(t *testing.T) {
	f := setup(t, Options{})
	past := time.Now().Add(-time.Second)
	gen, err := f.svc.Generate(context.Background(), GenerateRequest{TaskSlug: f.task.Slug, ValidUntil: &past})
	require.NoError(t, err)

	// Valid hash and exact location still lose to expiry.
	_, err = f.svc.Verify(context.Background(), VerifyRequest{UserID: f.user.ID, QRData: gen.QRData, Location: at(12.9716, 77.5946)})
	assert.True(t, apperr.Is(err, apperr.CodeExpired))
	assert.Equal(t, "expired", apperr.From(err).Reason)

	// So does a tampered payload that is also expired.
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(gen.QRData), &p))
	p.Hash = "deadbeef"
	tampered, err := p.Encode()
	require.NoError(t, err)
	_, err = f.svc.Verify(context.Background(), VerifyRequest{UserID: f.user.ID, QRData: tampered})
	assert.True(t, apperr.Is(err, apperr.CodeExpired))

	assert.Zero(t, f.totalPoints(t))
	assert.Zero(t, f.completions(t))
}

func TestVerify_HashMismatch(t *testing.T) {
	f := setup(t, Options{})
	gen, err := f.svc.Generate(context.Background(), GenerateRequest{TaskSlug: f.task.Slug})
	require.NoError(t, err)

	var p Payload
	require.NoError(t, json.Unmarshal([]byte(gen.QRData), &p))

	t.Run("ForgedTask", func(t *testing.T) {
		forged := p
		forged.TaskID = "rainwater-harvest-visit"
		data, _ := forged.Encode()
		_, err := f.svc.Verify(context.Background(), VerifyRequest{UserID: f.user.ID, QRData: data})
		assert.True(t, apperr.Is(err, apperr.CodeHashMismatch))
		assert.Equal(t, "invalid", apperr.From(err).Reason)
	})

	t.Run("ExtendedExpiry", func(t *testing.T) {
		extended := p
		extended.ValidUntil += int64(time.Hour / time.Millisecond)
		data, _ := extended.Encode()
		_, err := f.svc.Verify(context.Background(), VerifyRequest{UserID: f.user.ID, QRData: data})
		assert.True(t, apperr.Is(err, apperr.CodeHashMismatch))
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other := newPayload([]byte("another-secret"), f.task.Slug, p.Location, p.ValidUntil)
		data, _ := other.Encode()
		_, err := f.svc.Verify(context.Background(), VerifyRequest{UserID: f.user.ID, QRData: data})
		assert.True(t, apperr.Is(err, apperr.CodeHashMismatch))
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := f.svc.Verify(context.Background(), VerifyRequest{UserID: f.user.ID, QRData: "not json"})
		assert.True(t, apperr.Is(err, apperr.CodeHashMismatch))
	})

	t.Run("UnknownTask", func(t *testing.T) {
		unknown := newPayload([]byte(testSecret), "ghost-task", nil, p.ValidUntil)
		data, _ := unknown.Encode()
		_, err := f.svc.Verify(context.Background(), VerifyRequest{UserID: f.user.ID, QRData: data})
		assert.True(t, apperr.Is(err, apperr.CodeHashMismatch))
	})

	assert.Zero(t, f.completions(t))
}

func TestVerify_Location(t *testing.T) {
	t.Run("TooFar", func(t *testing.T) {
		f := setup(t, Options{})
		gen, err := f.svc.Generate(context.Background(), GenerateRequest{TaskSlug: f.task.Slug})
		require.NoError(t, err)

		_, err = f.svc.Verify(context.Background(), VerifyRequest{UserID: f.user.ID, QRData: gen.QRData, Location: at(12.9816, 77.5946)})
		assert.True(t, apperr.Is(err, apperr.CodeLocationMismatch))
		assert.Zero(t, f.totalPoints(t))
	})

	t.Run("AbsentIsLenientByDefault", func(t *testing.T) {
		f := setup(t, Options{})
		gen, err := f.svc.Generate(context.Background(), GenerateRequest{TaskSlug: f.task.Slug})
		require.NoError(t, err)

		_, err = f.svc.Verify(context.Background(), VerifyRequest{UserID: f.user.ID, QRData: gen.QRData})
		assert.NoError(t, err)
	})

	t.Run("AbsentRejectedWhenRequired", func(t *testing.T) {
		f := setup(t, Options{RequireLocation: true})
		gen, err := f.svc.Generate(context.Background(), GenerateRequest{TaskSlug: f.task.Slug})
		require.NoError(t, err)

		_, err = f.svc.Verify(context.Background(), VerifyRequest{UserID: f.user.ID, QRData: gen.QRData})
		assert.True(t, apperr.Is(err, apperr.CodeLocationMismatch))
	})

	t.Run("ExplicitLocationOverridesTask", func(t *testing.T) {
		f := setup(t, Options{})
		gen, err := f.svc.Generate(context.Background(), GenerateRequest{TaskSlug: f.task.Slug, Location: at(28.6139, 77.2090)})
		require.NoError(t, err)

		_, err = f.svc.Verify(context.Background(), VerifyRequest{UserID: f.user.ID, QRData: gen.QRData, Location: at(28.6140, 77.2091)})
		assert.NoError(t, err)
	})
}

func TestVerify_UnknownUser(t *testing.T) {
	f := setup(t, Options{})
	gen, err := f.svc.Generate(context.Background(), GenerateRequest{TaskSlug: f.task.Slug})
	require.NoError(t, err)

	_, err = f.svc.Verify(context.Background(), VerifyRequest{UserID: 999, QRData: gen.QRData})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
