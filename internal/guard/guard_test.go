package guard

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sujalbistaa/lettre/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(models.All()...))
	return gdb
}

func TestDayBucket(t *testing.T) {
	// 23:30 UTC on the 14th is already the 15th at UTC+5:45.
	at := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-14", DayBucket(at, time.UTC))

	npt := time.FixedZone("NPT", 5*3600+45*60)
	assert.Equal(t, "2026-03-15", DayBucket(at, npt))
}

func TestTakeThoughtToken(t *testing.T) {
	gdb := newTestDB(t)
	sender := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, TakeThoughtToken(gdb, sender, "2026-03-14", 3))
	}
	err := TakeThoughtToken(gdb, sender, "2026-03-14", 3)
	assert.ErrorIs(t, err, ErrDailyCapReached)

	var rl models.ThoughtRateLimit
	require.NoError(t, gdb.First(&rl, "sender_id = ?", sender).Error)
	assert.Equal(t, 3, rl.SentCount)

	// A fresh bucket starts over.
	require.NoError(t, TakeThoughtToken(gdb, sender, "2026-03-15", 3))
}

// Seeding over a counter row that already exists must neither error nor
// reset the spent count.
func TestTakeThoughtTokenExistingCounter(t *testing.T) {
	gdb := newTestDB(t)
	sender := uuid.New()
	rl := models.ThoughtRateLimit{SenderID: sender, DayBucket: "2026-03-14", SentCount: 2}
	require.NoError(t, gdb.Create(&rl).Error)

	require.NoError(t, TakeThoughtToken(gdb, sender, "2026-03-14", 3))
	err := TakeThoughtToken(gdb, sender, "2026-03-14", 3)
	assert.ErrorIs(t, err, ErrDailyCapReached)

	var stored models.ThoughtRateLimit
	require.NoError(t, gdb.First(&stored, "sender_id = ?", sender).Error)
	assert.Equal(t, 3, stored.SentCount)
}

func TestCheckRequestWindow(t *testing.T) {
	gdb := newTestDB(t)
	sender := uuid.New()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		req := models.ConnectionRequest{
			FromUserID: sender,
			ToUserID:   uuid.New(),
			Status:     models.RequestPending,
			CreatedAt:  now.Add(-time.Duration(i) * time.Hour),
		}
		require.NoError(t, gdb.Create(&req).Error)
	}

	err := CheckRequestWindow(gdb, sender, 24*time.Hour, 5, now)
	assert.ErrorIs(t, err, ErrWindowCapHit)

	// A day later the oldest four have aged out.
	assert.NoError(t, CheckRequestWindow(gdb, sender, 24*time.Hour, 5, now.Add(23*time.Hour)))
}

func TestDeclineCooldown(t *testing.T) {
	gdb := newTestDB(t)
	from, to := uuid.New(), uuid.New()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	window := 7 * 24 * time.Hour

	// No decline on record.
	_, active, err := DeclineCooldown(gdb, from, to, window, now)
	require.NoError(t, err)
	assert.False(t, active)

	acted := now.Add(-3 * 24 * time.Hour)
	req := models.ConnectionRequest{
		FromUserID: from,
		ToUserID:   to,
		Status:     models.RequestDeclined,
		ActedAt:    &acted,
		CreatedAt:  acted,
	}
	require.NoError(t, gdb.Create(&req).Error)

	until, active, err := DeclineCooldown(gdb, from, to, window, now)
	require.NoError(t, err)
	assert.True(t, active)
	assert.WithinDuration(t, acted.Add(window), until, time.Second)

	// Direction matters.
	_, active, err = DeclineCooldown(gdb, to, from, window, now)
	require.NoError(t, err)
	assert.False(t, active)

	// Window elapsed.
	_, active, err = DeclineCooldown(gdb, from, to, window, now.Add(5*24*time.Hour))
	require.NoError(t, err)
	assert.False(t, active)
}
