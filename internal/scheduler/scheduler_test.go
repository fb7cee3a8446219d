package scheduler

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sujalbistaa/lettre/internal/config"
	"github.com/sujalbistaa/lettre/internal/letter"
	"github.com/sujalbistaa/lettre/internal/models"
	"github.com/sujalbistaa/lettre/internal/notify"
)

func TestRunOnceAdvancesDueLetters(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(models.All()...))

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	now := base
	letters := letter.NewService(gdb, config.Default(), notify.NewService(gdb, nil))
	letters.Now = func() time.Time { return now }

	recipient := models.User{DisplayName: "bob"}
	require.NoError(t, gdb.Create(&recipient).Error)
	sender := models.User{DisplayName: "alice"}
	require.NoError(t, gdb.Create(&sender).Error)

	due := models.Letter{
		SenderID:    sender.ID,
		RecipientID: &recipient.ID,
		Body:        "due",
		UnlocksAt:   base.Add(-time.Minute),
		Status:      models.LetterSealed,
	}
	notDue := models.Letter{
		SenderID:    sender.ID,
		RecipientID: &recipient.ID,
		Body:        "not yet",
		UnlocksAt:   base.Add(3 * time.Hour),
		Status:      models.LetterSealed,
	}
	require.NoError(t, gdb.Create(&due).Error)
	require.NoError(t, gdb.Create(&notDue).Error)

	sched := New(letters, time.Minute)
	sched.RunOnce()

	var gotDue, gotNotDue models.Letter
	require.NoError(t, gdb.First(&gotDue, "id = ?", due.ID).Error)
	assert.Equal(t, models.LetterReady, gotDue.Status)
	require.NoError(t, gdb.First(&gotNotDue, "id = ?", notDue.ID).Error)
	assert.Equal(t, models.LetterSealed, gotNotDue.Status)

	// Running again on an unchanged store is a no-op.
	sched.RunOnce()
	var n int64
	require.NoError(t, gdb.Model(&models.Notification{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}
