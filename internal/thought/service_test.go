package thought

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sujalbistaa/lettre/internal/config"
	"github.com/sujalbistaa/lettre/internal/models"
	"github.com/sujalbistaa/lettre/internal/notify"
	"github.com/sujalbistaa/lettre/internal/social"
)

var baseTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) (*Service, *gorm.DB, *time.Time) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(models.All()...))

	now := baseTime
	svc := NewService(gdb, config.Default(), notify.NewService(gdb, nil))
	svc.Now = func() time.Time { return now }
	return svc, gdb, &now
}

func createUser(t *testing.T, gdb *gorm.DB, name string) uuid.UUID {
	t.Helper()
	u := models.User{DisplayName: name}
	require.NoError(t, gdb.Create(&u).Error)
	return u.ID
}

func connect(t *testing.T, gdb *gorm.DB, a, b uuid.UUID) {
	t.Helper()
	require.NoError(t, social.InsertConnection(gdb, a, b, baseTime))
}

func TestSendGates(t *testing.T) {
	svc, gdb, _ := newFixture(t)
	alice := createUser(t, gdb, "alice")
	bob := createUser(t, gdb, "bob")

	_, err := svc.Send(alice, alice)
	assert.ErrorIs(t, err, ErrSelfThought)

	_, err = svc.Send(alice, bob)
	assert.ErrorIs(t, err, ErrNotConnected)

	connect(t, gdb, alice, bob)
	require.NoError(t, gdb.Create(&models.Block{BlockerID: bob, BlockedID: alice}).Error)
	_, err = svc.Send(alice, bob)
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestOncePerPairPerDay(t *testing.T) {
	svc, gdb, now := newFixture(t)
	alice := createUser(t, gdb, "alice")
	bob := createUser(t, gdb, "bob")
	connect(t, gdb, alice, bob)

	first, err := svc.Send(alice, bob)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", first.DayBucket)

	_, err = svc.Send(alice, bob)
	assert.ErrorIs(t, err, ErrAlreadySent)

	// Independent of the reverse direction.
	_, err = svc.Send(bob, alice)
	require.NoError(t, err)

	// Next day the pair may send again.
	*now = baseTime.Add(24 * time.Hour)
	_, err = svc.Send(alice, bob)
	require.NoError(t, err)
}

func TestDailyCap(t *testing.T) {
	svc, gdb, _ := newFixture(t)
	svc.Cfg.ThoughtDailyCap = 2

	alice := createUser(t, gdb, "alice")
	bob := createUser(t, gdb, "bob")
	carol := createUser(t, gdb, "carol")
	dave := createUser(t, gdb, "dave")
	for _, other := range []uuid.UUID{bob, carol, dave} {
		connect(t, gdb, alice, other)
	}

	_, err := svc.Send(alice, bob)
	require.NoError(t, err)
	_, err = svc.Send(alice, carol)
	require.NoError(t, err)

	_, err = svc.Send(alice, dave)
	require.Error(t, err)
	assert.ErrorContains(t, err, "daily limit")

	// The receiver's own budget is untouched.
	_, err = svc.Send(bob, alice)
	require.NoError(t, err)
}

func TestListsAreBucketScoped(t *testing.T) {
	svc, gdb, now := newFixture(t)
	alice := createUser(t, gdb, "alice")
	others := make([]uuid.UUID, 3)
	for i := range others {
		others[i] = createUser(t, gdb, fmt.Sprintf("user%d", i))
		connect(t, gdb, alice, others[i])
	}

	_, err := svc.Send(others[0], alice)
	require.NoError(t, err)
	_, err = svc.Send(alice, others[1])
	require.NoError(t, err)

	received, err := svc.ReceivedToday(alice)
	require.NoError(t, err)
	assert.Len(t, received, 1)

	sent, err := svc.SentToday(alice)
	require.NoError(t, err)
	assert.Len(t, sent, 1)

	// Yesterday's thoughts do not show tomorrow.
	*now = baseTime.Add(24 * time.Hour)
	received, err = svc.ReceivedToday(alice)
	require.NoError(t, err)
	assert.Empty(t, received)
}
