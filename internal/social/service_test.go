package social

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sujalbistaa/lettre/internal/apperr"
	"github.com/sujalbistaa/lettre/internal/config"
	"github.com/sujalbistaa/lettre/internal/models"
	"github.com/sujalbistaa/lettre/internal/notify"
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

func TestSendRequestGates(t *testing.T) {
	svc, gdb, _ := newFixture(t)
	alice := createUser(t, gdb, "alice")
	bob := createUser(t, gdb, "bob")

	t.Run("self request", func(t *testing.T) {
		_, err := svc.SendRequest(alice, alice, "")
		assert.ErrorIs(t, err, ErrSelfRequest)
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := svc.SendRequest(alice, uuid.New(), "")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("happy path then duplicate pending", func(t *testing.T) {
		req, err := svc.SendRequest(alice, bob, "hi bob")
		require.NoError(t, err)
		assert.Equal(t, models.RequestPending, req.Status)

		_, err = svc.SendRequest(alice, bob, "")
		assert.ErrorIs(t, err, ErrAlreadySent)

		// The reverse direction reports the incoming pending request.
		_, err = svc.SendRequest(bob, alice, "")
		assert.ErrorIs(t, err, ErrIncomingPending)
	})

	t.Run("blocked either direction", func(t *testing.T) {
		carol := createUser(t, gdb, "carol")
		require.NoError(t, svc.Block(carol, alice))
		_, err := svc.SendRequest(alice, carol, "")
		assert.ErrorIs(t, err, ErrBlocked)
		_, err = svc.SendRequest(carol, alice, "")
		assert.ErrorIs(t, err, ErrBlocked)
	})

	t.Run("already connected", func(t *testing.T) {
		dave := createUser(t, gdb, "dave")
		require.NoError(t, InsertConnection(gdb, alice, dave, baseTime))
		_, err := svc.SendRequest(alice, dave, "")
		assert.ErrorIs(t, err, ErrAlreadyConnected)
	})
}

func TestAcceptCreatesOneCanonicalConnection(t *testing.T) {
	svc, gdb, _ := newFixture(t)
	alice := createUser(t, gdb, "alice")
	bob := createUser(t, gdb, "bob")

	req, err := svc.SendRequest(alice, bob, "")
	require.NoError(t, err)

	accepted, err := svc.Respond(req.ID, bob, ActionAccept, "")
	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, accepted.Status)
	require.NotNil(t, accepted.ActedAt)

	var conns []models.Connection
	require.NoError(t, gdb.Find(&conns).Error)
	require.Len(t, conns, 1)
	assert.LessOrEqual(t, conns[0].UserLowID.String(), conns[0].UserHighID.String())

	// A racing insert of the same pair is absorbed, still one row.
	require.NoError(t, InsertConnection(gdb, bob, alice, baseTime))
	require.NoError(t, gdb.Find(&conns).Error)
	assert.Len(t, conns, 1)
}

func TestRespondAuthorizationAndState(t *testing.T) {
	svc, gdb, _ := newFixture(t)
	alice := createUser(t, gdb, "alice")
	bob := createUser(t, gdb, "bob")

	req, err := svc.SendRequest(alice, bob, "")
	require.NoError(t, err)

	_, err = svc.Respond(req.ID, alice, ActionAccept, "")
	assert.ErrorIs(t, err, ErrNotRecipient)

	_, err = svc.Respond(uuid.New(), bob, ActionAccept, "")
	assert.ErrorIs(t, err, ErrRequestNotFound)

	_, err = svc.Respond(req.ID, bob, "maybe", "")
	assert.ErrorContains(t, err, "accept or decline")

	_, err = svc.Respond(req.ID, bob, ActionAccept, "")
	require.NoError(t, err)

	// Terminal: responding again is rejected.
	_, err = svc.Respond(req.ID, bob, ActionDecline, "")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestDeclineStartsCooldown(t *testing.T) {
	svc, gdb, now := newFixture(t)
	alice := createUser(t, gdb, "alice")
	bob := createUser(t, gdb, "bob")

	req, err := svc.SendRequest(alice, bob, "")
	require.NoError(t, err)

	declined, err := svc.Respond(req.ID, bob, ActionDecline, "not now")
	require.NoError(t, err)
	assert.Equal(t, models.RequestDeclined, declined.Status)
	assert.Equal(t, "not now", declined.DeclineReason)

	// Retry within the window.
	*now = baseTime.Add(3 * 24 * time.Hour)
	_, err = svc.SendRequest(alice, bob, "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeCooldownActive, apperr.CodeOf(err))

	// The decline does not gate the other direction.
	_, err = svc.SendRequest(bob, alice, "")
	require.NoError(t, err)

	// After the window lapses a retry goes through, once the reverse
	// pending request is out of the way.
	*now = baseTime.Add(8 * 24 * time.Hour)
	var reverse models.ConnectionRequest
	require.NoError(t, gdb.Where("from_user_id = ?", bob).First(&reverse).Error)
	_, err = svc.Respond(reverse.ID, alice, ActionDecline, "")
	require.NoError(t, err)

	*now = baseTime.Add(16 * 24 * time.Hour)
	_, err = svc.SendRequest(alice, bob, "")
	require.NoError(t, err)
}

func TestRequestWindowCap(t *testing.T) {
	svc, gdb, now := newFixture(t)
	alice := createUser(t, gdb, "alice")

	for i := 0; i < 5; i++ {
		target := createUser(t, gdb, fmt.Sprintf("user%d", i))
		*now = baseTime.Add(time.Duration(i) * time.Hour)
		_, err := svc.SendRequest(alice, target, "")
		require.NoError(t, err)
	}

	extra := createUser(t, gdb, "extra")
	*now = baseTime.Add(5 * time.Hour)
	_, err := svc.SendRequest(alice, extra, "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeRateLimited, apperr.CodeOf(err))

	// The first request ages out of the trailing window.
	*now = baseTime.Add(25 * time.Hour)
	_, err = svc.SendRequest(alice, extra, "")
	require.NoError(t, err)
}

func TestBlockKeepsConnectionUntilUnfriend(t *testing.T) {
	svc, gdb, _ := newFixture(t)
	alice := createUser(t, gdb, "alice")
	bob := createUser(t, gdb, "bob")
	require.NoError(t, InsertConnection(gdb, alice, bob, baseTime))

	require.NoError(t, svc.Block(alice, bob))
	connected, err := AreConnected(gdb, alice, bob)
	require.NoError(t, err)
	assert.True(t, connected, "blocking must not unfriend")

	require.NoError(t, svc.Unfriend(bob, alice))
	connected, err = AreConnected(gdb, alice, bob)
	require.NoError(t, err)
	assert.False(t, connected)

	// Blocking twice is a no-op; self-block is rejected.
	require.NoError(t, svc.Block(alice, bob))
	assert.ErrorIs(t, svc.Block(alice, alice), ErrSelfBlock)

	require.NoError(t, svc.Unblock(alice, bob))
	blocked, err := BlockedEither(gdb, alice, bob)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestListProjections(t *testing.T) {
	svc, gdb, _ := newFixture(t)
	alice := createUser(t, gdb, "alice")
	bob := createUser(t, gdb, "bob")
	carol := createUser(t, gdb, "carol")

	_, err := svc.SendRequest(alice, bob, "hello")
	require.NoError(t, err)
	_, err = svc.SendRequest(carol, alice, "")
	require.NoError(t, err)

	incoming, err := svc.ListIncoming(alice)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, "carol", incoming[0].Profile.DisplayName)

	outgoing, err := svc.ListOutgoing(alice)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, "bob", outgoing[0].Profile.DisplayName)
	assert.Equal(t, "hello", outgoing[0].Request.Message)

	req := incoming[0].Request
	_, err = svc.Respond(req.ID, alice, ActionAccept, "")
	require.NoError(t, err)

	conns, err := svc.ListConnections(alice)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "carol", conns[0].Profile.DisplayName)
}
