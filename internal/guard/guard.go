// Package guard holds the reusable rate-limit and cooldown checks. Every
// check runs inside the caller's transaction so the read and the decision
// commit or roll back together.
package guard

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/lettre/internal/apperr"
	"github.com/sujalbistaa/lettre/internal/db"
	"github.com/sujalbistaa/lettre/internal/models"
)

var (
	ErrDailyCapReached = apperr.RateLimited("daily limit reached")
	ErrWindowCapHit    = apperr.RateLimited("too many requests in the last 24 hours")
)

// DayBucket formats the calendar day for t in the configured timezone.
func DayBucket(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// TakeThoughtToken increments the sender's counter row for the bucket unless
// the cap is already spent. The row is seeded with an insert-or-nothing so the
// first two sends of a day cannot both create it, then read under a row lock
// so the check and the increment serialize.
func TakeThoughtToken(tx *gorm.DB, senderID uuid.UUID, bucket string, limit int) error {
	seed := models.ThoughtRateLimit{SenderID: senderID, DayBucket: bucket}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return err
	}

	var rl models.ThoughtRateLimit
	if err := db.ForUpdate(tx).
		Where("sender_id = ? AND day_bucket = ?", senderID, bucket).
		First(&rl).Error; err != nil {
		return err
	}
	if rl.SentCount >= limit {
		return ErrDailyCapReached
	}
	return tx.Model(&rl).Update("sent_count", gorm.Expr("sent_count + 1")).Error
}

// CheckRequestWindow rejects when the sender already created limit connection
// requests inside the trailing window. The caller must hold a lock on the
// sender's user row so concurrent sends serialize.
func CheckRequestWindow(tx *gorm.DB, senderID uuid.UUID, window time.Duration, limit int, now time.Time) error {
	var n int64
	err := tx.Model(&models.ConnectionRequest{}).
		Where("from_user_id = ? AND created_at > ?", senderID, now.Add(-window)).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n >= int64(limit) {
		return ErrWindowCapHit
	}
	return nil
}

// DeclineCooldown reports whether a decline of (from -> to) inside the window
// still blocks a retry, and when the block lifts.
func DeclineCooldown(tx *gorm.DB, fromID, toID uuid.UUID, window time.Duration, now time.Time) (time.Time, bool, error) {
	var req models.ConnectionRequest
	err := tx.
		Where("from_user_id = ? AND to_user_id = ? AND status = ?", fromID, toID, models.RequestDeclined).
		Order("acted_at desc").
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if req.ActedAt == nil {
		return time.Time{}, false, nil
	}
	until := req.ActedAt.Add(window)
	if now.Before(until) {
		return until, true, nil
	}
	return time.Time{}, false, nil
}
