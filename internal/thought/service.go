// Package thought sends the daily "thinking of you" presence signal. Both
// guard shapes apply: the per-sender daily cap and the once-per-day pair
// uniqueness, with the unique index as the final backstop.
package thought

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sujalbistaa/lettre/internal/apperr"
	"github.com/sujalbistaa/lettre/internal/config"
	"github.com/sujalbistaa/lettre/internal/guard"
	"github.com/sujalbistaa/lettre/internal/models"
	"github.com/sujalbistaa/lettre/internal/notify"
	"github.com/sujalbistaa/lettre/internal/social"
)

var (
	ErrSelfThought  = apperr.Validation("you cannot send a thought to yourself")
	ErrNotConnected = apperr.NotEligible("you are not connected to this user")
	ErrBlocked      = apperr.NotAuthorized("this user is not available")
	ErrAlreadySent  = apperr.Conflict("you already sent a thought to this person today")
)

type Service struct {
	DB     *gorm.DB
	Cfg    *config.Config
	Notify *notify.Service
	Now    func() time.Time
}

func NewService(database *gorm.DB, cfg *config.Config, n *notify.Service) *Service {
	return &Service{DB: database, Cfg: cfg, Notify: n, Now: time.Now}
}

// Send delivers one presence signal. The pair must be mutually connected
// with no block either way; the sender's daily cap and the pair's
// once-per-day rule are checked inside the same transaction as the insert.
func (s *Service) Send(senderID, receiverID uuid.UUID) (*models.Thought, error) {
	if senderID == receiverID {
		return nil, ErrSelfThought
	}
	now := s.Now()
	loc, err := s.Cfg.DayBucketLocation()
	if err != nil {
		return nil, err
	}
	bucket := guard.DayBucket(now, loc)

	var t models.Thought
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		blocked, err := social.BlockedEither(tx, senderID, receiverID)
		if err != nil {
			return err
		}
		if blocked {
			return ErrBlocked
		}
		connected, err := social.AreConnected(tx, senderID, receiverID)
		if err != nil {
			return err
		}
		if !connected {
			return ErrNotConnected
		}

		var dup int64
		if err := tx.Model(&models.Thought{}).
			Where("sender_id = ? AND receiver_id = ? AND day_bucket = ?", senderID, receiverID, bucket).
			Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return ErrAlreadySent
		}

		if err := guard.TakeThoughtToken(tx, senderID, bucket, s.Cfg.ThoughtDailyCap); err != nil {
			return err
		}

		t = models.Thought{SenderID: senderID, ReceiverID: receiverID, DayBucket: bucket}
		if err := tx.Create(&t).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadySent
			}
			return err
		}
		var sender models.User
		if err := tx.First(&sender, "id = ?", senderID).Error; err != nil {
			return err
		}
		return s.Notify.Record(tx, receiverID, notify.KindThoughtReceived, nil,
			sender.DisplayName+" is thinking of you", "")
	})
	if err != nil {
		return nil, err
	}
	s.Notify.Push(receiverID, notify.KindThoughtReceived, "Someone is thinking of you", "")
	return &t, nil
}

// ReceivedToday lists the thoughts that arrived in the current day bucket.
func (s *Service) ReceivedToday(userID uuid.UUID) ([]models.Thought, error) {
	loc, err := s.Cfg.DayBucketLocation()
	if err != nil {
		return nil, err
	}
	bucket := guard.DayBucket(s.Now(), loc)
	var out []models.Thought
	err = s.DB.
		Where("receiver_id = ? AND day_bucket = ?", userID, bucket).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// SentToday lists the thoughts the user sent in the current day bucket.
func (s *Service) SentToday(userID uuid.UUID) ([]models.Thought, error) {
	loc, err := s.Cfg.DayBucketLocation()
	if err != nil {
		return nil, err
	}
	bucket := guard.DayBucket(s.Now(), loc)
	var out []models.Thought
	err = s.DB.
		Where("sender_id = ? AND day_bucket = ?", userID, bucket).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
