// Package letter owns the time-locked letter lifecycle: creation, the
// unlock gate, the single open transition, identity reveal for anonymous
// senders, expiry and disappearing-message soft delete.
package letter

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/lettre/internal/apperr"
	"github.com/sujalbistaa/lettre/internal/config"
	"github.com/sujalbistaa/lettre/internal/db"
	"github.com/sujalbistaa/lettre/internal/models"
	"github.com/sujalbistaa/lettre/internal/notify"
	"github.com/sujalbistaa/lettre/internal/social"
)

var (
	ErrNotFound        = apperr.NotFound("letter not found")
	ErrLetterDeleted   = apperr.Conflict("letter has been deleted")
	ErrNotYourLetter   = apperr.NotAuthorized("you do not have access to this letter")
	ErrStillLocked     = apperr.NotEligible("letter is still locked")
	ErrExpired         = apperr.NotEligible("letter has expired")
	ErrAlreadyOpened   = apperr.NotEligible("letter has already been opened")
	ErrNotConnected    = apperr.NotEligible("you are not connected to this user")
	ErrRecipientGone   = apperr.NotFound("recipient not found")
	ErrHintsExist      = apperr.Conflict("hints were already attached")
	ErrNotAnonymous    = apperr.Validation("hints are only allowed on anonymous letters")
	ErrSenderOnly      = apperr.NotAuthorized("only the sender may do this")
	ErrBlockedByTarget = apperr.NotAuthorized("this user is not available")
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

// CreateInput is everything a sender may choose at creation time. Lifecycle
// fields (opened, reveal, status) are never accepted from a caller.
type CreateInput struct {
	RecipientID       *uuid.UUID `json:"recipientId"`
	Title             string     `json:"title"`
	Body              string     `json:"body"`
	Theme             string     `json:"theme"`
	IsAnonymous       bool       `json:"isAnonymous"`
	RevealDelaySec    int64      `json:"revealDelaySec"`
	IsDisappearing    bool       `json:"isDisappearing"`
	DisappearDelaySec int64      `json:"disappearDelaySec"`
	UnlocksAt         time.Time  `json:"unlocksAt"`
	ExpiresAt         *time.Time `json:"expiresAt"`
}

// Create validates and persists a sealed letter. A recipient other than the
// sender must be a mutual connection with no block either way; a nil
// recipient means the letter will be delivered through an invite.
func (s *Service) Create(senderID uuid.UUID, in CreateInput) (*models.Letter, error) {
	now := s.Now()

	if strings.TrimSpace(in.Body) == "" {
		return nil, apperr.Validation("body must not be empty")
	}
	if !in.UnlocksAt.After(now) {
		return nil, apperr.Validation("unlock time must be in the future")
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(in.UnlocksAt) {
		return nil, apperr.Validation("expiry must be after the unlock time")
	}
	if in.IsAnonymous {
		if in.RevealDelaySec <= 0 {
			return nil, apperr.Validation("anonymous letters need a reveal delay")
		}
		if time.Duration(in.RevealDelaySec)*time.Second > s.Cfg.RevealDelayMax {
			return nil, apperr.Validation("reveal delay exceeds the maximum")
		}
	} else if in.RevealDelaySec != 0 {
		return nil, apperr.Validation("reveal delay is only allowed on anonymous letters")
	}
	if in.IsDisappearing {
		if in.DisappearDelaySec <= 0 {
			return nil, apperr.Validation("disappearing letters need a positive delay")
		}
	} else if in.DisappearDelaySec != 0 {
		return nil, apperr.Validation("disappear delay is only allowed on disappearing letters")
	}

	var letter models.Letter
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if in.RecipientID != nil && *in.RecipientID != senderID {
			var recipient models.User
			if err := tx.First(&recipient, "id = ?", *in.RecipientID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrRecipientGone
				}
				return err
			}
			blocked, err := social.BlockedEither(tx, senderID, *in.RecipientID)
			if err != nil {
				return err
			}
			if blocked {
				return ErrBlockedByTarget
			}
			connected, err := social.AreConnected(tx, senderID, *in.RecipientID)
			if err != nil {
				return err
			}
			if !connected {
				return ErrNotConnected
			}
		}

		letter = models.Letter{
			SenderID:          senderID,
			RecipientID:       in.RecipientID,
			Title:             in.Title,
			Body:              in.Body,
			Theme:             in.Theme,
			IsAnonymous:       in.IsAnonymous,
			IsDisappearing:    in.IsDisappearing,
			DisappearDelaySec: in.DisappearDelaySec,
			RevealDelaySec:    in.RevealDelaySec,
			UnlocksAt:         in.UnlocksAt,
			ExpiresAt:         in.ExpiresAt,
			Status:            models.LetterSealed,
		}
		if err := tx.Create(&letter).Error; err != nil {
			return err
		}
		if in.RecipientID != nil && *in.RecipientID != senderID {
			return s.Notify.Record(tx, *in.RecipientID, notify.KindLetterReceived, &letter.ID,
				"A letter is waiting for you", "It unlocks "+in.UnlocksAt.Format(time.RFC1123))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if in.RecipientID != nil && *in.RecipientID != senderID {
		s.Notify.Push(*in.RecipientID, notify.KindLetterReceived, "A letter is waiting for you", "")
	}
	return &letter, nil
}

// Open performs the one irreversible open transition. It is idempotent: a
// second call returns the already-opened letter unchanged. Only the
// recipient may open, including the sender when the letter is addressed to
// themselves.
func (s *Service) Open(letterID, callerID uuid.UUID) (*models.Letter, error) {
	now := s.Now()

	var letter models.Letter
	transitioned := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := db.ForUpdate(tx.Unscoped()).First(&letter, "id = ?", letterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if letter.DeletedAt.Valid {
			return ErrLetterDeleted
		}
		if !canOpen(&letter, callerID) {
			return ErrNotYourLetter
		}
		if letter.OpenedAt != nil {
			return nil // already opened, idempotent
		}
		if letter.Status == models.LetterExpired ||
			(letter.ExpiresAt != nil && !now.Before(*letter.ExpiresAt)) {
			return ErrExpired
		}
		if now.Before(letter.UnlocksAt) {
			return ErrStillLocked
		}

		letter.OpenedAt = &now
		letter.Status = models.LetterOpened
		updates := map[string]any{
			"opened_at": now,
			"status":    models.LetterOpened,
		}
		if letter.IsAnonymous {
			delay := time.Duration(letter.RevealDelaySec) * time.Second
			if delay > s.Cfg.RevealDelayMax {
				delay = s.Cfg.RevealDelayMax
			}
			revealAt := now.Add(delay)
			letter.RevealAt = &revealAt
			updates["reveal_at"] = revealAt
		}
		if err := tx.Model(&models.Letter{}).
			Where("id = ? AND opened_at IS NULL", letter.ID).
			Updates(updates).Error; err != nil {
			return err
		}
		transitioned = true
		if letter.SenderID != callerID {
			return s.Notify.Record(tx, letter.SenderID, notify.KindLetterOpened, &letter.ID,
				"Your letter was opened", "")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if transitioned && letter.SenderID != callerID {
		s.Notify.Push(letter.SenderID, notify.KindLetterOpened, "Your letter was opened", "")
	}
	return &letter, nil
}

// canOpen authorizes the open call. The recipient opens their own mail; a
// sender may open a letter they addressed to themselves, which is checked as
// its own case rather than folded into the recipient comparison.
func canOpen(l *models.Letter, callerID uuid.UUID) bool {
	if l.RecipientID == nil {
		return false
	}
	if *l.RecipientID == callerID {
		return true
	}
	selfSend := *l.RecipientID == l.SenderID
	return selfSend && callerID == l.SenderID
}

// Update lets the sender edit content and timing while the letter is still
// unopened. Lifecycle fields cannot be touched through here.
type UpdateInput struct {
	Title     *string    `json:"title"`
	Body      *string    `json:"body"`
	Theme     *string    `json:"theme"`
	UnlocksAt *time.Time `json:"unlocksAt"`
}

func (s *Service) Update(letterID, callerID uuid.UUID, in UpdateInput) (*models.Letter, error) {
	now := s.Now()

	var letter models.Letter
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := db.ForUpdate(tx).First(&letter, "id = ?", letterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if letter.SenderID != callerID {
			return ErrSenderOnly
		}
		if letter.OpenedAt != nil {
			return ErrAlreadyOpened
		}

		updates := map[string]any{}
		if in.Title != nil {
			updates["title"] = *in.Title
		}
		if in.Body != nil {
			if strings.TrimSpace(*in.Body) == "" {
				return apperr.Validation("body must not be empty")
			}
			updates["body"] = *in.Body
		}
		if in.Theme != nil {
			updates["theme"] = *in.Theme
		}
		if in.UnlocksAt != nil {
			if !in.UnlocksAt.After(now) {
				return apperr.Validation("unlock time must be in the future")
			}
			if letter.ExpiresAt != nil && !letter.ExpiresAt.After(*in.UnlocksAt) {
				return apperr.Validation("unlock time must be before the expiry")
			}
			updates["unlocks_at"] = *in.UnlocksAt
			updates["status"] = models.LetterSealed
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&letter).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&letter, "id = ?", letterID).Error
	})
	if err != nil {
		return nil, err
	}
	return &letter, nil
}

// Delete soft-deletes an unopened letter. Sender only.
func (s *Service) Delete(letterID, callerID uuid.UUID) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var letter models.Letter
		if err := db.ForUpdate(tx).First(&letter, "id = ?", letterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if letter.SenderID != callerID {
			return ErrSenderOnly
		}
		if letter.OpenedAt != nil {
			return ErrAlreadyOpened
		}
		return tx.Delete(&letter).Error
	})
}

// AttachHints stores up to three identity hints for an anonymous letter.
// Hints are immutable once written.
func (s *Service) AttachHints(letterID, callerID uuid.UUID, hints []string) error {
	if len(hints) == 0 || len(hints) > 3 {
		return apperr.Validation("between one and three hints are allowed")
	}
	for _, h := range hints {
		if strings.TrimSpace(h) == "" {
			return apperr.Validation("hints must not be empty")
		}
		if utf8.RuneCountInString(h) > 60 {
			return apperr.Validation("hints must be at most 60 characters")
		}
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		var letter models.Letter
		if err := tx.First(&letter, "id = ?", letterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if letter.SenderID != callerID {
			return ErrSenderOnly
		}
		if !letter.IsAnonymous {
			return ErrNotAnonymous
		}
		var n int64
		if err := tx.Model(&models.AnonymousIdentityHint{}).
			Where("letter_id = ?", letterID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrHintsExist
		}
		for i, h := range hints {
			hint := models.AnonymousIdentityHint{LetterID: letterID, Position: i + 1, Text: h}
			if err := tx.Create(&hint).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordLockedView notes that the recipient peeked at a still-locked letter.
// Any other caller gets a silent success so the endpoint never leaks whether
// a letter exists.
func (s *Service) RecordLockedView(letterID, callerID uuid.UUID) error {
	now := s.Now()

	var letter models.Letter
	err := s.DB.First(&letter, "id = ?", letterID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if letter.RecipientID == nil || *letter.RecipientID != callerID {
		return nil
	}
	if letter.OpenedAt != nil || !now.Before(letter.UnlocksAt) {
		return nil
	}
	v := models.LetterView{LetterID: letterID, ViewerID: callerID, ViewedAt: now}
	return s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&v).Error
}
