// Package invite issues and claims the single-use letter invite tokens used
// to onboard non-members, and the read-only countdown share links.
package invite

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sujalbistaa/lettre/internal/apperr"
	"github.com/sujalbistaa/lettre/internal/config"
	"github.com/sujalbistaa/lettre/internal/db"
	"github.com/sujalbistaa/lettre/internal/models"
	"github.com/sujalbistaa/lettre/internal/notify"
	"github.com/sujalbistaa/lettre/internal/social"
)

var (
	ErrLetterNotFound = apperr.NotFound("letter not found")
	ErrLetterDeleted  = apperr.NotFound("letter is no longer available")
	ErrTokenNotFound  = apperr.NotFound("invite not found")
	ErrAlreadyClaimed = apperr.Conflict("invite has already been claimed")
	ErrSenderOnly     = apperr.NotAuthorized("only the sender may create an invite")
	ErrNotOwner       = apperr.NotAuthorized("only the sender or recipient may share this letter")
	ErrShareNotFound  = apperr.NotFound("share not found")
	ErrShareGone      = apperr.NotFound("share link is no longer active")
	ErrNotShareable   = apperr.NotEligible("only locked, unopened letters can be shared")
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

// newToken returns a 43-character URL-safe token from 32 random bytes.
func newToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// CreateInvite mints the invite for a letter, or returns the existing live
// one unchanged so repeated calls are idempotent.
func (s *Service) CreateInvite(letterID, callerID uuid.UUID) (*models.LetterInvite, error) {
	var inv models.LetterInvite
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// Lock the letter row so two concurrent mints cannot both miss the
		// live-invite lookup and issue two tokens.
		var letter models.Letter
		if err := db.ForUpdate(tx).First(&letter, "id = ?", letterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLetterNotFound
			}
			return err
		}
		if letter.SenderID != callerID {
			return ErrSenderOnly
		}

		err := tx.
			Where("letter_id = ? AND claimed_at IS NULL", letterID).
			First(&inv).Error
		if err == nil {
			return nil // live invite already exists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		token, err := newToken()
		if err != nil {
			return err
		}
		inv = models.LetterInvite{LetterID: letterID, Token: token}
		return tx.Create(&inv).Error
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Preview is the public, unauthenticated view behind an invite link: just
// the countdown, title and theme. Sender identity never appears here.
type Preview struct {
	Title        string    `json:"title"`
	Theme        string    `json:"theme"`
	UnlocksAt    time.Time `json:"unlocksAt"`
	SecondsLeft  int64     `json:"secondsLeft"`
	IsAnonymous  bool      `json:"isAnonymous"`
	AlreadyReady bool      `json:"alreadyReady"`
}

func (s *Service) GetPublicPreview(token string) (*Preview, error) {
	var inv models.LetterInvite
	if err := s.DB.First(&inv, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if inv.ClaimedAt != nil {
		return nil, ErrAlreadyClaimed
	}
	var letter models.Letter
	if err := s.DB.First(&letter, "id = ?", inv.LetterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLetterDeleted
		}
		return nil, err
	}
	return s.previewOf(&letter), nil
}

// Claim atomically marks the invite claimed, links the letter to the new
// user and bootstraps a mutual connection with the sender. Losing a claim
// race fails with the already-claimed conflict, never a silent double win.
func (s *Service) Claim(token string, newUserID uuid.UUID) (*models.Letter, error) {
	now := s.Now()

	var letter models.Letter
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var inv models.LetterInvite
		if err := db.ForUpdate(tx).First(&inv, "token = ?", token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTokenNotFound
			}
			return err
		}
		if inv.ClaimedAt != nil {
			return ErrAlreadyClaimed
		}
		if err := tx.First(&letter, "id = ?", inv.LetterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLetterDeleted
			}
			return err
		}

		res := tx.Model(&models.LetterInvite{}).
			Where("id = ? AND claimed_at IS NULL", inv.ID).
			Updates(map[string]any{"claimed_at": now, "claimed_by_id": newUserID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyClaimed
		}

		if letter.RecipientID == nil {
			if err := tx.Model(&letter).Update("recipient_id", newUserID).Error; err != nil {
				return err
			}
			letter.RecipientID = &newUserID
		}

		if err := social.InsertConnection(tx, letter.SenderID, newUserID, now); err != nil {
			return err
		}
		return s.Notify.Record(tx, letter.SenderID, notify.KindInviteClaimed, &letter.ID,
			"Your invite was accepted", "")
	})
	if err != nil {
		return nil, err
	}
	s.Notify.Push(letter.SenderID, notify.KindInviteClaimed, "Your invite was accepted", "")
	return &letter, nil
}

// CreateShare mints a countdown share link. Only the sender or recipient may
// share, and only while the letter is still locked and unopened.
func (s *Service) CreateShare(letterID, callerID uuid.UUID, expiresAt *time.Time) (*models.CountdownShare, error) {
	now := s.Now()

	var share models.CountdownShare
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var letter models.Letter
		if err := tx.First(&letter, "id = ?", letterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLetterNotFound
			}
			return err
		}
		isOwner := letter.SenderID == callerID ||
			(letter.RecipientID != nil && *letter.RecipientID == callerID)
		if !isOwner {
			return ErrNotOwner
		}
		if letter.OpenedAt != nil || !now.Before(letter.UnlocksAt) {
			return ErrNotShareable
		}

		token, err := newToken()
		if err != nil {
			return err
		}
		share = models.CountdownShare{
			LetterID:  letterID,
			OwnerID:   callerID,
			Token:     token,
			Kind:      models.ShareCountdown,
			UnlocksAt: letter.UnlocksAt,
			ExpiresAt: expiresAt,
		}
		return tx.Create(&share).Error
	})
	if err != nil {
		return nil, err
	}
	return &share, nil
}

// GetSharePreview serves the public countdown behind a share link. Revoked
// or expired shares read as gone; body and sender identity never appear.
func (s *Service) GetSharePreview(token string) (*Preview, error) {
	now := s.Now()

	var share models.CountdownShare
	if err := s.DB.First(&share, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShareNotFound
		}
		return nil, err
	}
	if share.RevokedAt != nil {
		return nil, ErrShareGone
	}
	if share.ExpiresAt != nil && !now.Before(*share.ExpiresAt) {
		return nil, ErrShareGone
	}
	var letter models.Letter
	if err := s.DB.First(&letter, "id = ?", share.LetterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShareGone
		}
		return nil, err
	}
	return s.previewOf(&letter), nil
}

// RevokeShare deactivates a share link. Owner only; revoking twice is a
// no-op.
func (s *Service) RevokeShare(shareID, callerID uuid.UUID) error {
	now := s.Now()
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var share models.CountdownShare
		if err := db.ForUpdate(tx).First(&share, "id = ?", shareID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrShareNotFound
			}
			return err
		}
		if share.OwnerID != callerID {
			return ErrNotOwner
		}
		if share.RevokedAt != nil {
			return nil
		}
		return tx.Model(&share).Update("revoked_at", now).Error
	})
}

func (s *Service) previewOf(letter *models.Letter) *Preview {
	now := s.Now()
	left := int64(letter.UnlocksAt.Sub(now).Seconds())
	if left < 0 {
		left = 0
	}
	return &Preview{
		Title:        letter.Title,
		Theme:        letter.Theme,
		UnlocksAt:    letter.UnlocksAt,
		SecondsLeft:  left,
		IsAnonymous:  letter.IsAnonymous,
		AlreadyReady: left == 0,
	}
}
