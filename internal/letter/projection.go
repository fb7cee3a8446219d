package letter

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sujalbistaa/lettre/internal/models"
)

// anonymousName is what recipients see until an anonymous sender is revealed.
const anonymousName = "Someone"

// SafeView is the only shape through which a recipient reads a letter. It
// computes disclosure on the fly and never advances state.
type SafeView struct {
	ID                uuid.UUID           `json:"id"`
	Title             string              `json:"title"`
	Theme             string              `json:"theme"`
	Body              string              `json:"body,omitempty"`
	Status            models.LetterStatus `json:"status"`
	IsAnonymous       bool                `json:"isAnonymous"`
	IsDisappearing    bool                `json:"isDisappearing"`
	DisappearDelaySec int64               `json:"disappearDelaySec,omitempty"`
	UnlocksAt         time.Time           `json:"unlocksAt"`
	OpenedAt          *time.Time          `json:"openedAt,omitempty"`
	ExpiresAt         *time.Time          `json:"expiresAt,omitempty"`
	RevealAt          *time.Time          `json:"revealAt,omitempty"`

	SenderName   string     `json:"senderName"`
	SenderID     *uuid.UUID `json:"senderId,omitempty"`
	SenderAvatar string     `json:"senderAvatar,omitempty"`

	Hints []string `json:"hints,omitempty"`
}

// View loads one letter for a viewer who must be its sender or recipient.
func (s *Service) View(letterID, viewerID uuid.UUID) (*SafeView, error) {
	var letter models.Letter
	if err := s.DB.First(&letter, "id = ?", letterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	isSender := letter.SenderID == viewerID
	isRecipient := letter.RecipientID != nil && *letter.RecipientID == viewerID
	if !isSender && !isRecipient {
		return nil, ErrNotYourLetter
	}
	return s.project(&letter, viewerID), nil
}

// Inbox lists letters addressed to the user, newest unlock first.
// Soft-deleted letters are excluded by the store.
func (s *Service) Inbox(userID uuid.UUID) ([]SafeView, error) {
	var letters []models.Letter
	if err := s.DB.
		Where("recipient_id = ?", userID).
		Order("unlocks_at desc").
		Find(&letters).Error; err != nil {
		return nil, err
	}
	out := make([]SafeView, 0, len(letters))
	for i := range letters {
		out = append(out, *s.project(&letters[i], userID))
	}
	return out, nil
}

// Outbox lists letters the user sent.
func (s *Service) Outbox(userID uuid.UUID) ([]SafeView, error) {
	var letters []models.Letter
	if err := s.DB.
		Where("sender_id = ?", userID).
		Order("created_at desc").
		Find(&letters).Error; err != nil {
		return nil, err
	}
	out := make([]SafeView, 0, len(letters))
	for i := range letters {
		out = append(out, *s.project(&letters[i], userID))
	}
	return out, nil
}

func (s *Service) project(l *models.Letter, viewerID uuid.UUID) *SafeView {
	now := s.Now()
	isSender := l.SenderID == viewerID

	v := &SafeView{
		ID:                l.ID,
		Title:             l.Title,
		Theme:             l.Theme,
		Status:            EffectiveStatus(l, now),
		IsAnonymous:       l.IsAnonymous,
		IsDisappearing:    l.IsDisappearing,
		DisappearDelaySec: l.DisappearDelaySec,
		UnlocksAt:         l.UnlocksAt,
		OpenedAt:          l.OpenedAt,
		ExpiresAt:         l.ExpiresAt,
	}

	// Body is readable by the sender always, and by the recipient once opened.
	if isSender || l.OpenedAt != nil {
		v.Body = l.Body
	}

	if isSender || s.identityExposed(l, now) {
		var sender models.User
		if err := s.DB.First(&sender, "id = ?", l.SenderID).Error; err == nil {
			v.SenderName = sender.DisplayName
			v.SenderAvatar = sender.AvatarURL
			id := sender.ID
			v.SenderID = &id
		}
	} else {
		v.SenderName = anonymousName
		if l.OpenedAt != nil {
			v.RevealAt = l.RevealAt
			v.Hints = s.disclosedHints(l, now)
		}
	}
	return v
}

// EffectiveStatus folds in the transitions a sweep has not persisted yet, so
// a client observing the row between sweeps still sees the right state.
func EffectiveStatus(l *models.Letter, now time.Time) models.LetterStatus {
	switch l.Status {
	case models.LetterSealed:
		if l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
			return models.LetterExpired
		}
		if !now.Before(l.UnlocksAt) {
			return models.LetterReady
		}
	case models.LetterReady:
		if l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
			return models.LetterExpired
		}
	case models.LetterOpened:
		if l.IsAnonymous && l.RevealAt != nil && !now.Before(*l.RevealAt) {
			return models.LetterRevealed
		}
	}
	return l.Status
}

// identityExposed is the single rule deciding whether the sender is visible:
// non-anonymous letters always, anonymous ones once a reveal was recorded or
// the reveal instant has passed.
func (s *Service) identityExposed(l *models.Letter, now time.Time) bool {
	if !l.IsAnonymous {
		return true
	}
	if l.SenderRevealedAt != nil {
		return true
	}
	return l.RevealAt != nil && !now.Before(*l.RevealAt)
}

// disclosedHints returns the hints whose elapsed-fraction threshold has
// passed. Thresholds depend on how many hints the sender wrote.
func (s *Service) disclosedHints(l *models.Letter, now time.Time) []string {
	if l.OpenedAt == nil || l.RevealAt == nil {
		return nil
	}
	window := l.RevealAt.Sub(*l.OpenedAt)
	if window <= 0 {
		return nil
	}
	elapsed := now.Sub(*l.OpenedAt)
	fraction := float64(elapsed) / float64(window)

	var hints []models.AnonymousIdentityHint
	if err := s.DB.
		Where("letter_id = ?", l.ID).
		Order("position asc").
		Find(&hints).Error; err != nil {
		return nil
	}
	thresholds, ok := s.Cfg.HintThresholds[len(hints)]
	if !ok {
		return nil
	}
	var out []string
	for i, h := range hints {
		if i < len(thresholds) && fraction >= thresholds[i] {
			out = append(out, h.Text)
		}
	}
	return out
}
