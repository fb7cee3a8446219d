package letter

import (
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sujalbistaa/lettre/internal/models"
	"github.com/sujalbistaa/lettre/internal/notify"
)

// Sweeps push time-based transitions forward without any user action. Each
// row is its own transaction and every update carries an exact prior-state
// predicate, so overlapping sweep runs cannot double-mutate or
// double-notify.

// SweepUnlocks moves sealed letters whose unlock instant has passed to
// ready and tells the recipient once.
func (s *Service) SweepUnlocks() int {
	now := s.Now()
	ids := s.candidateIDs(
		s.DB.Model(&models.Letter{}).
			Where("status = ? AND unlocks_at <= ?", models.LetterSealed, now),
	)
	moved := 0
	for _, id := range ids {
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			var l models.Letter
			if err := tx.First(&l, "id = ?", id).Error; err != nil {
				return err
			}
			if l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
				return nil // expiry sweep owns this one
			}
			res := tx.Model(&models.Letter{}).
				Where("id = ? AND status = ?", id, models.LetterSealed).
				Update("status", models.LetterReady)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 || l.RecipientID == nil {
				return nil
			}
			return s.Notify.RecordOnce(tx, *l.RecipientID, notify.KindLetterReady, &l.ID,
				"A letter is ready to open", "")
		})
		if err != nil {
			log.Printf("sweep unlocks: letter %s: %v", id, err)
			continue
		}
		moved++
	}
	return moved
}

// SweepReveals records the identity reveal for opened anonymous letters once
// the reveal instant passes. Recording it (rather than computing on read
// alone) pins down exactly when the recipient could have learned the sender.
func (s *Service) SweepReveals() int {
	now := s.Now()
	ids := s.candidateIDs(
		s.DB.Model(&models.Letter{}).
			Where("status = ? AND is_anonymous = ? AND reveal_at <= ? AND sender_revealed_at IS NULL",
				models.LetterOpened, true, now),
	)
	revealed := 0
	for _, id := range ids {
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			var l models.Letter
			if err := tx.First(&l, "id = ?", id).Error; err != nil {
				return err
			}
			res := tx.Model(&models.Letter{}).
				Where("id = ? AND status = ? AND sender_revealed_at IS NULL", id, models.LetterOpened).
				Updates(map[string]any{
					"sender_revealed_at": now,
					"status":             models.LetterRevealed,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 || l.RecipientID == nil {
				return nil
			}
			return s.Notify.RecordOnce(tx, *l.RecipientID, notify.KindIdentityReveal, &l.ID,
				"The sender has been revealed", "")
		})
		if err != nil {
			log.Printf("sweep reveals: letter %s: %v", id, err)
			continue
		}
		revealed++
	}
	return revealed
}

// SweepExpiries expires sealed or ready letters whose expiry instant passed
// before anyone opened them.
func (s *Service) SweepExpiries() int {
	now := s.Now()
	ids := s.candidateIDs(
		s.DB.Model(&models.Letter{}).
			Where("status IN ? AND expires_at IS NOT NULL AND expires_at <= ?",
				[]models.LetterStatus{models.LetterSealed, models.LetterReady}, now),
	)
	expired := 0
	for _, id := range ids {
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			return tx.Model(&models.Letter{}).
				Where("id = ? AND status IN ? AND opened_at IS NULL",
					id, []models.LetterStatus{models.LetterSealed, models.LetterReady}).
				Update("status", models.LetterExpired).Error
		})
		if err != nil {
			log.Printf("sweep expiries: letter %s: %v", id, err)
			continue
		}
		expired++
	}
	return expired
}

// SweepDisappearing soft-deletes disappearing letters once their post-open
// delay has run out. The delay arithmetic happens here rather than in SQL so
// it works the same on every dialect.
func (s *Service) SweepDisappearing() int {
	now := s.Now()
	var letters []models.Letter
	if err := s.DB.
		Where("is_disappearing = ? AND opened_at IS NOT NULL AND status IN ?",
			true, []models.LetterStatus{models.LetterOpened, models.LetterRevealed}).
		Find(&letters).Error; err != nil {
		log.Printf("sweep disappearing: %v", err)
		return 0
	}
	purged := 0
	for i := range letters {
		l := letters[i]
		cutoff := l.OpenedAt.Add(time.Duration(l.DisappearDelaySec) * time.Second)
		if now.Before(cutoff) {
			continue
		}
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			return tx.
				Where("id = ? AND deleted_at IS NULL", l.ID).
				Delete(&models.Letter{}).Error
		})
		if err != nil {
			log.Printf("sweep disappearing: letter %s: %v", l.ID, err)
			continue
		}
		purged++
	}
	return purged
}

// SweepReminders notifies recipients whose letters unlock within the lead
// window. The RecordOnce dedupe keeps repeated runs from re-notifying.
func (s *Service) SweepReminders() int {
	now := s.Now()
	var letters []models.Letter
	if err := s.DB.
		Where("status = ? AND recipient_id IS NOT NULL AND unlocks_at > ? AND unlocks_at <= ?",
			models.LetterSealed, now, now.Add(s.Cfg.ReminderLead)).
		Find(&letters).Error; err != nil {
		log.Printf("sweep reminders: %v", err)
		return 0
	}
	sent := 0
	for i := range letters {
		l := letters[i]
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			return s.Notify.RecordOnce(tx, *l.RecipientID, notify.KindLetterReminder, &l.ID,
				"A letter opens soon", "It unlocks "+l.UnlocksAt.Format(time.RFC1123))
		})
		if err != nil {
			log.Printf("sweep reminders: letter %s: %v", l.ID, err)
			continue
		}
		sent++
	}
	return sent
}

func (s *Service) candidateIDs(q *gorm.DB) []uuid.UUID {
	var ids []uuid.UUID
	if err := q.Pluck("id", &ids).Error; err != nil {
		log.Printf("sweep candidates: %v", err)
		return nil
	}
	return ids
}
