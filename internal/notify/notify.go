// Package notify records in-app notifications and pushes them over the
// websocket hub. Rows are written inside the transaction that caused them so
// a rolled-back operation never leaves a stray notification; the push happens
// after commit, best effort.
package notify

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sujalbistaa/lettre/internal/models"
)

// Notification kinds.
const (
	KindLetterReceived  = "letter_received"
	KindLetterReady     = "letter_ready"
	KindLetterOpened    = "letter_opened"
	KindLetterReminder  = "letter_reminder"
	KindIdentityReveal  = "identity_revealed"
	KindRequestReceived = "request_received"
	KindRequestAccepted = "request_accepted"
	KindThoughtReceived = "thought_received"
	KindInviteClaimed   = "invite_claimed"
)

type Service struct {
	DB  *gorm.DB
	Hub Pusher
}

// Pusher is what the ws hub provides. Nil means no realtime push.
type Pusher interface {
	SendToUser(userID uuid.UUID, payload []byte)
}

func NewService(db *gorm.DB, hub Pusher) *Service {
	return &Service{DB: db, Hub: hub}
}

// Record inserts a notification row in tx.
func (s *Service) Record(tx *gorm.DB, userID uuid.UUID, kind string, refID *uuid.UUID, title, body string) error {
	n := models.Notification{
		UserID: userID,
		Kind:   kind,
		RefID:  refID,
		Title:  title,
		Body:   body,
	}
	return tx.Create(&n).Error
}

// RecordOnce inserts a notification only if no row with the same user, kind
// and ref exists. Sweeps use this so re-running never double-notifies.
func (s *Service) RecordOnce(tx *gorm.DB, userID uuid.UUID, kind string, refID *uuid.UUID, title, body string) error {
	var n int64
	q := tx.Model(&models.Notification{}).
		Where("user_id = ? AND kind = ?", userID, kind)
	if refID != nil {
		q = q.Where("ref_id = ?", *refID)
	}
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return s.Record(tx, userID, kind, refID, title, body)
}

type pushPayload struct {
	Kind  string    `json:"kind"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	At    time.Time `json:"at"`
}

// Push sends a realtime payload to the user's open connections. Call it only
// after the owning transaction has committed.
func (s *Service) Push(userID uuid.UUID, kind, title, body string) {
	if s.Hub == nil {
		return
	}
	raw, err := json.Marshal(pushPayload{Kind: kind, Title: title, Body: body, At: time.Now()})
	if err != nil {
		log.Printf("notify: marshal push payload: %v", err)
		return
	}
	s.Hub.SendToUser(userID, raw)
}

// List returns the newest notifications for a user.
func (s *Service) List(userID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []models.Notification
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkRead flags one notification as read, scoped to its owner.
func (s *Service) MarkRead(userID uuid.UUID, id uint) error {
	return s.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true).Error
}
