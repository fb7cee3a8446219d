// Package social owns connection requests, mutual connections and blocks.
// It is the source of truth for "may A message B".
package social

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/lettre/internal/apperr"
	"github.com/sujalbistaa/lettre/internal/config"
	"github.com/sujalbistaa/lettre/internal/db"
	"github.com/sujalbistaa/lettre/internal/guard"
	"github.com/sujalbistaa/lettre/internal/models"
	"github.com/sujalbistaa/lettre/internal/notify"
)

var (
	ErrSelfRequest      = apperr.Validation("you cannot send a request to yourself")
	ErrAlreadyConnected = apperr.Conflict("you are already connected")
	ErrBlocked          = apperr.NotAuthorized("this user is not available")
	ErrAlreadySent      = apperr.Conflict("request already sent")
	ErrIncomingPending  = apperr.Conflict("you have a pending incoming request from this user")
	ErrRequestNotFound  = apperr.NotFound("request not found")
	ErrNotRecipient     = apperr.NotAuthorized("only the recipient may respond")
	ErrNotPending       = apperr.NotEligible("request is no longer pending")
	ErrSelfBlock        = apperr.Validation("you cannot block yourself")
	ErrUserNotFound     = apperr.NotFound("user not found")
)

// RespondAction is what the recipient does with a pending request.
type RespondAction string

const (
	ActionAccept  RespondAction = "accept"
	ActionDecline RespondAction = "decline"
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

// SendRequest creates a pending connection request after every gate passes:
// no self-request, no block either way, not already connected, no pending
// request in either direction, no active decline cooldown, and the trailing
// window cap not spent. The sender's user row is locked first so concurrent
// sends by the same user serialize.
func (s *Service) SendRequest(fromID, toID uuid.UUID, message string) (*models.ConnectionRequest, error) {
	if fromID == toID {
		return nil, ErrSelfRequest
	}
	if len(message) > 255 {
		return nil, apperr.Validation("message is too long")
	}
	now := s.Now()

	var req models.ConnectionRequest
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var sender models.User
		if err := db.ForUpdate(tx).First(&sender, "id = ?", fromID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		var target models.User
		if err := tx.First(&target, "id = ?", toID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		blocked, err := BlockedEither(tx, fromID, toID)
		if err != nil {
			return err
		}
		if blocked {
			return ErrBlocked
		}

		connected, err := AreConnected(tx, fromID, toID)
		if err != nil {
			return err
		}
		if connected {
			return ErrAlreadyConnected
		}

		var pending int64
		if err := tx.Model(&models.ConnectionRequest{}).
			Where("from_user_id = ? AND to_user_id = ? AND status = ?", fromID, toID, models.RequestPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return ErrAlreadySent
		}
		if err := tx.Model(&models.ConnectionRequest{}).
			Where("from_user_id = ? AND to_user_id = ? AND status = ?", toID, fromID, models.RequestPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return ErrIncomingPending
		}

		until, active, err := guard.DeclineCooldown(tx, fromID, toID, s.Cfg.DeclineCooldown, now)
		if err != nil {
			return err
		}
		if active {
			return apperr.CooldownActive(fmt.Sprintf("you can send another request after %s", until.Format(time.RFC3339)))
		}

		if err := guard.CheckRequestWindow(tx, fromID, s.Cfg.RequestWindow, s.Cfg.RequestWindowCap, now); err != nil {
			return err
		}

		req = models.ConnectionRequest{
			FromUserID: fromID,
			ToUserID:   toID,
			Message:    message,
			Status:     models.RequestPending,
			// Stamped from the service clock; the trailing-window guard
			// compares against it.
			CreatedAt: now,
		}
		if err := tx.Create(&req).Error; err != nil {
			return err
		}
		return s.Notify.Record(tx, toID, notify.KindRequestReceived, &req.ID,
			"New connection request", sender.DisplayName+" wants to connect")
	})
	if err != nil {
		return nil, err
	}
	s.Notify.Push(toID, notify.KindRequestReceived, "New connection request", "")
	return &req, nil
}

// Respond accepts or declines a pending request. Only the addressee may act.
// Accepting inserts the canonical connection idempotently so a race between
// two accepts (or an accept and an invite claim) still yields one row.
func (s *Service) Respond(requestID, callerID uuid.UUID, action RespondAction, reason string) (*models.ConnectionRequest, error) {
	if action != ActionAccept && action != ActionDecline {
		return nil, apperr.Validation("action must be accept or decline")
	}
	now := s.Now()

	var req models.ConnectionRequest
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := db.ForUpdate(tx).First(&req, "id = ?", requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		if req.ToUserID != callerID {
			return ErrNotRecipient
		}
		if req.Status != models.RequestPending {
			return ErrNotPending
		}

		if action == ActionDecline {
			req.Status = models.RequestDeclined
			req.DeclineReason = reason
			req.ActedAt = &now
			return tx.Model(&req).Updates(map[string]any{
				"status":         req.Status,
				"decline_reason": req.DeclineReason,
				"acted_at":       req.ActedAt,
			}).Error
		}

		if err := InsertConnection(tx, req.FromUserID, req.ToUserID, now); err != nil {
			return err
		}
		req.Status = models.RequestAccepted
		req.ActedAt = &now
		if err := tx.Model(&req).Updates(map[string]any{
			"status":   req.Status,
			"acted_at": req.ActedAt,
		}).Error; err != nil {
			return err
		}
		var accepter models.User
		if err := tx.First(&accepter, "id = ?", callerID).Error; err != nil {
			return err
		}
		return s.Notify.Record(tx, req.FromUserID, notify.KindRequestAccepted, &req.ID,
			"Request accepted", accepter.DisplayName+" accepted your request")
	})
	if err != nil {
		return nil, err
	}
	if req.Status == models.RequestAccepted {
		s.Notify.Push(req.FromUserID, notify.KindRequestAccepted, "Request accepted", "")
	}
	return &req, nil
}

// Block records a directional block. Existing connections are untouched;
// unfriending is a separate, explicit action.
func (s *Service) Block(blockerID, blockedID uuid.UUID) error {
	if blockerID == blockedID {
		return ErrSelfBlock
	}
	b := models.Block{BlockerID: blockerID, BlockedID: blockedID}
	return s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&b).Error
}

func (s *Service) Unblock(blockerID, blockedID uuid.UUID) error {
	return s.DB.
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&models.Block{}).Error
}

// Unfriend removes the connection between caller and other, if any.
func (s *Service) Unfriend(callerID, otherID uuid.UUID) error {
	low, high := CanonicalPair(callerID, otherID)
	return s.DB.
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		Delete(&models.Connection{}).Error
}

// RequestView bundles a request with the other party's profile for display.
// It is a read projection and must never be used to authorize writes.
type RequestView struct {
	Request models.ConnectionRequest `json:"request"`
	Profile models.User              `json:"profile"`
}

type ConnectionView struct {
	Profile     models.User `json:"profile"`
	ConnectedAt time.Time   `json:"connectedAt"`
}

func (s *Service) ListIncoming(userID uuid.UUID) ([]RequestView, error) {
	var reqs []models.ConnectionRequest
	if err := s.DB.
		Where("to_user_id = ? AND status = ?", userID, models.RequestPending).
		Order("created_at desc").
		Find(&reqs).Error; err != nil {
		return nil, err
	}
	return s.resolveRequests(reqs, func(r models.ConnectionRequest) uuid.UUID { return r.FromUserID })
}

func (s *Service) ListOutgoing(userID uuid.UUID) ([]RequestView, error) {
	var reqs []models.ConnectionRequest
	if err := s.DB.
		Where("from_user_id = ? AND status = ?", userID, models.RequestPending).
		Order("created_at desc").
		Find(&reqs).Error; err != nil {
		return nil, err
	}
	return s.resolveRequests(reqs, func(r models.ConnectionRequest) uuid.UUID { return r.ToUserID })
}

func (s *Service) resolveRequests(reqs []models.ConnectionRequest, other func(models.ConnectionRequest) uuid.UUID) ([]RequestView, error) {
	out := make([]RequestView, 0, len(reqs))
	for _, r := range reqs {
		var u models.User
		if err := s.DB.First(&u, "id = ?", other(r)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, RequestView{Request: r, Profile: u})
	}
	return out, nil
}

func (s *Service) ListConnections(userID uuid.UUID) ([]ConnectionView, error) {
	var conns []models.Connection
	if err := s.DB.
		Where("user_low_id = ? OR user_high_id = ?", userID, userID).
		Order("connected_at desc").
		Find(&conns).Error; err != nil {
		return nil, err
	}
	out := make([]ConnectionView, 0, len(conns))
	for _, c := range conns {
		otherID := c.UserLowID
		if otherID == userID {
			otherID = c.UserHighID
		}
		var u models.User
		if err := s.DB.First(&u, "id = ?", otherID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, ConnectionView{Profile: u, ConnectedAt: c.ConnectedAt})
	}
	return out, nil
}

// CanonicalPair orders two user ids the way connection rows store them.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// AreConnected reports whether a mutual connection exists.
func AreConnected(tx *gorm.DB, a, b uuid.UUID) (bool, error) {
	low, high := CanonicalPair(a, b)
	var n int64
	err := tx.Model(&models.Connection{}).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		Count(&n).Error
	return n > 0, err
}

// BlockedEither reports whether either user has blocked the other.
func BlockedEither(tx *gorm.DB, a, b uuid.UUID) (bool, error) {
	var n int64
	err := tx.Model(&models.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&n).Error
	return n > 0, err
}

// InsertConnection writes the canonical pair, ignoring a duplicate so racing
// creators both succeed with exactly one row.
func InsertConnection(tx *gorm.DB, a, b uuid.UUID, at time.Time) error {
	low, high := CanonicalPair(a, b)
	c := models.Connection{UserLowID: low, UserHighID: high, ConnectedAt: at}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&c).Error
}
