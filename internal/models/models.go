package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LetterStatus tracks where a letter sits in its lifecycle.
type LetterStatus string

const (
	LetterSealed   LetterStatus = "sealed"
	LetterReady    LetterStatus = "ready"
	LetterOpened   LetterStatus = "opened"
	LetterRevealed LetterStatus = "revealed"
	LetterExpired  LetterStatus = "expired"
)

// RequestStatus tracks a connection request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestDeclined RequestStatus = "declined"
)

// User is the minimal profile row the engines need. Authentication and
// billing live elsewhere; they only read or flip columns here.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DisplayName string    `gorm:"not null" json:"displayName"`
	AvatarURL   string    `json:"avatarUrl"`
	Premium     bool      `gorm:"not null;default:false" json:"premium"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Letter is the time-locked message. Lifecycle fields are only ever written
// by the letter engine and the scheduler, never straight from a request.
type Letter struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SenderID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"senderId"`
	RecipientID *uuid.UUID `gorm:"type:uuid;index" json:"recipientId"`

	Title string `json:"title"`
	Body  string `gorm:"not null" json:"-"`
	Theme string `json:"theme"`

	IsAnonymous       bool  `gorm:"not null;default:false" json:"isAnonymous"`
	IsDisappearing    bool  `gorm:"not null;default:false" json:"isDisappearing"`
	DisappearDelaySec int64 `json:"disappearDelaySec"`
	RevealDelaySec    int64 `json:"-"`

	UnlocksAt        time.Time  `gorm:"not null;index" json:"unlocksAt"`
	ExpiresAt        *time.Time `json:"expiresAt"`
	OpenedAt         *time.Time `json:"openedAt"`
	RevealAt         *time.Time `json:"-"`
	SenderRevealedAt *time.Time `json:"-"`

	Status    LetterStatus   `gorm:"not null;default:'sealed';index" json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (l *Letter) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// ConnectionRequest is a directed ask for a mutual connection. At most one
// pending row may exist per ordered (from,to) pair; the social service
// enforces that under lock.
type ConnectionRequest struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	FromUserID    uuid.UUID     `gorm:"type:uuid;not null;index" json:"fromUserId"`
	ToUserID      uuid.UUID     `gorm:"type:uuid;not null;index" json:"toUserId"`
	Status        RequestStatus `gorm:"not null;default:'pending';index" json:"status"`
	Message       string        `gorm:"size:255" json:"message"`
	DeclineReason string        `gorm:"size:255" json:"declineReason,omitempty"`
	ActedAt       *time.Time    `json:"actedAt"`
	CreatedAt     time.Time     `json:"createdAt"`
}

func (r *ConnectionRequest) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Connection is a confirmed mutual relationship, stored once per pair in
// canonical (low,high) order.
type Connection struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserLowID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_connection_pair" json:"userLowId"`
	UserHighID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_connection_pair" json:"userHighId"`
	ConnectedAt time.Time `gorm:"not null" json:"connectedAt"`
}

// BeforeCreate keeps the pair canonical no matter which side initiated.
func (c *Connection) BeforeCreate(_ *gorm.DB) error {
	if c.UserLowID.String() > c.UserHighID.String() {
		c.UserLowID, c.UserHighID = c.UserHighID, c.UserLowID
	}
	return nil
}

// Block is directional; consumers check both directions.
type Block struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BlockerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_block_pair" json:"blockerId"`
	BlockedID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_block_pair" json:"blockedId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Thought is a lightweight "thinking of you" signal, at most one per
// (sender, receiver, calendar day). The unique index is the backstop when a
// pre-check race loses.
type Thought struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SenderID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_thought_day" json:"senderId"`
	ReceiverID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_thought_day" json:"receiverId"`
	DayBucket  string    `gorm:"size:10;not null;uniqueIndex:idx_thought_day" json:"dayBucket"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ThoughtRateLimit is the per-sender daily counter. Only the guard's locked
// increment path may touch SentCount.
type ThoughtRateLimit struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	SenderID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_thought_rl" json:"senderId"`
	DayBucket string    `gorm:"size:10;not null;uniqueIndex:idx_thought_rl" json:"dayBucket"`
	SentCount int       `gorm:"not null;default:0" json:"sentCount"`
	UpdatedAt time.Time `json:"-"`
}

// LetterInvite is a single-use onboarding token for a letter addressed to
// someone who is not a member yet.
type LetterInvite struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	LetterID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"letterId"`
	Token       string     `gorm:"size:64;not null;uniqueIndex" json:"token"`
	ClaimedAt   *time.Time `json:"claimedAt"`
	ClaimedByID *uuid.UUID `gorm:"type:uuid" json:"claimedById"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (i *LetterInvite) BeforeCreate(_ *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// ShareKind distinguishes what a countdown share is for.
type ShareKind string

const (
	ShareCountdown ShareKind = "countdown"
)

// CountdownShare is a read-only anticipation link for a still-sealed letter.
// It never transitions to claimed and never exposes sender identity or body.
type CountdownShare struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	LetterID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"letterId"`
	OwnerID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"ownerId"`
	Token     string     `gorm:"size:64;not null;uniqueIndex" json:"token"`
	Kind      ShareKind  `gorm:"size:20;not null;default:'countdown'" json:"kind"`
	UnlocksAt time.Time  `gorm:"not null" json:"unlocksAt"`
	ExpiresAt *time.Time `json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (s *CountdownShare) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// AnonymousIdentityHint holds a sender-authored clue, disclosed progressively
// while the reveal countdown runs. Up to three per letter, immutable.
type AnonymousIdentityHint struct {
	ID       uint      `gorm:"primaryKey" json:"-"`
	LetterID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_hint_pos" json:"letterId"`
	Position int       `gorm:"not null;uniqueIndex:idx_hint_pos" json:"position"`
	Text     string    `gorm:"size:60;not null" json:"text"`
}

// LetterView records that the recipient peeked at a letter while it was
// still locked.
type LetterView struct {
	ID       uint      `gorm:"primaryKey" json:"-"`
	LetterID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_view_pair" json:"letterId"`
	ViewerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_view_pair" json:"viewerId"`
	ViewedAt time.Time `gorm:"not null" json:"viewedAt"`
}

// Notification is an in-app notification row. Delivery transport lives
// elsewhere; rows are written inside the transaction that caused them.
type Notification struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"userId"`
	Kind      string     `gorm:"size:40;not null" json:"kind"`
	RefID     *uuid.UUID `gorm:"type:uuid;index" json:"refId"`
	Title     string     `gorm:"not null" json:"title"`
	Body      string     `json:"body"`
	Read      bool       `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time  `json:"createdAt"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&Letter{},
		&ConnectionRequest{},
		&Connection{},
		&Block{},
		&Thought{},
		&ThoughtRateLimit{},
		&LetterInvite{},
		&CountdownShare{},
		&AnonymousIdentityHint{},
		&LetterView{},
		&Notification{},
	}
}
