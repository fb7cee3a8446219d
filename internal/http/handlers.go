package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sujalbistaa/lettre/internal/apperr"
	"github.com/sujalbistaa/lettre/internal/invite"
	"github.com/sujalbistaa/lettre/internal/letter"
	"github.com/sujalbistaa/lettre/internal/notify"
	"github.com/sujalbistaa/lettre/internal/social"
	"github.com/sujalbistaa/lettre/internal/thought"
)

// Env bundles the services the handlers call into.
type Env struct {
	Letters  *letter.Service
	Social   *social.Service
	Thoughts *thought.Service
	Invites  *invite.Service
	Notify   *notify.Service
}

// abortWith maps the domain error taxonomy onto HTTP statuses. Clients get
// the code and message; causes stay in the server log.
func abortWith(c *gin.Context, err error) {
	var ae *apperr.AppError
	if !errors.As(err, &ae) {
		log.Printf("internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": apperr.CodeInternal, "error": "something went wrong"})
		return
	}
	status := http.StatusInternalServerError
	switch ae.Code {
	case apperr.CodeValidation:
		status = http.StatusBadRequest
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeNotAuthorized:
		status = http.StatusForbidden
	case apperr.CodeNotEligible:
		status = http.StatusUnprocessableEntity
	case apperr.CodeConflict:
		status = http.StatusConflict
	case apperr.CodeRateLimited, apperr.CodeCooldownActive:
		status = http.StatusTooManyRequests
	}
	c.JSON(status, gin.H{"code": ae.Code, "error": ae.Message})
}

// --- Letters ---

func (e *Env) CreateLetter(c *gin.Context) {
	var in letter.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	l, err := e.Letters.Create(CallerID(c), in)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

func (e *Env) GetLetter(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid letter ID"})
		return
	}
	v, err := e.Letters.View(id, CallerID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (e *Env) UpdateLetter(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid letter ID"})
		return
	}
	var in letter.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	l, err := e.Letters.Update(id, CallerID(c), in)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (e *Env) DeleteLetter(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid letter ID"})
		return
	}
	if err := e.Letters.Delete(id, CallerID(c)); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Letter deleted"})
}

func (e *Env) OpenLetter(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid letter ID"})
		return
	}
	caller := CallerID(c)
	if _, err := e.Letters.Open(id, caller); err != nil {
		abortWith(c, err)
		return
	}
	v, err := e.Letters.View(id, caller)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (e *Env) AttachHints(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid letter ID"})
		return
	}
	var in struct {
		Hints []string `json:"hints" binding:"required,min=1,max=3"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	if err := e.Letters.AttachHints(id, CallerID(c), in.Hints); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Hints attached"})
}

// RecordLockedView deliberately answers OK even when the caller has no
// business with the letter, so probing cannot reveal whether it exists.
func (e *Env) RecordLockedView(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid letter ID"})
		return
	}
	if err := e.Letters.RecordLockedView(id, CallerID(c)); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OK"})
}

func (e *Env) Inbox(c *gin.Context) {
	views, err := e.Letters.Inbox(CallerID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (e *Env) Outbox(c *gin.Context) {
	views, err := e.Letters.Outbox(CallerID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// --- Social graph ---

func (e *Env) SendConnectionRequest(c *gin.Context) {
	var in struct {
		ToUserID uuid.UUID `json:"toUserId" binding:"required"`
		Message  string    `json:"message"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	req, err := e.Social.SendRequest(CallerID(c), in.ToUserID, in.Message)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (e *Env) RespondConnectionRequest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request ID"})
		return
	}
	var in struct {
		Action string `json:"action" binding:"required,oneof=accept decline"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	req, err := e.Social.Respond(id, CallerID(c), social.RespondAction(in.Action), in.Reason)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (e *Env) ListIncomingRequests(c *gin.Context) {
	views, err := e.Social.ListIncoming(CallerID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (e *Env) ListOutgoingRequests(c *gin.Context) {
	views, err := e.Social.ListOutgoing(CallerID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (e *Env) ListConnections(c *gin.Context) {
	views, err := e.Social.ListConnections(CallerID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (e *Env) Unfriend(c *gin.Context) {
	otherID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	if err := e.Social.Unfriend(CallerID(c), otherID); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Connection removed"})
}

func (e *Env) BlockUser(c *gin.Context) {
	var in struct {
		UserID uuid.UUID `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	if err := e.Social.Block(CallerID(c), in.UserID); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User blocked"})
}

func (e *Env) UnblockUser(c *gin.Context) {
	otherID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	if err := e.Social.Unblock(CallerID(c), otherID); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User unblocked"})
}

// --- Thoughts ---

func (e *Env) SendThought(c *gin.Context) {
	var in struct {
		ReceiverID uuid.UUID `json:"receiverId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	t, err := e.Thoughts.Send(CallerID(c), in.ReceiverID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (e *Env) ListThoughts(c *gin.Context) {
	caller := CallerID(c)
	received, err := e.Thoughts.ReceivedToday(caller)
	if err != nil {
		abortWith(c, err)
		return
	}
	sent, err := e.Thoughts.SentToday(caller)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": received, "sent": sent})
}

// --- Invites and shares ---

func (e *Env) CreateInvite(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid letter ID"})
		return
	}
	inv, err := e.Invites.CreateInvite(id, CallerID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (e *Env) InvitePreview(c *gin.Context) {
	p, err := e.Invites.GetPublicPreview(c.Param("token"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (e *Env) ClaimInvite(c *gin.Context) {
	caller := CallerID(c)
	l, err := e.Invites.Claim(c.Param("token"), caller)
	if err != nil {
		abortWith(c, err)
		return
	}
	// The raw row would expose an anonymous sender; always answer with the
	// projection the claimant is entitled to.
	v, err := e.Letters.View(l.ID, caller)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (e *Env) CreateShare(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid letter ID"})
		return
	}
	var in struct {
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	// An empty body means no share expiry.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
			return
		}
	}
	share, err := e.Invites.CreateShare(id, CallerID(c), in.ExpiresAt)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, share)
}

func (e *Env) SharePreview(c *gin.Context) {
	p, err := e.Invites.GetSharePreview(c.Param("token"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (e *Env) RevokeShare(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid share ID"})
		return
	}
	if err := e.Invites.RevokeShare(id, CallerID(c)); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Share revoked"})
}

// --- Notifications ---

func (e *Env) ListNotifications(c *gin.Context) {
	out, err := e.Notify.List(CallerID(c), 50)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (e *Env) MarkNotificationRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification ID"})
		return
	}
	if err := e.Notify.MarkRead(CallerID(c), uint(id)); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OK"})
}
