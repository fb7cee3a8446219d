package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeConflict, CodeOf(Conflict("already there")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", RateLimited("slow down"))
	assert.Equal(t, CodeRateLimited, CodeOf(wrapped))
}

func TestSentinelMatching(t *testing.T) {
	sentinel := NotFound("letter not found")

	assert.ErrorIs(t, sentinel, NotFound("letter not found"))
	assert.NotErrorIs(t, sentinel, NotFound("user not found"))
	assert.NotErrorIs(t, sentinel, Conflict("letter not found"))

	withCause := Wrap(CodeNotFound, "letter not found", errors.New("sql: no rows"))
	assert.ErrorIs(t, withCause, sentinel)
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Wrap(CodeInternal, "storage failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk on fire")
}
