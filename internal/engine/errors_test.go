package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeError_Is(t *testing.T) {
	notFound := NewTargetNotFoundError("#save", Observation{URL: "https://app.test/"}, nil)
	wrapped := fmt.Errorf("step 3: %w", notFound)

	assert.ErrorIs(t, wrapped, ErrTargetNotFound)
	assert.NotErrorIs(t, wrapped, ErrAssertionTimeout)
	assert.True(t, IsTargetNotFound(wrapped))
	assert.False(t, IsAmbiguousTarget(wrapped))

	ambiguous := NewAmbiguousTargetError("button", Observation{Matches: 3})
	assert.ErrorIs(t, ambiguous, ErrAmbiguousTarget)

	cause := errors.New("net::ERR_CONNECTION_REFUSED")
	action := NewActionError("navigate https://app.test/", Observation{}, cause)
	assert.ErrorIs(t, action, cause)
	assert.NotErrorIs(t, action, ErrTargetNotFound)
}

func TestRuntimeError_Error(t *testing.T) {
	err := NewAssertionTimeoutError(`url-contains "/projects"`, Observation{
		URL:      "https://app.test/login",
		Matches:  0,
		Elements: nil,
	}, nil)
	assert.Equal(t,
		`ASSERTION_TIMEOUT: timed out waiting for url-contains "/projects" (url=https://app.test/login matches=0)`,
		err.Error())

	err = NewActionError("click button", Observation{Matches: 1, Elements: []string{`button "Save"`}}, errors.New("not visible"))
	assert.Equal(t,
		`ACTION_FAILED: click button failed (matches=1 elements=[button "Save"]): not visible`,
		err.Error())
}
