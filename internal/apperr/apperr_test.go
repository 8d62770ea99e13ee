package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MessageIncludesCauseWhenWrapped(t *testing.T) {
	err := Wrap(Upstream, "model call failed", errors.New("timeout"))
	assert.Equal(t, "upstream: model call failed: timeout", err.Error())
}

func TestError_MessageOmitsCauseWhenBare(t *testing.T) {
	err := New(Validation, "bad body")
	assert.Equal(t, "validation: bad body", err.Error())
}

func TestKindOf_ReturnsInternalForUntypedError(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
}

func TestKindOf_FindsKindThroughFmtErrorfWrapping(t *testing.T) {
	base := New(NotFound, "no such conversation")
	wrapped := fmt.Errorf("loading conversation: %w", base)
	assert.Equal(t, NotFound, KindOf(wrapped))
}

func TestKindOf_FindsKindThroughAppErrWrap(t *testing.T) {
	base := errors.New("driver: no rows")
	wrapped := Wrap(NotFound, "no such user", base)
	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, base))
}

func TestRecoverable_UnauthorizedAndInternalAreNotRecoverable(t *testing.T) {
	assert.False(t, Recoverable(Unauthorized))
	assert.False(t, Recoverable(Internal))
}

func TestRecoverable_EverythingElseIsRecoverable(t *testing.T) {
	for _, k := range []Kind{NotFound, Forbidden, Conflict, Validation, RateLimited, Upstream} {
		assert.True(t, Recoverable(k), "expected %s to be recoverable", k)
	}
}

func TestErrSelfFriendship_IsAConflict(t *testing.T) {
	assert.Equal(t, Conflict, KindOf(ErrSelfFriendship))
}
