package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodeClassification(t *testing.T) {
	assert.Equal(t, ENotFound, ErrorCode(NotFound("tenant %s", "x")))
	assert.Equal(t, EConflict, ErrorCode(Conflict("held")))
	assert.Equal(t, EInvalid, ErrorCode(Invalid("bad name")))
	assert.Equal(t, ETransient, ErrorCode(Transient("db down", errors.New("conn refused"))))
	assert.Equal(t, EInternal, ErrorCode(Internal("invariant", nil)))
}

func TestErrorCodeUncodedAndNil(t *testing.T) {
	assert.Equal(t, Code(""), ErrorCode(nil))
	assert.Equal(t, EInternal, ErrorCode(errors.New("plain")))
}

func TestErrorCodePropagatesThroughWrapping(t *testing.T) {
	inner := NotFound("record")
	wrapped := fmt.Errorf("loading profile: %w", inner)
	assert.Equal(t, ENotFound, ErrorCode(wrapped))
	assert.True(t, IsNotFound(wrapped))
}

func TestTransientKeepsCause(t *testing.T) {
	cause := errors.New("conn refused")
	err := Transient("db down", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "transient")
	assert.Contains(t, err.Error(), "db down")
	assert.Contains(t, err.Error(), "conn refused")
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsConflict(Conflict("x")))
	assert.False(t, IsConflict(Invalid("x")))
	assert.True(t, IsInvalid(Invalid("x")))
	assert.True(t, IsTransient(Transient("x", nil)))
	assert.False(t, IsNotFound(nil))
}
