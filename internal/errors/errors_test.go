package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsInnerCode(t *testing.T) {
	inner := NotFound("session")
	wrapped := Wrap(fmt.Errorf("lookup: %w", inner), "failed to load session")

	assert.Equal(t, CodeNotFound, GetCode(wrapped))
	assert.True(t, IsAppError(wrapped))
	assert.Equal(t, "failed to load session", UserMessage(wrapped))
	assert.Contains(t, wrapped.Error(), "session not found")
}

func TestWrapPlainError(t *testing.T) {
	wrapped := Wrap(stderrors.New("boom"), "context")
	assert.Equal(t, CodeInternalError, GetCode(wrapped))
	assert.Equal(t, "context: boom", wrapped.Error())
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestWithCodePreservesChain(t *testing.T) {
	sentinel := stderrors.New("sentinel")
	err := WithCode(CodeConflict, fmt.Errorf("ctx: %w", sentinel))
	assert.Equal(t, CodeConflict, GetCode(err))
	assert.True(t, stderrors.Is(err, sentinel))
}

func TestExternalServiceMessage(t *testing.T) {
	assert.Equal(t, "branch already exists", ExternalServiceError("pr", "branch already exists", nil).Error())
	assert.Equal(t, "pr service error", ExternalServiceError("pr", "", nil).Error())
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
}
