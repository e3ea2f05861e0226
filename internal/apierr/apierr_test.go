package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorText(t *testing.T) {
	assert.Equal(t, "boom", New(500, "x", errors.New("boom")).Error())
	assert.Equal(t, "code_only", New(400, "code_only", nil).Error())
	assert.Equal(t, "api error (418)", New(418, "", nil).Error())
	assert.Equal(t, "", (*Error)(nil).Error())
}

func TestAs(t *testing.T) {
	base := errors.New("missing message")
	wrapped := fmt.Errorf("handler: %w", BadRequest("invalid_request", base.Error()))

	e, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, e.Status)
	assert.Equal(t, "invalid_request", e.Code)

	_, ok = As(errors.New("sql: connection reset"))
	assert.False(t, ok)
}

func TestUnwrap(t *testing.T) {
	sentinel := errors.New("sentinel")
	assert.ErrorIs(t, New(http.StatusConflict, "conflict", sentinel), sentinel)
}
