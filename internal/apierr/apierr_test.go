package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPassesThroughTypedErrors(t *testing.T) {
	orig := Validation("qty must be positive")

	got := From(orig)
	assert.Same(t, orig, got)
	assert.Equal(t, CodeValidation, got.Code)
}

func TestFromUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("failed to check drafts: %w", DataNotReady("no bars for 600000"))

	got := From(wrapped)
	assert.Equal(t, CodeDataNotReady, got.Code)
}

func TestFromDefaultsToInternal(t *testing.T) {
	got := From(errors.New("disk full"))
	assert.Equal(t, CodeInternal, got.Code)
	assert.Equal(t, "disk full", got.Message)
}

func TestWithDetails(t *testing.T) {
	err := DataNotReady("no bars").WithDetails(map[string]interface{}{
		"task": "ingest_bars_daily",
	})
	require.NotNil(t, err.Details)
	assert.Equal(t, "ingest_bars_daily", err.Details["task"])
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(CodeValidation))
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeDataNotReady))
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeRiskCheckFail))
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeLiveNotAvailable))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(CodeInternal))
}
