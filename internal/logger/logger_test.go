package logger

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iurnickita/vending/internal/logger/config"
)

func TestNewZapLog(t *testing.T) {
	zl, err := NewZapLog(config.Config{})
	require.NoError(t, err)
	assert.True(t, zl.Core().Enabled(zap.InfoLevel))
	assert.False(t, zl.Core().Enabled(zap.DebugLevel))

	zl, err = NewZapLog(config.Config{LogLevel: "debug"})
	require.NoError(t, err)
	assert.True(t, zl.Core().Enabled(zap.DebugLevel))

	_, err = NewZapLog(config.Config{LogLevel: "loud"})
	require.Error(t, err)
}

func TestRequestLogMdlw(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	zaplog := zap.New(core)

	h := RequestLogMdlw(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, `{"product_id":"p"}`, string(body))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("ok"))
	}, zaplog)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vending/buy/product", strings.NewReader(`{"product_id":"p"}`))
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	requestID := rec.Header().Get(HeaderRequestID)
	assert.NotEmpty(t, requestID)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "got incoming HTTP request", entries[0].Message)
	assert.Equal(t, "/api/v1/vending/buy/product", entries[0].ContextMap()["path"])
	assert.Equal(t, requestID, entries[1].ContextMap()["request_id"])
	assert.Equal(t, int64(http.StatusCreated), entries[1].ContextMap()["code"])
	assert.Equal(t, int64(2), entries[1].ContextMap()["length"])
}

func TestRequestLogMdlwKeepsRequestID(t *testing.T) {
	h := RequestLogMdlw(func(w http.ResponseWriter, r *http.Request) {}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "abc")
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, "abc", rec.Header().Get(HeaderRequestID))
	assert.Equal(t, http.StatusOK, rec.Code)
}
