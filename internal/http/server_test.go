package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"questbot.io/questbot/pkg/log/middleware"
)

type fixedBacklog int64

func (b fixedBacklog) Pending() int64 { return int64(b) }

func TestRootIsAlive(t *testing.T) {
	t.Parallel()
	router := NewServer(nil, nil).Router()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Discord bot ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	ok := PingFunc(func(context.Context) error { return nil })
	router := NewServer(fixedBacklog(3), map[string]Pinger{"postgres": ok}).Router()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Pending int64             `json:"pending"`
		Deps    map[string]string `json:"deps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Pending)
	assert.Equal(t, "ok", body.Deps["postgres"])
}

func TestHealthzReportsFailingDependency(t *testing.T) {
	t.Parallel()
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })
	router := NewServer(fixedBacklog(0), map[string]Pinger{"redis": down}).Router()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
