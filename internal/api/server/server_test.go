package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/middleware"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/dto"
	v1routes "github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/routes"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/metrics"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/testutil"
)

func newTestServer(t *testing.T, config Config) (*Server, *testutil.MockServices) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ms := testutil.NewMockServices()
	m := metrics.New()
	m.JobSubmitted()
	srv := NewServer(config, &v1routes.ServiceContainer{
		JobService:    ms.JobService,
		HealthService: ms.HealthService,
		Metrics:       m.Handler(),
	}, zap.NewNop())
	return srv, ms
}

func TestServer_Routes(t *testing.T) {
	srv, ms := newTestServer(t, DefaultConfig())
	ms.HealthService.On("Health", mock.Anything).Return(&dto.HealthResponse{Status: "healthy"})

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "diarizer_jobs_submitted_total 1")

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_RequestIDIsEchoed(t *testing.T) {
	srv, ms := newTestServer(t, DefaultConfig())
	ms.HealthService.On("Health", mock.Anything).Return(&dto.HealthResponse{Status: "healthy"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(middleware.RequestIDHeader))
}

func TestServer_CORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, DefaultConfig())

	req := httptest.NewRequest(http.MethodOptions, "/transcribe", nil)
	req.Header.Set("Origin", "https://example.org")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))
}

func TestServer_BodyLimit(t *testing.T) {
	config := DefaultConfig()
	config.MaxUploadSize = 16
	srv, ms := newTestServer(t, config)

	body := bytes.Repeat([]byte("x"), 16+multipartOverhead+1)
	req := httptest.NewRequest(http.MethodPost, "/transcribe", bytes.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	var apiErr map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, "payload_too_large", apiErr["kind"])
	ms.JobService.AssertNotCalled(t, "SubmitJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestServer_RecoversPanics(t *testing.T) {
	srv, ms := newTestServer(t, DefaultConfig())
	ms.HealthService.On("Health", mock.Anything).Run(func(mock.Arguments) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var apiErr map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, "internal", apiErr["kind"])
	assert.NotEmpty(t, apiErr["request_id"])
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	srv, ms := newTestServer(t, DefaultConfig())
	ms.HealthService.On("Health", mock.Anything).Return(&dto.HealthResponse{Status: "healthy"})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
