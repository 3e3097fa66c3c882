package cmd

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthAgainstHealthyWorker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	out, err := execute(t, "health", "--db", tempDB(t), "--worker-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "healthy")
	assert.Contains(t, out, srv.URL)
}

func TestHealthAgainstDegradedWorker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := execute(t, "health", "--db", tempDB(t), "--worker-url", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhealthy")
}

func TestHealthAgainstUnreachableWorker(t *testing.T) {
	_, err := execute(t, "health", "--db", tempDB(t), "--worker-url", "http://127.0.0.1:1")
	require.Error(t, err)
}
