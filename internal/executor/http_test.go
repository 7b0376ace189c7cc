package executor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/suitepilot/internal/models"
)

func httpUnit(name string, params map[string]string) *testUnit {
	return &testUnit{name: name, task: models.Task{Executor: models.ExecutorHTTP, Params: params}}
}

func TestHTTPExecutor_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rate": 7.1}`))
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(time.Second)
	session, err := exec.Open(context.Background(), httpUnit("rates", map[string]string{
		"url":              srv.URL + "/rates",
		"header.X-Api-Key": "secret",
	}))
	require.NoError(t, err)
	defer session.Close()

	out, err := session.Execute(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"rate": 7.1}`, string(out))
}

func TestHTTPExecutor_PostBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"q":"go"}`, string(body))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	session, err := NewHTTPExecutor(0).Open(context.Background(), httpUnit("echo", map[string]string{
		"url":    srv.URL,
		"method": "post",
		"body":   `{"q":"go"}`,
	}))
	require.NoError(t, err)

	out, err := session.Execute(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"q":"go"}`, string(out))
}

func TestHTTPExecutor_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer srv.Close()

	session, err := NewHTTPExecutor(time.Second).Open(context.Background(), httpUnit("down", map[string]string{"url": srv.URL}))
	require.NoError(t, err)

	_, err = session.Execute(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "maintenance")
}

func TestHTTPExecutor_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	session, err := NewHTTPExecutor(10*time.Second).Open(context.Background(), httpUnit("hang", map[string]string{"url": srv.URL}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = session.Execute(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPExecutor_OpenValidation(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
	}{
		{"missing url", map[string]string{"method": "GET"}},
		{"relative url", map[string]string{"url": "/only/a/path"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPExecutor(0).Open(context.Background(), httpUnit("bad", tt.params))
			assert.Error(t, err)
		})
	}
}
