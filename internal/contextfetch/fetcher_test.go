package contextfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vecihi-bot/internal/models"
)

func TestFetch_EmptyURL(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	f := NewWithClient(srv.Client(), 0, zerolog.Nop())

	text, err := f.Fetch(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Zero(t, calls.Load())
}

func TestFetch_ReturnsBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte("Opening hours: 9-17"))
	}))
	defer srv.Close()

	f := New(5*time.Second, 0, zerolog.Nop())

	for i := 0; i < 2; i++ {
		text, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "Opening hours: 9-17", text)
	}
	// No caching between calls
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_NonSuccessStatusReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not found"))
	}))
	defer srv.Close()

	f := New(5*time.Second, 0, zerolog.Nop())

	text, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "not found", text)
}

func TestFetch_TruncatesAtMaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	f := New(5*time.Second, 10, zerolog.Nop())

	text, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 10), text)
}

func TestFetch_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := New(5*time.Second, 0, zerolog.Nop())

	_, err := f.Fetch(context.Background(), url)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDependency)
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := New(50*time.Millisecond, 0, zerolog.Nop())

	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDependency)
}

func TestFetch_InvalidURL(t *testing.T) {
	f := New(time.Second, 0, zerolog.Nop())

	_, err := f.Fetch(context.Background(), "://missing-scheme")
	assert.ErrorIs(t, err, models.ErrDependency)
}
