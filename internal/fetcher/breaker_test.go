package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := newHostBreaker()

	for range breakerFailureThreshold - 1 {
		b.recordFailure()
		assert.True(t, b.allow())
	}
	b.recordFailure()
	assert.False(t, b.allow())
	assert.True(t, b.isOpen())
}

func TestHostBreakerSuccessResetsFailures(t *testing.T) {
	b := newHostBreaker()

	for range breakerFailureThreshold - 1 {
		b.recordFailure()
	}
	b.recordSuccess()
	b.recordFailure()
	assert.True(t, b.allow())
	assert.False(t, b.isOpen())
}

func TestHostBreakerProbeAfterCooldown(t *testing.T) {
	now := time.Now()
	b := newHostBreaker()
	b.nowFunc = func() time.Time { return now }

	for range breakerFailureThreshold {
		b.recordFailure()
	}
	require.False(t, b.allow())

	// After the cooldown a single probe goes through.
	now = now.Add(breakerResetTimeout)
	assert.True(t, b.allow())
	assert.False(t, b.allow())

	// A successful probe closes the breaker.
	b.recordSuccess()
	assert.True(t, b.allow())
	assert.False(t, b.isOpen())
}

func TestHostBreakerFailedProbeRestartsCooldown(t *testing.T) {
	now := time.Now()
	b := newHostBreaker()
	b.nowFunc = func() time.Time { return now }

	for range breakerFailureThreshold {
		b.recordFailure()
	}
	now = now.Add(breakerResetTimeout)
	require.True(t, b.allow())

	b.recordFailure()
	assert.False(t, b.allow())

	now = now.Add(breakerResetTimeout)
	assert.True(t, b.allow())
}

func TestIsTransientErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", eris.New("http 429 from https://shop.example.com/feed"), true},
		{"server error", eris.New("http 502 from https://shop.example.com/feed"), true},
		{"not found", eris.New("http 404 from https://shop.example.com/feed"), false},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"dns failure", errors.New("dial tcp: lookup shop.example.com: no such host"), true},
		{"parse error", errors.New("feed: missing url column"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransientErr(tt.err))
		})
	}
}

func TestDownloadBreakerRejectsAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(testFetchConfig())

	// Each download exhausts its retries and counts one failure.
	for range breakerFailureThreshold {
		_, err := f.Download(context.Background(), srv.URL+"/feed.csv")
		require.Error(t, err)
	}
	before := calls.Load()

	_, err := f.Download(context.Background(), srv.URL+"/feed.csv")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHostUnavailable)
	assert.Equal(t, before, calls.Load())
}

func TestDownloadBreakerIgnoresClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(testFetchConfig())
	for range breakerFailureThreshold + 1 {
		_, err := f.Download(context.Background(), srv.URL+"/feed.csv")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrHostUnavailable)
	}
}
