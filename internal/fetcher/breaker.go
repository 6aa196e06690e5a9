package fetcher

import (
	"errors"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrHostUnavailable is returned when a host's breaker is open and downloads
// to it are being rejected without a network attempt.
var ErrHostUnavailable = eris.New("fetcher: host temporarily unavailable")

const (
	breakerFailureThreshold = 5
	breakerResetTimeout     = 60 * time.Second
)

// hostBreaker trips after consecutive transient download failures against one
// retailer host and rejects further attempts until a cooldown passes. A single
// probe is allowed after the cooldown; its outcome closes or reopens the
// breaker.
type hostBreaker struct {
	mu       sync.Mutex
	open     bool
	probing  bool
	failures int
	openedAt time.Time

	nowFunc func() time.Time
}

func newHostBreaker() *hostBreaker {
	return &hostBreaker{nowFunc: time.Now}
}

// allow reports whether a download attempt may proceed.
func (b *hostBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if b.nowFunc().Sub(b.openedAt) >= breakerResetTimeout {
		// One probe at a time while half-open.
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

func (b *hostBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.probing = false
	b.failures = 0
}

func (b *hostBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.probing = false
	if b.open {
		// Failed probe, restart the cooldown.
		b.openedAt = b.nowFunc()
		return
	}
	if b.failures >= breakerFailureThreshold {
		b.open = true
		b.openedAt = b.nowFunc()
	}
}

func (b *hostBreaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// isTransientErr reports whether a download error is worth counting against
// the host. Client-side errors like 404s do not indicate host trouble.
func isTransientErr(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"http 429", "http 5",
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// breakerFor returns the breaker for a host, creating one on first use.
func (f *HTTPFetcher) breakerFor(host string) *hostBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.breakers[host]
	if !ok {
		b = newHostBreaker()
		f.breakers[host] = b
	}
	return b
}

// observe feeds a download outcome into the host's breaker.
func (b *hostBreaker) observe(host string, err error) {
	if err == nil {
		b.recordSuccess()
		return
	}
	if !isTransientErr(err) {
		return
	}
	b.recordFailure()
	if b.isOpen() {
		zap.L().Warn("fetcher: host breaker open",
			zap.String("host", host),
			zap.Duration("cooldown", breakerResetTimeout),
		)
	}
}
