package auth

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// tokenMinter is the narrow seam TokenCache needs from a Minter, so tests
// can substitute a counting double without signing real JWTs.
type tokenMinter interface {
	Mint(now time.Time) (token string, iat, exp int64, err error)
	Fingerprint() string
}

// TokenCache serializes keypair-JWT issuance so that, across concurrent
// callers, only one mint happens per expiry window. Modeled directly on
// the read-fast-path / write-slow-path double-check the HTTP client
// package's session cache uses for its own single-flight refresh
// (EnsureSession's RWMutex read for the cached-still-valid check, a
// plain Mutex guarding the mint itself): a binary semaphore around
// issuance, per the spec's design notes.
type TokenCache struct {
	minter tokenMinter

	cacheMu sync.RWMutex
	token   string
	expires int64 // epoch seconds

	mintMu sync.Mutex
	mints  int64 // count of completed mints, for observability/tests
}

// NewTokenCache wraps a Minter with single-flight caching.
func NewTokenCache(minter *Minter) *TokenCache {
	return &TokenCache{minter: minter}
}

// Current returns a token that is still valid (now not after exp, see
// expired) at the moment it is returned. Concurrent callers observing an expired token
// block on the mint mutex; only the first one through mints, the rest
// observe the freshly published token.
func (c *TokenCache) Current() (string, error) {
	// Fast path: read-lock only, no contention with other readers.
	c.cacheMu.RLock()
	token, expires := c.token, c.expires
	c.cacheMu.RUnlock()

	if token != "" && !expired(time.Now(), expires) {
		return token, nil
	}

	return c.remint()
}

// expired reports whether a token with the given expiry is expired at
// now, per the spec's strict boundary: valid from iat through exp
// inclusive, expired only once now is strictly after exp.
func expired(now time.Time, expires int64) bool {
	return now.Unix() > expires
}

// remint is the slow path: a single-permit critical section so only one
// goroutine mints per expiry window. The expiry is re-checked once the
// mutex is held, since another goroutine may have already refreshed the
// token while this one waited for it.
func (c *TokenCache) remint() (string, error) {
	c.mintMu.Lock()
	defer c.mintMu.Unlock()

	now := time.Now()

	c.cacheMu.RLock()
	token, expires := c.token, c.expires
	c.cacheMu.RUnlock()
	if token != "" && !expired(now, expires) {
		return token, nil
	}

	token, iat, exp, err := c.minter.Mint(now)
	if err != nil {
		return "", err
	}

	c.cacheMu.Lock()
	c.token = token
	c.expires = exp
	c.cacheMu.Unlock()

	atomic.AddInt64(&c.mints, 1)

	log.Debug().
		Int64("iat", iat).
		Int64("exp", exp).
		Str("fingerprint", c.minter.Fingerprint()).
		Msg("minted keypair JWT")

	return token, nil
}

// Invalidate forces the next Current call to mint a new token, used when
// the Service rejects a token as expired mid-flight (a 403 that heals on
// retry once the cache rotates).
func (c *TokenCache) Invalidate() {
	c.cacheMu.Lock()
	c.token = ""
	c.expires = 0
	c.cacheMu.Unlock()
}

// MintCount reports how many times this cache has actually minted a
// token, so callers (tests in particular) can observe a remint occurred
// without depending on wall-clock skew to make two signed tokens differ.
func (c *TokenCache) MintCount() int64 {
	return atomic.LoadInt64(&c.mints)
}
