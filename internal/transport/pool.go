// Package transport provides the bounded connection pool and the
// retrying, authenticated request executor the client facade and
// partition fetcher run every call through.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Conn is a pooled persistent connection to the Service. It wraps an
// *http.Client whose transport is pinned to a single keep-alive
// connection to the base URI's host, the way a bounded DB-style
// connection pool pins one physical connection per slot.
type Conn struct {
	httpClient *http.Client
}

// Pool is a bounded pool of persistent connections to hostname:port,
// checked out with a timeout and released on every exit path. Modeled on
// the buffered-channel-as-semaphore idiom used for bounded HTTP client
// pools and db connection pools alike: a channel pre-loaded with pool
// slots IS the pool, acquisition is a receive, release is a send.
type Pool struct {
	host    string
	timeout time.Duration

	once sync.Once
	slots chan *Conn
}

// NewPool constructs a pool for baseURI with the given size and checkout
// timeout. The pool is lazily filled with connections on first use.
func NewPool(baseURI string, size int, timeout time.Duration) (*Pool, error) {
	u, err := url.Parse(baseURI)
	if err != nil {
		return nil, fmt.Errorf("parse base URI: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base URI %q has no host", baseURI)
	}

	return &Pool{
		host:    u.Host,
		timeout: timeout,
		slots:   make(chan *Conn, size),
	}, nil
}

func (p *Pool) init() {
	p.once.Do(func() {
		for i := 0; i < cap(p.slots); i++ {
			p.slots <- p.newConn()
		}
	})
}

func (p *Pool) newConn() *Conn {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   p.timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        1,
		MaxIdleConnsPerHost: 1,
		MaxConnsPerHost:     1,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Conn{httpClient: &http.Client{Transport: transport}}
}

// Acquire checks out a connection, blocking until one is free or the
// pool's checkout timeout elapses (or ctx is done first, whichever comes
// first).
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.init()

	timeoutCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	select {
	case conn := <-p.slots:
		return conn, nil
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &StarvedError{TimeoutSeconds: int(p.timeout.Seconds())}
	}
}

// Release returns a healthy connection to the pool.
func (p *Pool) Release(conn *Conn) {
	select {
	case p.slots <- conn:
	default:
		// Pool was resized or conn came from an unexpected source; drop
		// it rather than block or leak beyond the intended capacity.
	}
}

// Drop discards a connection that failed in flight and replaces it with a
// fresh one, so the pool's size stays constant.
func (p *Pool) Drop(conn *Conn) {
	p.slots <- p.newConn()
}

// Close closes every connection currently checked in, closing their idle
// keep-alive sockets immediately rather than leaving them for the
// transport's idle timeout. Connections still checked out when Close is
// called are not closed: Release and Drop put them (or a replacement) back
// into the slots channel as usual, and any in-flight request completes
// normally. Close does not block waiting for outstanding checkouts.
func (p *Pool) Close() {
	for {
		select {
		case conn := <-p.slots:
			conn.httpClient.CloseIdleConnections()
		default:
			return
		}
	}
}

// With acquires a connection, invokes fn, and releases it on every exit
// path: back to the pool on success, dropped (and replaced) if fn
// reports a transport failure.
func (p *Pool) With(ctx context.Context, fn func(*Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	if err := fn(conn); err != nil {
		if IsTransportFailure(err) {
			p.Drop(conn)
		} else {
			p.Release(conn)
		}
		return err
	}

	p.Release(conn)
	return nil
}

// StarvedError signals that Acquire timed out before a connection became
// available. It is translated to the public ConnectionStarvedError at the
// package boundary.
type StarvedError struct {
	TimeoutSeconds int
}

func (e *StarvedError) Error() string {
	return fmt.Sprintf("transport: connection pool exhausted after %ds", e.TimeoutSeconds)
}

// TransportFailure wraps a network-level error (as opposed to an HTTP
// status the Service returned) so the pool knows to drop the connection
// rather than recycle it.
type TransportFailure struct {
	Cause error
}

func (e *TransportFailure) Error() string { return e.Cause.Error() }
func (e *TransportFailure) Unwrap() error { return e.Cause }

// IsTransportFailure reports whether err (or something it wraps) is a
// TransportFailure.
func IsTransportFailure(err error) bool {
	var tf *TransportFailure
	return errors.As(err, &tf)
}
