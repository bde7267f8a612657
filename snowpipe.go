// Package snowpipe is a client for executing SQL statements against a
// cloud data warehouse's REST API ("the Service") and materializing
// large, partitioned result sets.
//
// Construct a Client with New (programmatic config) or Connect
// (environment-driven config), then call Query. The Result returned by
// Query is either a lazy, partition-at-a-time stream (when the caller
// passes streaming=true) or fully materialized, in which case the
// single-threaded or threaded in-memory strategy is selected
// automatically from the computed worker count for the statement's
// partition layout.
package snowpipe

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/snowpipe-go/internal/auth"
	"github.com/erauner12/snowpipe-go/internal/partitions"
	"github.com/erauner12/snowpipe-go/internal/rows"
	"github.com/erauner12/snowpipe-go/internal/transport"
)

// Result is the typed, decoded view over a query's rows. See
// internal/rows.Result for the materialized/streaming implementations.
type Result = rows.Result

// Row is a single decoded record within a Result.
type Row = rows.Row

// RowType describes one result column's name, Service type tag, and
// (for fixed-point numerics) declared scale.
type RowType = rows.RowType

// Null is the distinguished value a null cell decodes to.
var Null = rows.Null

// Client is the facade bound to one warehouse account: configuration
// plus lazily-constructed connection pool and token cache, safe for
// concurrent use by multiple callers.
type Client struct {
	cfg Config

	initOnce sync.Once
	initErr  error

	tokens   *auth.TokenCache
	pool     *transport.Pool
	executor *transport.Executor
}

// New validates cfg (applying documented defaults to zero-valued
// tunables) and returns a Client. The private key is parsed eagerly so a
// ConfigError surfaces at construction rather than on the first query;
// the connection pool and token cache remain lazily constructed until
// the first Query call, per the spec.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if _, err := auth.ParsePrivateKeyPEM(cfg.PrivateKeyPEM); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid private key: %v", err)}
	}

	zerolog.SetGlobalLevel(parseLogLevel(cfg.LogLevel))

	return &Client{cfg: cfg}, nil
}

// Connect builds a Client from the environment variables documented in
// the package's External Interfaces: SNOWFLAKE_URI,
// SNOWFLAKE_PRIVATE_KEY (or SNOWFLAKE_PRIVATE_KEY_PATH),
// SNOWFLAKE_ORGANIZATION, SNOWFLAKE_ACCOUNT, SNOWFLAKE_USER,
// SNOWFLAKE_DEFAULT_WAREHOUSE.
func Connect() (*Client, error) {
	cfg, err := ConfigFromEnvironment()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

func parseLogLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

func (c *Client) ensure() error {
	c.initOnce.Do(func() {
		minter, err := auth.NewMinter(
			c.cfg.PrivateKeyPEM, c.cfg.Organization, c.cfg.Account, c.cfg.User, c.cfg.jwtTTL(),
		)
		if err != nil {
			c.initErr = &ConfigError{Reason: err.Error()}
			return
		}
		c.tokens = auth.NewTokenCache(minter)

		pool, err := transport.NewPool(c.cfg.BaseURI, c.cfg.MaxConnections, c.cfg.connectionTimeout())
		if err != nil {
			c.initErr = &ConfigError{Reason: err.Error()}
			return
		}
		c.pool = pool

		c.executor = transport.NewExecutor(c.cfg.BaseURI, c.pool, c.tokens, c.cfg.HTTPRetries)

		log.Info().
			Str("base_uri", c.cfg.BaseURI).
			Int("max_connections", c.cfg.MaxConnections).
			Int("max_threads_per_query", c.cfg.MaxThreadsPerQuery).
			Msg("snowpipe client ready")
	})
	return c.initErr
}

// requester adapts *transport.Executor to partitions.Requester,
// translating internal transport errors into the package's public error
// kinds at this one boundary.
type requester struct {
	executor *transport.Executor
}

func (r requester) Do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	respBody, err := r.executor.Do(ctx, method, path, body)
	if err != nil {
		return nil, translateError(err)
	}
	return respBody, nil
}

func translateError(err error) error {
	switch e := err.(type) {
	case *transport.BadResponseError:
		return &BadResponseError{Status: e.Status, Body: e.Body}
	case *transport.StarvedError:
		return &ConnectionStarvedError{TimeoutSeconds: e.TimeoutSeconds}
	case *transport.TransportFailure:
		return &ConnectionError{Cause: e.Cause}
	case *transport.RequestConstructionError:
		return &RequestError{Cause: e.Cause}
	default:
		return err
	}
}

// Query executes sql against warehouse (falling back to the client's
// DefaultWarehouse when empty) and returns the decoded Result. When
// streaming is true, partitions beyond the first are fetched lazily as
// the caller iterates; otherwise the whole result set is materialized
// before Query returns, using a single-threaded or threaded fetch
// depending on the computed worker count.
func (c *Client) Query(ctx context.Context, sql string, warehouse string, streaming bool) (*Result, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}

	if warehouse == "" {
		warehouse = c.cfg.DefaultWarehouse
	}

	res, err := partitions.Fetch(ctx, requester{c.executor}, sql, warehouse, partitions.Config{
		ScaleFactor:        c.cfg.ThreadScaleFactor,
		MaxThreadsPerQuery: c.cfg.MaxThreadsPerQuery,
	}, streaming)
	if err != nil {
		return nil, translateError(err)
	}
	return res, nil
}

// Close closes the client's pooled connections' idle keep-alive sockets
// and releases the pool. A Client is not usable after Close.
func (c *Client) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	c.pool = nil
	return nil
}
