// Package natsclient manages the NATS connection shared by the JetStream
// backed store adapters (key-value, blob, vector).
package natsclient

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/quilross/aquil-symbolic-engine-sub003/errors"
)

// Error messages
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
)

// Client wraps a NATS connection and its JetStream context. A nil or
// unconnected client is how the adapters detect configuration absence: they
// report themselves unavailable instead of failing per call.
type Client struct {
	url    string
	logger *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream

	connected atomic.Bool

	// Connection options
	name          string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets the structured logger used for connection events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithName sets the client connection name reported to the server.
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithTimeout sets the connect and request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxReconnects sets the reconnection attempt cap (-1 for infinite).
func WithMaxReconnects(n int) Option {
	return func(c *Client) { c.maxReconnects = n }
}

// New creates a client for the given server URL. Connect must be called
// before the JetStream accessors are usable.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:           url,
		logger:        slog.Default(),
		name:          "aquilog",
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the NATS connection and JetStream context.
func (c *Client) Connect() error {
	conn, err := nats.Connect(c.url,
		nats.Name(c.name),
		nats.Timeout(c.timeout),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.connected.Store(false)
			c.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.connected.Store(true)
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return errors.WrapTransient(err, "Client", "Connect", "connect to "+c.url)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return errors.WrapFatal(err, "Client", "Connect", "create JetStream context")
	}

	c.conn = conn
	c.js = js
	c.connected.Store(true)
	c.logger.Info("NATS connected", "url", c.url)
	return nil
}

// Connected reports whether the connection is currently usable.
func (c *Client) Connected() bool {
	return c != nil && c.connected.Load() && c.conn != nil && c.conn.IsConnected()
}

// JetStream returns the JetStream context, or nil before Connect.
func (c *Client) JetStream() jetstream.JetStream {
	if c == nil {
		return nil
	}
	return c.js
}

// EnsureKeyValue opens a KV bucket, creating it when missing.
func (c *Client) EnsureKeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	if !c.Connected() {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", "EnsureKeyValue", "open bucket "+bucket)
	}
	kv, err := c.js.KeyValue(ctx, bucket)
	if err == nil {
		return kv, nil
	}
	kv, err = c.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "EnsureKeyValue", "create bucket "+bucket)
	}
	return kv, nil
}

// EnsureObjectStore opens an object store bucket, creating it when missing.
func (c *Client) EnsureObjectStore(ctx context.Context, bucket string) (jetstream.ObjectStore, error) {
	if !c.Connected() {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", "EnsureObjectStore", "open bucket "+bucket)
	}
	os, err := c.js.ObjectStore(ctx, bucket)
	if err == nil {
		return os, nil
	}
	os, err = c.js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{Bucket: bucket})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "EnsureObjectStore", "create bucket "+bucket)
	}
	return os, nil
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.connected.Store(false)
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}
