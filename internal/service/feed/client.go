package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	drepo "GoldPull/internal/domain/repository"
	"GoldPull/pkg/logger"

	"github.com/gorilla/websocket"
)

// ErrRetriesExhausted is returned by Reconnect once MaxRetries attempts failed.
var ErrRetriesExhausted = errors.New("feed: reconnect retries exhausted")

type Options struct {
	URL               string
	Origin            string
	SubscribeMessages []string
	Backoff           Backoff
	MaxRetries        int // 0 retries forever
	PingInterval      time.Duration
	ReadTimeout       time.Duration
}

// Client implements FeedStream over a websocket and a provider Adapter.
type Client struct {
	opts    Options
	adapter Adapter
	logger  *logger.Logger
	dialer  *websocket.Dialer

	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
	lastFrame atomic.Int64
}

var _ drepo.FeedStream = (*Client)(nil)

func NewClient(opts Options, adapter Adapter, l *logger.Logger) *Client {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	return &Client{
		opts:    opts,
		adapter: adapter,
		logger:  l.With("feed"),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
	}
}

// Connect establishes the websocket connection.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.opts.Origin != "" {
		header.Set("Origin", c.opts.Origin)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	c.connected.Store(true)

	c.logger.Info("feed connected", logger.String("url", c.opts.URL), logger.String("adapter", c.adapter.Name()))
	return nil
}

// Subscribe sends the configured subscription frames, if any.
func (c *Client) Subscribe(ctx context.Context) error {
	if !c.connected.Load() {
		return fmt.Errorf("feed not connected")
	}
	for _, msg := range c.opts.SubscribeMessages {
		if err := c.write([]byte(msg)); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}
	return nil
}

func (c *Client) write(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("feed conn nil")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Read streams accepted payloads in arrival order until the connection fails
// or ctx ends. The error channel carries the reason before both channels close.
func (c *Client) Read(ctx context.Context) (<-chan []byte, <-chan error) {
	payloads := make(chan []byte, 64)
	errs := make(chan error, 1)

	c.writeMu.Lock()
	conn := c.conn
	c.writeMu.Unlock()

	if conn == nil {
		errs <- fmt.Errorf("feed conn nil")
		close(errs)
		close(payloads)
		return payloads, errs
	}

	done := make(chan struct{})
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	go func() {
		defer close(payloads)
		defer close(errs)
		defer close(done)

		for {
			if ctx.Err() != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
			_, frame, err := conn.ReadMessage()
			if err != nil {
				c.connected.Store(false)
				if ctx.Err() == nil {
					errs <- fmt.Errorf("feed read: %w", err)
				}
				return
			}
			c.lastFrame.Store(time.Now().UnixMilli())

			env := c.adapter.Decode(frame)
			if env.Reply != nil {
				if err := c.write(env.Reply); err != nil {
					errs <- fmt.Errorf("feed reply: %w", err)
					return
				}
			}
			if env.Closed {
				c.connected.Store(false)
				errs <- fmt.Errorf("feed closed by server")
				return
			}
			if env.Payload == nil {
				if env.Channel != "" {
					c.logger.Debug("feed channel ignored", logger.String("channel", env.Channel))
				}
				continue
			}

			select {
			case payloads <- env.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	return payloads, errs
}

// Reconnect closes the connection and redials with backoff until it succeeds,
// ctx ends, or MaxRetries is reached.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()

	for attempt := 1; ; attempt++ {
		if c.opts.MaxRetries > 0 && attempt > c.opts.MaxRetries {
			return ErrRetriesExhausted
		}

		wait := c.opts.Backoff.Next(attempt)
		c.logger.Warn("feed reconnecting", logger.Int("attempt", attempt), logger.Duration("wait_ms", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := c.Connect(ctx); err != nil {
			c.logger.Warn("feed reconnect failed", logger.Int("attempt", attempt), logger.Error(err))
			continue
		}
		if err := c.Subscribe(ctx); err != nil {
			c.logger.Warn("feed resubscribe failed", logger.Int("attempt", attempt), logger.Error(err))
			_ = c.Close()
			continue
		}
		return nil
	}
}

// Close closes the websocket connection.
func (c *Client) Close() error {
	c.connected.Store(false)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) IsConnected() bool { return c.connected.Load() }

// LastFrameAt returns when the last frame arrived, zero if none.
func (c *Client) LastFrameAt() time.Time {
	ms := c.lastFrame.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
