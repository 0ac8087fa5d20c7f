package websocket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/mselser95/execution-gateway/pkg/types"
	"go.uber.org/zap"
)

// Listener receives decoded ticks and connection state changes.
type Listener interface {
	OnTick(tick types.Tick) bool
	SetConnected(connected bool)
	SetExhausted(exhausted bool)
	Track(keys ...string)
	Untrack(keys ...string)
}

// Config holds market data stream configuration.
type Config struct {
	URL          string
	DialTimeout  time.Duration
	PongTimeout  time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
	Backoff      BackoffConfig
	Listener     Listener
	Logger       *zap.Logger
}

// controlMessage is the subscribe/unsubscribe frame sent upstream.
type controlMessage struct {
	Action      string   `json:"action"`
	Instruments []string `json:"instruments"`
}

// Client maintains one streaming connection and keeps it alive.
type Client struct {
	cfg      Config
	logger   *zap.Logger
	listener Listener
	backoff  *Backoff

	mu         sync.RWMutex
	conn       *websocket.Conn
	subscribed map[string]bool

	writeMu   sync.Mutex
	connected atomic.Bool
	attempts  atomic.Int64
}

// New creates a stream client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.URL == "" {
		return nil, errors.New("url cannot be empty")
	}
	if cfg.Listener == nil {
		return nil, errors.New("listener cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	c := *cfg
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}

	return &Client{
		cfg:        c,
		logger:     c.Logger,
		listener:   c.Listener,
		backoff:    NewBackoff(c.Backoff),
		subscribed: make(map[string]bool),
	}, nil
}

// Connected reports whether the stream is currently up.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Subscriptions returns the subscribed instrument keys, sorted.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.subscribed))
	for k := range c.subscribed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Subscribe adds instruments to the stream. When disconnected the keys
// are remembered and sent on the next successful connect.
func (c *Client) Subscribe(keys ...string) error {
	c.mu.Lock()
	added := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || c.subscribed[k] {
			continue
		}
		c.subscribed[k] = true
		added = append(added, k)
	}
	total := len(c.subscribed)
	conn := c.conn
	c.mu.Unlock()

	if len(added) == 0 {
		return nil
	}

	c.listener.Track(added...)
	SubscriptionCount.Set(float64(total))

	if conn == nil || !c.connected.Load() {
		c.logger.Debug("subscription-deferred-until-connected", zap.Strings("instruments", added))
		return nil
	}

	err := c.write(conn, controlMessage{Action: "subscribe", Instruments: added})
	if err != nil {
		// The keys stay registered; the reconnect path resubscribes them.
		return fmt.Errorf("write subscribe message: %w", err)
	}

	c.logger.Info("subscribed-to-instruments",
		zap.Int("new-count", len(added)),
		zap.Int("total-count", total))
	return nil
}

// Unsubscribe removes instruments from the stream.
func (c *Client) Unsubscribe(keys ...string) error {
	c.mu.Lock()
	removed := make([]string, 0, len(keys))
	for _, k := range keys {
		if c.subscribed[k] {
			delete(c.subscribed, k)
			removed = append(removed, k)
		}
	}
	total := len(c.subscribed)
	conn := c.conn
	c.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}

	c.listener.Untrack(removed...)
	SubscriptionCount.Set(float64(total))

	if conn == nil || !c.connected.Load() {
		return nil
	}

	err := c.write(conn, controlMessage{Action: "unsubscribe", Instruments: removed})
	if err != nil {
		return fmt.Errorf("write unsubscribe message: %w", err)
	}

	c.logger.Info("unsubscribed-from-instruments",
		zap.Int("count", len(removed)),
		zap.Int("remaining-count", total))
	return nil
}

// Run connects and keeps reconnecting until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("market-stream-starting", zap.String("url", c.cfg.URL))

	for {
		if ctx.Err() != nil {
			return nil
		}

		if c.attempts.Add(1) > 1 {
			ReconnectAttemptsTotal.Inc()
		}

		conn, err := c.connect(ctx)
		if err == nil {
			c.serve(ctx, conn)
		} else if ctx.Err() == nil {
			ReconnectFailuresTotal.Inc()
			c.logger.Warn("market-stream-connect-failed", zap.Error(err))
		}

		c.listener.SetConnected(false)
		if ctx.Err() != nil {
			return nil
		}

		wait, exhausted := c.backoff.Next()
		if exhausted {
			ExhaustedTotal.Inc()
			c.listener.SetExhausted(true)
			c.logger.Error("market-stream-reconnect-exhausted",
				zap.Int("max-failures", c.backoff.cfg.MaxFailures),
				zap.Duration("cooldown", wait))
		} else {
			c.logger.Info("market-stream-reconnect-scheduled",
				zap.Duration("wait", wait),
				zap.Int("consecutive-failures", c.backoff.Failures()))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// connect dials, resubscribes, and reports the stream up.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected.Store(true)
	c.mu.Unlock()

	keys := c.Subscriptions()
	if len(keys) > 0 {
		err = c.write(conn, controlMessage{Action: "subscribe", Instruments: keys})
		if err != nil {
			c.mu.Lock()
			c.conn = nil
			c.connected.Store(false)
			c.mu.Unlock()
			conn.Close()
			return nil, fmt.Errorf("resubscribe: %w", err)
		}
	}

	c.backoff.Reset()
	ActiveConnections.Set(1)
	c.listener.SetExhausted(false)
	c.listener.SetConnected(true)

	c.logger.Info("market-stream-connected", zap.Int("instruments", len(keys)))
	return conn, nil
}

// serve runs the read and ping loops until the connection drops.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	start := time.Now()
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer wg.Done()
		c.pingLoop(conn, done)
	}()

	err := c.readLoop(conn)
	if ctx.Err() == nil {
		c.logger.Warn("market-stream-disconnected", zap.Error(err))
	}

	close(done)
	conn.Close()
	wg.Wait()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	c.connected.Store(false)
	ActiveConnections.Set(0)
	ConnectionDuration.Observe(time.Since(start).Seconds())
}

// readLoop decodes frames until a read fails.
func (c *Client) readLoop(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))

		ticks, kind := decode(message)
		MessagesReceivedTotal.WithLabelValues(kind).Inc()
		if kind == "unparseable" {
			previewLen := len(message)
			if previewLen > 100 {
				previewLen = 100
			}
			c.logger.Debug("market-stream-unparseable-message",
				zap.Int("bytes", len(message)),
				zap.String("preview", string(message[:previewLen])))
			continue
		}

		for _, t := range ticks {
			c.listener.OnTick(t)
		}
	}
}

// pingLoop sends periodic pings until done is closed.
func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

func (c *Client) write(conn *websocket.Conn, msg controlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// decode accepts a single tick object or an array of ticks. Objects
// carrying a "type" field are control frames and yield no ticks.
func decode(message []byte) ([]types.Tick, string) {
	trimmed := bytes.TrimSpace(message)
	if len(trimmed) == 0 {
		return nil, "heartbeat"
	}

	switch trimmed[0] {
	case '[':
		var ticks []types.Tick
		if err := json.Unmarshal(trimmed, &ticks); err != nil {
			return nil, "unparseable"
		}
		if len(ticks) == 0 {
			return nil, "heartbeat"
		}
		return ticks, "tick"
	case '{':
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return nil, "unparseable"
		}
		if probe.Type != "" {
			return nil, "control"
		}
		var t types.Tick
		if err := json.Unmarshal(trimmed, &t); err != nil {
			return nil, "unparseable"
		}
		return []types.Tick{t}, "tick"
	default:
		return nil, "unparseable"
	}
}
