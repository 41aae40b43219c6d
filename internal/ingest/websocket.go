package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"waveplot/internal/platform/metrics"
	"waveplot/internal/waveform"
)

// Websocket transport defaults.
const (
	DefaultHeartbeat   = 30 * time.Second
	DefaultDialTimeout = 10 * time.Second
	writeTimeout       = 5 * time.Second
	// A session is considered dead after this many heartbeats without
	// data or a pong.
	missedHeartbeats = 3
)

// WebSocketConfig identifies the feed and this module on it.
type WebSocketConfig struct {
	URL         string
	RingID      int
	ModuleID    int
	InstanceID  int
	Heartbeat   time.Duration
	DialTimeout time.Duration
	QueueSize   int
}

// WebSocketClient reads JSON waves from a websocket feed. A reader goroutine
// decodes messages into a bounded channel that Poll drains without blocking;
// a heartbeat goroutine pings the feed and liveness drops when the feed goes
// quiet for missedHeartbeats intervals. Frames that do not decode are dropped;
// only connection errors end the session.
type WebSocketClient struct {
	cfg     WebSocketConfig
	log     *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	conn  *websocket.Conn
	waves chan waveform.Packet
	done  chan struct{}
	wg    sync.WaitGroup

	alive atomic.Bool
}

// NewWebSocketClient returns an unopened client. Zero durations take defaults;
// m may be nil.
func NewWebSocketClient(cfg WebSocketConfig, log *slog.Logger, m *metrics.Metrics) *WebSocketClient {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &WebSocketClient{cfg: cfg, log: log.With("component", "websocket-transport"), metrics: m}
}

// Open implements Client. It dials the feed, announcing ring, module and
// instance ids as query parameters.
func (c *WebSocketClient) Open(ctx context.Context) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("transport url: %w", err)
	}
	q := u.Query()
	q.Set("ring", strconv.Itoa(c.cfg.RingID))
	q.Set("module", strconv.Itoa(c.cfg.ModuleID))
	q.Set("inst", strconv.Itoa(c.cfg.InstanceID))
	u.RawQuery = q.Encode()

	dctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	quiet := missedHeartbeats * c.cfg.Heartbeat
	conn.SetReadDeadline(time.Now().Add(quiet))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(quiet))
	})

	c.mu.Lock()
	c.conn = conn
	c.waves = make(chan waveform.Packet, c.cfg.QueueSize)
	c.done = make(chan struct{})
	c.alive.Store(true)
	c.wg.Add(2)
	go c.readLoop(conn, c.waves, c.done, quiet)
	go c.heartbeat(conn, c.done)
	c.mu.Unlock()

	c.log.Info("transport connected",
		slog.String("url", u.Redacted()),
		slog.Duration("heartbeat", c.cfg.Heartbeat))
	return nil
}

func (c *WebSocketClient) readLoop(conn *websocket.Conn, waves chan<- waveform.Packet, done <-chan struct{}, quiet time.Duration) {
	defer c.wg.Done()
	defer close(waves)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				c.log.Warn("transport read failed", slog.String("error", err.Error()))
			}
			c.alive.Store(false)
			return
		}
		conn.SetReadDeadline(time.Now().Add(quiet))

		var w Wave
		if err := json.Unmarshal(msg, &w); err != nil {
			c.log.Warn("undecodable wave dropped",
				slog.Int("bytes", len(msg)),
				slog.String("error", err.Error()))
			if c.metrics != nil {
				c.metrics.IncPacketsDropped(metrics.ReasonMalformed)
			}
			continue
		}
		if w.Empty() {
			continue
		}
		select {
		case waves <- w.Packet():
		case <-done:
			return
		}
	}
}

func (c *WebSocketClient) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.log.Warn("heartbeat failed", slog.String("error", err.Error()))
				c.alive.Store(false)
				return
			}
		}
	}
}

// Alive implements Client.
func (c *WebSocketClient) Alive() bool {
	return c.alive.Load()
}

// Poll implements Client.
func (c *WebSocketClient) Poll(ctx context.Context) (waveform.Packet, bool, error) {
	c.mu.Lock()
	waves := c.waves
	c.mu.Unlock()
	if waves == nil {
		return waveform.Packet{}, false, ErrTransportClosed
	}
	select {
	case p, ok := <-waves:
		if !ok {
			return waveform.Packet{}, false, ErrTransportClosed
		}
		return p, true, nil
	default:
		return waveform.Packet{}, false, nil
	}
}

// Goodbye implements Client: it sends a normal close frame and tears the
// session down. The close write is bounded by ctx's deadline.
func (c *WebSocketClient) Goodbye(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}

	close(c.done)
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "goodbye")
	err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	if errors.Is(err, websocket.ErrCloseSent) {
		err = nil
	}
	c.conn.Close()
	c.wg.Wait()

	c.conn = nil
	c.waves = nil
	c.alive.Store(false)
	c.log.Info("transport closed")
	return err
}
