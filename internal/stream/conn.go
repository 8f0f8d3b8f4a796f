// Package stream maintains the push connection for a single thread.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/capitalize-ai/chatcore/internal/model"
	"github.com/capitalize-ai/chatcore/pkg/logger"
	"github.com/capitalize-ai/chatcore/pkg/metrics"
)

// Close codes used by the push server.
const (
	CloseServerError     websocket.StatusCode = 4000
	CloseUnauthenticated websocket.StatusCode = 4001
	CloseNoProfile       websocket.StatusCode = 4002
	CloseAccessDenied    websocket.StatusCode = 4003
)

var (
	// ErrAccessDenied is reported when the server refuses access to the thread.
	ErrAccessDenied = errors.New("stream access denied")
	// ErrUnauthenticated is reported when the server rejects the credentials.
	ErrUnauthenticated = errors.New("stream unauthenticated")
)

// Subscription is an open event stream for one thread.
type Subscription interface {
	ThreadID() int64
	Events() <-chan model.StreamEvent
	Err() error
	Close() error
}

// Opener opens event streams.
type Opener interface {
	Open(ctx context.Context, threadID int64) (Subscription, error)
}

// Config holds push connection settings.
type Config struct {
	BaseURL          string
	Token            string
	HandshakeTimeout time.Duration
	Buffer           int
}

// Dialer opens per-thread WebSocket connections.
type Dialer struct {
	cfg Config
	log *logger.Logger
}

var _ Opener = (*Dialer)(nil)

// NewDialer creates a dialer for the push server at cfg.BaseURL.
func NewDialer(cfg Config, log *logger.Logger) *Dialer {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Dialer{cfg: cfg, log: log}
}

// URL returns the stream endpoint for a thread.
func (d *Dialer) URL(threadID int64) string {
	return fmt.Sprintf("%s/ws/chat/%d/", strings.TrimSuffix(d.cfg.BaseURL, "/"), threadID)
}

// Open satisfies Opener.
func (d *Dialer) Open(ctx context.Context, threadID int64) (Subscription, error) {
	c, err := d.Dial(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Dial connects to the thread's stream and starts reading events.
func (d *Dialer) Dial(ctx context.Context, threadID int64) (*Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.cfg.HandshakeTimeout)
	defer cancel()

	target := d.URL(threadID)
	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if d.cfg.Token != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+d.cfg.Token)
		u, err := url.Parse(target)
		if err == nil {
			q := u.Query()
			q.Set("token", d.cfg.Token)
			u.RawQuery = q.Encode()
			target = u.String()
		}
	}

	ws, resp, err := websocket.Dial(dialCtx, target, opts)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusForbidden:
				return nil, fmt.Errorf("dial thread %d: %w", threadID, ErrAccessDenied)
			case http.StatusUnauthorized:
				return nil, fmt.Errorf("dial thread %d: %w", threadID, ErrUnauthenticated)
			}
		}
		return nil, fmt.Errorf("dial thread %d: %w", threadID, err)
	}

	readCtx, stop := context.WithCancel(context.Background())
	c := &Conn{
		threadID: threadID,
		ws:       ws,
		events:   make(chan model.StreamEvent, d.cfg.Buffer),
		stop:     stop,
		done:     make(chan struct{}),
		log:      d.log.With(zap.Int64("thread_id", threadID)),
	}
	metrics.StreamConnectionsActive.Inc()
	go c.read(readCtx)

	c.log.Debug("stream connected")
	return c, nil
}

// Conn is an open stream for one thread.
type Conn struct {
	threadID int64
	ws       *websocket.Conn
	events   chan model.StreamEvent
	stop     context.CancelFunc
	done     chan struct{}
	log      *logger.Logger

	mu     sync.Mutex
	err    error
	closed bool
}

// ThreadID returns the thread the connection was opened for.
func (c *Conn) ThreadID() int64 {
	return c.threadID
}

// Events returns the event channel. It is closed when the connection ends.
func (c *Conn) Events() <-chan model.StreamEvent {
	return c.events
}

// Err returns why the connection ended, or nil for a local or normal close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close shuts the connection down and waits for the reader to exit.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stop()
	if err := c.ws.Close(websocket.StatusNormalClosure, ""); err != nil {
		c.log.Debug("stream close handshake incomplete", zap.Error(err))
	}
	<-c.done
	return nil
}

type outbound struct {
	Type       string  `json:"type"`
	IsTyping   *bool   `json:"is_typing,omitempty"`
	MessageIDs []int64 `json:"message_ids,omitempty"`
}

// SendTyping notifies other participants that the user is typing.
func (c *Conn) SendTyping(ctx context.Context, typing bool) error {
	return wsjson.Write(ctx, c.ws, outbound{Type: "typing", IsTyping: &typing})
}

// SendReadReceipt marks messages as read on the server.
func (c *Conn) SendReadReceipt(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return wsjson.Write(ctx, c.ws, outbound{Type: "read_receipt", MessageIDs: ids})
}

func (c *Conn) read(ctx context.Context) {
	defer func() {
		metrics.StreamConnectionsActive.Dec()
		close(c.events)
		close(c.done)
	}()

	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			c.finish(err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var ev model.StreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.Warn("dropping malformed stream frame", zap.Error(err))
			continue
		}
		ev.ThreadID = c.threadID

		select {
		case c.events <- ev:
		case <-ctx.Done():
			c.finish(ctx.Err())
			return
		}
	}
}

func (c *Conn) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		c.log.Debug("stream closed by server")
		return
	case CloseAccessDenied:
		c.err = fmt.Errorf("thread %d: %w", c.threadID, ErrAccessDenied)
	case CloseUnauthenticated, CloseNoProfile:
		c.err = fmt.Errorf("thread %d: %w", c.threadID, ErrUnauthenticated)
	default:
		c.err = fmt.Errorf("thread %d: %w", c.threadID, err)
	}
	c.log.Warn("stream ended", zap.Error(c.err))
}
