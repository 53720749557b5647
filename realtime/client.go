// Package realtime implements the WebSocket transport client for the
// OpenAI Realtime API: outbound event framing with event_id stamping,
// inbound event parsing, and typed callback dispatch.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// DefaultURL is the Realtime API WebSocket endpoint.
	DefaultURL = "wss://api.openai.com/v1/realtime"
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-realtime-preview"
)

// State is the transport connection state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed // terminal
	StateFailed // terminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handlers holds typed callbacks per event category. Nil callbacks are
// skipped. OnMessage receives the parsed event along with the raw frame;
// OnSent receives the exact outbound event including its stamped event_id.
type Handlers struct {
	OnOpen    func()
	OnClose   func()
	OnMessage func(event ServerEvent, raw []byte)
	OnError   func(err error)
	OnSent    func(event ClientEvent)
}

// Config holds configuration for the transport client.
type Config struct {
	// URL defaults to DefaultURL; the model is appended as a query param.
	URL string
	// Model selects the realtime model; defaults to DefaultModel.
	Model string
	// Secret authenticates the connection: an ephemeral client secret or
	// a long-lived API key.
	Secret string
	// Handlers receive connection lifecycle and event notifications.
	Handlers Handlers
	// Dialer overrides the default gorilla dialer (used in tests).
	Dialer *websocket.Dialer
}

// Client is a WebSocket transport client. The connection handle is owned
// exclusively by one Client; outbound events are transmitted in call order.
type Client struct {
	url      string
	secret   string
	dialer   *websocket.Dialer
	handlers Handlers

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	// writeMu serializes frame writes so sends transmit in call order.
	writeMu sync.Mutex
}

// NewClient creates a transport client in the Idle state.
func NewClient(cfg Config) *Client {
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	return &Client{
		url:      fmt.Sprintf("%s?model=%s", url, model),
		secret:   cfg.Secret,
		dialer:   dialer,
		handlers: cfg.Handlers,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the WebSocket session. It fails with ErrAlreadyConnected if
// a connection is already open or being opened. On handshake failure the
// client transitions to Failed (terminal); no automatic retry is attempted.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.secret)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.mu.Unlock()
		return fmt.Errorf("realtime: dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	if c.handlers.OnOpen != nil {
		c.handlers.OnOpen()
	}

	go c.readLoop(conn)

	return nil
}

// Send stamps the event with a process-unique event_id if absent, serializes
// it to text, transmits it, and notifies OnSent with the stamped event. It
// fails with ErrNotConnected unless the connection is open.
func (c *Client) Send(event ClientEvent) error {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	if event.EventID() == "" {
		event["event_id"] = newEventID()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("realtime: marshal event: %w", err)
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("realtime: write: %w", err)
	}

	if c.handlers.OnSent != nil {
		c.handlers.OnSent(event)
	}
	return nil
}

// Disconnect closes the connection and transitions to Closed. It is
// idempotent and safe to call from any state. In-flight sends are not
// drained.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	wasOpen := c.state == StateOpen
	c.state = StateClosed
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		c.writeMu.Unlock()
		conn.Close()
	}

	if wasOpen && c.handlers.OnClose != nil {
		c.handlers.OnClose()
	}
}

// readLoop parses inbound frames and dispatches them in arrival order. A
// malformed payload raises a ParseError through OnError but keeps the
// connection open.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasOpen := c.state == StateOpen && c.conn == conn
			if wasOpen {
				c.conn = nil
				c.state = StateClosed
			}
			c.mu.Unlock()

			if wasOpen {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && c.handlers.OnError != nil {
					c.handlers.OnError(fmt.Errorf("realtime: read: %w", err))
				}
				if c.handlers.OnClose != nil {
					c.handlers.OnClose()
				}
			}
			return
		}

		event, err := ParseEvent(data)
		if err != nil {
			if c.handlers.OnError != nil {
				c.handlers.OnError(&ParseError{Data: data, Err: err})
			}
			continue
		}

		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(event, data)
		}
	}
}

// newEventID builds a process-unique identifier from a millisecond timestamp
// and a random suffix.
func newEventID() string {
	return "evt_" + strconv.FormatInt(time.Now().UnixMilli(), 36) + "_" + uuid.NewString()[:8]
}
