// Package client streams frames to a running focus monitor over its
// /analyze WebSocket.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-focus/pkg/focus"
)

// DefaultURL is the analyze stream of a local service.
const DefaultURL = "ws://127.0.0.1:8000/analyze"

// ErrClosed is returned after Close.
var ErrClosed = errors.New("client closed")

// RemoteError is a frame the service refused or could not analyze.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "focus service: " + e.Message
}

type request struct {
	Frame     string `json:"frame"`
	SessionID string `json:"session_id,omitempty"`
}

// Client is a connection to the analyze stream. Requests are answered in
// order, so one exchange runs at a time.
type Client struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	timeout time.Duration
	session string
	closed  bool
}

// Option configures a Client.
type Option func(*Client)

// WithSession analyzes frames in the named session instead of the default.
func WithSession(id string) Option {
	return func(c *Client) { c.session = id }
}

// WithTimeout bounds each request/response exchange.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Dial connects to the analyze stream at rawURL.
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Client, error) {
	c := &Client{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(c)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if c.session != "" {
		q := u.Query()
		q.Set("session", c.session)
		u.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to focus service: %w", err)
	}
	c.ws = ws
	return c, nil
}

// Analyze sends an encoded image as a base64 text message and waits for
// its result.
func (c *Client) Analyze(image []byte) (focus.Result, error) {
	msg, err := json.Marshal(request{
		Frame:     base64.StdEncoding.EncodeToString(image),
		SessionID: c.session,
	})
	if err != nil {
		return focus.Result{}, err
	}
	return c.exchange(websocket.TextMessage, msg)
}

// AnalyzeRaw sends an encoded image as a binary message and waits for its
// result.
func (c *Client) AnalyzeRaw(image []byte) (focus.Result, error) {
	return c.exchange(websocket.BinaryMessage, image)
}

func (c *Client) exchange(mt int, msg []byte) (focus.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return focus.Result{}, ErrClosed
	}

	if c.timeout > 0 {
		deadline := time.Now().Add(c.timeout)
		c.ws.SetWriteDeadline(deadline)
		c.ws.SetReadDeadline(deadline)
	}
	if err := c.ws.WriteMessage(mt, msg); err != nil {
		return focus.Result{}, fmt.Errorf("send frame: %w", err)
	}

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return focus.Result{}, fmt.Errorf("read result: %w", err)
	}
	var res focus.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return focus.Result{}, fmt.Errorf("decode result: %w", err)
	}
	if !res.Success {
		return res, &RemoteError{Message: res.Error}
	}
	return res, nil
}

// Close says goodbye and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}
