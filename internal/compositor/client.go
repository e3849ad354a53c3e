// Package compositor implements the websocket control channel to one
// broadcast compositor host: request/response calls matched by a monotonic
// id, plus an event stream for scene and stream-state changes.
package compositor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BrickBench/AutoMarathon/internal/domain"
	pkglog "github.com/BrickBench/AutoMarathon/pkg/log"
)

const (
	// CallTimeout bounds one compositor command round-trip.
	CallTimeout = 5 * time.Second

	dialTimeout  = 30 * time.Second
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	eventBuffer  = 64
)

// Conn abstracts the control channel so the reconciler can be driven by a
// fake in tests.
type Conn interface {
	Call(ctx context.Context, op string, data, out any) error
	Events() <-chan Event
	Close()
	Err() <-chan struct{}
}

// Client is a live websocket connection to one compositor.
type Client struct {
	conn   *websocket.Conn
	nextID atomic.Uint64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan frame

	events chan Event
	closed chan struct{}
	once   sync.Once
}

// Dial connects and authenticates against the host's endpoint.
func Dial(ctx context.Context, endpoint, password string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrUpstream, endpoint, err)
	}

	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan frame),
		events:  make(chan Event, eventBuffer),
		closed:  make(chan struct{}),
	}

	go c.readLoop()
	go c.pingLoop()

	if err := c.identify(ctx, password); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) identify(ctx context.Context, password string) error {
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()
	return c.Call(ctx, "Identify", map[string]string{"password": password}, nil)
}

// Call sends one request and waits for its response or the context.
func (c *Client) Call(ctx context.Context, op string, data, out any) error {
	id := c.nextID.Add(1)

	var payload json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("%w: encode %s: %v", domain.ErrBadRequest, op, err)
		}
		payload = encoded
	}

	reply := make(chan frame, 1)
	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(frame{Op: "request", ID: id, Type: op, Data: payload}); err != nil {
		return err
	}

	select {
	case f := <-reply:
		if f.Status != nil && !f.Status.Result {
			return fmt.Errorf("%w: %s: %s", domain.ErrUpstream, op, f.Status.Comment)
		}
		if out != nil && len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, out); err != nil {
				return fmt.Errorf("%w: decode %s response: %v", domain.ErrUpstream, op, err)
			}
		}
		return nil
	case <-c.closed:
		return fmt.Errorf("%w: connection closed during %s", domain.ErrUpstream, op)
	case <-ctx.Done():
		return fmt.Errorf("%w: %s", domain.ErrTimeout, op)
	}
}

// Events returns the push-event stream. The channel closes when the
// connection dies.
func (c *Client) Events() <-chan Event { return c.events }

// Err is closed when the connection is no longer usable.
func (c *Client) Err() <-chan struct{} { return c.closed }

// Close tears the connection down. The event channel is closed by the
// read loop, its only sender.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

func (c *Client) write(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("%w: write: %v", domain.ErrUpstream, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		c.Close()
		close(c.events)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger := pkglog.L()
				logger.Debug().Err(err).Msg("compositor connection closed")
			}
			return
		}

		switch f.Op {
		case "response":
			c.mu.Lock()
			reply, ok := c.pending[f.ID]
			c.mu.Unlock()
			if ok {
				reply <- f
			}
		case "event":
			select {
			case c.events <- Event{Type: f.Type, Data: f.Data}:
			default:
				// A full buffer means the reconciler is behind; it
				// re-syncs from the full scene graph, so dropping is safe.
			}
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.Close()
				return
			}
		}
	}
}

// Typed wrappers for the operations the reconciler uses.

func GetSceneList(ctx context.Context, c Conn) (SceneList, error) {
	var out SceneList
	err := c.Call(ctx, OpGetSceneList, nil, &out)
	return out, err
}

func SetProgramScene(ctx context.Context, c Conn, scene string) error {
	return c.Call(ctx, OpSetProgramScene, map[string]string{"scene_name": scene}, nil)
}

func SetInputSettings(ctx context.Context, c Conn, input string, settings map[string]any) error {
	return c.Call(ctx, OpSetInputSettings, map[string]any{"input": input, "settings": settings}, nil)
}

func SetInputMute(ctx context.Context, c Conn, input string, muted bool) error {
	return c.Call(ctx, OpSetInputMute, map[string]any{"input": input, "muted": muted}, nil)
}

func GetStreamStatus(ctx context.Context, c Conn) (StreamStatus, error) {
	var out StreamStatus
	err := c.Call(ctx, OpGetStreamStatus, nil, &out)
	return out, err
}

func StartStream(ctx context.Context, c Conn) error {
	return c.Call(ctx, OpStartStream, nil, nil)
}

func StopStream(ctx context.Context, c Conn) error {
	return c.Call(ctx, OpStopStream, nil, nil)
}
