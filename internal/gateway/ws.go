package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/BrickBench/AutoMarathon/internal/domain"
	"github.com/BrickBench/AutoMarathon/internal/hub"
	pkglog "github.com/BrickBench/AutoMarathon/pkg/log"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingInterval   = 25 * time.Second
	wsMaxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The HTTP surface is permissive-CORS; the websocket side matches.
	CheckOrigin: func(*http.Request) bool { return true },
}

// stateWS streams full AMState snapshots: one on connect, then one per
// mutation, coalesced per subscriber.
func (g *Gateway) stateWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := g.hub.Subscribe(c.Request.Context())
	defer sub.Close()

	go discardReads(conn)

	writeLoop(conn, func(done <-chan struct{}) (any, bool) {
		select {
		case snap, ok := <-sub.C:
			return snap, ok
		case <-done:
			return nil, false
		}
	})
}

// voiceWS streams 10 Hz per-host voice activity reports.
func (g *Gateway) voiceWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	levels, cancel := g.levels.Subscribe()
	defer cancel()

	go discardReads(conn)

	writeLoop(conn, func(done <-chan struct{}) (any, bool) {
		select {
		case v, ok := <-levels:
			return v, ok
		case <-done:
			return nil, false
		}
	})
}

// editorClaim is the dashboard lock channel's wire shape.
type editorClaim struct {
	Editor      *string `json:"editor"`
	HeartbeatMs int64   `json:"heartbeat_epoch_ms,omitempty"`
}

// editorWS is the bidirectional lock channel: clients send claims, the
// server broadcasts every lock transition. A client whose claim holds the
// lock releases it when the socket closes.
func (g *Gateway) editorWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	sub := g.hub.SubscribeLock(ctx)
	defer sub.Close()

	logger := pkglog.L().With().Str(pkglog.FieldSession, sessionName(c)).Logger()

	// reader: apply claims
	go func() {
		conn.SetReadLimit(wsMaxMessageSize)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})
		var lastEditor string
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var claim editorClaim
			if err := json.Unmarshal(raw, &claim); err != nil {
				logger.Debug().Err(err).Msg("bad editor claim")
				continue
			}

			var m hub.Mutation
			if claim.Editor == nil || *claim.Editor == "" {
				if lastEditor == "" {
					continue
				}
				m = hub.ReleaseLock{Editor: lastEditor}
			} else {
				lastEditor = *claim.Editor
				m = hub.ClaimLock{Editor: *claim.Editor}
			}
			if _, err := g.hub.Apply(ctx, m); err != nil {
				logger.Debug().Err(err).Msg("lock claim rejected")
			}
		}
		// Socket gone: release the lock if this client's editor holds it.
		// The request context is already cancelled here, so use a fresh one.
		if lastEditor != "" {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			snap, err := g.hub.Snapshot(releaseCtx)
			if err == nil && snap.Lock.Editor == lastEditor {
				logger.Info().Str(pkglog.FieldEditor, lastEditor).Msg("editor disconnected, unlocking dashboard")
				g.hub.Apply(releaseCtx, hub.ReleaseLock{Editor: lastEditor})
			}
		}
	}()

	writeLoop(conn, func(done <-chan struct{}) (any, bool) {
		select {
		case state, ok := <-sub.C:
			if !ok {
				return nil, false
			}
			return lockStateOf(state), true
		case <-done:
			return nil, false
		}
	})
}

// lockStateOf adapts a domain lock for JSON broadcast (nil editor when
// unheld, matching the claim shape).
func lockStateOf(l domain.LockState) editorClaim {
	out := editorClaim{HeartbeatMs: l.HeartbeatMs}
	if l.Held() {
		editor := l.Editor
		out.Editor = &editor
	}
	return out
}

// writeLoop serializes values from next onto the socket with pings,
// returning when either side ends. The done channel stops the producer
// goroutine so a dead socket does not strand it on a subscription read.
func writeLoop(conn *websocket.Conn, next func(done <-chan struct{}) (any, bool)) {
	type item struct {
		v  any
		ok bool
	}
	done := make(chan struct{})
	defer close(done)

	items := make(chan item, 1)
	go func() {
		for {
			v, ok := next(done)
			select {
			case items <- item{v, ok}:
			case <-done:
				return
			}
			if !ok {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case it := <-items:
			if !it.ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(it.v); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// discardReads drains a socket whose client never sends, keeping pong
// handling alive and noticing disconnects.
func discardReads(conn *websocket.Conn) {
	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
