// Package gateway is the HTTP and websocket boundary: REST-shaped CRUD
// mapped onto hub mutations, snapshot/lock/voice websocket channels,
// session validation, and the per-session mutation rate limit.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/BrickBench/AutoMarathon/internal/audio"
	"github.com/BrickBench/AutoMarathon/internal/hub"
	"github.com/BrickBench/AutoMarathon/internal/metrics"
	"github.com/BrickBench/AutoMarathon/internal/slashcmd"
	pkglog "github.com/BrickBench/AutoMarathon/pkg/log"
)

// Gateway serves the operator API.
type Gateway struct {
	hub      *hub.Hub
	sessions *Sessions
	levels   *audio.LevelsBus
	cmds     *slashcmd.Adapter
	clock    func() int64

	server *http.Server
}

// New assembles the gateway. clock reports epoch milliseconds; nil uses
// wall time.
func New(h *hub.Hub, sessions *Sessions, levels *audio.LevelsBus, cmds *slashcmd.Adapter, clock func() int64) *Gateway {
	if clock == nil {
		clock = func() int64 { return time.Now().UnixMilli() }
	}
	return &Gateway{hub: h, sessions: sessions, levels: levels, cmds: cmds, clock: clock}
}

// Router builds the gin engine.
func (g *Gateway) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(pkglog.L()))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/session", g.createSession)

	auth := r.Group("/", g.sessions.Auth())

	// Read side.
	auth.GET("/event", g.getEvent)
	auth.GET("/ws", g.stateWS)
	auth.GET("/ws/voice", g.voiceWS)
	auth.GET("/ws/dashboard-editor", g.editorWS)

	// Mutations.
	mut := auth.Group("/", g.sessions.RateLimit())
	mut.POST("/participant", g.createPerson)
	mut.PUT("/participant", g.updatePerson)
	mut.DELETE("/participant", g.deletePerson)

	mut.POST("/runner", g.createRunner)
	mut.PUT("/runner", g.updateRunner)
	mut.DELETE("/runner", g.deleteRunner)
	mut.POST("/runner/refresh", g.refreshRunner)

	mut.POST("/event", g.createEvent)
	mut.PUT("/event", g.updateEvent)
	mut.DELETE("/event", g.deleteEvent)

	mut.POST("/stream", g.createStream)
	mut.PUT("/stream", g.updateStream)
	mut.DELETE("/stream", g.deleteStream)

	mut.PUT("/hosts", g.setStreaming)
	mut.PUT("/discord/volume", g.setVoiceVolume)
	mut.PUT("/custom-field", g.setCustomField)
	mut.POST("/command", g.runCommand)

	return r
}

// Listen binds the port up front so a bind failure is reported before the
// process commits to serving.
func (g *Gateway) Listen(host string, port int) (net.Listener, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	g.server = &http.Server{Handler: g.Router()}
	return ln, nil
}

// Serve runs the HTTP server until Shutdown.
func (g *Gateway) Serve(ln net.Listener) error {
	err := g.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains connections; closing client websockets cancels their
// per-connection subscriptions.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}
