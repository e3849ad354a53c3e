// Package voice receives commentator audio from the external voice
// transport: a gateway websocket for presence and speaker identity, and a
// UDP channel carrying RTP-framed 48 kHz mono PCM per speaker.
package voice

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"

	"github.com/BrickBench/AutoMarathon/internal/audio"
	"github.com/BrickBench/AutoMarathon/internal/backoff"
	"github.com/BrickBench/AutoMarathon/internal/domain"
	"github.com/BrickBench/AutoMarathon/internal/hub"
	pkglog "github.com/BrickBench/AutoMarathon/pkg/log"
)

const (
	speakerRingSeconds = 1
	udpReadBuffer      = 1 << 16
	rosterTimeout      = 5 * time.Second
)

// Speaker is one voice user with a live PCM ring (48 kHz mono f32).
type Speaker struct {
	ID   string
	Name string
	Ring *audio.Ring
}

// gatewayMessage is the transport's presence protocol.
type gatewayMessage struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	SSRC   uint32 `json:"ssrc,omitempty"`
}

// Bridge connects one host's voice channel.
type Bridge struct {
	host       string
	gatewayURL string
	udpAddr    string
	hub        *hub.Hub

	mu     sync.Mutex
	bySSRC map[uint32]*Speaker
	byID   map[string]*Speaker

	quit   chan struct{}
	doneCh chan struct{}
}

// New creates a bridge for one host's voice channel.
func New(host, gatewayURL, udpAddr string, h *hub.Hub) *Bridge {
	return &Bridge{
		host:       host,
		gatewayURL: gatewayURL,
		udpAddr:    udpAddr,
		hub:        h,
		bySSRC:     make(map[uint32]*Speaker),
		byID:       make(map[string]*Speaker),
		quit:       make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the gateway and UDP loops.
func (b *Bridge) Start(ctx context.Context) {
	go b.run(ctx)
}

// Stop signals shutdown; Done closes when both loops have exited.
func (b *Bridge) Stop()                 { close(b.quit) }
func (b *Bridge) Done() <-chan struct{} { return b.doneCh }

// Speakers returns the current roster for the mixer.
func (b *Bridge) Speakers() []*Speaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Speaker, 0, len(b.byID))
	for _, s := range b.byID {
		out = append(out, s)
	}
	return out
}

func (b *Bridge) run(ctx context.Context) {
	defer close(b.doneCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.gatewayLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		b.udpLoop(ctx)
	}()
	wg.Wait()
}

// gatewayLoop maintains the presence websocket with backoff reconnects.
func (b *Bridge) gatewayLoop(ctx context.Context) {
	logger := pkglog.L().With().Str(pkglog.FieldHost, b.host).Logger()
	retry := backoff.New()

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.gatewayURL, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("voice gateway connect failed")
			if !retry.Sleep(ctx, attempt) {
				return
			}
			continue
		}
		attempt = 0
		logger.Info().Msg("voice gateway connected")

		b.readGateway(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		if !retry.Sleep(ctx, attempt) {
			return
		}
	}
}

func (b *Bridge) readGateway(ctx context.Context, conn *websocket.Conn) {
	logger := pkglog.L().With().Str(pkglog.FieldHost, b.host).Logger()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg gatewayMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Debug().Err(err).Msg("bad voice gateway message")
			continue
		}

		switch msg.Type {
		case "user_joined":
			b.addSpeaker(msg.UserID, msg.Name, msg.SSRC)
			b.reportRoster(ctx)
		case "user_left":
			b.removeSpeaker(msg.UserID)
			b.reportRoster(ctx)
		case "speaking":
			// SSRC can rotate between speaking bursts.
			b.bindSSRC(msg.UserID, msg.SSRC)
		}
	}
}

func (b *Bridge) addSpeaker(id, name string, ssrc uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byID[id]; ok {
		return
	}
	s := &Speaker{
		ID:   id,
		Name: name,
		Ring: audio.NewRing(speakerRingSeconds * audio.SampleRate),
	}
	b.byID[id] = s
	if ssrc != 0 {
		b.bySSRC[ssrc] = s
	}
}

func (b *Bridge) removeSpeaker(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.byID[id]
	if !ok {
		return
	}
	delete(b.byID, id)
	for ssrc, sp := range b.bySSRC {
		if sp == s {
			delete(b.bySSRC, ssrc)
		}
	}
}

func (b *Bridge) bindSSRC(id string, ssrc uint32) {
	if ssrc == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.byID[id]; ok {
		b.bySSRC[ssrc] = s
	}
}

// reportRoster publishes the voice user list into host state.
func (b *Bridge) reportRoster(ctx context.Context) {
	b.mu.Lock()
	users := make(map[string]domain.VoiceUser, len(b.byID))
	for id, s := range b.byID {
		users[id] = domain.VoiceUser{Name: s.Name}
	}
	b.mu.Unlock()

	applyCtx, cancel := context.WithTimeout(ctx, rosterTimeout)
	defer cancel()
	if _, err := b.hub.Apply(applyCtx, hub.SetHostVoiceUsers{Host: b.host, Users: users}); err != nil {
		logger := pkglog.L()
		logger.Debug().Err(err).Str(pkglog.FieldHost, b.host).Msg("voice roster report failed")
	}
}

// udpLoop receives RTP voice packets and routes them by SSRC.
func (b *Bridge) udpLoop(ctx context.Context) {
	logger := pkglog.L().With().Str(pkglog.FieldHost, b.host).Logger()
	retry := backoff.New()

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		err := b.receive(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Warn().Err(err).Msg("voice udp channel ended")
		if !retry.Sleep(ctx, attempt) {
			return
		}
	}
}

func (b *Bridge) receive(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", b.udpAddr)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Identify this subscriber to the voice server.
	if _, err := conn.Write([]byte(b.host)); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, udpReadBuffer)
	samples := make([]float32, udpReadBuffer/2)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return err
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}

		b.mu.Lock()
		s, ok := b.bySSRC[pkt.SSRC]
		b.mu.Unlock()
		if !ok {
			continue
		}

		count := len(pkt.Payload) / 2
		for i := 0; i < count; i++ {
			v := int16(binary.LittleEndian.Uint16(pkt.Payload[i*2:]))
			samples[i] = float32(v) / math.MaxInt16
		}
		s.Ring.Write(samples[:count])
	}
}
