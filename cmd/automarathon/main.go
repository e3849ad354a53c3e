package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BrickBench/AutoMarathon/internal/audio"
	"github.com/BrickBench/AutoMarathon/internal/compositor"
	"github.com/BrickBench/AutoMarathon/internal/config"
	"github.com/BrickBench/AutoMarathon/internal/gateway"
	"github.com/BrickBench/AutoMarathon/internal/hub"
	"github.com/BrickBench/AutoMarathon/internal/ingest"
	"github.com/BrickBench/AutoMarathon/internal/mixer"
	"github.com/BrickBench/AutoMarathon/internal/reconciler"
	"github.com/BrickBench/AutoMarathon/internal/resolver"
	"github.com/BrickBench/AutoMarathon/internal/slashcmd"
	"github.com/BrickBench/AutoMarathon/internal/store"
	"github.com/BrickBench/AutoMarathon/internal/voice"
	pkglog "github.com/BrickBench/AutoMarathon/pkg/log"
)

// Exit codes.
const (
	exitOK        = 0
	exitBadConfig = 2
	exitStoreInit = 3
	exitPortBind  = 4
)

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }

func main() {
	var (
		cfgFile  string
		port     int
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:           "automarathon",
		Short:         "Control plane and media coordinator for live speedrun marathons",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfgFile, port, logLevel)
		},
	}
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.Flags().IntVar(&port, "port", 0, "HTTP port (default 28010)")
	rootCmd.Flags().StringVar(&logLevel, "log", "", "log level")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ee, ok := err.(exitError); ok {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
	os.Exit(exitOK)
}

func run(cmd *cobra.Command, cfgFile string, port int, logLevel string) error {
	// .env is optional.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return exitError{exitBadConfig, fmt.Errorf("config: %w", err)}
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	st, err := store.Open(cfg.Store.FilePath)
	if err != nil {
		return exitError{exitStoreInit, fmt.Errorf("store: %w", err)}
	}
	// Project configured hosts into the store so the state loader seeds
	// them on the next boot as well.
	for name, hc := range cfg.Hosts {
		err := st.SaveHostConfig(store.HostConfig{
			Name:         name,
			Endpoint:     hc.Endpoint,
			Password:     hc.Password,
			VoiceGateway: hc.VoiceGateway,
			VoiceUDP:     hc.VoiceUDP,
			EnableVoice:  hc.EnableVoice,
		})
		if err != nil {
			return exitError{exitStoreInit, fmt.Errorf("store: %w", err)}
		}
	}

	h, err := hub.New(st, nil)
	if err != nil {
		return exitError{exitStoreInit, fmt.Errorf("store: %w", err)}
	}

	sessions := gateway.NewSessions(cfg.Session.Secret,
		time.Duration(cfg.Session.TokenTTLMinutes)*time.Minute)
	levels := audio.NewLevelsBus()
	cmds := slashcmd.New(h, nil, nil)
	gw := gateway.New(h, sessions, levels, cmds, nil)

	ln, err := gw.Listen(cfg.Server.Host, cfg.Server.Port)
	if err != nil {
		return exitError{exitPortBind, err}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h.Start(ctx)

	resolverClient := resolver.NewClient(cfg.Resolver.BaseURL,
		time.Duration(cfg.Resolver.TimeoutSeconds)*time.Second)
	resolverWorker := resolver.NewWorker(resolverClient, h)
	resolverWorker.Start(ctx)

	pool := ingest.NewPool(cfg.Ingest.FFmpegPath, cfg.Ingest.RingSeconds)

	var reconcilers []*reconciler.Reconciler
	bridges := make(map[string]*voice.Bridge)
	mixers := make(map[string]*mixer.Mixer)

	for name, hc := range cfg.Hosts {
		endpoint, password := hc.Endpoint, hc.Password
		dial := func(ctx context.Context) (compositor.Conn, error) {
			return compositor.Dial(ctx, endpoint, password)
		}
		rec := reconciler.New(name, dial, h)
		rec.Start(ctx)
		reconcilers = append(reconcilers, rec)

		if hc.EnableVoice && hc.VoiceGateway != "" {
			bridge := voice.New(name, hc.VoiceGateway, hc.VoiceUDP, h)
			bridge.Start(ctx)
			bridges[name] = bridge
		}

		var sink audio.Sink = audio.DiscardSink{}
		if hc.AudioSink != "" {
			udpSink, err := audio.NewUDPSink(hc.AudioSink, sinkSSRC(name))
			if err != nil {
				logger.Warn().Err(err).Str(pkglog.FieldHost, name).Msg("audio sink unavailable, discarding mix")
			} else {
				sink = udpSink
			}
		}
		mx := mixer.New(name, sink, levels)
		mx.Start(ctx)
		mixers[name] = mx
	}

	manager := mixer.NewManager(h, pool, mixers, bridges)
	manager.Start(ctx)
	cmds.Start(ctx)

	logger.Info().
		Int("port", cfg.Server.Port).
		Int("hosts", len(cfg.Hosts)).
		Str("store", cfg.Store.FilePath).
		Msg("automarathon starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gw.Serve(ln) })
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		gw.Shutdown(shutdownCtx)

		// Cooperative shutdown: each actor finishes its current message.
		cmds.Stop()
		manager.Stop()
		for _, rec := range reconcilers {
			rec.Stop()
		}
		for _, bridge := range bridges {
			bridge.Stop()
		}
		for _, mx := range mixers {
			mx.Stop()
		}
		resolverWorker.Stop()
		pool.Close()

		<-cmds.Done()
		<-manager.Done()
		for _, rec := range reconcilers {
			<-rec.Done()
		}
		for _, bridge := range bridges {
			<-bridge.Done()
		}
		for _, mx := range mixers {
			<-mx.Done()
		}
		<-resolverWorker.Done()

		h.Stop()
		<-h.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return exitError{1, err}
	}
	logger.Info().Msg("automarathon stopped")
	return nil
}

// sinkSSRC derives a stable RTP SSRC from the host name.
func sinkSSRC(host string) uint32 {
	f := fnv.New32a()
	f.Write([]byte(host))
	return f.Sum32()
}
