// scenepeer is a stand-in for the modeling-tool side of a session. It
// answers a bridge, stores what it receives and can serve a scene file back.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/scenebridge/internal/bridge"
	"github.com/danmuck/scenebridge/internal/config"
	"github.com/danmuck/scenebridge/internal/coords"
	"github.com/danmuck/scenebridge/internal/logging"
	"github.com/danmuck/scenebridge/internal/pipeline"
	"github.com/danmuck/scenebridge/internal/protocol"
	"github.com/danmuck/scenebridge/internal/protocol/frame"
	"github.com/danmuck/scenebridge/internal/registry"
	"github.com/danmuck/scenebridge/internal/scene"
	"github.com/danmuck/scenebridge/internal/scenefile"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logging.ConfigureRuntime()

	configPath := pflag.StringP("config", "c", "", "path to peer config.toml")
	listen := pflag.String("listen", "", "listen address (overrides config)")
	scenePath := pflag.String("scene", "", "scene file to serve back to the bridge")
	dumpDir := pflag.String("dump", "", "directory for received scene snapshots")
	pflag.Parse()

	cfg := config.DefaultPeerConfig()
	if *configPath != "" {
		loaded, err := config.LoadPeerConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "scenepeer: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *scenePath != "" {
		cfg.Scene = *scenePath
	}
	if *dumpDir != "" {
		cfg.DumpDir = *dumpDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "scenepeer: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.PeerConfig) error {
	if err := config.ValidatePeerConfig(cfg); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	p, err := newPeer(cfg)
	if err != nil {
		_ = ln.Close()
		return err
	}
	p.log.Info().Str("addr", ln.Addr().String()).Msg("peer listening")

	errCh := make(chan error, 1)
	go func() { errCh <- p.responder.Serve(ln) }()

	select {
	case <-ctx.Done():
		p.log.Info().Msg("shutting down")
		_ = p.responder.Close()
		return <-errCh
	case err := <-errCh:
		_ = p.responder.Close()
		return err
	}
}

type peer struct {
	cfg       config.PeerConfig
	conv      *coords.Converter
	store     *scene.Store
	responder *bridge.Responder
	log       zerolog.Logger
}

func newPeer(cfg config.PeerConfig) (*peer, error) {
	codec, err := frame.ParseCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	conv := coords.New(coords.DefaultConfig())
	p := &peer{
		cfg:   cfg,
		conv:  conv,
		store: scene.NewStore(conv),
		log:   logging.Component("scenepeer").With().Str("name", cfg.Name).Logger(),
	}
	p.responder = bridge.NewResponder(p.store, protocol.WriteOptions{Codec: codec, Limits: frame.DefaultLimits()})

	if dir := strings.TrimSpace(cfg.DumpDir); dir != "" {
		p.store.OnReady(func(snap scene.Snapshot) {
			path, err := scenefile.SaveSnapshot(dir, snap, conv)
			if err != nil {
				p.log.Error().Err(err).Msg("dump received scene failed")
				return
			}
			p.log.Info().Str("path", path).Int("nodes", scene.CountNodes(snap.Forest)).Msg("dumped received scene")
		})
	}

	if path := strings.TrimSpace(cfg.Scene); path != "" {
		local, err := scenefile.Load(path)
		if err != nil {
			return nil, err
		}
		pipe := pipeline.New(local, registry.New(), conv)
		sum, err := p.responder.EnqueuePush(pipe, false)
		if err != nil {
			return nil, err
		}
		p.log.Info().Int("meshes", sum.Meshes).Int("nodes", sum.Nodes).Msg("queued scene for bridge")
	}
	return p, nil
}
