package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/scenebridge/internal/admin"
	"github.com/danmuck/scenebridge/internal/bridge"
	"github.com/danmuck/scenebridge/internal/config"
	"github.com/danmuck/scenebridge/internal/logging"
	"github.com/danmuck/scenebridge/internal/scene"
	"github.com/danmuck/scenebridge/internal/scenefile"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

type options struct {
	configPath string
	scene      string
	address    string
	port       int
	push       string
	selectIDs  []string
	admin      string
	once       bool
}

func main() {
	logging.ConfigureRuntime()
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bridgectl: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("bridgectl", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to bridge config.toml")
	fs.StringVar(&opts.scene, "scene", "", "local scene file (yaml)")
	fs.StringVar(&opts.address, "address", "", "peer address")
	fs.IntVar(&opts.port, "port", 0, "peer port")
	fs.StringVar(&opts.push, "push", "", "push after connecting: all|selected")
	fs.StringSliceVar(&opts.selectIDs, "select", nil, "object ids to mark selected")
	fs.StringVar(&opts.admin, "admin", "", "admin listen address, empty to disable")
	fs.BoolVar(&opts.once, "once", false, "exit after the first push completes")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.Changed("admin") {
		opts.admin = strings.TrimSpace(opts.admin)
	} else {
		opts.admin = "-"
	}
	return opts, nil
}

// resolveConfig layers file, env and flags, in that order.
func resolveConfig(opts options) (config.BridgeConfig, error) {
	cfg := config.DefaultBridgeConfig()
	if opts.configPath != "" {
		loaded, err := loadBridgeConfig(opts.configPath)
		if err != nil {
			return config.BridgeConfig{}, err
		}
		cfg = loaded
	}
	if err := applyEnv(&cfg); err != nil {
		return config.BridgeConfig{}, err
	}
	if opts.scene != "" {
		cfg.Scene = opts.scene
	}
	if opts.address != "" {
		cfg.Address = opts.address
	}
	if opts.port != 0 {
		cfg.Port = opts.port
	}
	if opts.push != "" {
		cfg.AutoPush = strings.ToLower(strings.TrimSpace(opts.push))
	}
	if opts.admin != "-" {
		cfg.AdminAddr = opts.admin
	}
	if err := config.ValidateBridgeConfig(cfg); err != nil {
		return config.BridgeConfig{}, err
	}
	return cfg, nil
}

func loadScene(path string, selectIDs []string) (*scenefile.Scene, error) {
	var (
		local *scenefile.Scene
		err   error
	)
	if path == "" {
		local, err = scenefile.Parse(nil)
	} else {
		local, err = scenefile.Load(path)
	}
	if err != nil {
		return nil, err
	}
	if len(selectIDs) > 0 {
		if err := local.Select(selectIDs...); err != nil {
			return nil, err
		}
	}
	return local, nil
}

// progressLog reports push progress through the process logger.
type progressLog struct {
	log  zerolog.Logger
	done chan bool
}

func (p *progressLog) PushProgress(sent, total int) {
	p.log.Debug().Int("sent", sent).Int("total", total).Msg("push progress")
}

func (p *progressLog) PushFinished(selected bool) {
	p.log.Info().Bool("selected", selected).Msg("push finished")
	select {
	case p.done <- selected:
	default:
	}
}

func (p *progressLog) CancelProgress() {
	p.log.Warn().Msg("push progress cancelled after reconnect")
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}
	if opts.once && cfg.AutoPush == "" {
		return errors.New("--once requires a push mode")
	}
	log := logging.Component("bridgectl").With().Str("name", cfg.Name).Logger()

	local, err := loadScene(cfg.Scene, opts.selectIDs)
	if err != nil {
		return err
	}
	ctrlCfg, err := cfg.ControllerConfig()
	if err != nil {
		return err
	}

	progress := &progressLog{log: log, done: make(chan bool, 1)}
	ctrl := bridge.NewController(ctrlCfg, local, progress)
	defer ctrl.Close()

	if dir := strings.TrimSpace(cfg.ReceivedDir); dir != "" {
		conv := ctrl.Converter()
		ctrl.Store().OnReady(func(snap scene.Snapshot) {
			path, err := scenefile.SaveSnapshot(dir, snap, conv)
			if err != nil {
				log.Error().Err(err).Msg("save received scene failed")
				return
			}
			log.Info().Str("path", path).Int("generation", snap.Generation).Msg("saved received scene")
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if addr := strings.TrimSpace(cfg.AdminAddr); addr != "" {
		api := admin.New(cfg.Name, ctrl, cfg.CorsOrigins)
		srv = &http.Server{
			Addr:              addr,
			Handler:           api.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", addr).Msg("admin listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("admin server stopped")
				stop()
			}
		}()
	}

	if err := ctrl.StartSession(cfg.Address, cfg.Port); err != nil {
		return err
	}
	log.Info().
		Str("peer", fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)).
		Int("objects", local.Len()).
		Msg("session started")

	if mode := cfg.AutoPush; mode != "" {
		push := ctrl.PushAll
		if mode == "selected" {
			push = ctrl.PushSelected
		}
		sum, err := push()
		if err != nil {
			return fmt.Errorf("push %s: %w", mode, err)
		}
		log.Info().
			Int("meshes", sum.Meshes).
			Int("nodes", sum.Nodes).
			Bool("selected", sum.Selected).
			Msg("push scheduled")
	}

	if opts.once {
		select {
		case <-progress.done:
		case <-ctx.Done():
		}
	} else {
		<-ctx.Done()
	}

	log.Info().Msg("shutting down")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("admin shutdown")
		}
	}
	return nil
}
