package bridge

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/scenebridge/internal/coords"
	"github.com/danmuck/scenebridge/internal/logging"
	"github.com/danmuck/scenebridge/internal/observability"
	"github.com/danmuck/scenebridge/internal/pipeline"
	"github.com/danmuck/scenebridge/internal/protocol"
	"github.com/danmuck/scenebridge/internal/protocol/frame"
	"github.com/danmuck/scenebridge/internal/protocol/session"
	"github.com/danmuck/scenebridge/internal/registry"
	"github.com/danmuck/scenebridge/internal/scene"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrAddressRequired = errors.New("bridge: address required")
	ErrInvalidPort     = errors.New("bridge: port must be in 1..65535")
	ErrSessionInactive = errors.New("bridge: no active session")
	ErrPushInProgress  = errors.New("bridge: push already in progress")
)

type ControllerConfig struct {
	Address string
	Port    int
	Session session.Config
	Codec   frame.Codec
	Limits  frame.Limits
	Coords  coords.Config
	// Scene is sent as the config payload of every Clear.
	Scene scene.ConfigRecord
}

func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Address: "127.0.0.1",
		Port:    12000,
		Session: session.DefaultConfig(),
		Codec:   frame.CodecBG4LZ4,
		Limits:  frame.DefaultLimits(),
		Coords:  coords.DefaultConfig(),
	}
}

// Status is a point-in-time view of the controller.
type Status struct {
	SessionID      string           `json:"session_id,omitempty"`
	Active         bool             `json:"active"`
	Connected      bool             `json:"connected"`
	Address        string           `json:"address,omitempty"`
	PushInProgress bool             `json:"push_in_progress"`
	PushSelected   bool             `json:"push_selected"`
	Loop           LoopStats        `json:"loop"`
	LastPush       pipeline.Summary `json:"last_push"`
	ReceivedNodes  int              `json:"received_nodes"`
}

// Controller is the shell-facing entry point. It owns every component of a
// session; nothing here is process-global.
type Controller struct {
	mu       sync.Mutex
	cfg      ControllerConfig
	conv     *coords.Converter
	reg      *registry.Registry
	pipe     *pipeline.Pipeline
	store    *scene.Store
	exec     *Executor
	observer Observer
	log      zerolog.Logger

	sessionID string
	address   string
	machine   *Machine
	loop      *Loop
}

func NewController(cfg ControllerConfig, src pipeline.Source, observer Observer) *Controller {
	if cfg.Limits.MaxBodyBytes == 0 {
		cfg.Limits = frame.DefaultLimits()
	}
	cfg.Session = cfg.Session.WithDefaults()
	conv := coords.New(cfg.Coords)
	reg := registry.New()
	pipe := pipeline.New(src, reg, conv)
	pipe.SetSessionConfig(cfg.Scene)
	c := &Controller{
		cfg:      cfg,
		conv:     conv,
		reg:      reg,
		pipe:     pipe,
		store:    scene.NewStore(conv),
		exec:     NewExecutor(0),
		observer: observer,
		log:      logging.Component("bridge.controller"),
	}
	if imp, ok := src.(pipeline.Importer); ok {
		c.store.OnReady(func(snap scene.Snapshot) { c.adopt(imp, snap) })
	}
	return c
}

// adopt hands a received scene to the source and records the peer's global
// name for every object and asset it created, so pushing them back keeps the
// peer's identities.
func (c *Controller) adopt(imp pipeline.Importer, snap scene.Snapshot) {
	items, assets := imp.Import(snap, c.conv)
	for _, p := range items {
		c.reg.RegisterAs(registry.Items, p.Local, p.Global)
	}
	for _, p := range assets {
		c.reg.RegisterAs(registry.Assets, p.Local, p.Global)
	}
	c.log.Info().
		Int("generation", snap.Generation).
		Int("items", len(items)).
		Int("assets", len(assets)).
		Msg("received scene adopted")
}

func (c *Controller) Store() *scene.Store          { return c.store }
func (c *Controller) Registry() *registry.Registry { return c.reg }
func (c *Controller) Converter() *coords.Converter { return c.conv }
func (c *Controller) Config() ControllerConfig     { return c.cfg }
func (c *Controller) Pipeline() *pipeline.Pipeline { return c.pipe }

// StartSession connects to address:port, replacing any running session.
func (c *Controller) StartSession(address string, port int) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return ErrAddressRequired
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	if err := c.cfg.Session.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()

	addr := net.JoinHostPort(address, strconv.Itoa(port))
	c.sessionID = uuid.NewString()
	c.address = addr
	c.machine = NewMachine(c.pipe, c.store, c.exec, c.observer)
	c.loop = NewLoop(c.cfg.Session, addr, protocol.WriteOptions{Codec: c.cfg.Codec, Limits: c.cfg.Limits}, c.machine)
	c.loop.log = c.loop.log.With().Str("session", c.sessionID).Logger()
	c.loop.Start()
	c.log.Info().Str("session", c.sessionID).Str("addr", addr).Msg("session started")
	return nil
}

// StopSession stops the loop, waits for it, closes the socket and releases
// the builders.
func (c *Controller) StopSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.loop == nil {
		return
	}
	c.loop.Stop()
	c.pipe.Release()
	c.log.Info().Str("session", c.sessionID).Msg("session stopped")
	c.loop = nil
	c.machine = nil
	c.sessionID = ""
	c.address = ""
}

// Close stops the session and the notification executor.
func (c *Controller) Close() {
	c.StopSession()
	c.exec.Close()
}

func (c *Controller) IsSessionActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop != nil && c.loop.Running()
}

// IsPushInProgress reports whether any scheduled state has not been sent.
func (c *Controller) IsPushInProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine != nil && c.machine.Pending()
}

func (c *Controller) PushAll() (pipeline.Summary, error) {
	return c.push(false)
}

func (c *Controller) PushSelected() (pipeline.Summary, error) {
	return c.push(true)
}

func (c *Controller) push(selected bool) (pipeline.Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine == nil {
		return pipeline.Summary{}, ErrSessionInactive
	}
	if c.machine.Pending() {
		return pipeline.Summary{}, ErrPushInProgress
	}
	c.machine.RequestMode(selected)
	sum, err := c.pipe.Prepare(selected, c.machine)
	if err != nil {
		return pipeline.Summary{}, err
	}
	observability.RecordPush(selected, sum.Meshes, sum.Nodes)
	return sum, nil
}

// Flush waits until queued notifications have been delivered.
func (c *Controller) Flush() {
	c.exec.Flush()
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		SessionID:     c.sessionID,
		Address:       c.address,
		LastPush:      c.pipe.Last(),
		ReceivedNodes: c.store.NodeCount(),
	}
	if c.loop != nil {
		st.Active = c.loop.Running()
		st.Connected = c.loop.Connected()
		st.Loop = c.loop.Stats()
	}
	if c.machine != nil {
		st.PushInProgress = c.machine.Pending()
		st.PushSelected = c.machine.PushSelected()
	}
	return st
}
