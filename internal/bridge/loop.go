package bridge

import (
	"bufio"
	"context"
	"errors"
	"math/rand"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/scenebridge/internal/logging"
	"github.com/danmuck/scenebridge/internal/observability"
	"github.com/danmuck/scenebridge/internal/protocol"
	"github.com/danmuck/scenebridge/internal/protocol/session"
	"github.com/rs/zerolog"
)

var (
	errStopped      = errors.New("bridge: loop stopped")
	errReplyTimeout = errors.New("bridge: reply timeout")
)

// LoopStats are counters kept by the transport loop.
type LoopStats struct {
	Exchanges  uint64
	Timeouts   uint64
	Reconnects uint64
	DialErrors uint64
	Stale      uint64
}

// Loop owns the connection to the peer and drives request/reply exchanges
// until stopped. Only the loop goroutine touches the socket.
type Loop struct {
	cfg     session.Config
	addr    string
	opts    protocol.WriteOptions
	machine *Machine
	log     zerolog.Logger
	rng     *rand.Rand

	running   atomic.Bool
	connected atomic.Bool
	startOnce sync.Once
	done      chan struct{}
	// ctx is cancelled by Stop so that dials and backoff sleeps end early.
	ctx         context.Context
	cancel      context.CancelFunc
	dialContext func(ctx context.Context, network, addr string) (net.Conn, error)

	conn         net.Conn
	reader       *bufio.Reader
	attempts     *session.Attempts
	nextID       uint64
	dialFailures int

	exchanges  atomic.Uint64
	timeouts   atomic.Uint64
	reconnects atomic.Uint64
	dialErrors atomic.Uint64
	stale      atomic.Uint64
}

func NewLoop(cfg session.Config, addr string, opts protocol.WriteOptions, machine *Machine) *Loop {
	cfg = cfg.WithDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &net.Dialer{Timeout: cfg.DialTimeout}
	return &Loop{
		cfg:         cfg,
		addr:        addr,
		opts:        opts,
		machine:     machine,
		log:         logging.Component("bridge.loop").With().Str("addr", addr).Logger(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		dialContext: d.DialContext,
		attempts:    session.NewAttempts(cfg.MaxAttempts),
	}
}

// Start launches the loop goroutine. Later calls are no-ops.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		l.running.Store(true)
		go l.run()
	})
}

// Stop clears the running flag, aborts any dial or backoff in progress and
// waits for the goroutine to exit. A pending reply wait notices within one
// poll slice.
func (l *Loop) Stop() {
	l.running.Store(false)
	l.cancel()
	l.startOnce.Do(func() { close(l.done) })
	<-l.done
}

func (l *Loop) Running() bool {
	return l.running.Load()
}

func (l *Loop) Connected() bool {
	return l.connected.Load()
}

func (l *Loop) Stats() LoopStats {
	return LoopStats{
		Exchanges:  l.exchanges.Load(),
		Timeouts:   l.timeouts.Load(),
		Reconnects: l.reconnects.Load(),
		DialErrors: l.dialErrors.Load(),
		Stale:      l.stale.Load(),
	}
}

func (l *Loop) run() {
	defer close(l.done)
	defer l.closeConn()
	l.log.Info().Msg("session loop started")

	for l.running.Load() {
		if l.conn == nil && !l.dial() {
			continue
		}

		out := l.machine.Next()
		l.nextID++
		id := l.nextID
		msg := protocol.Message{
			ID:          id,
			Instruction: out.State.Token(),
			Payload:     out.Payload,
			HasPayload:  out.HasPayload,
		}

		start := time.Now()
		_ = l.conn.SetWriteDeadline(start.Add(l.cfg.WriteTimeout))
		if err := protocol.WriteMessage(l.conn, msg, l.opts); err != nil {
			l.log.Warn().Err(err).Str("state", out.State.String()).Msg("request write failed")
			l.closeConn()
			l.missed()
			continue
		}
		l.machine.Committed(out)
		observability.RecordPayload("sent", len(out.Payload))

		timeout := session.ReplyTimeout(l.cfg.BaseTimeout, l.attempts.Current())
		reply, err := l.await(id, timeout)
		switch {
		case errors.Is(err, errStopped):
			return
		case errors.Is(err, errReplyTimeout):
			l.timeouts.Add(1)
			observability.RecordReplyTimeout()
			l.log.Warn().Dur("timeout", timeout).Str("state", out.State.String()).Msg("request timed out; is the peer running?")
			l.missed()
			continue
		case err != nil:
			l.log.Warn().Err(err).Msg("reply read failed")
			l.closeConn()
			l.missed()
			continue
		}

		l.attempts.Succeed()
		l.exchanges.Add(1)
		state := l.machine.Classify(reply.Instruction)
		observability.RecordRoundTrip(out.State.String(), state.String(), time.Since(start))
		observability.RecordPayload("received", len(reply.Payload))

		if l.machine.Dispatch(state, reply.Payload, reply.HasPayload) {
			l.sleep(l.cfg.IdleInterval)
		}
	}
}

// await polls for the reply to id in short slices so Stop is noticed
// promptly. Replies carrying another id are discarded.
func (l *Loop) await(id uint64, timeout time.Duration) (protocol.Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		if !l.running.Load() {
			return protocol.Message{}, errStopped
		}
		now := time.Now()
		if !now.Before(deadline) {
			return protocol.Message{}, errReplyTimeout
		}
		slice := l.cfg.PollSlice
		if left := deadline.Sub(now); left < slice {
			slice = left
		}
		_ = l.conn.SetReadDeadline(now.Add(slice))
		if _, err := l.reader.Peek(1); err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return protocol.Message{}, err
		}

		// A reply has started; give the rest of it a transfer deadline.
		_ = l.conn.SetReadDeadline(time.Now().Add(l.cfg.WriteTimeout))
		msg, err := protocol.ReadMessage(l.reader, l.opts.Limits)
		if err != nil {
			return protocol.Message{}, err
		}
		if msg.ID != id {
			l.stale.Add(1)
			l.log.Debug().Uint64("want", id).Uint64("got", msg.ID).Msg("stale reply discarded")
			continue
		}
		return msg, nil
	}
}

// missed records one unanswered request and forces a reconnect at the cap.
func (l *Loop) missed() {
	if !l.attempts.Fail() {
		return
	}
	l.reconnects.Add(1)
	observability.RecordReconnect()
	l.log.Info().Msg("attempt cap reached; reconnecting")
	l.closeConn()
	l.machine.Cancelled()
}

func (l *Loop) dial() bool {
	conn, err := l.dialContext(l.ctx, "tcp", l.addr)
	if err != nil {
		if l.ctx.Err() != nil {
			return false
		}
		l.dialErrors.Add(1)
		l.dialFailures++
		delay := session.NextBackoffDelay(l.cfg.Backoff, l.dialFailures, l.rng)
		l.log.Warn().Err(err).Int("attempt", l.dialFailures).Dur("retry_in", delay).Msg("dial failed")
		l.sleep(delay)
		return false
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetLinger(0)
		_ = tcp.SetNoDelay(true)
	}
	l.conn = conn
	l.reader = bufio.NewReader(conn)
	l.dialFailures = 0
	l.connected.Store(true)
	l.log.Info().Msg("connected")
	return true
}

func (l *Loop) closeConn() {
	if l.conn == nil {
		return
	}
	_ = l.conn.Close()
	l.conn = nil
	l.reader = nil
	l.connected.Store(false)
}

// sleep waits for d, returning early once stopped.
func (l *Loop) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-l.ctx.Done():
	}
}
