package bridge

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/danmuck/scenebridge/internal/logging"
	"github.com/danmuck/scenebridge/internal/pipeline"
	"github.com/danmuck/scenebridge/internal/protocol"
	"github.com/rs/zerolog"
)

// Responder plays the modeling-tool side of a session: it answers every
// request, applies received records to an Applier and replies with its own
// queued states, or Idle when it has none. One connection is served at a
// time, as with a reply socket.
type Responder struct {
	applier Applier
	opts    protocol.WriteOptions
	log     zerolog.Logger

	mu       sync.Mutex
	outbox   []Outgoing
	received map[protocol.State]int
	ln       net.Listener
	conns    map[net.Conn]struct{}
	closed   bool

	// silent drops requests without replying while set.
	silent atomic.Bool
	wg     sync.WaitGroup
}

func NewResponder(applier Applier, opts protocol.WriteOptions) *Responder {
	return &Responder{
		applier:  applier,
		opts:     opts,
		log:      logging.Component("bridge.responder"),
		received: map[protocol.State]int{},
		conns:    map[net.Conn]struct{}{},
	}
}

// Enqueue schedules a reply. A nil payload sends the state without one.
func (r *Responder) Enqueue(s protocol.State, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outbox = append(r.outbox, Outgoing{State: s, Payload: payload, HasPayload: payload != nil})
}

type stateList struct {
	states []protocol.State
}

func (l *stateList) Schedule(states ...protocol.State) {
	l.states = append(l.states, states...)
}

// EnqueuePush prepares a push from p and queues its records as replies, so
// the connected bridge receives them as a remote scene.
func (r *Responder) EnqueuePush(p *pipeline.Pipeline, selected bool) (pipeline.Summary, error) {
	sched := &stateList{}
	sum, err := p.Prepare(selected, sched)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer p.Finish()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range sched.states {
		var (
			payload []byte
			ok      bool
		)
		switch s {
		case protocol.StateClear:
			payload = p.ClearPayload()
			ok = payload != nil
		case protocol.StateSendMesh:
			payload, ok = p.NextMesh()
		case protocol.StateSendNode:
			payload, ok = p.NextNode()
		}
		if s.IsWrite() && !ok {
			continue
		}
		out := Outgoing{State: s}
		if ok {
			out.Payload, out.HasPayload = append([]byte(nil), payload...), true
		}
		r.outbox = append(r.outbox, out)
	}
	return sum, nil
}

// SetSilent stops or resumes replies.
func (r *Responder) SetSilent(v bool) {
	r.silent.Store(v)
}

// Received returns how many requests in state s have arrived.
func (r *Responder) Received(s protocol.State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received[s]
}

// Serve accepts connections on ln until Close. It returns nil after Close.
func (r *Responder) Serve(ln net.Listener) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return net.ErrClosed
	}
	r.ln = ln
	r.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if r.isClosed() {
				return nil
			}
			return err
		}
		if !r.track(conn) {
			_ = conn.Close()
			return nil
		}
		r.serveConn(conn)
	}
}

func (r *Responder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Responder) track(conn net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.conns[conn] = struct{}{}
	r.wg.Add(1)
	return true
}

func (r *Responder) serveConn(conn net.Conn) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.conns, conn)
		r.mu.Unlock()
		_ = conn.Close()
	}()

	log := r.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	log.Debug().Msg("peer connected")
	reader := bufio.NewReader(conn)
	for {
		msg, err := protocol.ReadMessage(reader, r.opts.Limits)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug().Err(err).Msg("peer read ended")
			}
			return
		}
		state := r.apply(msg)
		if r.silent.Load() {
			continue
		}
		out := r.nextReply()
		reply := protocol.Message{
			ID:          msg.ID,
			Instruction: out.State.Token(),
			Payload:     out.Payload,
			HasPayload:  out.HasPayload,
			Reply:       true,
		}
		if err := protocol.WriteMessage(conn, reply, r.opts); err != nil {
			log.Debug().Err(err).Str("state", state.String()).Msg("reply write failed")
			return
		}
	}
}

func (r *Responder) apply(msg protocol.Message) protocol.State {
	s := msg.State()
	r.mu.Lock()
	r.received[s]++
	r.mu.Unlock()

	if r.applier == nil {
		return s
	}
	var err error
	switch s {
	case protocol.StateClear:
		r.applier.ClearScene()
		if msg.HasPayload {
			err = r.applier.ApplyConfig(msg.Payload)
		}
	case protocol.StateUpdate:
		r.applier.OnSceneReady()
	case protocol.StateSendMesh:
		err = r.applier.ApplyMesh(msg.Payload)
	case protocol.StateSendNode:
		err = r.applier.ApplyNode(msg.Payload)
	case protocol.StateSendCamera:
		err = r.applier.ApplyCamera(msg.Payload)
	case protocol.StateSendLight:
		err = r.applier.ApplyLight(msg.Payload)
	case protocol.StateSendTexture:
		err = r.applier.ApplyTexture(msg.Payload)
	case protocol.StateSendMaterial:
		err = r.applier.ApplyMaterial(msg.Payload)
	}
	if err != nil {
		r.log.Warn().Err(err).Str("state", s.String()).Msg("record dropped")
	}
	return s
}

func (r *Responder) nextReply() Outgoing {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outbox) == 0 {
		return Outgoing{State: protocol.StateIdle}
	}
	out := r.outbox[0]
	r.outbox = r.outbox[1:]
	return out
}

// Close stops accepting, drops the active connection and waits for it.
func (r *Responder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	var err error
	if r.ln != nil {
		err = r.ln.Close()
	}
	for c := range r.conns {
		_ = c.Close()
	}
	r.mu.Unlock()
	r.wg.Wait()
	return err
}
