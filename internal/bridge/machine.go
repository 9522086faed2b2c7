package bridge

import (
	"sync"

	"github.com/danmuck/scenebridge/internal/logging"
	"github.com/danmuck/scenebridge/internal/protocol"
	"github.com/rs/zerolog"
)

// PayloadSource hands out serialized records for outgoing write states.
type PayloadSource interface {
	NextNode() ([]byte, bool)
	NextMesh() ([]byte, bool)
	ClearPayload() []byte
	Finish()
}

// Applier consumes records received from the peer.
type Applier interface {
	ApplyNode(payload []byte) error
	ApplyMesh(payload []byte) error
	ApplyCamera(payload []byte) error
	ApplyLight(payload []byte) error
	ApplyMaterial(payload []byte) error
	ApplyTexture(payload []byte) error
	ApplyConfig(payload []byte) error
	ClearScene()
	OnSceneReady()
}

// Observer receives push progress. Calls arrive on the executor goroutine.
type Observer interface {
	PushProgress(sent, total int)
	PushFinished(selected bool)
	CancelProgress()
}

type nopObserver struct{}

func (nopObserver) PushProgress(int, int) {}
func (nopObserver) PushFinished(bool)     {}
func (nopObserver) CancelProgress()       {}

// Outgoing is the next request the loop must send.
type Outgoing struct {
	State      protocol.State
	Payload    []byte
	HasPayload bool
}

// Machine holds the lazy and active state queues. Pushes append to lazy;
// lazy moves to active only on an idle reply while active is empty, so a
// scheduled bracket is never interleaved with another.
type Machine struct {
	mu     sync.Mutex
	lazy   []protocol.State
	active []protocol.State

	payloads PayloadSource
	applier  Applier
	exec     *Executor
	observer Observer
	log      zerolog.Logger

	requestSelected bool
	pushSelected    bool
	total           int
	sent            int
}

func NewMachine(payloads PayloadSource, applier Applier, exec *Executor, observer Observer) *Machine {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Machine{
		payloads: payloads,
		applier:  applier,
		exec:     exec,
		observer: observer,
		log:      logging.Component("bridge.machine"),
	}
}

// RequestMode records the mode of the next scheduled push. It takes effect
// when that push's Clear is sent.
func (m *Machine) RequestMode(selected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestSelected = selected
}

// PushSelected reports the mode latched by the last sent Clear.
func (m *Machine) PushSelected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pushSelected
}

// Schedule appends states to the lazy queue in one critical section.
func (m *Machine) Schedule(states ...protocol.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lazy = append(m.lazy, states...)
	records := 0
	for _, s := range states {
		if s == protocol.StateSendMesh || s == protocol.StateSendNode {
			records++
		}
	}
	if records > 0 {
		m.total, m.sent = records, 0
	}
}

// Pending reports whether any state is waiting in either queue.
func (m *Machine) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active) > 0 || len(m.lazy) > 0
}

// Queues returns copies of the active and lazy queues.
func (m *Machine) Queues() (active, lazy []protocol.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.State(nil), m.active...), append([]protocol.State(nil), m.lazy...)
}

// Next pops the front of the active queue, or Idle when it is empty, and
// attaches the payload a write state carries. A write state whose payload
// is unavailable goes out as Idle.
func (m *Machine) Next() Outgoing {
	m.mu.Lock()
	s := protocol.StateIdle
	if len(m.active) > 0 {
		s = m.active[0]
		m.active = m.active[1:]
	}
	m.mu.Unlock()

	out := Outgoing{State: s}
	var (
		payload []byte
		ok      bool
	)
	if m.payloads != nil {
		switch s {
		case protocol.StateClear:
			payload = m.payloads.ClearPayload()
			ok = payload != nil
		case protocol.StateSendNode:
			payload, ok = m.payloads.NextNode()
		case protocol.StateSendMesh:
			payload, ok = m.payloads.NextMesh()
		}
	}
	if ok {
		out.Payload, out.HasPayload = payload, true
	}
	if s.IsWrite() && !out.HasPayload {
		m.log.Warn().Str("state", s.String()).Msg("no payload for write state; sending idle")
		return Outgoing{State: protocol.StateIdle}
	}
	return out
}

// Classify maps a received instruction to its state. A Get request is queued
// on the active list so it is answered next.
func (m *Machine) Classify(instruction string) protocol.State {
	s := protocol.ClassifyString(instruction)
	switch s {
	case protocol.StateUndefined:
		m.log.Warn().Str("instruction", instruction).Msg("unknown instruction; treating as idle")
	case protocol.StateGetNode, protocol.StateGetMesh, protocol.StateGetCamera, protocol.StateGetLight:
		m.mu.Lock()
		m.active = append(m.active, s)
		m.mu.Unlock()
	}
	return s
}

// Dispatch routes a reply to its consumer. It reports true when the reply
// was idle and nothing is left to send, so the loop may pause.
func (m *Machine) Dispatch(s protocol.State, payload []byte, hasPayload bool) bool {
	s = s.Effective()
	if !hasPayload {
		switch s {
		case protocol.StateIdle:
			return m.whenIdle()
		case protocol.StateUpdate:
			m.whenUpdate()
		case protocol.StateClear:
			m.whenClear(nil)
		default:
			if s.IsWrite() {
				m.log.Warn().Str("state", s.String()).Msg("write reply without payload dropped")
			}
		}
		return false
	}

	var err error
	switch s {
	case protocol.StateSendMesh:
		err = m.applier.ApplyMesh(payload)
	case protocol.StateSendNode:
		err = m.applier.ApplyNode(payload)
	case protocol.StateSendCamera:
		err = m.applier.ApplyCamera(payload)
	case protocol.StateSendLight:
		err = m.applier.ApplyLight(payload)
	case protocol.StateSendTexture:
		err = m.applier.ApplyTexture(payload)
	case protocol.StateSendMaterial:
		err = m.applier.ApplyMaterial(payload)
	case protocol.StateIdle:
		return m.whenIdle()
	case protocol.StateUpdate:
		m.whenUpdate()
	case protocol.StateClear:
		m.whenClear(payload)
	default:
		m.log.Debug().Str("state", s.String()).Int("bytes", len(payload)).Msg("payload ignored")
	}
	if err != nil {
		m.log.Warn().Err(err).Str("state", s.String()).Msg("record dropped")
	}
	return false
}

func (m *Machine) whenIdle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.active) == 0 && len(m.lazy) > 0 {
		m.active = append(m.active, m.lazy...)
		m.lazy = m.lazy[:0]
	}
	return len(m.active) == 0
}

func (m *Machine) whenUpdate() {
	if m.exec == nil {
		m.applier.OnSceneReady()
		return
	}
	m.exec.Submit(m.applier.OnSceneReady)
}

func (m *Machine) whenClear(payload []byte) {
	m.applier.ClearScene()
	if payload == nil {
		return
	}
	if err := m.applier.ApplyConfig(payload); err != nil {
		m.log.Warn().Err(err).Msg("config dropped")
	}
}

// Committed runs after out was written to the peer.
func (m *Machine) Committed(out Outgoing) {
	switch out.State {
	case protocol.StateClear:
		m.mu.Lock()
		m.pushSelected = m.requestSelected
		m.mu.Unlock()
	case protocol.StateSendMesh, protocol.StateSendNode:
		m.mu.Lock()
		m.sent++
		sent, total := m.sent, m.total
		m.mu.Unlock()
		m.notify(func() { m.observer.PushProgress(sent, total) })
	case protocol.StateUpdate:
		if m.payloads != nil {
			m.payloads.Finish()
		}
		selected := m.PushSelected()
		m.notify(func() { m.observer.PushFinished(selected) })
	}
}

// Cancelled tells the observer that progress is void after a reconnect.
func (m *Machine) Cancelled() {
	m.notify(m.observer.CancelProgress)
}

func (m *Machine) notify(fn func()) {
	if m.exec == nil {
		fn()
		return
	}
	m.exec.Submit(fn)
}
