// Package pipeline turns a scene snapshot into ordered, serialized records
// and schedules the protocol states that will carry them.
package pipeline

import (
	"errors"
	"sync"

	"github.com/danmuck/scenebridge/internal/coords"
	"github.com/danmuck/scenebridge/internal/logging"
	"github.com/danmuck/scenebridge/internal/protocol"
	"github.com/danmuck/scenebridge/internal/registry"
	"github.com/danmuck/scenebridge/internal/scene"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
)

var (
	ErrNoScheduler = errors.New("pipeline: scheduler required")
	ErrNoSource    = errors.New("pipeline: scene source required")
)

// Scheduler appends a bracket of states to the lazy queue in one step.
type Scheduler interface {
	Schedule(states ...protocol.State)
}

// Summary describes one prepared push.
type Summary struct {
	Selected     bool
	Nodes        int
	Meshes       int
	SkippedNodes int
	EmptyMeshes  int
	Reconciled   int
	Bytes        int
	// Digest is BLAKE3 over the BLAKE3 digest of each record in send order.
	Digest [32]byte
}

// Pipeline owns the builder pools and the FIFO builder queues. One mutex
// guards pools, queues and the in-flight flag; it is never held across I/O.
type Pipeline struct {
	mu        sync.Mutex
	src       Source
	reg       *registry.Registry
	conv      *coords.Converter
	log       zerolog.Logger
	session   scene.ConfigRecord
	nodePool  []*scene.Builder
	meshPool  []*scene.Builder
	nodeQueue []*scene.Builder
	meshQueue []*scene.Builder
	clearCfg  []byte
	inFlight  bool
	last      Summary
}

func New(src Source, reg *registry.Registry, conv *coords.Converter) *Pipeline {
	return &Pipeline{
		src:  src,
		reg:  reg,
		conv: conv,
		log:  logging.Component("pipeline"),
	}
}

// SetSessionConfig sets the config sent with each Clear.
func (p *Pipeline) SetSessionConfig(cfg scene.ConfigRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = cfg
}

// Prepare snapshots the scene, refreshes identities, builds every record and
// schedules Clear, one SendMesh per mesh, one SendNode per node, then Update.
func (p *Pipeline) Prepare(selected bool, sched Scheduler) (Summary, error) {
	if sched == nil {
		return Summary{}, ErrNoScheduler
	}
	if p.src == nil {
		return Summary{}, ErrNoSource
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inFlight {
		p.log.Warn().Msg("previous push never finished; discarding its queues")
	}

	sum := Summary{Selected: selected}
	sum.Reconciled = p.refreshRegistry()

	objects := p.src.PushableObjects(selected)
	assets := p.meshSet(p.src.ReferencedAssets(objects), &sum)

	p.meshPool = resetPool(p.meshPool, len(assets))
	p.meshQueue = p.meshQueue[:0]
	for i, a := range assets {
		b := p.meshPool[i]
		if !p.buildMesh(b, a) {
			continue
		}
		p.meshQueue = append(p.meshQueue, b)
	}

	p.nodePool = resetPool(p.nodePool, len(objects))
	p.nodeQueue = p.nodeQueue[:0]
	for i, o := range objects {
		b := p.nodePool[i]
		if !p.buildNode(b, o) {
			sum.SkippedNodes++
			continue
		}
		p.nodeQueue = append(p.nodeQueue, b)
	}

	cfg := p.session
	cfg.ResetMeshAsset = p.conv.AssetReset()
	payload, err := scene.EncodeConfig(cfg)
	if err != nil {
		p.log.Warn().Err(err).Msg("config payload dropped")
		payload = nil
	}
	p.clearCfg = payload

	// The push digest chains the per-record digests in send order.
	h := blake3.New()
	for _, q := range [][]*scene.Builder{p.meshQueue, p.nodeQueue} {
		for _, b := range q {
			d := b.Digest()
			_, _ = h.Write(d[:])
			sum.Bytes += b.Len()
		}
	}
	copy(sum.Digest[:], h.Sum(nil))
	sum.Meshes = len(p.meshQueue)
	sum.Nodes = len(p.nodeQueue)

	states := make([]protocol.State, 0, sum.Meshes+sum.Nodes+2)
	states = append(states, protocol.StateClear)
	for range p.meshQueue {
		states = append(states, protocol.StateSendMesh)
	}
	for range p.nodeQueue {
		states = append(states, protocol.StateSendNode)
	}
	states = append(states, protocol.StateUpdate)

	p.inFlight = true
	p.last = sum
	sched.Schedule(states...)

	p.log.Info().
		Bool("selected", selected).
		Int("meshes", sum.Meshes).
		Int("nodes", sum.Nodes).
		Int("skipped_nodes", sum.SkippedNodes).
		Int("empty_meshes", sum.EmptyMeshes).
		Int("bytes", sum.Bytes).
		Msg("push prepared")
	return sum, nil
}

// refreshRegistry registers every pushable object and asset of the full scene
// and drops identities that no longer exist.
func (p *Pipeline) refreshRegistry() int {
	all := p.src.PushableObjects(false)
	items := make(map[string]struct{}, len(all))
	for _, o := range all {
		name := p.src.UniqueLocalName(o)
		items[name] = struct{}{}
		if !p.reg.Register(registry.Items, name) {
			p.log.Warn().Str("local", name).Msg("item name owned by another object")
		}
	}
	assetList := p.src.ReferencedAssets(all)
	assets := make(map[string]struct{}, len(assetList))
	for _, a := range assetList {
		name := p.src.UniqueLocalName(a)
		assets[name] = struct{}{}
		if !p.reg.Register(registry.Assets, name) {
			p.log.Warn().Str("local", name).Msg("asset name owned by another asset")
		}
	}
	return p.reg.Reconcile(registry.Items, items) + p.reg.Reconcile(registry.Assets, assets)
}

// meshSet dedupes assets and drops geometry with no vertices or sections.
func (p *Pipeline) meshSet(in []*Asset, sum *Summary) []*Asset {
	seen := make(map[*Asset]struct{}, len(in))
	out := make([]*Asset, 0, len(in))
	for _, a := range in {
		if a == nil {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		if a.VertexCount() == 0 || len(a.Sections) == 0 {
			sum.EmptyMeshes++
			continue
		}
		out = append(out, a)
	}
	return out
}

func resetPool(pool []*scene.Builder, n int) []*scene.Builder {
	for len(pool) < n {
		pool = append(pool, scene.NewBuilder())
	}
	for _, b := range pool {
		b.Reset()
	}
	return pool
}

// NextMesh pops the oldest queued mesh record.
func (p *Pipeline) NextMesh() ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pop(&p.meshQueue)
}

// NextNode pops the oldest queued node record.
func (p *Pipeline) NextNode() ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pop(&p.nodeQueue)
}

func pop(q *[]*scene.Builder) ([]byte, bool) {
	if len(*q) == 0 {
		return nil, false
	}
	b := (*q)[0]
	*q = (*q)[1:]
	return b.Bytes(), true
}

// ClearPayload returns the config sent with Clear, or nil.
func (p *Pipeline) ClearPayload() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clearCfg
}

// Finish marks the current push complete.
func (p *Pipeline) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false
	p.nodeQueue = p.nodeQueue[:0]
	p.meshQueue = p.meshQueue[:0]
}

func (p *Pipeline) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// Queued returns the number of records not yet handed out.
func (p *Pipeline) Queued() (meshes, nodes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.meshQueue), len(p.nodeQueue)
}

// Last returns the summary of the most recent Prepare.
func (p *Pipeline) Last() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Release drops all builders.
func (p *Pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodePool, p.meshPool = nil, nil
	p.nodeQueue, p.meshQueue = nil, nil
	p.clearCfg = nil
	p.inFlight = false
}
