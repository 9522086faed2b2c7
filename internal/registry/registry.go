// Package registry keeps the two-way mapping between local object names and
// the global names both peers agree on.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Namespace selects which identity space a name lives in.
type Namespace uint8

const (
	Items Namespace = iota
	Assets
)

func (ns Namespace) String() string {
	switch ns {
	case Items:
		return "items"
	case Assets:
		return "assets"
	default:
		return fmt.Sprintf("namespace(%d)", uint8(ns))
	}
}

type bimap struct {
	toGlobal map[string]string
	toLocal  map[string]string
}

func newBimap() *bimap {
	return &bimap{toGlobal: map[string]string{}, toLocal: map[string]string{}}
}

func (b *bimap) unlinkLocal(local string) {
	if g, ok := b.toGlobal[local]; ok {
		delete(b.toGlobal, local)
		if b.toLocal[g] == local {
			delete(b.toLocal, g)
		}
	}
}

func (b *bimap) unlinkGlobal(global string) {
	if l, ok := b.toLocal[global]; ok {
		delete(b.toLocal, global)
		if b.toGlobal[l] == global {
			delete(b.toGlobal, l)
		}
	}
}

// Registry holds one bijection per namespace. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	names [2]*bimap
}

func New() *Registry {
	return &Registry{names: [2]*bimap{newBimap(), newBimap()}}
}

func (r *Registry) space(ns Namespace) *bimap {
	if int(ns) >= len(r.names) {
		panic(fmt.Sprintf("registry: unknown %s", ns))
	}
	return r.names[ns]
}

// Register maps local to itself unless local already has a global name. It
// refuses when the global name local is owned by a different local and
// reports whether local is mapped afterwards.
func (r *Registry) Register(ns Namespace, local string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.space(ns)
	if _, ok := b.toGlobal[local]; ok {
		return true
	}
	if _, taken := b.toLocal[local]; taken {
		return false
	}
	b.toGlobal[local] = local
	b.toLocal[local] = local
	return true
}

// RegisterAs installs local<->global, dropping any pair that used either name.
func (r *Registry) RegisterAs(ns Namespace, local, global string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.space(ns)
	b.unlinkLocal(local)
	b.unlinkGlobal(global)
	b.toGlobal[local] = global
	b.toLocal[global] = local
}

func (r *Registry) GlobalOf(ns Namespace, local string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.space(ns).toGlobal[local]
	return g, ok
}

func (r *Registry) LocalOf(ns Namespace, global string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.space(ns).toLocal[global]
	return l, ok
}

// Reconcile drops every pair whose local name is not in valid and returns the
// number of pairs removed.
func (r *Registry) Reconcile(ns Namespace, valid map[string]struct{}) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.space(ns)
	removed := 0
	for local := range b.toGlobal {
		if _, ok := valid[local]; ok {
			continue
		}
		b.unlinkLocal(local)
		removed++
	}
	return removed
}

func (r *Registry) Len(ns Namespace) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.space(ns).toGlobal)
}

// Pair is one local/global mapping.
type Pair struct {
	Local  string
	Global string
}

// Snapshot returns the pairs of ns sorted by local name.
func (r *Registry) Snapshot(ns Namespace) []Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b := r.space(ns)
	out := make([]Pair, 0, len(b.toGlobal))
	for l, g := range b.toGlobal {
		out = append(out, Pair{Local: l, Global: g})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Local < out[j].Local })
	return out
}

// Set builds a membership set for Reconcile.
func Set(names ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}
