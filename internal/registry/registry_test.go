package registry

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/danmuck/scenebridge/internal/testutil/testlog"
)

func assertInverse(t *testing.T, r *Registry, ns Namespace) {
	t.Helper()
	b := r.space(ns)
	if len(b.toGlobal) != len(b.toLocal) {
		t.Fatalf("%s size mismatch local=%d global=%d", ns, len(b.toGlobal), len(b.toLocal))
	}
	for l, g := range b.toGlobal {
		if b.toLocal[g] != l {
			t.Fatalf("%s inverse broken: local=%q global=%q back=%q", ns, l, g, b.toLocal[g])
		}
	}
}

func TestRegisterSelfIdentityNeverOverwrites(t *testing.T) {
	testlog.Start(t)
	r := New()
	if !r.Register(Items, "cube") {
		t.Fatalf("expected register to succeed")
	}
	if g, ok := r.GlobalOf(Items, "cube"); !ok || g != "cube" {
		t.Fatalf("unexpected global: %q %v", g, ok)
	}
	r.RegisterAs(Items, "cube", "remote.cube")
	if !r.Register(Items, "cube") {
		t.Fatalf("expected mapped local to report true")
	}
	if g, _ := r.GlobalOf(Items, "cube"); g != "remote.cube" {
		t.Fatalf("register overwrote explicit mapping: %q", g)
	}
	assertInverse(t, r, Items)
}

func TestRegisterRefusesTakenGlobal(t *testing.T) {
	testlog.Start(t)
	r := New()
	r.RegisterAs(Assets, "mesh.7", "mesh.3")
	if r.Register(Assets, "mesh.3") {
		t.Fatalf("expected refusal when global is owned by another local")
	}
	if l, ok := r.LocalOf(Assets, "mesh.3"); !ok || l != "mesh.7" {
		t.Fatalf("existing pair disturbed: %q %v", l, ok)
	}
	assertInverse(t, r, Assets)
}

func TestRegisterAsEvictsStalePairs(t *testing.T) {
	testlog.Start(t)
	r := New()
	r.RegisterAs(Items, "a", "g1")
	r.RegisterAs(Items, "b", "g2")
	r.RegisterAs(Items, "a", "g2")
	if _, ok := r.LocalOf(Items, "g1"); ok {
		t.Fatalf("stale global g1 kept")
	}
	if _, ok := r.GlobalOf(Items, "b"); ok {
		t.Fatalf("stale local b kept")
	}
	if r.Len(Items) != 1 {
		t.Fatalf("unexpected size: %d", r.Len(Items))
	}
	assertInverse(t, r, Items)
}

func TestNamespacesAreIndependent(t *testing.T) {
	testlog.Start(t)
	r := New()
	r.Register(Items, "x")
	if _, ok := r.GlobalOf(Assets, "x"); ok {
		t.Fatalf("item leaked into assets")
	}
	if _, ok := r.LocalOf(Items, "missing"); ok {
		t.Fatalf("lookup miss must report false")
	}
}

func TestReconcileRemovesExactlyInvalidAndIsIdempotent(t *testing.T) {
	testlog.Start(t)
	r := New()
	for _, n := range []string{"a", "b", "c", "d"} {
		r.Register(Items, n)
	}
	r.RegisterAs(Items, "e", "remote.e")
	valid := Set("a", "c", "e", "zzz")

	if removed := r.Reconcile(Items, valid); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	first := r.Snapshot(Items)
	if removed := r.Reconcile(Items, valid); removed != 0 {
		t.Fatalf("second reconcile removed %d", removed)
	}
	second := r.Snapshot(Items)
	if fmt.Sprint(first) != fmt.Sprint(second) {
		t.Fatalf("reconcile not idempotent: %v vs %v", first, second)
	}
	for _, p := range second {
		if _, ok := valid[p.Local]; !ok {
			t.Fatalf("invalid local survived: %+v", p)
		}
	}
	if len(second) != 3 {
		t.Fatalf("expected 3 survivors, got %v", second)
	}
	assertInverse(t, r, Items)
}

func TestRandomOperationsKeepMapsInverse(t *testing.T) {
	testlog.Start(t)
	rng := rand.New(rand.NewSource(7))
	r := New()
	name := func() string { return fmt.Sprintf("n%d", rng.Intn(12)) }
	for i := 0; i < 2000; i++ {
		ns := Namespace(rng.Intn(2))
		switch rng.Intn(4) {
		case 0, 1:
			r.Register(ns, name())
		case 2:
			r.RegisterAs(ns, name(), name())
		default:
			r.Reconcile(ns, Set(name(), name(), name(), name(), name(), name()))
		}
		assertInverse(t, r, Items)
		assertInverse(t, r, Assets)
	}
}
