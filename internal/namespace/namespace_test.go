package namespace

import (
	"testing"

	pebblestore "github.com/rzbill/notiq/internal/storage/pebble"
)

func newTestRegistry(t *testing.T) (*Registry, *pebblestore.DB) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRegistry(db), db
}

func TestEnsureAssignsDistinctIDs(t *testing.T) {
	r, _ := newTestRegistry(t)
	a, err := r.Ensure("app")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	b, err := r.Ensure("other")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if a.ID == 0 || b.ID == 0 {
		t.Fatalf("ids must be nonzero: %d %d", a.ID, b.ID)
	}
	if a.ID == b.ID {
		t.Fatalf("ids must differ: %d", a.ID)
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)
	a, _ := r.Ensure("app")
	again, err := r.Ensure("app")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if again.ID != a.ID || again.CreatedAtMs != a.CreatedAtMs {
		t.Fatalf("expected identical meta, got %+v vs %+v", a, again)
	}
}

func TestIDsSurviveReopen(t *testing.T) {
	r, db := newTestRegistry(t)
	a, _ := r.Ensure("app")

	r2 := NewRegistry(db)
	got, err := r2.Ensure("app")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if got.ID != a.ID {
		t.Fatalf("id changed across registries: %d vs %d", got.ID, a.ID)
	}
	fresh, _ := r2.Ensure("new")
	if fresh.ID == a.ID {
		t.Fatalf("counter must not reuse ids")
	}
}

func TestEmptyNameRejected(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Ensure(""); err == nil {
		t.Fatal("expected error for empty namespace name")
	}
}
