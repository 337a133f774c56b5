package pagedlog

import (
	"errors"
	"testing"

	pebblestore "github.com/rzbill/notiq/internal/storage/pebble"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return Open(db)
}

func TestZeroAndReadBack(t *testing.T) {
	st := newTestStore(t)
	p, err := st.Zero(0)
	if err != nil {
		t.Fatalf("zero: %v", err)
	}
	copy(p.Data(), []byte("hello"))
	p.MarkDirty()
	if err := p.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	r, err := st.Read(0, false)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(r.Data()[:5]) != "hello" {
		t.Fatalf("unexpected page contents: %q", r.Data()[:5])
	}
	if len(r.Data()) != PageSize {
		t.Fatalf("page size %d", len(r.Data()))
	}
	_ = r.Release()
}

func TestReadMissingPage(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.Read(7, false); !errors.Is(err, ErrPageMissing) {
		t.Fatalf("want ErrPageMissing, got %v", err)
	}
}

func TestPageSurvivesCacheDrop(t *testing.T) {
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	st := Open(db)
	p, _ := st.Zero(3)
	p.Data()[0] = 0x42
	p.MarkDirty()
	if err := p.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	// fresh store over the same db simulates a clean restart of the cache
	st2 := Open(db)
	r, err := st2.Read(3, false)
	if err != nil {
		t.Fatalf("read after reopen: %v", err)
	}
	if r.Data()[0] != 0x42 {
		t.Fatalf("lost byte after reopen")
	}
	_ = r.Release()
}

func TestTruncateBelow(t *testing.T) {
	st := newTestStore(t)
	for i := int64(0); i < 4; i++ {
		p, _ := st.Zero(i)
		p.Data()[0] = byte(i + 1)
		p.MarkDirty()
		_ = p.Release()
	}
	if err := st.TruncateBelow(2); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if _, err := st.Read(1, false); !errors.Is(err, ErrPageMissing) {
		t.Fatalf("page 1 should be gone, got %v", err)
	}
	r, err := st.Read(2, false)
	if err != nil {
		t.Fatalf("page 2 should remain: %v", err)
	}
	if r.Data()[0] != 3 {
		t.Fatalf("page 2 contents changed")
	}
	_ = r.Release()
}

func TestReset(t *testing.T) {
	st := newTestStore(t)
	p, _ := st.Zero(0)
	p.MarkDirty()
	_ = p.Release()
	if err := st.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := st.Read(0, false); !errors.Is(err, ErrPageMissing) {
		t.Fatalf("expected empty store after reset, got %v", err)
	}
}
