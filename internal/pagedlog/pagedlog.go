package pagedlog

import (
	"errors"
	"fmt"
	"sync"

	pebblestore "github.com/rzbill/notiq/internal/storage/pebble"
)

// PageSize is the fixed slab size for every page.
const PageSize = 8192

// ErrPageMissing is returned by Read when a page was never written or has
// been truncated away.
var ErrPageMissing = errors.New("pagedlog: page missing")

// Store is a page-addressed slab store. Pages are fixed-size byte slabs
// identified by monotonically increasing page numbers. Each page carries its
// own shared/exclusive lock; the caller is responsible for lock ordering
// relative to its other resources. Content is written through to Pebble when
// a dirty handle is released, so pages survive a clean restart.
type Store struct {
	db *pebblestore.DB

	mu    sync.Mutex
	pages map[int64]*pageState
}

type pageState struct {
	lock sync.RWMutex
	data []byte
}

// Page is a handle to a locked page. Release must be called exactly once.
type Page struct {
	st    *Store
	ps    *pageState
	no    int64
	excl  bool
	dirty bool
	done  bool
}

// Open attaches a Store to the given database.
func Open(db *pebblestore.DB) *Store {
	return &Store{db: db, pages: make(map[int64]*pageState)}
}

// Reset discards every page. Used at startup: queue contents are not
// required to survive a restart.
func (s *Store) Reset() error {
	s.mu.Lock()
	s.pages = make(map[int64]*pageState)
	s.mu.Unlock()
	return s.db.DeleteRange(keyPage(0), keyPageSentinel())
}

func (s *Store) state(pageNo int64) *pageState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.pages[pageNo]
	if !ok {
		ps = &pageState{}
		s.pages[pageNo] = ps
	}
	return ps
}

// Zero creates a zero-filled page and returns an exclusive handle to it.
// Zeroing an existing page resets its contents.
func (s *Store) Zero(pageNo int64) (*Page, error) {
	ps := s.state(pageNo)
	ps.lock.Lock()
	ps.data = make([]byte, PageSize)
	return &Page{st: s, ps: ps, no: pageNo, excl: true, dirty: true}, nil
}

// Read returns a handle to an existing page, locked shared or exclusive.
// Pages not in memory are loaded from the database.
func (s *Store) Read(pageNo int64, exclusive bool) (*Page, error) {
	ps := s.state(pageNo)
	if exclusive {
		ps.lock.Lock()
		if ps.data == nil {
			if err := s.loadLocked(pageNo, ps); err != nil {
				ps.lock.Unlock()
				return nil, err
			}
		}
		return &Page{st: s, ps: ps, no: pageNo, excl: true}, nil
	}
	for {
		ps.lock.RLock()
		if ps.data != nil {
			return &Page{st: s, ps: ps, no: pageNo}, nil
		}
		ps.lock.RUnlock()
		ps.lock.Lock()
		if ps.data == nil {
			if err := s.loadLocked(pageNo, ps); err != nil {
				ps.lock.Unlock()
				return nil, err
			}
		}
		ps.lock.Unlock()
	}
}

// loadLocked populates ps.data from the database. Caller holds the page
// lock exclusively.
func (s *Store) loadLocked(pageNo int64, ps *pageState) error {
	b, err := s.db.Get(keyPage(pageNo))
	if err != nil {
		return ErrPageMissing
	}
	if len(b) != PageSize {
		return fmt.Errorf("pagedlog: page %d has bad length %d", pageNo, len(b))
	}
	ps.data = b
	return nil
}

// Data returns the page slab. Callers holding a shared handle must not
// mutate it.
func (p *Page) Data() []byte { return p.ps.data }

// MarkDirty records that the slab was mutated; the page is flushed to the
// database on Release. Only valid on exclusive handles.
func (p *Page) MarkDirty() { p.dirty = true }

// Release flushes a dirty page and drops the lock.
func (p *Page) Release() error {
	if p.done {
		return nil
	}
	p.done = true
	var err error
	if p.dirty {
		err = p.st.db.Set(keyPage(p.no), p.ps.data)
	}
	if p.excl {
		p.ps.lock.Unlock()
	} else {
		p.ps.lock.RUnlock()
	}
	return err
}

// TruncateBelow discards all pages with page number < belowPageNo.
func (s *Store) TruncateBelow(belowPageNo int64) error {
	s.mu.Lock()
	for no := range s.pages {
		if no < belowPageNo {
			delete(s.pages, no)
		}
	}
	s.mu.Unlock()
	return s.db.DeleteRange(keyPage(0), keyPage(belowPageNo))
}
