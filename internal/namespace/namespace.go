package namespace

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	pebblestore "github.com/rzbill/notiq/internal/storage/pebble"
)

// Meta holds namespace metadata. The numeric ID scopes channel names and
// queue entries; it is assigned once and never reused.
type Meta struct {
	Name        string `msgpack:"name"`
	ID          uint32 `msgpack:"id"`
	CreatedAtMs int64  `msgpack:"createdAtMs"`
}

var (
	nsMetaPrefix = []byte("nq/nsmeta/")
	nsSeqKey     = []byte("nq/nsseq")
)

// nsMetaKey builds the metadata key for a namespace name.
func nsMetaKey(name string) []byte {
	k := make([]byte, 0, len(nsMetaPrefix)+len(name))
	k = append(k, nsMetaPrefix...)
	return append(k, name...)
}

// Registry resolves namespace names to persistent Meta records, assigning
// IDs from a persisted counter on first use.
type Registry struct {
	db *pebblestore.DB
	mu sync.Mutex
}

// NewRegistry returns a Registry over db.
func NewRegistry(db *pebblestore.DB) *Registry {
	return &Registry{db: db}
}

// Ensure returns the Meta for name, creating it if absent. Idempotent.
func (r *Registry) Ensure(name string) (Meta, error) {
	if name == "" {
		return Meta{}, fmt.Errorf("namespace: empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := nsMetaKey(name)
	if b, err := r.db.Get(key); err == nil && len(b) > 0 {
		var m Meta
		if err := msgpack.Unmarshal(b, &m); err == nil {
			return m, nil
		}
		// fall through and rewrite if the record is unreadable
	}

	id, err := r.nextID()
	if err != nil {
		return Meta{}, err
	}
	m := Meta{Name: name, ID: id, CreatedAtMs: time.Now().UnixMilli()}
	b, err := msgpack.Marshal(&m)
	if err != nil {
		return Meta{}, err
	}
	if err := r.db.Set(key, b); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// nextID increments the persisted namespace counter. IDs start at 1;
// zero is reserved for dummy queue entries.
func (r *Registry) nextID() (uint32, error) {
	var cur uint32
	if b, err := r.db.Get(nsSeqKey); err == nil && len(b) == 4 {
		cur = binary.BigEndian.Uint32(b)
	}
	cur++
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], cur)
	if err := r.db.Set(nsSeqKey, buf[:]); err != nil {
		return 0, err
	}
	return cur, nil
}
