package notify

import (
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// ChannelKey identifies a channel within a namespace.
type ChannelKey struct {
	Namespace uint32
	Channel   string
}

// ListenerRecord marks one worker's interest in a channel. Committed=false
// is a staged LISTEN: recorded before the owning transaction commits so no
// concurrent notification can be missed, but not yet treated as interested
// when signaling.
type ListenerRecord struct {
	Worker    WorkerID
	Committed bool
}

// channelEntry owns a channel's listener array. All mutation happens under
// its own lock; dead marks an entry that was deleted after draining and
// must not be revived.
type channelEntry struct {
	mu        sync.Mutex
	listeners []ListenerRecord
	dead      bool
}

// Directory is the process-shared map from channel to current listeners.
// The map primitive allows concurrent readers of different channels;
// mutation of one channel's entry excludes only mutators of that entry.
// Entries are created on the first LISTEN and deleted when their listener
// array drains.
type Directory struct {
	m *xsync.MapOf[ChannelKey, *channelEntry]
}

func newDirectory() *Directory {
	return &Directory{m: xsync.NewMapOf[ChannelKey, *channelEntry]()}
}

// withEntry runs fn with key's entry locked, creating it when create is
// set. Returns false when the entry does not exist and create is false.
func (d *Directory) withEntry(key ChannelKey, create bool, fn func(*channelEntry)) bool {
	for {
		var e *channelEntry
		if create {
			e, _ = d.m.LoadOrCompute(key, func() *channelEntry { return &channelEntry{} })
		} else {
			var ok bool
			e, ok = d.m.Load(key)
			if !ok {
				return false
			}
		}
		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		fn(e)
		if len(e.listeners) == 0 {
			e.dead = true
			d.m.Delete(key)
		}
		e.mu.Unlock()
		return true
	}
}

// growListeners appends rec, doubling capacity when the array is full.
func growListeners(dst []ListenerRecord, rec ListenerRecord) []ListenerRecord {
	if len(dst) == cap(dst) {
		newCap := cap(dst) * 2
		if newCap < 4 {
			newCap = 4
		}
		grown := make([]ListenerRecord, len(dst), newCap)
		copy(grown, dst)
		dst = grown
	}
	return append(dst, rec)
}

// AddListener records w as a listener on key, staged or committed.
func (d *Directory) AddListener(key ChannelKey, w WorkerID, committed bool) {
	d.withEntry(key, true, func(e *channelEntry) {
		e.listeners = growListeners(e.listeners, ListenerRecord{Worker: w, Committed: committed})
	})
}

// CommitListener flips w's staged record to committed. A missing entry or
// record means an earlier invariant was violated.
func (d *Directory) CommitListener(key ChannelKey, w WorkerID) error {
	found := false
	ok := d.withEntry(key, false, func(e *channelEntry) {
		for i := range e.listeners {
			if e.listeners[i].Worker == w && !e.listeners[i].Committed {
				e.listeners[i].Committed = true
				found = true
				return
			}
		}
	})
	if !ok || !found {
		return fmt.Errorf("%w: no staged record for worker %d on %q", ErrDirectoryCorrupted, w, key.Channel)
	}
	return nil
}

// RemoveListener drops w's record from key, deleting the entry when it
// drains. Returns whether a record was removed.
func (d *Directory) RemoveListener(key ChannelKey, w WorkerID) bool {
	removed := false
	d.withEntry(key, false, func(e *channelEntry) {
		for i := range e.listeners {
			if e.listeners[i].Worker == w {
				e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
				removed = true
				return
			}
		}
	})
	return removed
}

// Listeners returns a snapshot copy of key's listener records.
func (d *Directory) Listeners(key ChannelKey) []ListenerRecord {
	var out []ListenerRecord
	d.withEntry(key, false, func(e *channelEntry) {
		out = append(out, e.listeners...)
	})
	return out
}

// ForEachChannel calls fn for every channel in the namespace with its
// current listener count.
func (d *Directory) ForEachChannel(ns uint32, fn func(channel string, listeners int)) {
	d.m.Range(func(key ChannelKey, e *channelEntry) bool {
		if key.Namespace != ns {
			return true
		}
		e.mu.Lock()
		n := len(e.listeners)
		dead := e.dead
		e.mu.Unlock()
		if !dead && n > 0 {
			fn(key.Channel, n)
		}
		return true
	})
}
