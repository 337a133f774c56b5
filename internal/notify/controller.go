package notify

import (
	"sync"

	"github.com/rzbill/notiq/internal/txn"
)

// WorkerID indexes a worker's slot in the controller arena. It doubles as
// the sender id stamped into queue entries.
type WorkerID int32

// InvalidWorker terminates the active-listener list.
const InvalidWorker WorkerID = -1

// invalidPid marks a free slot.
const invalidPid = 0

// workerSlot is one arena cell. A slot is on the active-listener list if
// and only if pid is valid. Workers may write their own slot under the
// controller's shared lock; everything else requires the exclusive lock.
type workerSlot struct {
	pid           int
	namespace     uint32
	pos           Position
	wakeupPending bool
	advancing     bool
	advanceTo     Position
	next          WorkerID
}

// Controller is the shared control block of the queue: global head/tail,
// the worker slot arena, and the active-listener list threaded through the
// arena by index (allocation-free scans, ordered by worker id).
//
// Its RWMutex is also the write-serialization resource: a committing writer
// holds it exclusively across its whole pre-commit write sequence, so queue
// entries appear in exactly commit order. tailMu serializes tail
// advancement and is always acquired before the controller lock.
type Controller struct {
	mu     sync.RWMutex
	tailMu sync.Mutex

	head     Position
	tail     Position
	stopPage int64 // pages below this are already truncated
	maxPages int64

	// pagesSinceClean counts page boundaries crossed since the last tail
	// advance attempt; writers that push it past the cadence trigger one.
	pagesSinceClean int64

	// pageXmin maps each occupied page to the lowest transaction id with
	// an entry on it. Tail advancement prunes pages that fell behind and
	// derives the commit-ledger horizon from what remains.
	pageXmin map[int64]txn.ID

	slots         []workerSlot
	firstListener WorkerID
}

func newController(maxWorkers int, maxPages int64) *Controller {
	c := &Controller{
		maxPages:      maxPages,
		pageXmin:      make(map[int64]txn.ID),
		slots:         make([]workerSlot, maxWorkers),
		firstListener: InvalidWorker,
	}
	for i := range c.slots {
		c.slots[i].next = InvalidWorker
	}
	return c
}

// Head returns the current head under the shared lock.
func (c *Controller) Head() Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head
}

// Tail returns the current tail under the shared lock.
func (c *Controller) Tail() Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tail
}

// fullLocked reports whether a head at pos would exceed the page ceiling.
// Writers check their candidate head before publishing it. Caller holds
// c.mu.
func (c *Controller) fullLocked(pos Position) bool {
	return pos.Page-c.tail.Page >= c.maxPages
}

// notePageXidLocked records id as a candidate minimum for pageNo. Caller
// holds c.mu exclusively.
func (c *Controller) notePageXidLocked(pageNo int64, id txn.ID) {
	if cur, ok := c.pageXmin[pageNo]; !ok || id < cur {
		c.pageXmin[pageNo] = id
	}
}

// xidHorizonLocked drops page minimums that fell below the tail and
// returns the lowest transaction id a queue entry at or above it can still
// carry. With no occupied pages every finished transaction is past the
// horizon. Caller holds c.mu exclusively.
func (c *Controller) xidHorizonLocked() txn.ID {
	horizon := ^txn.ID(0)
	for pageNo, id := range c.pageXmin {
		if pageNo < c.tail.Page {
			delete(c.pageXmin, pageNo)
			continue
		}
		if id < horizon {
			horizon = id
		}
	}
	return horizon
}

// fillRatioLocked is occupied pages over the ceiling. Caller holds c.mu.
func (c *Controller) fillRatioLocked() float64 {
	return float64(c.head.Page-c.tail.Page) / float64(c.maxPages)
}

// registerLocked claims w's slot and threads it into the active-listener
// list in worker-id order. The starting position floors at the tail and
// skips to the furthest same-namespace listener so stale history is never
// reprocessed; with no peer it starts at the head. Caller holds c.mu
// exclusively.
func (c *Controller) registerLocked(w WorkerID, pid int, ns uint32) {
	start := c.tail
	havePeer := false
	for l := c.firstListener; l != InvalidWorker; l = c.slots[l].next {
		sl := &c.slots[l]
		if sl.namespace == ns {
			havePeer = true
			start = start.Max(sl.pos)
		}
	}
	if !havePeer {
		start = c.head
	}

	sl := &c.slots[w]
	*sl = workerSlot{pid: pid, namespace: ns, pos: start, next: InvalidWorker}

	// insert keeping the list ordered by worker id
	if c.firstListener == InvalidWorker || w < c.firstListener {
		sl.next = c.firstListener
		c.firstListener = w
		return
	}
	prev := c.firstListener
	for c.slots[prev].next != InvalidWorker && c.slots[prev].next < w {
		prev = c.slots[prev].next
	}
	sl.next = c.slots[prev].next
	c.slots[prev].next = w
}

// unregisterLocked unthreads w and frees its slot. Caller holds c.mu
// exclusively.
func (c *Controller) unregisterLocked(w WorkerID) {
	if c.firstListener == w {
		c.firstListener = c.slots[w].next
	} else {
		for prev := c.firstListener; prev != InvalidWorker; prev = c.slots[prev].next {
			if c.slots[prev].next == w {
				c.slots[prev].next = c.slots[w].next
				break
			}
		}
	}
	c.slots[w] = workerSlot{next: InvalidWorker}
}

// registeredLocked reports whether w's slot is claimed. Caller holds c.mu.
func (c *Controller) registeredLocked(w WorkerID) bool {
	return c.slots[w].pid != invalidPid
}

// ListenerStat describes one active listener for introspection.
type ListenerStat struct {
	Worker    WorkerID `json:"worker"`
	Pid       int      `json:"pid"`
	Namespace uint32   `json:"namespace"`
	Page      int64    `json:"page"`
	Offset    int32    `json:"offset"`
}

// Stats is a point-in-time view of the queue control block.
type Stats struct {
	Head      Position       `json:"head"`
	Tail      Position       `json:"tail"`
	UsedPages int64          `json:"usedPages"`
	MaxPages  int64          `json:"maxPages"`
	Listeners []ListenerStat `json:"listeners"`
}

// Stats snapshots head, tail, and the active listeners.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Stats{
		Head:      c.head,
		Tail:      c.tail,
		UsedPages: c.head.Page - c.tail.Page,
		MaxPages:  c.maxPages,
	}
	for l := c.firstListener; l != InvalidWorker; l = c.slots[l].next {
		sl := &c.slots[l]
		st.Listeners = append(st.Listeners, ListenerStat{
			Worker:    l,
			Pid:       sl.pid,
			Namespace: sl.namespace,
			Page:      sl.pos.Page,
			Offset:    sl.pos.Off,
		})
	}
	return st
}
