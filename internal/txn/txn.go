package txn

import "sync"

// ID identifies a transaction. Zero is never assigned.
type ID uint64

type state uint8

const (
	stateInProgress state = iota
	stateCommitted
	stateAborted
)

// Manager allocates transaction IDs and answers status questions for the
// queue: whether a transaction is still in progress per a snapshot, and
// whether a finished one committed. It stands in for the host transaction
// machinery; only the integration points the queue needs are provided.
type Manager struct {
	mu     sync.RWMutex
	next   ID
	status map[ID]state
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{next: 1, status: make(map[ID]state)}
}

// Begin allocates a new in-progress transaction ID.
func (m *Manager) Begin() ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	m.status[id] = stateInProgress
	return id
}

// MarkCommitted irreversibly marks id committed.
func (m *Manager) MarkCommitted(id ID) {
	m.mu.Lock()
	m.status[id] = stateCommitted
	m.mu.Unlock()
}

// MarkAborted marks id aborted. Aborted IDs may be forgotten entirely;
// readers treat unknown IDs as aborted.
func (m *Manager) MarkAborted(id ID) {
	m.mu.Lock()
	delete(m.status, id)
	m.mu.Unlock()
}

// DidCommit reports whether id is known to have committed.
func (m *Manager) DidCommit(id ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status[id] == stateCommitted
}

// Forget drops commit records for IDs below horizon. Safe once no queue
// entry at or above the tail references them: readers skip unknown IDs.
func (m *Manager) Forget(horizon ID) {
	m.mu.Lock()
	for id, st := range m.status {
		if id < horizon && st != stateInProgress {
			delete(m.status, id)
		}
	}
	m.mu.Unlock()
}

// Snapshot captures the set of transactions in progress at a point in time.
type Snapshot struct {
	xmax       ID
	inProgress map[ID]struct{}
}

// Snapshot returns a visibility snapshot: IDs at/above xmax or in the
// captured in-progress set are "still running" for readers using it.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in := make(map[ID]struct{})
	for id, st := range m.status {
		if st == stateInProgress {
			in[id] = struct{}{}
		}
	}
	return Snapshot{xmax: m.next, inProgress: in}
}

// InProgress reports whether id was running when the snapshot was taken.
func (s Snapshot) InProgress(id ID) bool {
	if id >= s.xmax {
		return true
	}
	_, ok := s.inProgress[id]
	return ok
}
