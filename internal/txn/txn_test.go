package txn

import "testing"

func TestBeginAssignsIncreasingIDs(t *testing.T) {
	m := NewManager()
	a := m.Begin()
	b := m.Begin()
	if !(a < b) {
		t.Fatalf("expected increasing ids: %d %d", a, b)
	}
}

func TestStatusTransitions(t *testing.T) {
	m := NewManager()
	id := m.Begin()
	if m.DidCommit(id) {
		t.Fatal("in-progress txn should not be committed")
	}
	m.MarkCommitted(id)
	if !m.DidCommit(id) {
		t.Fatal("expected committed")
	}

	id2 := m.Begin()
	m.MarkAborted(id2)
	if m.DidCommit(id2) {
		t.Fatal("aborted txn should not report committed")
	}
}

func TestSnapshotInProgress(t *testing.T) {
	m := NewManager()
	running := m.Begin()
	snap := m.Snapshot()

	if !snap.InProgress(running) {
		t.Fatal("running txn must be in progress per snapshot")
	}

	// commits after the snapshot stay in-progress per that snapshot
	m.MarkCommitted(running)
	if !snap.InProgress(running) {
		t.Fatal("snapshot must not observe later commit")
	}

	// ids allocated after the snapshot are in progress by definition
	later := m.Begin()
	if !snap.InProgress(later) {
		t.Fatal("future txn must be in progress per old snapshot")
	}

	fresh := m.Snapshot()
	if fresh.InProgress(running) {
		t.Fatal("fresh snapshot should see the commit")
	}
}

func TestForgetDropsOldCommits(t *testing.T) {
	m := NewManager()
	old := m.Begin()
	m.MarkCommitted(old)
	keep := m.Begin()
	m.MarkCommitted(keep)

	m.Forget(keep)
	if m.DidCommit(old) {
		t.Fatal("forgotten txn should read as unknown")
	}
	if !m.DidCommit(keep) {
		t.Fatal("txn at horizon must be kept")
	}
}
