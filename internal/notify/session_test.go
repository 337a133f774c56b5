package notify

import (
	"errors"
	"strings"
	"testing"
)

func TestValidationRejectsBadInput(t *testing.T) {
	tb := newTestBus(t, nil)
	s, _ := tb.attach(t, testNamespace)

	var verr *ValidationError
	if err := s.Listen(""); !errors.As(err, &verr) {
		t.Fatalf("empty channel: %v", err)
	}
	if err := s.Listen(strings.Repeat("c", 257)); !errors.As(err, &verr) {
		t.Fatalf("oversized channel: %v", err)
	}
	if err := s.Notify("ch", strings.Repeat("p", 7681)); !errors.As(err, &verr) {
		t.Fatalf("oversized payload: %v", err)
	}
	if err := s.Notify("ch", strings.Repeat("p", 7680)); err != nil {
		t.Fatalf("payload at the limit rejected: %v", err)
	}
	if err := s.Notify("ch", ""); err != nil {
		t.Fatalf("empty payload rejected: %v", err)
	}
}

func TestClosedSessionRejectsOperations(t *testing.T) {
	tb := newTestBus(t, nil)
	s, _ := tb.attach(t, testNamespace)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Listen("ch"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("listen on closed session: %v", err)
	}
	if err := s.Notify("ch", "x"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("notify on closed session: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestDuplicateNotificationsCollapse(t *testing.T) {
	tb := newTestBus(t, nil)
	l, snk := tb.attach(t, testNamespace)
	listenOn(t, tb, l, "jobs")
	n, _ := tb.attach(t, testNamespace)

	for i := 0; i < 3; i++ {
		if err := n.Notify("jobs", "run"); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
	if err := n.Notify("jobs", "other"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	tb.commit(t, n)
	drain(t, l)

	wantNotifications(t, snk, []Notification{
		{Channel: "jobs", Payload: "run"},
		{Channel: "jobs", Payload: "other"},
	})
}

func TestDedupSurvivesHashIndexCutover(t *testing.T) {
	tb := newTestBus(t, nil)
	l, snk := tb.attach(t, testNamespace)
	listenOn(t, tb, l, "bulk")
	n, _ := tb.attach(t, testNamespace)

	// Push past the linear-scan threshold, then repeat earlier payloads.
	var want []Notification
	for i := 0; i < dedupHashThreshold+4; i++ {
		payload := "p" + string(rune('a'+i))
		if err := n.Notify("bulk", payload); err != nil {
			t.Fatalf("notify: %v", err)
		}
		want = append(want, Notification{Channel: "bulk", Payload: payload})
	}
	if err := n.Notify("bulk", "pa"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := n.Notify("bulk", "p"+string(rune('a'+dedupHashThreshold))); err != nil {
		t.Fatalf("notify: %v", err)
	}
	tb.commit(t, n)
	drain(t, l)
	wantNotifications(t, snk, want)
}

func TestSubtransactionAbortDiscardsWork(t *testing.T) {
	tb := newTestBus(t, nil)
	l, snk := tb.attach(t, testNamespace)
	listenOn(t, tb, l, "events")
	n, _ := tb.attach(t, testNamespace)

	if err := n.Notify("events", "kept"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	n.SubBegin()
	if err := n.Notify("events", "discarded"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	n.SubAbort()
	n.SubBegin()
	if err := n.Notify("events", "merged"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	n.SubCommit()
	tb.commit(t, n)
	drain(t, l)

	wantNotifications(t, snk, []Notification{
		{Channel: "events", Payload: "kept"},
		{Channel: "events", Payload: "merged"},
	})
}

func TestSubtransactionAbortDiscardsListen(t *testing.T) {
	tb := newTestBus(t, nil)
	s, snk := tb.attach(t, testNamespace)

	s.SubBegin()
	if err := s.Listen("ghost"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.SubAbort()
	tb.commit(t, s)

	if got := s.Channels(); len(got) != 0 {
		t.Fatalf("aborted subtransaction left listens: %v", got)
	}

	n, _ := tb.attach(t, testNamespace)
	notifyOn(t, tb, n, "ghost", "boo")
	drain(t, s)
	wantNotifications(t, snk, nil)
}

func TestSubtransactionDedupMergesIntoParent(t *testing.T) {
	tb := newTestBus(t, nil)
	l, snk := tb.attach(t, testNamespace)
	listenOn(t, tb, l, "events")
	n, _ := tb.attach(t, testNamespace)

	if err := n.Notify("events", "x"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	n.SubBegin()
	if err := n.Notify("events", "x"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	n.SubCommit()
	tb.commit(t, n)
	drain(t, l)

	wantNotifications(t, snk, []Notification{{Channel: "events", Payload: "x"}})
}
