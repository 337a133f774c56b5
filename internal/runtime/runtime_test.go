package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/notiq/internal/config"
	"github.com/rzbill/notiq/internal/notify"
	pebblestore "github.com/rzbill/notiq/internal/storage/pebble"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := Open(Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
		Config:  cfgpkg.Default(),
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

type chanSink struct {
	mu  sync.Mutex
	got []string
	ch  chan struct{}
}

func newChanSink() *chanSink { return &chanSink{ch: make(chan struct{}, 16)} }

func (s *chanSink) Deliver(channel, payload string, _ notify.WorkerID) error {
	s.mu.Lock()
	s.got = append(s.got, channel+":"+payload)
	s.mu.Unlock()
	s.ch <- struct{}{}
	return nil
}

func (s *chanSink) wait(t *testing.T) string {
	t.Helper()
	select {
	case <-s.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.got[len(s.got)-1]
}

func TestEnsureNamespaceCachesMeta(t *testing.T) {
	rt := newTestRuntime(t)
	a, err := rt.EnsureNamespace("tenants")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	b, err := rt.EnsureNamespace("tenants")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("ids differ: %d vs %d", a.ID, b.ID)
	}
	if def, err := rt.EnsureNamespace(""); err != nil || def.Name != rt.Config().DefaultNamespaceName {
		t.Fatalf("default namespace = %+v, err %v", def, err)
	}
}

func TestCheckHealth(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestConnNotifyDeliversAcrossConnections(t *testing.T) {
	rt := newTestRuntime(t)

	lsink := newChanSink()
	listener, err := rt.Attach("app", lsink)
	if err != nil {
		t.Fatalf("attach listener: %v", err)
	}
	defer listener.Close()
	if err := listener.Listen("orders"); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- listener.Serve(ctx) }()

	notifier, err := rt.Attach("app", newChanSink())
	if err != nil {
		t.Fatalf("attach notifier: %v", err)
	}
	defer notifier.Close()
	if err := notifier.Notify("orders", "hello"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if got := lsink.wait(t); got != "orders:hello" {
		t.Fatalf("delivered %q", got)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("serve returned %v", err)
	}
}

func TestConnTxAbortDiscardsAll(t *testing.T) {
	rt := newTestRuntime(t)

	lsink := newChanSink()
	listener, err := rt.Attach("app", lsink)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer listener.Close()
	if err := listener.Listen("orders"); err != nil {
		t.Fatalf("listen: %v", err)
	}

	notifier, err := rt.Attach("app", newChanSink())
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer notifier.Close()

	boom := errors.New("boom")
	err = notifier.Tx(func(s *notify.Session) error {
		if err := s.Notify("orders", "never"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("tx error = %v", err)
	}

	if err := notifier.Notify("orders", "after"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-listener.Session().Wakeup():
			_ = listener.Session().ProcessNotifies()
		case <-time.After(5 * time.Second):
		}
	}()
	<-done
	if got := lsink.wait(t); got != "orders:after" {
		t.Fatalf("delivered %q, aborted notification leaked", got)
	}
}

func TestNamespaceIsolationAcrossConns(t *testing.T) {
	rt := newTestRuntime(t)

	s1 := newChanSink()
	l1, err := rt.Attach("alpha", s1)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer l1.Close()
	if err := l1.Listen("shared"); err != nil {
		t.Fatalf("listen: %v", err)
	}

	n, err := rt.Attach("beta", newChanSink())
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer n.Close()
	if err := n.Notify("shared", "beta only"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case <-l1.Session().Wakeup():
		t.Fatal("cross-namespace wake")
	case <-time.After(50 * time.Millisecond):
	}

	chans, err := rt.Channels("alpha")
	if err != nil {
		t.Fatalf("channels: %v", err)
	}
	if chans["shared"] != 1 {
		t.Fatalf("alpha channels = %v", chans)
	}
}
