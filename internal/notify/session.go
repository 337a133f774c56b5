package notify

import (
	"fmt"
	"sync"
	"sync/atomic"

	logpkg "github.com/rzbill/notiq/pkg/log"
)

// Session is one worker's handle on the bus. A session buffers LISTEN,
// UNLISTEN, and NOTIFY requests per transaction; the commit protocol
// (PreCommit, PostCommit, OnAbort) publishes or discards them. A session is
// owned by a single connection goroutine: its operations are not safe for
// concurrent use, except Wakeup and the bus-side wake machinery.
type Session struct {
	bus       *Bus
	id        WorkerID
	pid       int
	namespace uint32
	deliver   Deliverer
	logger    logpkg.Logger

	mu     sync.Mutex
	closed bool

	buf *txBuffer
	// channels is the local listen cache: channels this session has
	// committed LISTENs for. Mirrors the session's committed directory
	// records exactly.
	channels map[string]struct{}

	// pending is the in-flight commit state between PreCommit and
	// PostCommit/OnAbort.
	pending *pendingCommit

	// selfPending is set when the session's own committed transaction left
	// notifications for it to read. Checked and cleared by ProcessNotifies.
	selfPending atomic.Bool

	// wakeCh receives inter-worker wake signals; capacity one, signals
	// coalesce.
	wakeCh chan struct{}
}

// ID returns the session's worker id.
func (s *Session) ID() WorkerID { return s.id }

// Namespace returns the namespace the session is bound to.
func (s *Session) Namespace() uint32 { return s.namespace }

// Wakeup returns the channel signaled when another worker commits
// notifications this session should read. Multiple signals coalesce.
func (s *Session) Wakeup() <-chan struct{} { return s.wakeCh }

// WakePending reports whether the session owes itself a ProcessNotifies
// call for notifications from its own committed transaction.
func (s *Session) WakePending() bool { return s.selfPending.Load() }

// Channels returns a snapshot of the session's committed listens.
func (s *Session) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	return out
}

func (s *Session) validateChannel(channel string) error {
	if channel == "" {
		return &ValidationError{Field: "channel", Reason: "must not be empty"}
	}
	if len(channel) > s.bus.channelMax {
		return &ValidationError{
			Field:  "channel",
			Reason: fmt.Sprintf("%d bytes exceeds the %d byte limit", len(channel), s.bus.channelMax),
		}
	}
	return nil
}

func (s *Session) validatePayload(payload string) error {
	if len(payload) > s.bus.payloadMax {
		return &ValidationError{
			Field:  "payload",
			Reason: fmt.Sprintf("%d bytes exceeds the %d byte limit", len(payload), s.bus.payloadMax),
		}
	}
	return nil
}

// Listen buffers a LISTEN on channel in the current transaction scope. It
// takes effect at commit; until then the session's interest is invisible to
// everyone, including itself.
func (s *Session) Listen(channel string) error {
	if err := s.validateChannel(channel); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.buf.listen(channel)
	return nil
}

// Unlisten buffers an UNLISTEN on channel. Unlistening a channel that was
// never listened to is not an error.
func (s *Session) Unlisten(channel string) error {
	if err := s.validateChannel(channel); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.buf.unlisten(channel)
	return nil
}

// UnlistenAll buffers the removal of every listen the session holds at
// commit time.
func (s *Session) UnlistenAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.buf.unlistenAll()
	return nil
}

// Notify buffers a notification in the current transaction scope.
// Identical channel/payload pairs within one scope collapse to a single
// notification.
func (s *Session) Notify(channel, payload string) error {
	if err := s.validateChannel(channel); err != nil {
		return err
	}
	if err := s.validatePayload(payload); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.buf.notify(Notification{Channel: channel, Payload: payload})
	return nil
}

// SubBegin opens a nested transaction scope.
func (s *Session) SubBegin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.push()
}

// SubCommit merges the innermost scope into its parent.
func (s *Session) SubCommit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.commitScope()
}

// SubAbort discards the innermost scope.
func (s *Session) SubAbort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.abortScope()
}

// Close releases the session's queue state: every directory record is
// removed, the worker slot is freed, and the worker id is returned to the
// bus. In-flight transactions must be resolved before Close.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	channels := s.channels
	s.channels = map[string]struct{}{}
	s.buf.reset()
	s.pending = nil
	s.mu.Unlock()

	for ch := range channels {
		s.bus.dir.RemoveListener(ChannelKey{Namespace: s.namespace, Channel: ch}, s.id)
	}

	c := s.bus.ctrl
	c.mu.Lock()
	if c.registeredLocked(s.id) {
		c.unregisterLocked(s.id)
	}
	c.mu.Unlock()

	s.bus.detach(s.id)
	return nil
}
