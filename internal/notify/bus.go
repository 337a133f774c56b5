package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/rzbill/notiq/internal/pagedlog"
	"github.com/rzbill/notiq/internal/txn"
	logpkg "github.com/rzbill/notiq/pkg/log"
)

// Deliverer delivers a matched notification to the worker's own attached
// client. One-way, best-effort; any error is escalated to terminate that
// worker's connection, never retried.
type Deliverer interface {
	Deliver(channel, payload string, sender WorkerID) error
}

// Waker sends the asynchronous inter-worker wake signal. Signaling a worker
// that no longer exists must be a no-op.
type Waker interface {
	Signal(w WorkerID)
}

// Options configures a Bus.
type Options struct {
	Pages *pagedlog.Store
	Txns  *txn.Manager

	MaxQueuePages       int64
	CleanupCadencePages int64
	FillWarnRatio       float64
	FillWarnInterval    time.Duration
	ChannelMaxBytes     int
	PayloadMaxBytes     int
	MaxWorkers          int

	Logger  logpkg.Logger
	Metrics Metrics
	// Waker overrides the built-in in-process waker; mainly for tests.
	Waker Waker
}

// Bus is the notification engine: the shared queue control block, the
// channel directory, and the session registry. Init it once and attach
// every worker to the same instance.
type Bus struct {
	pages *pagedlog.Store
	txns  *txn.Manager
	ctrl  *Controller
	dir   *Directory

	cleanupCadence   int64
	fillWarnRatio    float64
	fillWarnInterval time.Duration
	channelMax       int
	payloadMax       int

	logger  logpkg.Logger
	metrics Metrics
	waker   Waker

	warnMu       sync.Mutex
	lastFillWarn time.Time

	attachMu sync.Mutex
	sessions []*Session // indexed by WorkerID; nil = free
}

// New builds a Bus. The page store is reset: queue contents are not
// carried across restarts.
func New(opts Options) (*Bus, error) {
	if opts.Pages == nil || opts.Txns == nil {
		return nil, errors.New("notify: Pages and Txns are required")
	}
	if opts.MaxQueuePages <= 0 || opts.MaxWorkers <= 0 {
		return nil, errors.New("notify: MaxQueuePages and MaxWorkers must be positive")
	}
	if opts.CleanupCadencePages <= 0 {
		opts.CleanupCadencePages = 4
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics{}
	}
	if err := opts.Pages.Reset(); err != nil {
		return nil, err
	}
	b := &Bus{
		pages:            opts.Pages,
		txns:             opts.Txns,
		ctrl:             newController(opts.MaxWorkers, opts.MaxQueuePages),
		dir:              newDirectory(),
		cleanupCadence:   opts.CleanupCadencePages,
		fillWarnRatio:    opts.FillWarnRatio,
		fillWarnInterval: opts.FillWarnInterval,
		channelMax:       opts.ChannelMaxBytes,
		payloadMax:       opts.PayloadMaxBytes,
		logger:           opts.Logger.WithComponent("notify"),
		metrics:          opts.Metrics,
		sessions:         make([]*Session, opts.MaxWorkers),
	}
	if opts.Waker != nil {
		b.waker = opts.Waker
	} else {
		b.waker = busWaker{b}
	}
	return b, nil
}

// AttachOptions describes one worker joining the bus.
type AttachOptions struct {
	Pid       int
	Namespace uint32
	Deliver   Deliverer
	Logger    logpkg.Logger
}

// Attach claims a worker id and returns its Session. The slot itself is
// claimed only on the session's first LISTEN.
func (b *Bus) Attach(opts AttachOptions) (*Session, error) {
	if opts.Deliver == nil {
		return nil, errors.New("notify: Deliver is required")
	}
	if opts.Namespace == invalidNamespace {
		return nil, errors.New("notify: invalid namespace id")
	}
	if opts.Pid == invalidPid {
		opts.Pid = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = b.logger
	}

	b.attachMu.Lock()
	defer b.attachMu.Unlock()
	for i := range b.sessions {
		if b.sessions[i] != nil {
			continue
		}
		s := &Session{
			bus:       b,
			id:        WorkerID(i),
			pid:       opts.Pid,
			namespace: opts.Namespace,
			deliver:   opts.Deliver,
			logger:    logger,
			buf:       newTxBuffer(),
			channels:  make(map[string]struct{}),
			wakeCh:    make(chan struct{}, 1),
		}
		b.sessions[i] = s
		return s, nil
	}
	return nil, errors.New("notify: worker arena exhausted")
}

// detach frees the worker id after Close has released queue state.
func (b *Bus) detach(w WorkerID) {
	b.attachMu.Lock()
	b.sessions[w] = nil
	b.attachMu.Unlock()
}

// session looks up a live session by worker id.
func (b *Bus) session(w WorkerID) *Session {
	b.attachMu.Lock()
	defer b.attachMu.Unlock()
	if int(w) < 0 || int(w) >= len(b.sessions) {
		return nil
	}
	return b.sessions[w]
}

// busWaker wakes sessions in-process: a non-blocking send on the target's
// wake channel. A vanished worker is expected and non-fatal.
type busWaker struct{ b *Bus }

func (h busWaker) Signal(w WorkerID) {
	s := h.b.session(w)
	if s == nil {
		h.b.logger.Debug("wake signal for vanished worker", logpkg.Int("worker", int(w)))
		return
	}
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Stats snapshots the control block for introspection.
func (b *Bus) Stats() Stats { return b.ctrl.Stats() }

// Channels lists the namespace's channels with listener counts.
func (b *Bus) Channels(ns uint32) map[string]int {
	out := make(map[string]int)
	b.dir.ForEachChannel(ns, func(ch string, n int) { out[ch] = n })
	return out
}
