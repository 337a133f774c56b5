package runtime

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	cfgpkg "github.com/rzbill/notiq/internal/config"
	"github.com/rzbill/notiq/internal/namespace"
	"github.com/rzbill/notiq/internal/notify"
	"github.com/rzbill/notiq/internal/pagedlog"
	pebblestore "github.com/rzbill/notiq/internal/storage/pebble"
	"github.com/rzbill/notiq/internal/txn"
	"github.com/rzbill/notiq/pkg/id"
	logpkg "github.com/rzbill/notiq/pkg/log"
)

// namespaceCacheSize bounds the resolved-namespace cache. Deployments with
// more hot namespaces than this just pay an extra storage read.
const namespaceCacheSize = 256

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
	Logger  logpkg.Logger
	Metrics notify.Metrics
}

// Runtime wires storage, the transaction manager, and the notification bus
// for a single-node instance.
type Runtime struct {
	db     *pebblestore.DB
	config cfgpkg.Config
	logger logpkg.Logger

	txns    *txn.Manager
	bus     *notify.Bus
	nsReg   *namespace.Registry
	nsCache *lru.Cache[string, namespace.Meta]
	ids     *id.Generator
}

// Open initializes storage and the notification engine. The queue pages are
// reset: notifications do not survive a restart, namespace metadata does.
func Open(opts Options) (*Runtime, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync})
	if err != nil {
		return nil, err
	}

	txns := txn.NewManager()
	bus, err := notify.New(notify.Options{
		Pages:               pagedlog.Open(db),
		Txns:                txns,
		MaxQueuePages:       opts.Config.MaxQueuePages,
		CleanupCadencePages: opts.Config.CleanupCadencePages,
		FillWarnRatio:       opts.Config.FillWarnRatio,
		FillWarnInterval:    time.Duration(opts.Config.FillWarnIntervalMs) * time.Millisecond,
		ChannelMaxBytes:     opts.Config.ChannelMaxBytes,
		PayloadMaxBytes:     opts.Config.PayloadMaxBytes,
		MaxWorkers:          opts.Config.MaxWorkers,
		Logger:              opts.Logger,
		Metrics:             opts.Metrics,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	cache, err := lru.New[string, namespace.Meta](namespaceCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Runtime{
		db:      db,
		config:  opts.Config,
		logger:  opts.Logger,
		txns:    txns,
		bus:     bus,
		nsReg:   namespace.NewRegistry(db),
		nsCache: cache,
		ids:     id.NewGenerator(),
	}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return nil
}

// EnsureNamespace resolves name to its Meta, creating the record if absent.
func (r *Runtime) EnsureNamespace(name string) (namespace.Meta, error) {
	if name == "" {
		name = r.config.DefaultNamespaceName
	}
	if meta, ok := r.nsCache.Get(name); ok {
		return meta, nil
	}
	meta, err := r.nsReg.Ensure(name)
	if err != nil {
		return namespace.Meta{}, err
	}
	r.nsCache.Add(name, meta)
	return meta, nil
}

// Bus exposes the notification bus.
func (r *Runtime) Bus() *notify.Bus { return r.bus }

// Txns exposes the transaction manager.
func (r *Runtime) Txns() *txn.Manager { return r.txns }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Stats snapshots the queue control block.
func (r *Runtime) Stats() notify.Stats { return r.bus.Stats() }

// Channels lists a namespace's channels with listener counts.
func (r *Runtime) Channels(nsName string) (map[string]int, error) {
	meta, err := r.EnsureNamespace(nsName)
	if err != nil {
		return nil, err
	}
	return r.bus.Channels(meta.ID), nil
}
