package runtime

import (
	"context"

	"github.com/rzbill/notiq/internal/notify"
	logpkg "github.com/rzbill/notiq/pkg/log"
)

// Conn is one client connection's handle on the engine: a notify session
// plus the transaction plumbing around it. All methods must be called from
// the connection's own goroutine.
type Conn struct {
	rt     *Runtime
	sess   *notify.Session
	connID string
	logger logpkg.Logger
}

// Attach joins a connection to the bus under the given namespace name.
func (r *Runtime) Attach(nsName string, deliver notify.Deliverer) (*Conn, error) {
	meta, err := r.EnsureNamespace(nsName)
	if err != nil {
		return nil, err
	}
	connID := r.ids.Next().String()
	logger := r.logger.With(logpkg.Str("conn", connID), logpkg.Str("namespace", meta.Name))
	sess, err := r.bus.Attach(notify.AttachOptions{
		Namespace: meta.ID,
		Deliver:   deliver,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return &Conn{rt: r, sess: sess, connID: connID, logger: logger}, nil
}

// ID returns the connection's identifier.
func (c *Conn) ID() string { return c.connID }

// Session exposes the underlying notify session for transaction-scoped use.
func (c *Conn) Session() *notify.Session { return c.sess }

// Tx runs fn as one transaction: its buffered LISTEN/UNLISTEN/NOTIFY
// requests commit together if fn returns nil, or are discarded entirely.
func (c *Conn) Tx(fn func(s *notify.Session) error) error {
	xid := c.rt.txns.Begin()
	if err := fn(c.sess); err != nil {
		c.rt.txns.MarkAborted(xid)
		c.sess.OnAbort()
		return err
	}
	if err := c.sess.PreCommit(xid); err != nil {
		c.rt.txns.MarkAborted(xid)
		c.sess.OnAbort()
		return err
	}
	c.rt.txns.MarkCommitted(xid)
	if err := c.sess.PostCommit(); err != nil {
		return err
	}
	if c.sess.WakePending() {
		return c.sess.ProcessNotifies()
	}
	return nil
}

// Listen subscribes to channels in a single autocommitted transaction.
func (c *Conn) Listen(channels ...string) error {
	return c.Tx(func(s *notify.Session) error {
		for _, ch := range channels {
			if err := s.Listen(ch); err != nil {
				return err
			}
		}
		return nil
	})
}

// Unlisten unsubscribes from channels in a single autocommitted
// transaction.
func (c *Conn) Unlisten(channels ...string) error {
	return c.Tx(func(s *notify.Session) error {
		for _, ch := range channels {
			if err := s.Unlisten(ch); err != nil {
				return err
			}
		}
		return nil
	})
}

// UnlistenAll drops every subscription in one autocommitted transaction.
func (c *Conn) UnlistenAll() error {
	return c.Tx(func(s *notify.Session) error { return s.UnlistenAll() })
}

// Notify publishes one notification in an autocommitted transaction.
func (c *Conn) Notify(channel, payload string) error {
	return c.Tx(func(s *notify.Session) error { return s.Notify(channel, payload) })
}

// Serve blocks, delivering notifications to the connection's Deliverer as
// wake signals arrive, until ctx is done or a delivery fails.
func (c *Conn) Serve(ctx context.Context) error {
	if c.sess.WakePending() {
		if err := c.sess.ProcessNotifies(); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.sess.Wakeup():
			if err := c.sess.ProcessNotifies(); err != nil {
				return err
			}
		}
	}
}

// Close releases the connection's queue state and frees its worker slot.
func (c *Conn) Close() error {
	return c.sess.Close()
}
