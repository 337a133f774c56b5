package notify

import (
	"time"

	"github.com/rzbill/notiq/internal/pagedlog"
	"github.com/rzbill/notiq/internal/txn"
	logpkg "github.com/rzbill/notiq/pkg/log"
)

// pendingCommit carries the state PreCommit builds for PostCommit/OnAbort.
type pendingCommit struct {
	xid     txn.ID
	actions []pendingAction
	intent  map[string]bool

	// staged is the set of channels whose directory records were written
	// uncommitted during PreCommit.
	staged map[string]struct{}

	wrote    bool
	preHead  Position
	postHead Position
	// notified is the distinct set of channels the transaction wrote
	// notifications on, in first-use order.
	notified []string

	tryAdvanceTail bool
}

// PreCommit publishes the transaction's queue effects while the transaction
// can still abort: staged listener records first, then the notification
// entries, written in one critical section so they are contiguous in commit
// order. On ErrQueueFull the transaction must abort; entries already
// written carry its id and are skipped by readers once it is marked
// aborted.
func (s *Session) PreCommit(xid txn.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	root := s.buf.root()
	p := &pendingCommit{
		xid:     xid,
		actions: root.actions,
		intent:  root.intent,
		staged:  make(map[string]struct{}),
	}
	s.pending = p

	if err := s.stageListens(p); err != nil {
		return err
	}
	if root.notifications.len() > 0 {
		if err := s.writeNotifications(p, root.notifications.items); err != nil {
			return err
		}
	}
	return nil
}

// stageListens writes an uncommitted directory record for every channel the
// transaction will end up listening on. Staging before the queue write
// closes the window where a concurrent notifier could miss this session.
// Channels already cached, already staged, or whose final intent in the
// transaction is off are skipped; the verbatim action replay at PostCommit
// handles those.
func (s *Session) stageListens(p *pendingCommit) error {
	c := s.bus.ctrl
	for _, a := range p.actions {
		if a.kind != actionListen {
			continue
		}
		if _, cached := s.channels[a.channel]; cached {
			continue
		}
		if _, dup := p.staged[a.channel]; dup {
			continue
		}
		if !p.intent[a.channel] {
			continue
		}
		if len(p.staged) == 0 {
			// First listen of an unregistered session claims a worker slot
			// so the queue position is pinned before any record exists.
			c.mu.Lock()
			if !c.registeredLocked(s.id) {
				c.registerLocked(s.id, s.pid, s.namespace)
			}
			c.mu.Unlock()
		}
		s.bus.dir.AddListener(ChannelKey{Namespace: s.namespace, Channel: a.channel}, s.id, false)
		p.staged[a.channel] = struct{}{}
	}
	return nil
}

// writeNotifications appends the transaction's entries to the queue under
// the exclusive controller lock. Holding it across the whole batch makes
// entries of one transaction contiguous and orders transactions by commit.
func (s *Session) writeNotifications(p *pendingCommit, items []Notification) error {
	c := s.bus.ctrl
	c.mu.Lock()
	defer c.mu.Unlock()

	p.preHead = c.head
	head := c.head
	var (
		pg      *pagedlog.Page
		pgNo    int64 = -1
		crossed int64
		seen    = make(map[string]struct{}, len(items))
	)
	release := func() error {
		if pg == nil {
			return nil
		}
		err := pg.Release()
		pg, pgNo = nil, -1
		return err
	}
	openHead := func() error {
		if pg != nil && pgNo == head.Page {
			return nil
		}
		if err := release(); err != nil {
			return err
		}
		var err error
		if head.Off == 0 {
			pg, err = s.bus.pages.Zero(head.Page)
		} else {
			pg, err = s.bus.pages.Read(head.Page, true)
		}
		if err != nil {
			return err
		}
		pgNo = head.Page
		return nil
	}
	bail := func(err error) error {
		_ = release()
		c.head = head
		return err
	}

	for _, n := range items {
		if c.fullLocked(head) {
			s.bus.metrics.QueueFull()
			return bail(ErrQueueFull)
		}
		frame := entryFrameLen(n.Channel, n.Payload)
		if head.Off+alignFrame(frame) > PageSize {
			// The entry does not fit; pad the page out with a dummy so the
			// reader's cursor arithmetic never lands mid-gap.
			if err := openHead(); err != nil {
				return bail(err)
			}
			encodeDummy(pg.Data()[head.Off:])
			pg.MarkDirty()
			head = Position{Page: head.Page + 1}
			crossed++
			if c.fullLocked(head) {
				s.bus.metrics.QueueFull()
				return bail(ErrQueueFull)
			}
		}
		if err := openHead(); err != nil {
			return bail(err)
		}
		encodeEntry(pg.Data()[head.Off:head.Off+frame], entry{
			frameLen:  frame,
			namespace: s.namespace,
			xid:       p.xid,
			sender:    s.id,
			channel:   n.Channel,
			payload:   n.Payload,
		})
		pg.MarkDirty()
		c.notePageXidLocked(head.Page, p.xid)
		next, crossedPage := Advance(head, frame)
		if crossedPage {
			crossed++
		}
		head = next
		if _, ok := seen[n.Channel]; !ok {
			seen[n.Channel] = struct{}{}
			p.notified = append(p.notified, n.Channel)
		}
	}
	if err := release(); err != nil {
		return err
	}

	c.head = head
	p.wrote = true
	p.postHead = head

	c.pagesSinceClean += crossed
	if c.pagesSinceClean >= s.bus.cleanupCadence {
		c.pagesSinceClean = 0
		p.tryAdvanceTail = true
	}

	used := c.head.Page - c.tail.Page
	s.bus.metrics.NotificationsWritten(len(items))
	s.bus.metrics.QueuePages(used, c.maxPages)
	if s.bus.fillWarnRatio > 0 && c.fillRatioLocked() >= s.bus.fillWarnRatio {
		s.warnFill(used, c.maxPages)
	}
	return nil
}

// warnFill logs the fill warning, rate-limited so a persistently stuck
// listener does not flood the log.
func (s *Session) warnFill(used, max int64) {
	b := s.bus
	b.warnMu.Lock()
	defer b.warnMu.Unlock()
	now := time.Now()
	if b.fillWarnInterval > 0 && now.Sub(b.lastFillWarn) < b.fillWarnInterval {
		return
	}
	b.lastFillWarn = now
	b.logger.Warn("notification queue is filling up",
		logpkg.Int64("usedPages", used),
		logpkg.Int64("maxPages", max),
		logpkg.Int("worker", int(s.id)),
	)
}

// PostCommit applies the transaction's listen actions, wakes listeners of
// the channels it notified, and opportunistically advances the tail. Called
// after the transaction is durably committed; it must not fail the
// transaction.
func (s *Session) PostCommit() error {
	s.mu.Lock()
	p := s.pending
	s.pending = nil
	if p == nil || s.closed {
		s.buf.reset()
		s.mu.Unlock()
		return nil
	}

	committedListen, err := s.applyActions(p)
	cacheEmpty := len(s.channels) == 0
	s.buf.reset()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if cacheEmpty {
		c := s.bus.ctrl
		c.mu.Lock()
		if c.registeredLocked(s.id) {
			c.unregisterLocked(s.id)
		}
		c.mu.Unlock()
	} else if committedListen {
		// A fresh listen reads history from its registration point.
		s.selfPending.Store(true)
	}

	if p.wrote {
		s.signalListeners(p)
	}
	if p.tryAdvanceTail {
		if err := s.bus.AdvanceTail(); err != nil {
			s.logger.Warn("tail advance failed", logpkg.Err(err))
		}
	}
	return nil
}

// applyActions replays the transaction's LISTEN/UNLISTEN/UNLISTEN-ALL
// requests verbatim, in order, against the directory and the local cache.
// Caller holds s.mu. Reports whether any listen took effect.
func (s *Session) applyActions(p *pendingCommit) (bool, error) {
	committedListen := false
	for _, a := range p.actions {
		key := ChannelKey{Namespace: s.namespace, Channel: a.channel}
		switch a.kind {
		case actionListen:
			if _, staged := p.staged[a.channel]; staged {
				if err := s.bus.dir.CommitListener(key, s.id); err != nil {
					return committedListen, err
				}
				delete(p.staged, a.channel)
				s.channels[a.channel] = struct{}{}
				committedListen = true
				continue
			}
			if _, cached := s.channels[a.channel]; cached {
				continue
			}
			if p.intent[a.channel] {
				// The channel was unlistened earlier in this same replay;
				// the slot is still registered, so a committed record can
				// be added directly.
				s.bus.dir.AddListener(key, s.id, true)
				s.channels[a.channel] = struct{}{}
				committedListen = true
			}
		case actionUnlisten:
			s.bus.dir.RemoveListener(key, s.id)
			delete(s.channels, a.channel)
		case actionUnlistenAll:
			for ch := range s.channels {
				s.bus.dir.RemoveListener(ChannelKey{Namespace: s.namespace, Channel: ch}, s.id)
				delete(s.channels, ch)
			}
		}
	}
	return committedListen, nil
}

// OnAbort unwinds the transaction's staged state: uncommitted directory
// records are removed, a slot registered solely for this transaction is
// freed, and the buffer is discarded. Queue entries already written are
// left in place; readers skip them once the transaction is not marked
// committed.
func (s *Session) OnAbort() {
	s.mu.Lock()
	p := s.pending
	s.pending = nil
	s.buf.reset()
	cacheEmpty := len(s.channels) == 0
	s.mu.Unlock()

	if p != nil {
		for ch := range p.staged {
			s.bus.dir.RemoveListener(ChannelKey{Namespace: s.namespace, Channel: ch}, s.id)
		}
	}
	if cacheEmpty {
		c := s.bus.ctrl
		c.mu.Lock()
		if c.registeredLocked(s.id) {
			c.unregisterLocked(s.id)
		}
		c.mu.Unlock()
	}
}
