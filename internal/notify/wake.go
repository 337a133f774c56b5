package notify

import logpkg "github.com/rzbill/notiq/pkg/log"

// signalListeners decides, per active listener, whether the just-committed
// transaction requires waking it. Runs after commit, outside s.mu.
//
// Two-step decision under the exclusive controller lock: first collect the
// listeners of the notified channels, then walk the active list
// once. A listener behind the pre-write head may have foreign entries ahead
// of it and is always signaled; a listener whose backlog is exactly this
// transaction's entries, none on its channels, has its position advanced in
// place without a wake. Listeners with a signal already pending are left
// alone: the pending wake will carry them to the head.
func (s *Session) signalListeners(p *pendingCommit) {
	c := s.bus.ctrl

	marked := make(map[WorkerID]struct{})
	var victims []WorkerID

	c.mu.Lock()
	for _, ch := range p.notified {
		// Staged records count too: a LISTEN committing right after this
		// pass must find the entry still unconsumed, not advanced over.
		for _, rec := range s.bus.dir.Listeners(ChannelKey{Namespace: s.namespace, Channel: ch}) {
			marked[rec.Worker] = struct{}{}
		}
	}

	for l := c.firstListener; l != InvalidWorker; l = c.slots[l].next {
		sl := &c.slots[l]
		if sl.namespace != s.namespace || sl.wakeupPending {
			continue
		}
		eff := sl.pos
		if sl.advancing {
			eff = sl.advanceTo
		}
		if !eff.Less(p.postHead) {
			continue
		}
		_, interested := marked[l]
		switch {
		case interested, eff.Less(p.preHead):
			sl.wakeupPending = true
			victims = append(victims, l)
		case !sl.advancing:
			// Only this transaction's entries sit between the listener and
			// the head, and none are on its channels.
			sl.pos = p.postHead
			s.bus.metrics.DirectAdvance()
		default:
			// Mid-catchup with a snapshot short of our entries; a wake gets
			// it the rest of the way.
			sl.wakeupPending = true
			victims = append(victims, l)
		}
	}
	c.mu.Unlock()

	for _, w := range victims {
		if w == s.id {
			s.selfPending.Store(true)
			continue
		}
		s.bus.metrics.SignalSent()
		s.bus.waker.Signal(w)
	}
	if len(victims) > 0 {
		s.logger.Debug("signaled listeners",
			logpkg.Int("count", len(victims)),
			logpkg.Int("sender", int(s.id)),
		)
	}
}
