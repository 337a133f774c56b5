package notify

import (
	"errors"

	"github.com/rzbill/notiq/internal/pagedlog"
	"github.com/rzbill/notiq/internal/txn"
)

// delivered is one notification matched during a catchup scan, buffered so
// delivery happens with no queue locks held.
type delivered struct {
	channel string
	payload string
	sender  WorkerID
}

// ProcessNotifies advances the session from its queue position to the head,
// delivering every committed notification on a channel it listens to.
// Called from the session's own goroutine on a wake signal or after its own
// notifying transaction commits.
//
// The scan stops early at an entry of the session's namespace whose
// transaction was in progress at scan start: entries must be delivered in
// queue order, so nothing past it can be taken yet. The writer signals
// again at its commit.
//
// A delivery failure is fatal to the connection, but the position still
// advances past everything delivered and scanned; a notification handed to
// a broken transport is not offered twice.
func (s *Session) ProcessNotifies() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	s.selfPending.Store(false)
	select {
	case <-s.wakeCh:
	default:
	}

	c := s.bus.ctrl
	c.mu.RLock()
	if !c.registeredLocked(s.id) {
		c.mu.RUnlock()
		return nil
	}
	sl := &c.slots[s.id]
	pos := sl.pos
	head := c.head
	sl.wakeupPending = false
	sl.advancing = true
	sl.advanceTo = head
	c.mu.RUnlock()

	snap := s.bus.txns.Snapshot()

	var buffered []delivered
	scanErr := s.scanRange(&pos, head, snap, &buffered)

	var deliverErr error
	for _, d := range buffered {
		if err := s.deliver.Deliver(d.channel, d.payload, d.sender); err != nil {
			deliverErr = &DeliveryError{Channel: d.channel, Err: err}
			break
		}
		s.bus.metrics.NotificationsDelivered(1)
	}

	c.mu.RLock()
	sl.pos = pos
	sl.advancing = false
	c.mu.RUnlock()

	if scanErr != nil {
		return scanErr
	}
	return deliverErr
}

// scanRange walks queue entries from *pos toward head, collecting matches
// into out and leaving *pos at the first entry that could not be consumed.
func (s *Session) scanRange(pos *Position, head Position, snap txn.Snapshot, out *[]delivered) error {
	s.mu.Lock()
	channels := make(map[string]struct{}, len(s.channels))
	for ch := range s.channels {
		channels[ch] = struct{}{}
	}
	s.mu.Unlock()

	for pos.Less(head) {
		pg, err := s.bus.pages.Read(pos.Page, false)
		if err != nil {
			if errors.Is(err, pagedlog.ErrPageMissing) {
				// Truncated out from under a lagging cursor should be
				// impossible while registered; skip forward defensively.
				*pos = Position{Page: pos.Page + 1}
				continue
			}
			return err
		}
		stop, err := s.scanPage(pg.Data(), pos, head, snap, channels, out)
		relErr := pg.Release()
		if err != nil {
			return err
		}
		if relErr != nil {
			return relErr
		}
		if stop {
			return nil
		}
	}
	return nil
}

// scanPage consumes entries on one page. Returns stop=true when the scan
// hit an in-progress same-namespace entry and must not go further.
func (s *Session) scanPage(data []byte, pos *Position, head Position, snap txn.Snapshot,
	channels map[string]struct{}, out *[]delivered) (bool, error) {

	page := pos.Page
	for pos.Page == page && pos.Less(head) {
		e, err := decodeEntry(data[pos.Off:])
		if err != nil {
			return false, err
		}
		if !e.dummy() && e.namespace == s.namespace {
			if snap.InProgress(e.xid) {
				// The writer has not resolved yet; resume here on the next
				// wake, which its commit guarantees.
				return true, nil
			}
			if s.bus.txns.DidCommit(e.xid) {
				if _, ok := channels[e.channel]; ok {
					*out = append(*out, delivered{channel: e.channel, payload: e.payload, sender: e.sender})
				}
			}
		}
		next, _ := Advance(*pos, e.frameLen)
		*pos = next
	}
	return false, nil
}
