package notify

// AdvanceTail recomputes the tail as the furthest-back position any active
// listener still needs, then drops whole storage segments that fell behind
// it. Safe to call at any time; writers trigger it on a page-crossing
// cadence so cleanup cost stays off the per-notification path.
func (b *Bus) AdvanceTail() error {
	c := b.ctrl
	c.tailMu.Lock()
	defer c.tailMu.Unlock()

	c.mu.Lock()
	tail := c.head
	for l := c.firstListener; l != InvalidWorker; l = c.slots[l].next {
		tail = tail.Min(c.slots[l].pos)
	}
	c.tail = tail
	boundary := segmentStart(tail.Page)
	truncate := boundary > c.stopPage
	if truncate {
		c.stopPage = boundary
	}
	horizon := c.xidHorizonLocked()
	used, max := c.head.Page-c.tail.Page, c.maxPages
	c.mu.Unlock()

	// Entries below the tail are unreachable, so commit records for
	// transactions older than anything still on a live page can go.
	b.txns.Forget(horizon)
	b.metrics.QueuePages(used, max)
	if !truncate {
		return nil
	}
	// Nothing at or above the new tail references a page below the
	// boundary, and tailMu keeps concurrent truncations ordered.
	if err := b.pages.TruncateBelow(boundary); err != nil {
		return err
	}
	b.metrics.QueueTruncated()
	return nil
}
