// Package pagedlog implements the page-addressed slab store backing the
// notification queue.
//
// Pages are fixed 8 KiB slabs keyed by monotonically increasing page numbers
// and persisted in Pebble. The queue layer treats this store as its log
// device: it zeroes a fresh page when the write position crosses a page
// boundary, reads pages shared while catching up, and truncates consumed
// pages from the front.
//
//	st := pagedlog.Open(db)
//	p, _ := st.Zero(0)
//	copy(p.Data(), frame)
//	p.MarkDirty()
//	_ = p.Release()
//
//	r, _ := st.Read(0, false)
//	buf := append([]byte(nil), r.Data()...)
//	_ = r.Release()
//
//	_ = st.TruncateBelow(32)
//
// Per-page locks are owned here; callers impose their own ordering between
// queue-level locks and page locks.
package pagedlog
