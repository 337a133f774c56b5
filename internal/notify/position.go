package notify

import "github.com/rzbill/notiq/internal/pagedlog"

// PageSize is the queue page size; entries never span pages.
const PageSize = pagedlog.PageSize

// frameAlign is the platform alignment every frame length is rounded to.
const frameAlign = 8

// segmentPages is the truncation granularity: the store only drops pages in
// whole segments.
const segmentPages = 32

// Position addresses one entry in the queue. Positions are totally ordered
// (page first, then offset) and strictly increase as entries are written;
// page numbers grow without bound, only the underlying storage is recycled.
type Position struct {
	Page int64
	Off  int32
}

// Less reports whether p orders strictly before o.
func (p Position) Less(o Position) bool {
	if p.Page != o.Page {
		return p.Page < o.Page
	}
	return p.Off < o.Off
}

// Min returns the earlier of p and o.
func (p Position) Min(o Position) Position {
	if o.Less(p) {
		return o
	}
	return p
}

// Max returns the later of p and o.
func (p Position) Max(o Position) Position {
	if p.Less(o) {
		return o
	}
	return p
}

func alignFrame(n int32) int32 {
	return (n + frameAlign - 1) &^ (frameAlign - 1)
}

// Advance moves a position past an entry of frameLen bytes. If the space
// left on the page cannot hold even an entry header, the position skips to
// the start of the next page and crossedPage is true; the writer fills the
// remainder with a dummy entry so pages are always full to the last byte.
func Advance(p Position, frameLen int32) (next Position, crossedPage bool) {
	p.Off += alignFrame(frameLen)
	if p.Off+entryHeaderSize > PageSize {
		return Position{Page: p.Page + 1}, true
	}
	return p, false
}

// segmentStart returns the first page of the segment containing pageNo.
func segmentStart(pageNo int64) int64 {
	return pageNo - pageNo%segmentPages
}
