package notify

import (
	"encoding/binary"
	"fmt"

	"github.com/rzbill/notiq/internal/txn"
)

// Queue entry framing. Layout, little offsets first:
//
//	[0:4)   frameLen  uint32  total frame bytes (unaligned; reader aligns)
//	[4:8)   namespace uint32  0 = dummy/filler entry
//	[8:16)  xid       uint64
//	[16:20) sender    int32   worker id of the notifying worker
//	[20:22) chLen     uint16
//	[22:24) payLen    uint16
//	[24:)   channel bytes, payload bytes
const entryHeaderSize = 24

// invalidNamespace marks dummy entries padding the unusable tail of a page.
const invalidNamespace uint32 = 0

// entry is one decoded queue record.
type entry struct {
	frameLen  int32
	namespace uint32
	xid       txn.ID
	sender    WorkerID
	channel   string
	payload   string
}

func (e entry) dummy() bool { return e.namespace == invalidNamespace }

// entryFrameLen returns the unaligned frame length for a notification.
func entryFrameLen(channel, payload string) int32 {
	return int32(entryHeaderSize + len(channel) + len(payload))
}

// encodeEntry writes e into dst, which must hold at least e.frameLen bytes.
func encodeEntry(dst []byte, e entry) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(e.frameLen))
	binary.LittleEndian.PutUint32(dst[4:8], e.namespace)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(e.xid))
	binary.LittleEndian.PutUint32(dst[16:20], uint32(e.sender))
	binary.LittleEndian.PutUint16(dst[20:22], uint16(len(e.channel)))
	binary.LittleEndian.PutUint16(dst[22:24], uint16(len(e.payload)))
	n := entryHeaderSize
	n += copy(dst[n:], e.channel)
	copy(dst[n:], e.payload)
}

// encodeDummy fills dst entirely with one dummy entry.
func encodeDummy(dst []byte) {
	for i := range dst {
		dst[i] = 0
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(len(dst)))
}

// decodeEntry parses the entry starting at b[0]. b extends to the end of the
// page, so frames always fit in it.
func decodeEntry(b []byte) (entry, error) {
	if len(b) < entryHeaderSize {
		return entry{}, fmt.Errorf("notify: truncated entry header (%d bytes)", len(b))
	}
	e := entry{
		frameLen:  int32(binary.LittleEndian.Uint32(b[0:4])),
		namespace: binary.LittleEndian.Uint32(b[4:8]),
		xid:       txn.ID(binary.LittleEndian.Uint64(b[8:16])),
		sender:    WorkerID(binary.LittleEndian.Uint32(b[16:20])),
	}
	chLen := int(binary.LittleEndian.Uint16(b[20:22]))
	payLen := int(binary.LittleEndian.Uint16(b[22:24]))
	if e.frameLen < entryHeaderSize || int(e.frameLen) > len(b) {
		return entry{}, fmt.Errorf("notify: corrupt frame length %d", e.frameLen)
	}
	if entryHeaderSize+chLen+payLen > int(e.frameLen) {
		return entry{}, fmt.Errorf("notify: corrupt entry body lengths %d+%d", chLen, payLen)
	}
	e.channel = string(b[entryHeaderSize : entryHeaderSize+chLen])
	e.payload = string(b[entryHeaderSize+chLen : entryHeaderSize+chLen+payLen])
	return e, nil
}
