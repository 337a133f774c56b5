package pagedlog

import "encoding/binary"

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - nq/page/{page_be8}

var pagePrefix = []byte("nq/page/")

// keyPage builds the slab key with a big-endian page number for proper ordering.
func keyPage(pageNo int64) []byte {
	k := make([]byte, 0, len(pagePrefix)+8)
	k = append(k, pagePrefix...)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(pageNo))
	return append(k, b[:]...)
}

// keyPageSentinel is the exclusive upper bound for the whole page keyspace.
func keyPageSentinel() []byte {
	k := make([]byte, 0, len(pagePrefix)+1)
	k = append(k, pagePrefix...)
	return append(k, 0xff)
}
