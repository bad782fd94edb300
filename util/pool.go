package util

import "sync"

// DefaultBufSize is the relay chunk size per direction (4 KiB).  Buffers
// never grow; a read that fills one is forwarded before the next read.
const DefaultBufSize = 4096

var relayBufs = sync.Pool{ //nolint:gochecknoglobals
	New: func() any {
		b := make([]byte, DefaultBufSize)
		return &b
	},
}

// GetBuf hands out a DefaultBufSize buffer.  Give it back with PutBuf
// once the copy loop that owns it has returned.
func GetBuf() *[]byte { return relayBufs.Get().(*[]byte) }

// PutBuf recycles buf.  Anything that is not a relay-sized buffer is
// left to the garbage collector.
func PutBuf(buf *[]byte) {
	if buf != nil && len(*buf) == DefaultBufSize {
		relayBufs.Put(buf)
	}
}
