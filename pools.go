package pbdb

import "sync"

var valueBytesPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, 4096)
	},
}

func takeValueBuf() []byte {
	return valueBytesPool.Get().([]byte)[:0]
}

// releaseValueBuf returns buf to the pool. Engines keep references to
// written values until commit, so only release after the transaction ends.
func releaseValueBuf(buf []byte) {
	if cap(buf) > 1024*1024 {
		return
	}
	valueBytesPool.Put(buf[:0])
}
