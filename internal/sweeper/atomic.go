package sweeper

import "sync/atomic"

// atomicBool is a minimal atomic boolean flag for cross-goroutine health
// reporting between the sweep loop and the health HTTP handler.
type atomicBool struct {
	v int32
}

func (b *atomicBool) set(value bool) {
	if value {
		atomic.StoreInt32(&b.v, 1)
	} else {
		atomic.StoreInt32(&b.v, 0)
	}
}

func (b *atomicBool) get() bool {
	return atomic.LoadInt32(&b.v) != 0
}
