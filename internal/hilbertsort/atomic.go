package hilbertsort

import "sync/atomic"

func atomicAdd(dst *int64, delta int64) {
	atomic.AddInt64(dst, delta)
}
