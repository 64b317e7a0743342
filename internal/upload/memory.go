package upload

import (
	"math"
	"runtime"
)

// MemoryProbe reports free bytes available for an upload.
type MemoryProbe func() uint64

// Unlimited is the headroom reported when no budget is configured.
const Unlimited = math.MaxUint64

// HeapHeadroom measures the live heap against budget. A zero budget means no
// ceiling is configured and headroom is Unlimited.
func HeapHeadroom(budget uint64) MemoryProbe {
	return func() uint64 {
		if budget == 0 {
			return Unlimited
		}
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.HeapAlloc >= budget {
			return 0
		}
		return budget - ms.HeapAlloc
	}
}
