package vtm

import "runtime"

// yieldGoroutine hands off the processor to another runnable goroutine. Used by YieldRetryN
// between conflict-retry attempts so the transaction holding the contested lock gets a chance
// to commit or roll back before the next attempt.
func yieldGoroutine() {
	runtime.Gosched()
}
