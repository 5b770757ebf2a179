package tcbisect

import "sync"

// cleanups tracks best-effort teardown callbacks (e.g. "remove this
// half-installed toolchain") so an interrupt mid-probe can still attempt to
// clean up. Callbacks deregister on normal completion, since here a
// callback's lifetime is "one probe", not "the whole process".
var cleanups struct {
	sync.Mutex
	byID map[int]func()
	next int
}

// RegisterCleanup records fn to run on RunCleanups and returns a token to
// later cancel it with CancelCleanup once the guarded step completes
// normally.
func RegisterCleanup(fn func()) int {
	cleanups.Lock()
	defer cleanups.Unlock()
	if cleanups.byID == nil {
		cleanups.byID = make(map[int]func())
	}
	cleanups.next++
	id := cleanups.next
	cleanups.byID[id] = fn
	return id
}

// CancelCleanup removes a callback registered with RegisterCleanup, e.g.
// because the probe it guarded finished and tore down normally.
func CancelCleanup(id int) {
	cleanups.Lock()
	defer cleanups.Unlock()
	delete(cleanups.byID, id)
}

// RunCleanups runs every outstanding cleanup callback. Called once, from
// the interrupt handler installed by InterruptibleContext; each callback is
// itself best-effort and swallows its own errors.
func RunCleanups() {
	cleanups.Lock()
	fns := make([]func(), 0, len(cleanups.byID))
	for _, fn := range cleanups.byID {
		fns = append(fns, fn)
	}
	cleanups.byID = nil
	cleanups.Unlock()
	for _, fn := range fns {
		fn()
	}
}
