package account

import "sync"

// runningCommands de-duplicates in-flight commands by kind (§4.2, §9
// "explicit bucket of pending requesters keyed by command kind, not a naive
// re-entry lock, because return values must be fanned out to all callers").
// Buckets are keyed by kind alone, so per-call arguments are not compared:
// a StoreAccount arriving while another is in flight receives the first
// call's result and its own mnemonic is not stored. GetDeviceIdentity,
// GetAvailableTickets, the ticketbook listings, GetZkNymById,
// ConfirmZkNymIdDownloaded, SetStaticApiAddresses and WaitForAccountReady
// bypass it and run unconditionally.
type runningCommands struct {
	mu      sync.Mutex
	waiters map[commandKind][]chan commandResult
}

func newRunningCommands() *runningCommands {
	return &runningCommands{waiters: make(map[commandKind][]chan commandResult)}
}

// join registers reply as a waiter for kind. It returns true if this is the
// first waiter (caller must actually execute the command and call
// fulfill), or false if an execution is already in flight (caller only
// waits on reply).
func (r *runningCommands) join(kind commandKind, reply chan commandResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, inFlight := r.waiters[kind]
	r.waiters[kind] = append(r.waiters[kind], reply)
	return !inFlight
}

// fulfill delivers res to every waiter queued under kind and clears the
// bucket.
func (r *runningCommands) fulfill(kind commandKind, res commandResult) {
	r.mu.Lock()
	waiters := r.waiters[kind]
	delete(r.waiters, kind)
	r.mu.Unlock()

	for _, ch := range waiters {
		select {
		case ch <- res:
		default:
		}
	}
}
