package mixnet

import (
	"context"
	"time"
)

// BackpressurePollInterval and BackpressureThreshold are restored from
// mixnet/backpressure.rs (SPEC_FULL.md §5.6): the General lane is polled
// every 40ms, and a queue length over 4 packets signals backpressure.
const (
	BackpressurePollInterval = 40 * time.Millisecond
	BackpressureThreshold    = 4
)

// BackpressureMonitor polls the shared client's General-lane queue length
// and reports transitions across BackpressureThreshold on Signal. The TUN
// reader must suspend reads while under backpressure (§4.5).
type BackpressureMonitor struct {
	client *innerClient
	Signal chan bool // true = backpressure asserted, false = lifted
}

// NewBackpressureMonitor builds a monitor over client; Run must be started
// in its own goroutine.
func NewBackpressureMonitor(client *innerClient) *BackpressureMonitor {
	return &BackpressureMonitor{client: client, Signal: make(chan bool, 1)}
}

// Run polls until ctx is cancelled.
func (m *BackpressureMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(BackpressurePollInterval)
	defer ticker.Stop()

	under := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := m.client.sharedLaneQueueLengths() > BackpressureThreshold
			if now != under {
				under = now
				select {
				case m.Signal <- under:
				default:
				}
			}
		}
	}
}
