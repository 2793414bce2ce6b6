// Package mixnet implements the shared mixnet client handle, the mixnet
// listener and backpressure monitor, and the Mixnet tunnel constructor
// (spec.md §4.5, §4.1 Mixnet dispatch branch).
//
// The Sphinx packet format and the mixnet wire protocol are explicit
// non-goals (spec.md §1: "we do not specify the mixnet protocol... The
// cryptographic primitives... are assumed present and correct"). innerClient
// below is a deterministic placeholder standing in for the real
// nym-sphinx/nym-client-core stack: it never leaves the process and exists
// only so the listener, backpressure monitor, and tunnel constructor have a
// real object to take/put and poll.
package mixnet

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// innerClient is the placeholder mixnet client. A real implementation would
// wrap a nym-client-core websocket/native connection.
type innerClient struct {
	nymAddress string
	queueLen   atomic.Int32 // General-lane queue length, polled for backpressure
	closed     atomic.Bool
}

func newInnerClient() *innerClient {
	return &innerClient{nymAddress: fmt.Sprintf("client.%s@gateway", uuid.NewString()[:8])}
}

func (c *innerClient) NymAddress() string { return c.nymAddress }

// Send hands an outbound packet to the (placeholder) mixnet; it simply
// reports success, since there is no real network path in this tree.
func (c *innerClient) Send(payload []byte) error {
	if c.closed.Load() {
		return fmt.Errorf("mixnet: client closed")
	}
	return nil
}

// GatewayWSFd is the Unix socket fd the firewall is allowed to special-case
// so the gateway control connection itself bypasses the Connected policy.
// The placeholder never actually opens a socket, so this is always 0.
func (c *innerClient) GatewayWSFd() int { return 0 }

func (c *innerClient) Close() {
	c.closed.Store(true)
}

// sharedLaneQueueLengths reports the queued-packet count on the General
// lane, which BackpressureMonitor polls (§4.5).
func (c *innerClient) sharedLaneQueueLengths() int {
	return int(c.queueLen.Load())
}
