package wireguard

import (
	"context"
	"time"

	"mistveil-core/internal/corelog"
	"mistveil-core/internal/model"
)

// BandwidthController runs in the background monitoring and topping up
// bandwidth on both gateways as needed (§4.6 "Bandwidth controller runs in
// the background..."), publishing BandwidthStatusMessage transitions as
// TunnelEvent::Bandwidth to the shared event bus.
type BandwidthController struct {
	entry  *wgGatewayClient
	exit   *wgGatewayClient
	events *corelog.EventBus
}

func newBandwidthController(entry, exit *wgGatewayClient, events *corelog.EventBus) *BandwidthController {
	return &BandwidthController{entry: entry, exit: exit, events: events}
}

// run calls topUp on both gateways every BandwidthPollInterval until ctx is
// cancelled, publishing NoBandwidth for a failed top-up and an unknown
// remaining allowance (-1) for a successful one.
func (b *BandwidthController) run(ctx context.Context) {
	ticker := time.NewTicker(BandwidthPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, client := range []*wgGatewayClient{b.entry, b.exit} {
				if err := client.topUp(ctx); err != nil {
					b.publish(model.BandwidthStatus{NoBandwidth: true})
					continue
				}
				b.publish(model.BandwidthStatus{NoBandwidth: false, RemainingBandwidth: -1})
			}
		}
	}
}

func (b *BandwidthController) publish(status model.BandwidthStatus) {
	if b.events == nil {
		return
	}
	b.events.Publish(model.TunnelEvent{Kind: model.TunnelEventBandwidth, Bandwidth: status})
}
