package wireguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTwoHopMTUDesktop(t *testing.T) {
	cfg := NewTwoHopConfig(false)
	assert.Equal(t, EthernetV2MTU-WGTunnelOverhead, cfg.Entry.MTU)
	assert.Equal(t, cfg.Entry.MTU-WGTunnelOverhead, cfg.Exit.MTU)
	assert.Equal(t, WGTunnelOverhead, cfg.Entry.MTU-cfg.Exit.MTU)
}

func TestTwoHopMTUMobile(t *testing.T) {
	cfg := NewTwoHopConfig(true)
	assert.Equal(t, MinIPv6MTU+WGTunnelOverhead, cfg.Entry.MTU)
	assert.Equal(t, MinIPv6MTU, cfg.Exit.MTU)
}

func TestFixedPorts(t *testing.T) {
	cfg := NewTwoHopConfig(false)
	assert.Equal(t, DefaultUDPForwarderPort, cfg.ForwarderPort)
	assert.Equal(t, DefaultExitWGClientPort, cfg.ExitClientPort)
}
