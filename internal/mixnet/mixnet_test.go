package mixnet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mistveil-core/internal/corelog"
)

func TestSharedClientTakePutDiscipline(t *testing.T) {
	s, err := NewSharedClient(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Peek())

	inner, err := s.Take()
	require.NoError(t, err)
	assert.False(t, s.Peek())

	_, err = s.Take()
	assert.ErrorIs(t, err, ErrTaken)

	s.Put(inner)
	assert.True(t, s.Peek())
}

func TestBackpressureMonitorSignalsOverThreshold(t *testing.T) {
	c := newInnerClient()
	mon := NewBackpressureMonitor(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mon.Run(ctx)

	c.queueLen.Store(BackpressureThreshold + 1)
	select {
	case asserted := <-mon.Signal:
		assert.True(t, asserted)
	case <-time.After(time.Second):
		t.Fatal("expected backpressure signal")
	}

	c.queueLen.Store(0)
	select {
	case asserted := <-mon.Signal:
		assert.False(t, asserted)
	case <-time.After(time.Second):
		t.Fatal("expected backpressure lifted signal")
	}
}

func TestICMPEchoReplyDetection(t *testing.T) {
	assert.False(t, isICMPv4EchoReply([]byte{0x01, 0x02}))
}

func TestListenerHandlePacketForwardsNonBeaconToSink(t *testing.T) {
	sink := &fakeSink{}
	l := NewListener(nil, sink, corelog.New(corelog.Config{}))
	l.handlePacket([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.Equal(t, [][]byte{{0xde, 0xad, 0xbe, 0xef}}, sink.written)
}

type fakeSink struct{ written [][]byte }

func (f *fakeSink) Write(p []byte) (int, error) {
	f.written = append(f.written, append([]byte(nil), p...))
	return len(p), nil
}
