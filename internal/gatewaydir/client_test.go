package gatewaydir

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mistveil-core/internal/model"
)

type staticSource struct {
	entries []model.Gateway
	exits   []model.Gateway
}

func (s staticSource) EntryGateways(ctx context.Context, tt model.TunnelType) ([]model.Gateway, error) {
	return s.entries, nil
}

func (s staticSource) ExitGateways(ctx context.Context, tt model.TunnelType) ([]model.Gateway, error) {
	return s.exits, nil
}

func TestSelectGatewaysByLocation(t *testing.T) {
	src := staticSource{
		entries: []model.Gateway{{ID: "e1", ISOCountry: "FR"}},
		exits:   []model.Gateway{{ID: "x1", ISOCountry: "DE"}},
	}
	client := New(src)

	sel, err := client.SelectGateways(
		context.Background(), model.TunnelTypeMixnet,
		model.EntryPoint{Kind: model.EntryPointLocation, ISOCountry: "FR"},
		model.ExitPoint{Kind: model.ExitPointLocation, ISOCountry: "DE"},
		model.GatewayPerformanceOptions{},
	)
	require.NoError(t, err)
	assert.Equal(t, "e1", sel.Entry.ID)
	assert.Equal(t, "x1", sel.Exit.ID)
}

func TestSelectGatewaysSameCountryConflict(t *testing.T) {
	src := staticSource{
		entries: []model.Gateway{{ID: "same", ISOCountry: "DE"}},
		exits:   []model.Gateway{{ID: "same", ISOCountry: "DE"}},
	}
	client := New(src)

	_, err := client.SelectGateways(
		context.Background(), model.TunnelTypeMixnet,
		model.EntryPoint{Kind: model.EntryPointLocation, ISOCountry: "DE"},
		model.ExitPoint{Kind: model.ExitPointLocation, ISOCountry: "DE"},
		model.GatewayPerformanceOptions{},
	)
	require.ErrorIs(t, err, model.ErrSameEntryAndExitGateway)
}

func TestSelectGatewaysInvalidCountry(t *testing.T) {
	src := staticSource{
		entries: []model.Gateway{{ID: "e1", ISOCountry: "FR"}},
		exits:   []model.Gateway{{ID: "x1", ISOCountry: "DE"}},
	}
	client := New(src)

	_, err := client.SelectGateways(
		context.Background(), model.TunnelTypeMixnet,
		model.EntryPoint{Kind: model.EntryPointLocation, ISOCountry: "ZZ"},
		model.ExitPoint{Kind: model.ExitPointLocation, ISOCountry: "DE"},
		model.GatewayPerformanceOptions{},
	)
	var invalidEntry *ErrInvalidEntryGatewayCountry
	require.ErrorAs(t, err, &invalidEntry)
}
