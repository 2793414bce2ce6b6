// Package gatewaydir implements the Gateway Directory Client (§4.2 System
// Overview row, §4.1 step 2): resolving an EntryPoint/ExitPoint pair into
// concrete Gateway records and enforcing the entry != exit invariant.
package gatewaydir

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"mistveil-core/internal/model"
)

// Client looks up gateways by identity, country, or policy (random /
// random-low-latency). The directory contents themselves (out of scope:
// "the gateway directory query format") are supplied by Source, which a
// production build backs with an HTTP client against the vpn-api; tests
// and local development can back it with a static list.
type Client struct {
	Source Source
}

// Source is the directory's data feed: the set of gateways eligible to
// serve as an entry or exit hop for a tunnel type.
type Source interface {
	EntryGateways(ctx context.Context, tunnelType model.TunnelType) ([]model.Gateway, error)
	ExitGateways(ctx context.Context, tunnelType model.TunnelType) ([]model.Gateway, error)
}

// New constructs a Client over the given Source.
func New(source Source) *Client {
	return &Client{Source: source}
}

// ErrInvalidEntryGatewayCountry is returned when no entry gateway matches
// the requested ISO country.
type ErrInvalidEntryGatewayCountry struct{ Country string }

func (e *ErrInvalidEntryGatewayCountry) Error() string {
	return fmt.Sprintf("no entry gateway available in country %q", e.Country)
}

// ErrInvalidExitGatewayCountry is returned when no exit gateway matches the
// requested ISO country.
type ErrInvalidExitGatewayCountry struct{ Country string }

func (e *ErrInvalidExitGatewayCountry) Error() string {
	return fmt.Sprintf("no exit gateway available in country %q", e.Country)
}

// SelectGateways implements statemachine.GatewaySelector.
func (c *Client) SelectGateways(
	ctx context.Context,
	tunnelType model.TunnelType,
	entry model.EntryPoint,
	exit model.ExitPoint,
	perf model.GatewayPerformanceOptions,
) (model.SelectedGateways, error) {
	entryCandidates, err := c.Source.EntryGateways(ctx, tunnelType)
	if err != nil {
		return model.SelectedGateways{}, fmt.Errorf("list entry gateways: %w", err)
	}
	exitCandidates, err := c.Source.ExitGateways(ctx, tunnelType)
	if err != nil {
		return model.SelectedGateways{}, fmt.Errorf("list exit gateways: %w", err)
	}

	entryCandidates = filterByPerformance(entryCandidates, perf.MinMixnetPerformance)
	exitCandidates = filterByPerformance(exitCandidates, perf.MinMixnetPerformance)

	entryGw, err := resolveEntry(entry, entryCandidates)
	if err != nil {
		return model.SelectedGateways{}, err
	}
	exitGw, err := resolveExit(exit, exitCandidates)
	if err != nil {
		return model.SelectedGateways{}, err
	}

	return model.NewSelectedGateways(entryGw, exitGw)
}

func filterByPerformance(gateways []model.Gateway, min uint8) []model.Gateway {
	if min == 0 {
		return gateways
	}
	out := make([]model.Gateway, 0, len(gateways))
	for _, g := range gateways {
		if g.Performance >= min {
			out = append(out, g)
		}
	}
	return out
}

func resolveEntry(point model.EntryPoint, candidates []model.Gateway) (model.Gateway, error) {
	switch point.Kind {
	case model.EntryPointGateway:
		return findByIdentity(candidates, point.Identity)
	case model.EntryPointLocation:
		matches := filterByCountry(candidates, point.ISOCountry)
		if len(matches) == 0 {
			return model.Gateway{}, &ErrInvalidEntryGatewayCountry{Country: point.ISOCountry}
		}
		return matches[0], nil
	case model.EntryPointRandomLowLatency:
		return lowestLatency(candidates)
	default: // EntryPointRandom
		return randomOf(candidates)
	}
}

func resolveExit(point model.ExitPoint, candidates []model.Gateway) (model.Gateway, error) {
	switch point.Kind {
	case model.ExitPointGateway:
		return findByIdentity(candidates, point.Identity)
	case model.ExitPointLocation:
		matches := filterByCountry(candidates, point.ISOCountry)
		if len(matches) == 0 {
			return model.Gateway{}, &ErrInvalidExitGatewayCountry{Country: point.ISOCountry}
		}
		return matches[0], nil
	case model.ExitPointRandomLowLatency:
		return lowestLatency(candidates)
	case model.ExitPointAddress:
		// A fixed nym-address exit has no directory-backed Gateway record;
		// a synthetic Gateway whose ID and Identity are point.NymAddress
		// stands in for it, with no address or country filled in.
		return model.Gateway{ID: point.NymAddress, Identity: point.NymAddress}, nil
	default: // ExitPointRandom
		return randomOf(candidates)
	}
}

func findByIdentity(candidates []model.Gateway, identity string) (model.Gateway, error) {
	for _, g := range candidates {
		if g.Identity == identity {
			return g, nil
		}
	}
	return model.Gateway{}, fmt.Errorf("gateway with identity %q not found", identity)
}

func filterByCountry(candidates []model.Gateway, country string) []model.Gateway {
	out := make([]model.Gateway, 0, len(candidates))
	for _, g := range candidates {
		if g.ISOCountry == country {
			out = append(out, g)
		}
	}
	return out
}

func lowestLatency(candidates []model.Gateway) (model.Gateway, error) {
	if len(candidates) == 0 {
		return model.Gateway{}, fmt.Errorf("no gateways available")
	}
	sorted := append([]model.Gateway(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Performance > sorted[j].Performance })
	return sorted[0], nil
}

func randomOf(candidates []model.Gateway) (model.Gateway, error) {
	if len(candidates) == 0 {
		return model.Gateway{}, fmt.Errorf("no gateways available")
	}
	return candidates[rand.Intn(len(candidates))], nil
}
