package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mistveil-core/internal/gatewaydir"
	"mistveil-core/internal/model"
)

// httpGatewaySource satisfies gatewaydir.Source against the nym-vpn-api
// directory endpoints; the query format itself is out of scope (§1).
type httpGatewaySource struct {
	baseURL string
	client  *http.Client
}

func newHTTPGatewaySource(baseURL string) *httpGatewaySource {
	return &httpGatewaySource{baseURL: baseURL, client: &http.Client{Timeout: 15 * time.Second}}
}

func (s *httpGatewaySource) fetch(ctx context.Context, path string) ([]model.Gateway, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway directory %s: status %d", path, resp.StatusCode)
	}
	var out []model.Gateway
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *httpGatewaySource) EntryGateways(ctx context.Context, tunnelType model.TunnelType) ([]model.Gateway, error) {
	return s.fetch(ctx, fmt.Sprintf("/gateways/entry?type=%s", tunnelType))
}

func (s *httpGatewaySource) ExitGateways(ctx context.Context, tunnelType model.TunnelType) ([]model.Gateway, error) {
	return s.fetch(ctx, fmt.Sprintf("/gateways/exit?type=%s", tunnelType))
}

var _ gatewaydir.Source = (*httpGatewaySource)(nil)
