package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mistveil-core/internal/account"
	"mistveil-core/internal/model"
)

// httpVpnApi is a minimal REST client satisfying account.VpnApi. The wire
// protocol itself is out of scope (§1): this client exists only so the
// daemon binary has something real to construct account.Controller with;
// field names are illustrative, not a contract with any live service.
type httpVpnApi struct {
	baseURL string
	client  *http.Client
}

func newHTTPVpnApi(baseURL string) *httpVpnApi {
	return &httpVpnApi{baseURL: baseURL, client: &http.Client{Timeout: 30 * time.Second}}
}

func (a *httpVpnApi) postJSON(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("vpn-api %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *httpVpnApi) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("vpn-api %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *httpVpnApi) SyncAccountState(ctx context.Context, mnemonic string) (model.AccountSummary, error) {
	var out model.AccountSummary
	err := a.postJSON(ctx, "/account/sync", map[string]string{"mnemonic": mnemonic}, &out)
	return out, err
}

func (a *httpVpnApi) SyncDeviceState(ctx context.Context, deviceIdentity string) (model.DeviceState, error) {
	var out struct{ State int }
	if err := a.postJSON(ctx, "/device/sync", map[string]string{"device_identity": deviceIdentity}, &out); err != nil {
		return model.DeviceNotRegistered, err
	}
	return model.DeviceState(out.State), nil
}

func (a *httpVpnApi) RegisterDevice(ctx context.Context, deviceIdentity string) error {
	return a.postJSON(ctx, "/device/register", map[string]string{"device_identity": deviceIdentity}, nil)
}

func (a *httpVpnApi) UnregisterDevice(ctx context.Context, deviceIdentity string) error {
	return a.postJSON(ctx, "/device/unregister", map[string]string{"device_identity": deviceIdentity}, nil)
}

func (a *httpVpnApi) GetUsage(ctx context.Context) (model.AccountSummary, error) {
	var out model.AccountSummary
	err := a.getJSON(ctx, "/account/usage", &out)
	return out, err
}

func (a *httpVpnApi) GetDevices(ctx context.Context) ([]string, error) {
	var out []string
	err := a.getJSON(ctx, "/device/list", &out)
	return out, err
}

func (a *httpVpnApi) GetActiveDevices(ctx context.Context) ([]string, error) {
	var out []string
	err := a.getJSON(ctx, "/device/active", &out)
	return out, err
}

func (a *httpVpnApi) RequestTicketbook(ctx context.Context, req account.BlindedWithdrawalRequest, typ model.TicketbookType) (model.Ticketbook, error) {
	var out model.Ticketbook
	err := a.postJSON(ctx, "/credential/request", map[string]any{"type": typ.String(), "request": req}, &out)
	out.Type = typ
	return out, err
}

var _ account.VpnApi = (*httpVpnApi)(nil)
