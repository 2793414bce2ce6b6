package account

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mistveil-core/internal/account/storage"
	"mistveil-core/internal/credstore"
	"mistveil-core/internal/corelog"
	"mistveil-core/internal/model"
)

type fakeVpnApi struct {
	registerCalls int
	issueErr      map[model.TicketbookType]error
}

func (f *fakeVpnApi) SyncAccountState(ctx context.Context, mnemonic string) (model.AccountSummary, error) {
	return model.AccountSummary{State: "active"}, nil
}
func (f *fakeVpnApi) SyncDeviceState(ctx context.Context, deviceIdentity string) (model.DeviceState, error) {
	return model.DeviceNotRegistered, nil
}
func (f *fakeVpnApi) RegisterDevice(ctx context.Context, deviceIdentity string) error {
	f.registerCalls++
	return nil
}
func (f *fakeVpnApi) UnregisterDevice(ctx context.Context, deviceIdentity string) error { return nil }
func (f *fakeVpnApi) GetUsage(ctx context.Context) (model.AccountSummary, error) {
	return model.AccountSummary{}, nil
}
func (f *fakeVpnApi) GetDevices(ctx context.Context) ([]string, error)       { return nil, nil }
func (f *fakeVpnApi) GetActiveDevices(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeVpnApi) RequestTicketbook(ctx context.Context, req BlindedWithdrawalRequest, typ model.TicketbookType) (model.Ticketbook, error) {
	if err := f.issueErr[typ]; err != nil {
		return model.Ticketbook{}, err
	}
	return model.Ticketbook{
		Type:           typ,
		ExpirationDate: time.Now().Add(30 * 24 * time.Hour),
		IssuedTickets:  50,
	}, nil
}

func newTestController(t *testing.T, api VpnApi) (*Controller, *Commander) {
	t.Helper()
	dir := t.TempDir()
	store, err := credstore.Open(context.Background(), filepath.Join(dir, "pending.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctrl := New(store, storage.NewMnemonicStore(dir), storage.NewDeviceKeyStore(dir), api, corelog.New(corelog.Config{}), corelog.NewEventBus())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ctrl.Run(ctx)
	return ctrl, NewCommander(ctrl)
}

func TestStoreAccountRunsLoginPipeline(t *testing.T) {
	api := &fakeVpnApi{}
	_, cmd := newTestController(t, api)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, cmd.StoreAccount(ctx, "abandon abandon abandon"))

	identity, err := cmd.GetDeviceIdentity(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, identity)
}

func TestRequestZkNymPartialFailure(t *testing.T) {
	api := &fakeVpnApi{issueErr: map[model.TicketbookType]error{
		model.TicketbookV1WireguardExit: assert.AnError,
	}}
	_, cmd := newTestController(t, api)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, cmd.StoreAccount(ctx, "abandon abandon abandon"))

	successes, failed, err := cmd.RequestZkNym(ctx)
	require.Error(t, err)
	assert.Len(t, failed, 1)
	assert.Len(t, successes, 2)
}

func TestRequestZkNymAllSucceed(t *testing.T) {
	api := &fakeVpnApi{}
	_, cmd := newTestController(t, api)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, cmd.StoreAccount(ctx, "abandon abandon abandon"))

	successes, failed, err := cmd.RequestZkNym(ctx)
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Len(t, successes, len(model.RequestableTicketbookTypes))

	avail, err := cmd.GetAvailableTickets(ctx)
	require.NoError(t, err)
	assert.True(t, avail.AllAboveThreshold())
}

func TestForgetAccountRefusedWhileConnected(t *testing.T) {
	api := &fakeVpnApi{}
	ctrl, cmd := newTestController(t, api)
	ctrl.SetConnectedChecker(func() bool { return true })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := cmd.ForgetAccount(ctx)
	require.Error(t, err)
	ae, ok := err.(*model.AccountCommandError)
	require.True(t, ok)
	assert.Equal(t, model.ErrAccountIsConnected, ae.Kind)
}
