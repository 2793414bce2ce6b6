package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mistveil-core/internal/account/storage"
	"mistveil-core/internal/credstore"
	"mistveil-core/internal/corelog"
	"mistveil-core/internal/model"
)

// ZkNymFailureCeiling is the consecutive RequestZkNym failure count at which
// backgroundRefreshDisabled reports true (§4.2 "a ceiling (e.g. 10)"); an
// explicit RequestZkNym command resets the counter.
const ZkNymFailureCeiling = 10

// DefaultReadyTimeout bounds wait_for_account_ready_to_connect (§9 "default
// 60 s").
const DefaultReadyTimeout = 60 * time.Second

// Controller is the single-task supervisor of account/device/credential
// state (§4.2). All mutation flows through its command loop; SharedState
// reads are served under a mutex so the tunnel state machine never blocks
// on the command channel.
type Controller struct {
	cmds    chan *command
	running *runningCommands

	store         *credstore.Store
	mnemonicStore *storage.MnemonicStore
	deviceKeys    *storage.DeviceKeyStore
	api           VpnApi
	log           *corelog.Logger
	events        *corelog.EventBus

	mu                  sync.Mutex
	shared              model.SharedAccountState
	deviceIdentity      string
	staticApiAddrs      []string
	zkNymFailureStreak  int
	registrationRunning bool

	// isConnected reports whether the tunnel is currently connected, so
	// ForgetAccount can refuse with IsConnected (§8 scenario 6). Wired by
	// the daemon to the state machine's current TunnelState; nil (tests)
	// always permits forgetting.
	isConnected func() bool
}

// SetConnectedChecker wires the tunnel-connected predicate ForgetAccount
// consults. Called once during daemon startup.
func (c *Controller) SetConnectedChecker(fn func() bool) {
	c.isConnected = fn
}

// New builds a Controller. The returned value must have Run called on it
// in its own goroutine before any command is dispatched.
func New(store *credstore.Store, mnemonicStore *storage.MnemonicStore, deviceKeys *storage.DeviceKeyStore, api VpnApi, log *corelog.Logger, events *corelog.EventBus) *Controller {
	return &Controller{
		cmds:          make(chan *command, 32),
		running:       newRunningCommands(),
		store:         store,
		mnemonicStore: mnemonicStore,
		deviceKeys:    deviceKeys,
		api:           api,
		log:           log,
		events:        events,
	}
}

// Run drives the command loop until ctx is cancelled. It is the
// controller's single task (§5 "the account controller is a single task;
// all mutations to SharedAccountState flow through it").
func (c *Controller) Run(ctx context.Context) {
	c.restoreOnStartup()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.cmds:
			c.dispatch(ctx, cmd)
		}
	}
}

// restoreOnStartup reflects on-disk mnemonic/device state into shared state
// without touching the network, so a freshly constructed controller
// reports accurate MnemonicState/DeviceState before the first command.
func (c *Controller) restoreOnStartup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.mnemonicStore.Load(); err == nil {
		c.shared.Mnemonic = model.MnemonicStored
	}
	if pair, err := c.deviceKeys.LoadKeys(); err == nil {
		c.deviceIdentity = pair.Identity()
	}
}

func (c *Controller) snapshot() model.SharedAccountState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.shared
	successes := make([]string, len(c.shared.RequestZkNymSuccesses))
	copy(successes, c.shared.RequestZkNymSuccesses)
	out.RequestZkNymSuccesses = successes
	return out
}

func (c *Controller) publishStateChanged() {
	c.events.Publish(c.snapshot())
}

// dedupDispatch joins cmd's bucket and either runs fn (first caller) or
// simply waits for the bucket's result to be fanned out (§4.2
// de-duplication, §8 invariant 9).
func (c *Controller) dedupDispatch(cmd *command, fn func() commandResult) {
	if !c.running.join(cmd.kind, cmd.reply) {
		return
	}
	go func() {
		res := fn()
		c.running.fulfill(cmd.kind, res)
	}()
}

func (c *Controller) dispatch(ctx context.Context, cmd *command) {
	switch cmd.kind {
	case kindStoreAccount:
		c.dedupDispatch(cmd, func() commandResult { return commandResult{Err: c.storeAccount(ctx, cmd.mnemonic)} })
	case kindForgetAccount:
		if c.isConnected != nil && c.isConnected() {
			cmd.send(commandResult{Err: &model.AccountCommandError{Kind: model.ErrAccountIsConnected, Message: errAccountIsConnected.Error()}})
			return
		}
		c.dedupDispatch(cmd, func() commandResult { return commandResult{Err: c.forgetAccount(ctx)} })
	case kindSyncAccountState:
		c.dedupDispatch(cmd, func() commandResult { return commandResult{Err: c.ensureUpdateAccount(ctx, true)} })
	case kindSyncDeviceState:
		c.dedupDispatch(cmd, func() commandResult { return commandResult{Err: c.ensureUpdateDevice(ctx, true)} })
	case kindRegisterDevice:
		c.dedupDispatch(cmd, func() commandResult { return commandResult{Err: c.ensureRegisterDevice(ctx, true)} })
	case kindRequestZkNym:
		c.mu.Lock()
		c.zkNymFailureStreak = 0
		c.mu.Unlock()
		c.dedupDispatch(cmd, func() commandResult { return c.runRequestZkNym(ctx) })
	case kindGetUsage:
		c.dedupDispatch(cmd, func() commandResult { return c.getUsage(ctx) })
	case kindGetDeviceIdentity:
		cmd.send(commandResult{DeviceIdentity: c.getDeviceIdentity()})
	case kindGetDevices:
		c.dedupDispatch(cmd, func() commandResult { return c.getDevices(ctx) })
	case kindGetActiveDevices:
		c.dedupDispatch(cmd, func() commandResult { return c.getActiveDevices(ctx) })
	case kindGetAvailableTickets:
		cmd.send(c.getAvailableTickets(ctx))
	case kindGetDeviceZkNym, kindGetZkNymsForDownload:
		cmd.send(c.listTicketbooks(ctx))
	case kindGetZkNymByID:
		cmd.send(c.getTicketbookByID(ctx, cmd.ticketbookID))
	case kindConfirmZkNymDownloaded:
		c.log.Debugf("account", "zk-nym %s confirmed downloaded", cmd.ticketbookID)
		cmd.send(commandResult{})
	case kindSetStaticApiAddresses:
		c.mu.Lock()
		c.staticApiAddrs = cmd.staticAddrs
		c.mu.Unlock()
		cmd.send(commandResult{})
	case kindWaitForAccountReady:
		cmd.send(commandResult{Err: c.waitForAccountReadyToConnect(ctx, cmd.credentialsMode)})
	default:
		cmd.send(commandResult{Err: fmt.Errorf("account: unhandled command kind %q", cmd.kind)})
	}
}

// storeAccount is the login pipeline's first step (§4.2 "store_account →
// ensure_update_account → ensure_update_device"): persist the mnemonic,
// initialize the device keypair if absent, mark Mnemonic = Stored, then
// chain the two ensure steps.
func (c *Controller) storeAccount(ctx context.Context, mnemonic string) error {
	if err := c.mnemonicStore.Store(mnemonic); err != nil {
		return model.Internal("store mnemonic: %v", err)
	}
	pair, err := c.deviceKeys.InitKeys(nil)
	if err != nil {
		return &model.AccountCommandError{Kind: model.ErrInitDeviceKeys, Message: err.Error()}
	}
	c.mu.Lock()
	c.shared.Mnemonic = model.MnemonicStored
	c.deviceIdentity = pair.Identity()
	c.mu.Unlock()
	c.publishStateChanged()

	if err := c.ensureUpdateAccount(ctx, false); err != nil {
		return err
	}
	return c.ensureUpdateDevice(ctx, false)
}

// ensureUpdateAccount is a no-op if already Registered unless force is set
// (an explicit SyncAccountState command always forces a refresh).
func (c *Controller) ensureUpdateAccount(ctx context.Context, force bool) error {
	c.mu.Lock()
	alreadyRegistered := c.shared.AccountRegistered == model.AccountRegistered
	mnemonicStored := c.shared.Mnemonic == model.MnemonicStored
	c.mu.Unlock()
	if alreadyRegistered && !force {
		return nil
	}
	if !mnemonicStored {
		return &model.AccountCommandError{Kind: model.ErrNoAccountStored}
	}

	mnemonic, err := c.mnemonicStore.Load()
	if err != nil {
		return &model.AccountCommandError{Kind: model.ErrNoAccountStored}
	}
	summary, err := c.api.SyncAccountState(ctx, mnemonic)
	if err != nil {
		return wrapEndpointFailure(model.ErrSyncAccountEndpointFailure, err)
	}

	c.mu.Lock()
	c.shared.AccountRegistered = model.AccountRegistered
	c.shared.AccountSummary = &summary
	c.mu.Unlock()
	c.publishStateChanged()
	return nil
}

// ensureUpdateDevice mirrors ensureUpdateAccount for device state.
func (c *Controller) ensureUpdateDevice(ctx context.Context, force bool) error {
	c.mu.Lock()
	alreadyActive := c.shared.Device == model.DeviceActive
	identity := c.deviceIdentity
	c.mu.Unlock()
	if alreadyActive && !force {
		return nil
	}
	if identity == "" {
		return &model.AccountCommandError{Kind: model.ErrNoDeviceStored}
	}

	state, err := c.api.SyncDeviceState(ctx, identity)
	if err != nil {
		return wrapEndpointFailure(model.ErrSyncDeviceEndpointFailure, err)
	}

	c.mu.Lock()
	c.shared.Device = state
	c.mu.Unlock()
	c.publishStateChanged()
	return nil
}

// ensureRegisterDevice registers the device if NotRegistered, refusing to
// start a second registration while one is in flight (§3 invariant: "at
// most one RegisterDevice command may be in flight").
func (c *Controller) ensureRegisterDevice(ctx context.Context, force bool) error {
	c.mu.Lock()
	if c.shared.Device != model.DeviceNotRegistered && !force {
		c.mu.Unlock()
		return nil
	}
	if c.registrationRunning {
		c.mu.Unlock()
		return &model.AccountCommandError{Kind: model.ErrRegistrationInProgress}
	}
	c.registrationRunning = true
	c.shared.RegisterDeviceResult = model.RegisterDeviceInProgress
	identity := c.deviceIdentity
	c.mu.Unlock()
	c.publishStateChanged()

	err := c.api.RegisterDevice(ctx, identity)

	c.mu.Lock()
	c.registrationRunning = false
	if err != nil {
		c.shared.RegisterDeviceResult = model.RegisterDeviceFailed
		c.shared.RegisterDeviceError = err
	} else {
		c.shared.RegisterDeviceResult = model.RegisterDeviceSuccess
		c.shared.Device = model.DeviceActive
	}
	c.mu.Unlock()
	c.publishStateChanged()

	if err != nil {
		return wrapEndpointFailure(model.ErrRegisterDeviceEndpointFailure, err)
	}
	return nil
}

func (c *Controller) getDeviceIdentity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceIdentity
}

func (c *Controller) getUsage(ctx context.Context) commandResult {
	summary, err := c.api.GetUsage(ctx)
	if err != nil {
		return commandResult{Err: wrapEndpointFailure(model.ErrAccountGeneral, err)}
	}
	return commandResult{AccountSummary: &summary}
}

func (c *Controller) getDevices(ctx context.Context) commandResult {
	devices, err := c.api.GetDevices(ctx)
	if err != nil {
		return commandResult{Err: wrapEndpointFailure(model.ErrAccountGeneral, err)}
	}
	return commandResult{Devices: devices}
}

func (c *Controller) getActiveDevices(ctx context.Context) commandResult {
	devices, err := c.api.GetActiveDevices(ctx)
	if err != nil {
		return commandResult{Err: wrapEndpointFailure(model.ErrAccountGeneral, err)}
	}
	return commandResult{Devices: devices}
}

func (c *Controller) getAvailableTickets(ctx context.Context) commandResult {
	avail, err := c.store.AvailableTicketbooks(ctx, time.Now())
	if err != nil {
		return commandResult{Err: model.Internal("read available tickets: %v", err)}
	}
	return commandResult{AvailableTickets: avail}
}

// listTicketbooks backs GetDeviceZkNym/GetZkNymsAvailableForDownload: both
// just surface every stored ticketbook, matching the original's lumping of
// those commands into one credential-store read (§5.3).
func (c *Controller) listTicketbooks(ctx context.Context) commandResult {
	books, err := c.store.GetTicketbooksInfo(ctx)
	if err != nil {
		return commandResult{Err: model.Internal("read ticketbooks: %v", err)}
	}
	return commandResult{Ticketbooks: books}
}

func (c *Controller) getTicketbookByID(ctx context.Context, id string) commandResult {
	books, err := c.store.GetTicketbooksInfo(ctx)
	if err != nil {
		return commandResult{Err: model.Internal("read ticketbooks: %v", err)}
	}
	for _, tb := range books {
		if tb.ID == id {
			return commandResult{Ticketbook: &tb}
		}
	}
	return commandResult{Err: model.General("no ticketbook with id %q", id)}
}

// waitForAccountReadyToConnect implements §4.2's ready-to-connect predicate
// in its exact call order.
func (c *Controller) waitForAccountReadyToConnect(ctx context.Context, credentialsMode bool) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultReadyTimeout)
	defer cancel()

	if err := c.ensureUpdateAccount(ctx, false); err != nil {
		return err
	}
	if err := c.ensureUpdateDevice(ctx, false); err != nil {
		return err
	}
	if err := c.ensureRegisterDevice(ctx, false); err != nil {
		return err
	}
	if !credentialsMode {
		return nil
	}
	return c.ensureAvailableZkNyms(ctx)
}

// ensureAvailableZkNyms returns immediately if every requestable type is
// already above the soft threshold; otherwise it runs the full RequestZkNym
// pipeline and propagates its first error.
func (c *Controller) ensureAvailableZkNyms(ctx context.Context) error {
	avail, err := c.store.AvailableTicketbooks(ctx, time.Now())
	if err != nil {
		return model.Internal("read available tickets: %v", err)
	}
	if avail.AllAboveThreshold() {
		return nil
	}
	res := c.runRequestZkNym(ctx)
	return res.Err
}

// forgetAccount implements §4.2 "Forget account": best-effort unregister,
// then wipe everything local regardless of the unregister outcome.
func (c *Controller) forgetAccount(ctx context.Context) error {
	c.mu.Lock()
	identity := c.deviceIdentity
	c.mu.Unlock()

	var unregisterErr error
	if identity != "" {
		unregisterErr = c.api.UnregisterDevice(ctx, identity)
		if unregisterErr != nil {
			c.log.Warnf("account", "best-effort device unregister failed: %v", unregisterErr)
		}
	}

	if err := c.mnemonicStore.Remove(); err != nil {
		return &model.AccountCommandError{Kind: model.ErrRemoveAccountFiles, Message: err.Error()}
	}
	if err := c.deviceKeys.RemoveKeys(); err != nil {
		return &model.AccountCommandError{Kind: model.ErrRemoveDeviceIdentity, Message: err.Error()}
	}
	if err := c.store.DeleteAll(ctx); err != nil {
		return &model.AccountCommandError{Kind: model.ErrResetCredentialStorage, Message: err.Error()}
	}

	c.mu.Lock()
	c.shared = model.SharedAccountState{}
	c.deviceIdentity = ""
	c.zkNymFailureStreak = 0
	c.mu.Unlock()
	c.publishStateChanged()
	return nil
}

var errAccountIsConnected = errors.New("account: forget refused, tunnel is connected")
