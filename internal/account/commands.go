package account

import "mistveil-core/internal/model"

// commandKind identifies a command's de-dup bucket (§4.2 "each command kind
// has a bucket"). Commands that carry distinct arguments per call
// (GetZkNymById, ConfirmZkNymIdDownloaded) are deliberately excluded from
// de-duplication — see runningCommands.
type commandKind string

const (
	kindStoreAccount             commandKind = "StoreAccount"
	kindForgetAccount            commandKind = "ForgetAccount"
	kindSyncAccountState         commandKind = "SyncAccountState"
	kindSyncDeviceState          commandKind = "SyncDeviceState"
	kindGetUsage                 commandKind = "GetUsage"
	kindGetDeviceIdentity        commandKind = "GetDeviceIdentity"
	kindRegisterDevice           commandKind = "RegisterDevice"
	kindGetDevices               commandKind = "GetDevices"
	kindGetActiveDevices         commandKind = "GetActiveDevices"
	kindRequestZkNym             commandKind = "RequestZkNym"
	kindGetDeviceZkNym           commandKind = "GetDeviceZkNym"
	kindGetZkNymsForDownload     commandKind = "GetZkNymsAvailableForDownload"
	kindGetZkNymByID             commandKind = "GetZkNymById"
	kindConfirmZkNymDownloaded   commandKind = "ConfirmZkNymIdDownloaded"
	kindGetAvailableTickets      commandKind = "GetAvailableTickets"
	kindSetStaticApiAddresses    commandKind = "SetStaticApiAddresses"
	kindWaitForAccountReady      commandKind = "WaitForAccountReadyToConnect"
)

// commandResult is the union of every command's reply payload. Only the
// field relevant to the originating command is populated; callers know
// which one to read because they know what they sent.
type commandResult struct {
	Err error

	AccountSummary   *model.AccountSummary
	DeviceIdentity   string
	Devices          []string
	AvailableTickets model.AvailableTicketbooks
	ZkNymResult      *model.RequestZkNymState
	Ticketbooks      []model.Ticketbook
	Ticketbook       *model.Ticketbook
	Successes        []string
	Failed           []error
}

// command is one request to the controller's single-task command loop.
// reply is always set; even SetStaticApiAddresses answers with an empty
// result once the addresses are stored.
type command struct {
	kind  commandKind
	reply chan commandResult

	// arguments, populated per-kind
	mnemonic        string
	deviceIdentity  string
	staticAddrs     []string
	credentialsMode bool
	ticketbookID    string // GetZkNymById / ConfirmZkNymIdDownloaded
}

func newCommand(kind commandKind) *command {
	return &command{kind: kind, reply: make(chan commandResult, 1)}
}

func (c *command) send(res commandResult) {
	if c.reply == nil {
		return
	}
	select {
	case c.reply <- res:
	default:
	}
}
