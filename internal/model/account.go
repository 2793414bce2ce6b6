package model

import "time"

// MnemonicState tracks whether a recovery mnemonic is on disk.
type MnemonicState int

const (
	MnemonicNotStored MnemonicState = iota
	MnemonicStored
)

// AccountRegisteredState tracks whether the account has been registered
// with the remote vpn-api.
type AccountRegisteredState int

const (
	AccountNotRegistered AccountRegisteredState = iota
	AccountRegistered
)

// DeviceState tracks the device identity's lifecycle against the vpn-api.
type DeviceState int

const (
	DeviceNotRegistered DeviceState = iota
	DeviceInactive
	DeviceActive
	DeviceDeleteMe
)

// RegisterDeviceState tracks the outcome of the most recent RegisterDevice
// command; at most one may be InProgress at a time (§3 invariant).
type RegisterDeviceState int

const (
	RegisterDeviceIdle RegisterDeviceState = iota
	RegisterDeviceInProgress
	RegisterDeviceSuccess
	RegisterDeviceFailed
)

// RequestZkNymState tracks the outcome of the most recent RequestZkNym
// command; at most one may be InProgress at a time (§3 invariant).
type RequestZkNymState int

const (
	RequestZkNymIdle RequestZkNymState = iota
	RequestZkNymInProgress
	RequestZkNymDone
	RequestZkNymFailed
)

// AccountSummary mirrors the remote account summary response.
type AccountSummary struct {
	State          string
	Subscription   string
	DeviceSummary  string
	FairUsage      string
}

// SharedAccountState is the account controller's externally-readable state,
// protected by a single mutex and read by the tunnel state machine without
// going through the command channel.
type SharedAccountState struct {
	Mnemonic              MnemonicState
	AccountRegistered     AccountRegisteredState
	Device                DeviceState
	RegisterDeviceResult  RegisterDeviceState
	RegisterDeviceError   error
	RequestZkNymResult    RequestZkNymState
	RequestZkNymSuccesses []string
	RequestZkNymFailed    []error
	RequestZkNymError     error
	AccountSummary        *AccountSummary
}

// TicketbookType enumerates the gateway-kind a ticketbook grants bandwidth
// on. V1MixnetExit intentionally has no constant here: ticketbooks are
// never requested for it (§4.2 RequestZkNym pipeline skips it), matching
// the original's "exit bandwidth is free on the mixnet path" behavior.
type TicketbookType int

const (
	TicketbookV1MixnetEntry TicketbookType = iota
	TicketbookV1WireguardEntry
	TicketbookV1WireguardExit
)

func (t TicketbookType) String() string {
	switch t {
	case TicketbookV1MixnetEntry:
		return "V1MixnetEntry"
	case TicketbookV1WireguardEntry:
		return "V1WireguardEntry"
	case TicketbookV1WireguardExit:
		return "V1WireguardExit"
	default:
		return "Unknown"
	}
}

// RequestableTicketbookTypes lists the types the RequestZkNym pipeline
// replenishes; V1MixnetExit is excluded per the original's free-exit policy.
var RequestableTicketbookTypes = []TicketbookType{
	TicketbookV1MixnetEntry,
	TicketbookV1WireguardEntry,
	TicketbookV1WireguardExit,
}

// TicketbookSoftThreshold is the per-type replenishment threshold from §3:
// a type with remaining <= this value is "running low".
const TicketbookSoftThreshold = 30

// Ticketbook is a set of unlinkable ecash tickets of one type.
type Ticketbook struct {
	ID              string
	Type            TicketbookType
	ExpirationDate  time.Time
	IssuedTickets   uint32
	ClaimedTickets  uint32
	TicketSize      uint64
}

// Remaining returns issued - claimed.
func (t Ticketbook) Remaining() uint32 {
	if t.ClaimedTickets >= t.IssuedTickets {
		return 0
	}
	return t.IssuedTickets - t.ClaimedTickets
}

// Expired reports whether the ticketbook's expiration date has passed as of
// now; an expired ticketbook never counts toward the replenishment
// threshold (§3).
func (t Ticketbook) Expired(now time.Time) bool {
	return !t.ExpirationDate.After(now)
}

// AvailableTicketbooks summarizes remaining, non-expired ticket counts per
// type, used by both the ready-to-connect gate and GetAvailableTickets.
type AvailableTicketbooks struct {
	Remaining map[TicketbookType]uint32
}

// RunningLow reports whether typ's remaining count is at or below the soft
// threshold (§8 boundary: exactly 30 counts as running low, 31 does not).
func (a AvailableTicketbooks) RunningLow(typ TicketbookType) bool {
	return a.Remaining[typ] <= TicketbookSoftThreshold
}

// AllAboveThreshold reports whether every requestable type is above the
// soft threshold, i.e. no replenishment is needed.
func (a AvailableTicketbooks) AllAboveThreshold() bool {
	for _, typ := range RequestableTicketbookTypes {
		if a.RunningLow(typ) {
			return false
		}
	}
	return true
}
