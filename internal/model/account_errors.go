package model

import "fmt"

// VpnApiEndpointFailure mirrors the remote vpn-api's tagged error payload,
// restored from the original's VpnApiEndpointFailure so account command
// errors can carry it through unchanged.
type VpnApiEndpointFailure struct {
	Message         string
	MessageID       *string
	CodeReferenceID *string
}

func (f VpnApiEndpointFailure) Error() string {
	return fmt.Sprintf("nym-vpn-api error: message=%s", f.Message)
}

// AccountCommandErrorKind enumerates the account controller's command-level
// error taxonomy (§7 "Account").
type AccountCommandErrorKind int

const (
	ErrSyncAccountEndpointFailure AccountCommandErrorKind = iota
	ErrSyncDeviceEndpointFailure
	ErrRegisterDeviceEndpointFailure
	ErrRequestZkNymPartial
	ErrRequestZkNymGeneral
	ErrNoAccountStored
	ErrNoDeviceStored
	ErrRegistrationInProgress
	ErrRemoveAccount
	ErrUnregisterDeviceApiFailure
	ErrRemoveDeviceIdentity
	ErrResetCredentialStorage
	ErrRemoveAccountFiles
	ErrInitDeviceKeys
	ErrAccountIsConnected
	ErrAccountGeneral
	ErrAccountInternal
)

// AccountCommandError is the error type returned on every account command
// reply channel, mirroring AccountCommandError from commands/mod.rs.
type AccountCommandError struct {
	Kind     AccountCommandErrorKind
	Endpoint *VpnApiEndpointFailure
	Message  string

	// Successes/Failed carry the partial-result payload for
	// ErrRequestZkNymPartial, matching RequestZkNymError's bundle shape.
	Successes []string
	Failed    []error
}

func (e *AccountCommandError) Error() string {
	if e.Endpoint != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Endpoint.Error())
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

func (k AccountCommandErrorKind) String() string {
	names := [...]string{
		"SyncAccountEndpointFailure", "SyncDeviceEndpointFailure",
		"RegisterDeviceEndpointFailure", "RequestZkNymPartial",
		"RequestZkNymGeneral", "NoAccountStored", "NoDeviceStored",
		"RegistrationInProgress", "RemoveAccount", "UnregisterDeviceApiFailure",
		"RemoveDeviceIdentity", "ResetCredentialStorage", "RemoveAccountFiles",
		"InitDeviceKeys", "AccountIsConnected", "General", "Internal",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Internal builds an AccountCommandError for unexpected internal failures.
func Internal(format string, args ...any) *AccountCommandError {
	return &AccountCommandError{Kind: ErrAccountInternal, Message: fmt.Sprintf(format, args...)}
}

// General builds an AccountCommandError for catch-all failures.
func General(format string, args ...any) *AccountCommandError {
	return &AccountCommandError{Kind: ErrAccountGeneral, Message: fmt.Sprintf(format, args...)}
}
