// Package account implements the account controller: the command-driven
// supervisor for mnemonic/device/ticketbook lifecycle (§4.2).
package account

import (
	"crypto/ed25519"

	"golang.org/x/crypto/blake2b"
)

// ecashKeyPair is the credential signing keypair used to build a blinded
// withdrawal request. The real scheme (compact ecash over a Sphinx-style
// group) is explicitly out of scope (spec.md §1 "the ecash scheme"); this
// derives a deterministic ed25519 keypair from the account's device key and
// the requested ticketbook type so the RequestZkNym pipeline has something
// stable to sign requests with.
type ecashKeyPair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// deriveEcashKeyPair derives a keypair deterministically from seed and a
// per-type domain tag, so requesting two different ticketbook types never
// reuses the same signing key (§4.2 step 3a: "ecash keypair deterministically
// derived from the account key").
func deriveEcashKeyPair(seed []byte, domainTag string) ecashKeyPair {
	h, _ := blake2b.New256([]byte(domainTag))
	h.Write(seed)
	sum := h.Sum(nil)
	priv := ed25519.NewKeyFromSeed(sum)
	return ecashKeyPair{Private: priv, Public: priv.Public().(ed25519.PublicKey)}
}

// BlindedWithdrawalRequest stands in for the real compact-ecash blinded
// request payload (§4.2 step 3b). It carries enough to round-trip through
// the pending_requests table and to be POSTed by a VpnApi implementation;
// exported because VpnApi.RequestTicketbook is implemented outside this
// package (cmd/mistveild's HTTP client, tests' fakes).
type BlindedWithdrawalRequest struct {
	PublicKey []byte
	TypeTag   string
}

func buildBlindedWithdrawalRequest(kp ecashKeyPair, typeTag string) BlindedWithdrawalRequest {
	return BlindedWithdrawalRequest{PublicKey: []byte(kp.Public), TypeTag: typeTag}
}
