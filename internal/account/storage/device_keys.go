package storage

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

// DeviceKeyStore persists the device identity keypair as two binary files
// under the app data directory (§6: "device-keypair private/public files
// (binary)").
type DeviceKeyStore struct {
	privatePath string
	publicPath  string
}

// NewDeviceKeyStore targets device.private/device.public inside dataDir.
func NewDeviceKeyStore(dataDir string) *DeviceKeyStore {
	return &DeviceKeyStore{
		privatePath: filepath.Join(dataDir, "device.private"),
		publicPath:  filepath.Join(dataDir, "device.public"),
	}
}

// DeviceKeyPair is the device's ed25519 identity.
type DeviceKeyPair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// Identity returns the public key as a lowercase hex string, used as the
// device's identity string by GetDeviceIdentity.
func (p DeviceKeyPair) Identity() string {
	return fmt.Sprintf("%x", []byte(p.Public))
}

// InitKeys generates a keypair if absent (idempotent on present, §4.4). If
// seed is non-nil, a seed of any length is hashed with blake2b-256 and the
// digest is used as the ed25519 seed, so the same seed always yields the
// same keypair; a nil seed draws a random keypair.
func (s *DeviceKeyStore) InitKeys(seed []byte) (DeviceKeyPair, error) {
	if existing, err := s.LoadKeys(); err == nil {
		return existing, nil
	}

	var priv ed25519.PrivateKey
	var pub ed25519.PublicKey
	if seed != nil {
		derived := blake2b.Sum256(seed)
		priv = ed25519.NewKeyFromSeed(derived[:])
		pub = priv.Public().(ed25519.PublicKey)
	} else {
		var err error
		pub, priv, err = ed25519.GenerateKey(nil)
		if err != nil {
			return DeviceKeyPair{}, fmt.Errorf("generate device keypair: %w", err)
		}
	}

	pair := DeviceKeyPair{Private: priv, Public: pub}
	if err := s.StoreKeys(pair); err != nil {
		return DeviceKeyPair{}, err
	}
	return pair, nil
}

// StoreKeys writes the keypair to disk, mode 0600 for the private half.
func (s *DeviceKeyStore) StoreKeys(pair DeviceKeyPair) error {
	if err := os.MkdirAll(filepath.Dir(s.privatePath), 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(s.privatePath, pair.Private, 0600); err != nil {
		return fmt.Errorf("write device private key: %w", err)
	}
	if err := os.WriteFile(s.publicPath, pair.Public, 0644); err != nil {
		return fmt.Errorf("write device public key: %w", err)
	}
	return nil
}

// LoadKeys reads the keypair from disk, returning ErrNotStored if absent.
func (s *DeviceKeyStore) LoadKeys() (DeviceKeyPair, error) {
	priv, err := os.ReadFile(s.privatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return DeviceKeyPair{}, ErrNotStored
		}
		return DeviceKeyPair{}, fmt.Errorf("read device private key: %w", err)
	}
	pub, err := os.ReadFile(s.publicPath)
	if err != nil {
		return DeviceKeyPair{}, fmt.Errorf("read device public key: %w", err)
	}
	return DeviceKeyPair{Private: ed25519.PrivateKey(priv), Public: ed25519.PublicKey(pub)}, nil
}

// RemoveKeys deletes both key files; removing absent files is not an
// error.
func (s *DeviceKeyStore) RemoveKeys() error {
	for _, p := range []string{s.privatePath, s.publicPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove device key file: %w", err)
		}
	}
	return nil
}

// ResetKeys removes the existing keypair and generates a fresh one.
func (s *DeviceKeyStore) ResetKeys() (DeviceKeyPair, error) {
	if err := s.RemoveKeys(); err != nil {
		return DeviceKeyPair{}, err
	}
	return s.InitKeys(nil)
}
