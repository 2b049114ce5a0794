// Package soft is the in-process key manager: ed25519 private keys loaded
// from configuration. It exists for development and single-node
// deployments; nothing outside this package ever sees private key bytes.
package soft

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"trustpack/internal/config"
	"trustpack/internal/domain"
)

type Manager struct {
	keys map[string]ed25519.PrivateKey

	logPrivateKeyBase64      string
	logPrivateKeySeedHex     string
	receiptPrivateKeyBase64  string
	receiptPrivateKeySeedHex string
}

func NewManager(keys map[domain.KeyRef]ed25519.PrivateKey) *Manager {
	keyMap := make(map[string]ed25519.PrivateKey, len(keys))
	for ref, key := range keys {
		keyMap[keyRefKey(ref)] = append(ed25519.PrivateKey(nil), key...)
	}
	return &Manager{keys: keyMap}
}

func NewManagerFromConfig(cfg config.Config) *Manager {
	return &Manager{
		logPrivateKeyBase64:      cfg.LogPrivateKeyBase64,
		logPrivateKeySeedHex:     cfg.LogPrivateKeySeedHex,
		receiptPrivateKeyBase64:  cfg.ReceiptPrivateKeyBase64,
		receiptPrivateKeySeedHex: cfg.ReceiptPrivateKeySeedHex,
	}
}

func (m *Manager) Sign(_ context.Context, ref domain.KeyRef, payload []byte) ([]byte, error) {
	if err := validateKeyRef(ref); err != nil {
		return nil, err
	}
	key := m.lookupKey(ref)
	if key == nil {
		return nil, errors.New("private key not found")
	}
	return ed25519.Sign(key, payload), nil
}

func (m *Manager) PublicKey(_ context.Context, ref domain.KeyRef) ([]byte, error) {
	if err := validateKeyRef(ref); err != nil {
		return nil, err
	}
	key := m.lookupKey(ref)
	if key == nil {
		return nil, errors.New("private key not found")
	}
	pub, ok := key.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("unexpected public key type")
	}
	return append([]byte(nil), pub...), nil
}

func (m *Manager) lookupKey(ref domain.KeyRef) ed25519.PrivateKey {
	if m == nil {
		return nil
	}
	if len(m.keys) > 0 {
		if key, ok := m.keys[keyRefKey(ref)]; ok {
			return key
		}
	}
	return loadConfiguredKey(ref, m)
}

func keyRefKey(ref domain.KeyRef) string {
	return string(ref.Purpose) + "|" + ref.KID
}

func loadConfiguredKey(ref domain.KeyRef, m *Manager) ed25519.PrivateKey {
	if m == nil {
		return nil
	}
	switch ref.Purpose {
	case domain.KeyPurposeLog:
		if key := readPrivateKeyBase64(m.logPrivateKeyBase64); key != nil {
			return key
		}
		if key := readPrivateKeyHex(m.logPrivateKeySeedHex); key != nil {
			return key
		}
	case domain.KeyPurposeReceipt:
		if key := readPrivateKeyBase64(m.receiptPrivateKeyBase64); key != nil {
			return key
		}
		if key := readPrivateKeyHex(m.receiptPrivateKeySeedHex); key != nil {
			return key
		}
	}
	return nil
}

func readPrivateKeyBase64(value string) ed25519.PrivateKey {
	if value == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	key, err := parsePrivateKey(raw)
	if err != nil {
		return nil
	}
	return key
}

func readPrivateKeyHex(value string) ed25519.PrivateKey {
	if value == "" {
		return nil
	}
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil
	}
	key, err := parsePrivateKey(raw)
	if err != nil {
		return nil
	}
	return key
}

func parsePrivateKey(raw []byte) (ed25519.PrivateKey, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, errors.New("invalid ed25519 private key length")
	}
}

func validateKeyRef(ref domain.KeyRef) error {
	if ref.KID == "" || ref.Purpose == "" {
		return errors.New("key ref is required")
	}
	switch ref.Purpose {
	case domain.KeyPurposeLog, domain.KeyPurposeReceipt:
		return nil
	default:
		return errors.New("unsupported key purpose")
	}
}
