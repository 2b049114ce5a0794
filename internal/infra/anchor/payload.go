// Package anchor submits signed tree heads to an external witness.
// Anchoring is strictly best-effort: a provider outage must never fail
// a receipt submission, it only produces a failed attempt record.
package anchor

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"trustpack/internal/domain"
	cryptoinfra "trustpack/internal/infra/crypto"
)

type Payload struct {
	LogID           string
	TreeSize        int64
	RootHashBase64  string
	SignatureBase64 string
	CanonicalJSON   []byte
	HashHex         string
}

// BuildPayload canonicalizes the tree head commitment handed to the
// witness. The payload hash is what attempt records are keyed on, so
// the encoding is versioned and must stay stable.
func BuildPayload(sth domain.STH) (Payload, error) {
	if sth.LogID == "" {
		return Payload{}, errors.New("sth.log_id is required")
	}
	if len(sth.RootHash) == 0 {
		return Payload{}, errors.New("sth.root_hash is required")
	}
	rootB64 := base64.StdEncoding.EncodeToString(sth.RootHash)
	signatureB64 := base64.StdEncoding.EncodeToString(sth.Signature)
	canonical, err := cryptoinfra.CanonicalizeAny(map[string]any{
		"v":                    "trustpack_anchor_v1",
		"log_id":               sth.LogID,
		"tree_size":            sth.TreeSize,
		"root_hash_base64":     rootB64,
		"sth_signature_base64": signatureB64,
	})
	if err != nil {
		return Payload{}, err
	}
	sum := sha256.Sum256(canonical)
	return Payload{
		LogID:           sth.LogID,
		TreeSize:        sth.TreeSize,
		RootHashBase64:  rootB64,
		SignatureBase64: signatureB64,
		CanonicalJSON:   canonical,
		HashHex:         hex.EncodeToString(sum[:]),
	}, nil
}
