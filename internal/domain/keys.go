package domain

import (
	"context"
	"time"
)

type KeyPurpose string

const (
	// KeyPurposeLog signs tree heads and SCTs on behalf of the log.
	KeyPurposeLog KeyPurpose = "log"
	// KeyPurposeReceipt signs canonical receipt content on behalf of the
	// holder or issuing service.
	KeyPurposeReceipt KeyPurpose = "receipt"
)

type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "active"
	KeyStatusRetired KeyStatus = "retired"
)

type SigningKey struct {
	ID        string
	KID       string
	Purpose   KeyPurpose
	Alg       string
	PublicKey []byte
	Status    KeyStatus
	CreatedAt time.Time
}

type KeyRef struct {
	Purpose KeyPurpose
	KID     string
}

type KeyManager interface {
	Sign(ctx context.Context, ref KeyRef, payload []byte) ([]byte, error)
	PublicKey(ctx context.Context, ref KeyRef) ([]byte, error)
}
