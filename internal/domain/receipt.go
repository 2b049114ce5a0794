package domain

import "time"

// ConsentReceipt is the holder-side record of a disclosure consent. It is
// owned by the holder's device; the log only ever sees ReceiptHash and the
// hash of Salt. Once ReceiptHash is assigned the receipt is immutable except
// for attaching a TransparencyLogEntry.
type ConsentReceipt struct {
	ID            string
	Timestamp     time.Time
	Purpose       string
	Predicates    []Predicate
	RPIdentifier  string
	RPDisplayName string
	UserConsent   ConsentDetails
	CredentialID  string
	ReceiptHash   string // "sha256:<hex>", empty until computed
	Signature     []byte // ed25519 over the canonical receipt payload
	Salt          string

	TransparencyLogEntry *TransparencyLogEntry
}

// ConsentDetails is a pure value type; it is canonicalized deterministically
// as part of the receipt payload.
type ConsentDetails struct {
	ExplicitConsent              bool
	DataMinimizationAcknowledged bool
	RetentionPeriodUnderstood    bool
	RevocationRightsUnderstood   bool
	RetentionPeriodDays          int
}

const DefaultRetentionPeriodDays = 90

// SCT is the log's signed promise, issued synchronously on submission, that
// the entry will be (or already has been) incorporated into the tree.
type SCT struct {
	LogID     string
	Timestamp time.Time
	Signature []byte
}

// TransparencyLogEntry associates a receipt with its position in a log.
// IsVerified transitions false -> true on a locally verified inclusion proof
// and never back; a failed re-verification is reported, not recorded.
type TransparencyLogEntry struct {
	LogID          string
	LogIndex       int64 // -1 until resolved
	SCT            SCT
	AnchoredAt     time.Time
	InclusionProof *InclusionProof
	VerifiedAt     *time.Time
	IsVerified     bool
}

const UnresolvedLogIndex int64 = -1
