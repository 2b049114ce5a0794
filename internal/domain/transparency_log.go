package domain

import "time"

// LogEntry is one committed row of the append-only log. Indices are assigned
// by the store, strictly increasing from 0 with no gaps. An entry is
// immutable once written.
type LogEntry struct {
	Index        int64
	Timestamp    time.Time
	ReceiptHash  string // "sha256:<hex>"
	SaltHash     string // "sha256:<hex>"
	PolicyID     string
	Jurisdiction string
}

// LogSubmission is what a holder sends the log when anchoring a receipt:
// hashes only, never raw receipt content.
type LogSubmission struct {
	ReceiptHash  string // "sha256:<hex>"
	SaltHash     string // "sha256:<hex>"
	PolicyID     string
	Jurisdiction string
}

// TreeHead is the log's public commitment at one tree size. For a fixed
// LogID, two tree heads with equal TreeSize must carry the same RootHash;
// disagreement is equivocation and is treated as log compromise, not as a
// recoverable error.
type TreeHead struct {
	LogID     string
	TreeSize  int64
	RootHash  []byte
	IssuedAt  time.Time
	Signature []byte
}

type STH = TreeHead

// InclusionProof carries the audit path from one leaf to the root of the
// tree truncated at TreeSize. It is valid only against the tree head with
// matching TreeSize and RootHash.
type InclusionProof struct {
	LogID     string
	LeafIndex int64
	TreeSize  int64
	AuditPath [][]byte
	RootHash  []byte
}

// ConsistencyProof proves the tree at FirstSize is a strict prefix of the
// tree at SecondSize.
type ConsistencyProof struct {
	LogID      string
	FirstSize  int64
	SecondSize int64
	Path       [][]byte
}
