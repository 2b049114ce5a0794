package db

import "time"

// LogEntryModel is one committed log row. LeafHash is the precomputed
// RFC 6962 leaf hash over the canonical entry; it is derived data but stored
// so proof generation never re-serializes entries.
type LogEntryModel struct {
	ID           int64     `gorm:"primaryKey"`
	LogID        string    `gorm:"index:idx_log_entries_leaf,unique;index:idx_log_entries_hash,unique;not null"`
	LeafIndex    int64     `gorm:"index:idx_log_entries_leaf,unique;not null"`
	Timestamp    time.Time `gorm:"not null"`
	ReceiptHash  string    `gorm:"index:idx_log_entries_hash,unique;not null"`
	SaltHash     string    `gorm:"not null"`
	PolicyID     *string
	Jurisdiction *string
	LeafHash     []byte    `gorm:"type:bytea;not null"`
	SCTSignature []byte    `gorm:"type:bytea"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (LogEntryModel) TableName() string { return "log_entries" }

// TreeHeadModel persists every signed tree head. The unique index on
// (log_id, tree_size) is the equivocation guard: a second head at the same
// size can only be stored if it is byte-identical to the first.
type TreeHeadModel struct {
	ID        int64     `gorm:"primaryKey"`
	LogID     string    `gorm:"index:idx_tree_heads_size,unique;not null"`
	TreeSize  int64     `gorm:"index:idx_tree_heads_size,unique;not null"`
	RootHash  []byte    `gorm:"type:bytea;not null"`
	IssuedAt  time.Time `gorm:"not null"`
	Signature []byte    `gorm:"column:sth_signature;type:bytea;not null"`
}

func (TreeHeadModel) TableName() string { return "tree_heads" }

type ConsentReceiptModel struct {
	ID            string    `gorm:"type:uuid;primaryKey"`
	Timestamp     time.Time `gorm:"not null"`
	Purpose       string    `gorm:"not null"`
	Predicates    []byte    `gorm:"type:jsonb;not null"`
	RPIdentifier  string    `gorm:"index;not null"`
	RPDisplayName string
	UserConsent   []byte `gorm:"type:jsonb;not null"`
	CredentialID  string `gorm:"index;not null"`
	ReceiptHash   string `gorm:"index;not null"`
	Signature     []byte `gorm:"type:bytea"`
	Salt          string `gorm:"not null"`
	LogEntry      []byte `gorm:"type:jsonb"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (ConsentReceiptModel) TableName() string { return "consent_receipts" }

type AuditReportModel struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	LogID         string `gorm:"index;not null"`
	TreeSize      int64  `gorm:"not null"`
	RootHash      []byte `gorm:"type:bytea"`
	Sampled       int    `gorm:"not null"`
	Verified      int    `gorm:"not null"`
	Failed        int    `gorm:"not null"`
	ConsistencyOK bool   `gorm:"not null"`
	Outcome       string `gorm:"index;not null"`
	Findings      []byte `gorm:"type:jsonb"`
	StartedAt     time.Time `gorm:"not null"`
	CompletedAt   time.Time `gorm:"not null"`
}

func (AuditReportModel) TableName() string { return "audit_reports" }

type AnchorAttemptModel struct {
	ID          int64  `gorm:"primaryKey"`
	LogID       string `gorm:"index;not null"`
	Provider    string `gorm:"not null"`
	Status      string `gorm:"not null"`
	ErrorCode   *string
	TreeSize    int64  `gorm:"not null"`
	PayloadHash string `gorm:"index;not null"`
	WitnessRef  *string
	CreatedAt   time.Time `gorm:"not null"`
}

func (AnchorAttemptModel) TableName() string { return "anchor_attempts" }
