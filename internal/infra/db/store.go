// Package db is the gorm/Postgres persistence layer. Every repository
// degrades to errDBUnavailable when constructed without a connection, so
// the service can run in no-db mode with the in-memory log engine.
package db

import (
	"fmt"
	"log"

	"trustpack/internal/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Store struct {
	DB *gorm.DB
}

func NewStore(cfg config.Config) (*Store, error) {
	if cfg.PostgresDSN == "" {
		log.Printf("POSTGRES_DSN not set; starting in no-db mode.")
		return &Store{DB: nil}, nil
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &Store{DB: gdb}, nil
}

// AutoMigrate creates or updates the schema. No-op in no-db mode.
func (s *Store) AutoMigrate() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.AutoMigrate(
		&LogEntryModel{},
		&TreeHeadModel{},
		&ConsentReceiptModel{},
		&AuditReportModel{},
		&AnchorAttemptModel{},
	)
}
