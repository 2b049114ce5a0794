package main

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"trustpack/internal/config"
	"trustpack/internal/infra/crypto"
	"trustpack/internal/infra/db"
	"trustpack/internal/infra/merkle"
	"trustpack/internal/usecase"
	"trustpack/pkg/logclient"
)

func main() {
	cfg := config.FromEnv()
	if cfg.AuditLogBaseURL == "" {
		log.Fatal("AUDIT_LOG_BASE_URL is required")
	}

	client, err := logclient.NewClient(cfg.AuditLogBaseURL, cfg.LogID, nil)
	if err != nil {
		log.Fatalf("failed to build log client: %v", err)
	}

	store, err := db.NewStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	if err := store.AutoMigrate(); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	auditor := &usecase.Auditor{
		Log:          client,
		Crypto:       crypto.NewService(),
		Merkle:       &merkle.Service{},
		LogPublicKey: logPublicKey(cfg),
		SampleSize:   cfg.AuditSampleSize,
		Interval:     cfg.AuditInterval(),
	}
	if store.DB != nil {
		auditor.Reports = db.NewAuditReportRepository(store.DB)
	} else {
		log.Printf("no database configured; audit reports will not be persisted")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("auditing %s every %s", cfg.AuditLogBaseURL, cfg.AuditInterval())
	if err := auditor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("auditor exited: %v", err)
	}
}

func logPublicKey(cfg config.Config) []byte {
	if cfg.LogPublicKeyBase64 == "" {
		log.Printf("LOG_PUBLIC_KEY_BASE64 not set; tree head signatures will not be checked")
		return nil
	}
	pub, err := base64.StdEncoding.DecodeString(cfg.LogPublicKeyBase64)
	if err != nil {
		log.Fatalf("invalid LOG_PUBLIC_KEY_BASE64: %v", err)
	}
	return pub
}
