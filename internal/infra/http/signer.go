package http

import (
	"context"
	"time"

	"trustpack/internal/config"
	"trustpack/internal/domain"
	"trustpack/internal/infra/crypto"
)

// buildLogSigners returns the STH and SCT signing closures for the
// configured log key, or nil closures when no key material is present
// (the log then runs unsigned, which only makes sense in development).
func buildLogSigners(cfg config.Config, cryptoSvc *crypto.Service, keyManager domain.KeyManager) (func(domain.STH) ([]byte, error), func(string, time.Time) ([]byte, error)) {
	if cryptoSvc == nil || keyManager == nil {
		return nil, nil
	}
	ref := domain.KeyRef{Purpose: domain.KeyPurposeLog, KID: cfg.LogKID}
	if _, err := keyManager.PublicKey(context.Background(), ref); err != nil {
		return nil, nil
	}

	signSTH := func(sth domain.STH) ([]byte, error) {
		canonical, err := cryptoSvc.CanonicalizeSTH(sth)
		if err != nil {
			return nil, err
		}
		return keyManager.Sign(context.Background(), ref, canonical)
	}
	signSCT := func(receiptHash string, timestamp time.Time) ([]byte, error) {
		canonical, err := cryptoSvc.CanonicalizeSCT(cfg.LogID, receiptHash, timestamp)
		if err != nil {
			return nil, err
		}
		return keyManager.Sign(context.Background(), ref, canonical)
	}
	return signSTH, signSCT
}
