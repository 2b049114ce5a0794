package logclient

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"trustpack/internal/config"
	"trustpack/internal/domain"
	"trustpack/internal/infra/crypto"
	httpinfra "trustpack/internal/infra/http"
	"trustpack/internal/infra/logmem"
	"trustpack/internal/infra/merkle"
	"trustpack/internal/infra/receiptmem"
	"trustpack/internal/usecase"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const testLogID = "trustpack-consent-log-test"

var _ usecase.ReceiptLog = (*Client)(nil)

func newTestServer(t *testing.T) (*httptest.Server, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cryptoSvc := crypto.NewService()

	signSTH := func(sth domain.STH) ([]byte, error) {
		canonical, err := cryptoSvc.CanonicalizeSTH(sth)
		if err != nil {
			return nil, err
		}
		return ed25519.Sign(priv, canonical), nil
	}
	signSCT := func(receiptHash string, ts time.Time) ([]byte, error) {
		canonical, err := cryptoSvc.CanonicalizeSCT(testLogID, receiptHash, ts)
		if err != nil {
			return nil, err
		}
		return ed25519.Sign(priv, canonical), nil
	}
	log := logmem.NewWithSigners(testLogID, signSTH, signSCT)

	server := httpinfra.NewServerWithDeps(config.Config{LogID: testLogID}, httpinfra.ServerDeps{
		Log:      log,
		Receipts: receiptmem.New(),
	})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, pub
}

func testSubmission(i int) domain.LogSubmission {
	receipt := sha256.Sum256([]byte(fmt.Sprintf("receipt-%d", i)))
	salt := sha256.Sum256([]byte(fmt.Sprintf("salt-%d", i)))
	return domain.LogSubmission{
		ReceiptHash:  domain.NewSHA256Digest(receipt[:]).String(),
		SaltHash:     domain.NewSHA256Digest(salt[:]).String(),
		Jurisdiction: "ES",
	}
}

func TestClientRoundTrip(t *testing.T) {
	server, pub := newTestServer(t)
	client, err := NewClient(server.URL, "", nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	var older domain.STH
	for i := 0; i < 5; i++ {
		entry, sct, sth, err := client.AppendEntry(ctx, testSubmission(i))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if entry.Index != int64(i) {
			t.Fatalf("entry index = %d, want %d", entry.Index, i)
		}
		if err := VerifySCT(entry.ReceiptHash, sct, pub); err != nil {
			t.Fatalf("sct %d does not verify: %v", i, err)
		}
		if err := VerifySTH(sth, pub); err != nil {
			t.Fatalf("sth %d does not verify: %v", i, err)
		}
		if i == 2 {
			older = sth
		}
	}
	if got := client.LogID(); got != testLogID {
		t.Fatalf("log id = %q, want %q", got, testLogID)
	}

	// Duplicate submission returns the original index.
	entry, _, _, err := client.AppendEntry(ctx, testSubmission(1))
	if err != nil || entry.Index != 1 {
		t.Fatalf("duplicate append: index %d err %v", entry.Index, err)
	}

	sth, err := client.GetLatestSTH(ctx)
	if err != nil || sth.TreeSize != 5 {
		t.Fatalf("latest sth: size %d err %v", sth.TreeSize, err)
	}

	entries, err := client.GetEntries(ctx, 0, 99)
	if err != nil || len(entries) != 5 {
		t.Fatalf("get entries: %d err %v", len(entries), err)
	}

	proof, err := client.GetInclusionProofByHash(ctx, entries[3].ReceiptHash, sth.TreeSize)
	if err != nil {
		t.Fatalf("inclusion proof: %v", err)
	}
	if err := VerifyInclusion(entries[3], proof, sth); err != nil {
		t.Fatalf("inclusion does not verify: %v", err)
	}

	consistency, err := client.GetConsistencyProof(ctx, older.TreeSize, sth.TreeSize)
	if err != nil {
		t.Fatalf("consistency proof: %v", err)
	}
	if err := VerifyConsistency(older, sth, consistency); err != nil {
		t.Fatalf("consistency does not verify: %v", err)
	}
}

func TestClientRejectsTamperedProof(t *testing.T) {
	server, pub := newTestServer(t)
	client, err := NewClient(server.URL, testLogID, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, _, _, err := client.AppendEntry(ctx, testSubmission(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	sth, err := client.GetLatestSTH(ctx)
	if err != nil {
		t.Fatalf("latest sth: %v", err)
	}
	entries, err := client.GetEntries(ctx, 0, 3)
	if err != nil {
		t.Fatalf("get entries: %v", err)
	}
	proof, err := client.GetInclusionProofByHash(ctx, entries[1].ReceiptHash, sth.TreeSize)
	if err != nil {
		t.Fatalf("inclusion proof: %v", err)
	}

	// Corrupting any path node must break verification.
	proof.AuditPath[0][0] ^= 0xff
	if err := VerifyInclusion(entries[1], proof, sth); !errors.Is(err, domain.ErrProofInvalid) {
		t.Fatalf("tampered path: err = %v, want ErrProofInvalid", err)
	}

	// A forged head signature must fail independent of the proof.
	forged := sth
	forged.Signature = append([]byte(nil), sth.Signature...)
	forged.Signature[0] ^= 0xff
	if err := VerifySTH(forged, pub); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("forged sth: err = %v, want ErrSignatureInvalid", err)
	}
}

func TestClientRejectsProofForOtherTreeSize(t *testing.T) {
	server, _ := newTestServer(t)
	client, err := NewClient(server.URL, testLogID, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, _, _, err := client.AppendEntry(ctx, testSubmission(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	sth, err := client.GetLatestSTH(ctx)
	if err != nil {
		t.Fatalf("latest sth: %v", err)
	}
	entries, err := client.GetEntries(ctx, 0, 3)
	if err != nil {
		t.Fatalf("get entries: %v", err)
	}

	// A proof against the size-3 prefix verifies in its own tree, but no
	// signature over that tree is in hand. It must not pass against the
	// size-4 head even though every path node checks out internally.
	proof, err := client.GetInclusionProofByHash(ctx, entries[1].ReceiptHash, 3)
	if err != nil {
		t.Fatalf("inclusion proof at size 3: %v", err)
	}
	if err := VerifyInclusion(entries[1], proof, sth); !errors.Is(err, domain.ErrProofInvalid) {
		t.Fatalf("off-head proof: err = %v, want ErrProofInvalid", err)
	}
}

func TestClientErrorMapping(t *testing.T) {
	server, _ := newTestServer(t)
	client, err := NewClient(server.URL, testLogID, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	if _, err := client.GetLatestSTH(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("empty tree: err = %v, want ErrNotFound", err)
	}

	if _, _, _, err := client.AppendEntry(ctx, domain.LogSubmission{
		ReceiptHash: "sha256:nothex",
		SaltHash:    testSubmission(0).SaltHash,
	}); !errors.Is(err, domain.ErrInvalidHash) {
		t.Fatalf("bad hash: err = %v, want ErrInvalidHash", err)
	}

	if _, _, _, err := client.AppendEntry(ctx, testSubmission(0)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := client.GetConsistencyProof(ctx, 3, 1); !errors.Is(err, merkle.ErrInvalidSize) {
		t.Fatalf("inverted sizes: err = %v, want ErrInvalidSize", err)
	}
	if _, err := client.GetInclusionProofByHash(ctx, testSubmission(9).ReceiptHash, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown hash: err = %v, want ErrNotFound", err)
	}
}

func TestClientUnreachableLog(t *testing.T) {
	client, err := NewClient("http://127.0.0.1:1", testLogID, &http.Client{Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.GetLatestSTH(context.Background()); !errors.Is(err, domain.ErrLogUnavailable) {
		t.Fatalf("unreachable: err = %v, want ErrLogUnavailable", err)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("not a url", "", nil); err == nil {
		t.Fatal("expected error for malformed base URL")
	}
}
