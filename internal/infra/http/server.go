// Package http exposes the transparency log over a CT-style API and the
// holder-facing receipt lifecycle endpoints.
package http

import (
	"context"
	"encoding/base64"
	stdlog "log"
	"net/http"
	"path/filepath"
	"time"

	"trustpack/internal/config"
	"trustpack/internal/domain"
	"trustpack/internal/infra/anchor"
	"trustpack/internal/infra/crypto"
	"trustpack/internal/infra/db"
	"trustpack/internal/infra/keys/soft"
	"trustpack/internal/infra/logdb"
	"trustpack/internal/infra/logmem"
	"trustpack/internal/infra/merkle"
	"trustpack/internal/infra/policyopa"
	"trustpack/internal/infra/ratelimit"
	"trustpack/internal/infra/receiptmem"
	"trustpack/internal/usecase"

	"github.com/gin-gonic/gin"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine

	issueUC  *usecase.IssueReceipt
	verifyUC *usecase.VerifyReceipt
	log      usecase.ReceiptLog
	receipts usecase.ReceiptRepository
	anchors  domain.AnchorAttemptRepository
	audits   domain.AuditReportRepository

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

func NewServer(cfg config.Config, store *db.Store) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r}
	s.initDeps()
	s.routes()
	return s
}

type ServerDeps struct {
	Issue       *usecase.IssueReceipt
	Verify      *usecase.VerifyReceipt
	Log         usecase.ReceiptLog
	Receipts    usecase.ReceiptRepository
	Anchors     domain.AnchorAttemptRepository
	Audits      domain.AuditReportRepository
	RateLimiter domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:      cfg,
		r:        r,
		issueUC:  deps.Issue,
		verifyUC: deps.Verify,
		log:      deps.Log,
		receipts: deps.Receipts,
		anchors:  deps.Anchors,
		audits:   deps.Audits,
	}
	if s.log == nil && s.issueUC != nil {
		s.log = s.issueUC.Log
	}
	if s.receipts == nil && s.issueUC != nil {
		s.receipts = s.issueUC.Receipts
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initDeps() {
	cryptoSvc := crypto.NewService()
	merkleSvc := &merkle.Service{}
	keyManager := soft.NewManagerFromConfig(s.cfg)

	signSTH, signSCT := buildLogSigners(s.cfg, cryptoSvc, keyManager)

	var (
		logRepo     *db.LogRepository
		receiptRepo usecase.ReceiptRepository
	)
	if s.store != nil && s.store.DB != nil {
		logRepo = db.NewLogRepository(s.store.DB)
		receiptRepo = db.NewConsentReceiptRepository(s.store.DB)
		s.anchors = db.NewAnchorAttemptRepository(s.store.DB)
		s.audits = db.NewAuditReportRepository(s.store.DB)
	} else {
		receiptRepo = receiptmem.New()
	}

	var anchorSvc domain.AnchorService
	if s.cfg.AnchorEnabled && s.cfg.AnchorWitnessURL != "" {
		witness, err := anchor.NewWitnessClient(s.cfg.AnchorWitnessURL, nil)
		if err != nil {
			stdlog.Printf("anchor witness client unavailable, anchoring disabled: %v", err)
		} else {
			anchorSvc = anchor.NewService(witness, s.anchors, s.cfg.AnchorTimeout())
		}
	}

	var log usecase.ReceiptLog
	if logRepo != nil {
		log = logdb.NewWithSignersClockAndAnchor(logRepo, s.cfg.LogID, signSTH, signSCT, nil, anchorSvc, s.cfg.AnchorTimeout())
	} else {
		log = logmem.NewWithSignersClockAndAnchor(s.cfg.LogID, signSTH, signSCT, nil, anchorSvc, s.cfg.AnchorTimeout())
	}

	var policyEngine usecase.PolicyEngine
	if s.cfg.PolicyBundlePath != "" {
		bundleID := filepath.Base(s.cfg.PolicyBundlePath)
		engine, err := policyopa.NewEngineFromBundlePath(context.Background(), s.cfg.PolicyBundlePath, bundleID)
		if err != nil {
			stdlog.Printf("policy bundle %s failed to load, consent policy gate disabled: %v", s.cfg.PolicyBundlePath, err)
		} else {
			policyEngine = engine
		}
	}

	s.log = log
	s.receipts = receiptRepo
	s.issueUC = &usecase.IssueReceipt{
		Receipts:      receiptRepo,
		Log:           log,
		Crypto:        cryptoSvc,
		Keys:          keyManager,
		ReceiptKeyRef: domain.KeyRef{Purpose: domain.KeyPurposeReceipt, KID: "receipt-1"},
		Policy:        policyEngine,
		Jurisdictions: domain.NewJurisdictionTable(s.cfg.Jurisdictions()),
		SubmitTimeout: s.cfg.SubmitTimeout(),
	}
	s.verifyUC = &usecase.VerifyReceipt{
		Receipts:     receiptRepo,
		Log:          log,
		Crypto:       cryptoSvc,
		Merkle:       merkleSvc,
		LogPublicKey: logPublicKey(s.cfg, keyManager),
	}

	s.initRateLimit(nil)
}

// logPublicKey prefers the explicitly configured verification key and falls
// back to deriving one from the signing material.
func logPublicKey(cfg config.Config, keyManager domain.KeyManager) []byte {
	if cfg.LogPublicKeyBase64 != "" {
		if pub, err := base64.StdEncoding.DecodeString(cfg.LogPublicKeyBase64); err == nil {
			return pub
		}
	}
	if keyManager == nil {
		return nil
	}
	ref := domain.KeyRef{Purpose: domain.KeyPurposeLog, KID: cfg.LogKID}
	pub, err := keyManager.PublicKey(context.Background(), ref)
	if err != nil {
		return nil
	}
	return pub
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil)
			if err != nil {
				stdlog.Printf("redis rate limiter unavailable, falling back to in-memory limits: %v", err)
			} else {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	if s.cfg.RateLimitWindowSeconds > 0 {
		s.rateLimitWindow = time.Duration(s.cfg.RateLimitWindowSeconds) * time.Second
	}
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		mode := "no-db"
		if s.store != nil && s.store.DB != nil {
			mode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": mode, "log_id": s.cfg.LogID})
	})

	ct := s.r.Group("/ct/v1")
	{
		ct.POST("/add-chain", s.handleAddChain)
		ct.GET("/get-sth", s.handleGetSTH)
		ct.GET("/get-entries", s.handleGetEntries)
		ct.GET("/get-proof-by-hash", s.handleGetProofByHash)
		ct.GET("/get-sth-consistency", s.handleGetSTHConsistency)
	}
	// Alias used by holder agents that predate the CT-style surface.
	s.r.POST("/receipts/hash", s.handleAddChain)

	v1 := s.r.Group("/v1")
	{
		v1.POST("/receipts", s.handleIssueReceipt)
		v1.GET("/receipts/:receipt_id", s.handleGetReceipt)
		v1.POST("/receipts/:receipt_id/verify", s.handleVerifyReceipt)
		v1.GET("/anchors", s.handleListAnchors)
		v1.GET("/audit-reports", s.handleListAuditReports)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}

// Handler exposes the gin engine for httptest.
func (s *Server) Handler() http.Handler {
	return s.r
}
