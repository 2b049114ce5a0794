package http

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"trustpack/internal/domain"
	"trustpack/internal/infra/merkle"
	"trustpack/internal/usecase"

	"github.com/gin-gonic/gin"
)

const (
	routeAddChain      = "log:add-chain"
	routeReceiptsIssue = "receipts:issue"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type addChainRequest struct {
	ReceiptHash  string `json:"receipt_hash"`
	SaltHash     string `json:"salt_hash"`
	PolicyID     string `json:"policy_id,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
}

type sctResponse struct {
	LogID     string `json:"log_id"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
}

type addChainResponse struct {
	SCT       sctResponse `json:"sct"`
	LeafIndex int64       `json:"leaf_index"`
}

type sthResponse struct {
	LogID     string `json:"log_id"`
	TreeSize  int64  `json:"tree_size"`
	RootHash  string `json:"root_hash"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
}

type entryResponse struct {
	LeafIndex    int64  `json:"leaf_index"`
	Timestamp    string `json:"timestamp"`
	ReceiptHash  string `json:"receipt_hash"`
	SaltHash     string `json:"salt_hash"`
	PolicyID     string `json:"policy_id,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
}

type entriesResponse struct {
	Entries []entryResponse `json:"entries"`
}

type inclusionResponse struct {
	LeafIndex int64    `json:"leaf_index"`
	TreeSize  int64    `json:"tree_size"`
	AuditPath []string `json:"audit_path"`
	RootHash  string   `json:"root_hash"`
}

type consistencyResponse struct {
	FirstTreeSize  int64    `json:"first_tree_size"`
	SecondTreeSize int64    `json:"second_tree_size"`
	Consistency    []string `json:"consistency"`
}

type consentInput struct {
	ExplicitConsent              bool `json:"explicit_consent"`
	DataMinimizationAcknowledged bool `json:"data_minimization_acknowledged"`
	RetentionPeriodUnderstood    bool `json:"retention_period_understood"`
	RevocationRightsUnderstood   bool `json:"revocation_rights_understood"`
	RetentionPeriodDays          int  `json:"retention_period_days,omitempty"`
}

type issueReceiptRequest struct {
	Purpose       string       `json:"purpose"`
	Predicates    []string     `json:"predicates"`
	RPIdentifier  string       `json:"rp_identifier"`
	RPDisplayName string       `json:"rp_display_name,omitempty"`
	CredentialID  string       `json:"credential_id"`
	Consent       consentInput `json:"consent"`
}

type logEntryResponse struct {
	LogID      string             `json:"log_id"`
	LogIndex   int64              `json:"log_index"`
	SCT        sctResponse        `json:"sct"`
	AnchoredAt string             `json:"anchored_at"`
	Proof      *inclusionResponse `json:"inclusion_proof,omitempty"`
	VerifiedAt string             `json:"verified_at,omitempty"`
	IsVerified bool               `json:"is_verified"`
}

type receiptResponse struct {
	ID            string            `json:"id"`
	Timestamp     string            `json:"timestamp"`
	Purpose       string            `json:"purpose"`
	Predicates    []string          `json:"predicates"`
	RPIdentifier  string            `json:"rp_identifier"`
	RPDisplayName string            `json:"rp_display_name,omitempty"`
	CredentialID  string            `json:"credential_id"`
	Consent       consentInput      `json:"consent"`
	ReceiptHash   string            `json:"receipt_hash"`
	Signature     string            `json:"signature,omitempty"`
	Salt          string            `json:"salt"`
	LogEntry      *logEntryResponse `json:"transparency_log_entry,omitempty"`
}

type issueReceiptResponse struct {
	Receipt receiptResponse `json:"receipt"`
	STH     *sthResponse    `json:"sth,omitempty"`
}

type verifyReceiptResponse struct {
	Verified bool               `json:"verified"`
	Reason   string             `json:"reason,omitempty"`
	Proof    *inclusionResponse `json:"inclusion_proof,omitempty"`
	STH      *sthResponse       `json:"sth,omitempty"`
}

func (s *Server) handleAddChain(c *gin.Context) {
	if !s.enforceRateLimit(c, routeAddChain) {
		return
	}
	var req addChainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if _, err := domain.ParseDigest(req.ReceiptHash); err != nil {
		writeError(c, err)
		return
	}
	if _, err := domain.ParseDigest(req.SaltHash); err != nil {
		writeError(c, err)
		return
	}

	entry, sct, _, err := s.log.AppendEntry(c.Request.Context(), domain.LogSubmission{
		ReceiptHash:  req.ReceiptHash,
		SaltHash:     req.SaltHash,
		PolicyID:     req.PolicyID,
		Jurisdiction: req.Jurisdiction,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, addChainResponse{
		SCT:       sctToResponse(sct),
		LeafIndex: entry.Index,
	})
}

func (s *Server) handleGetSTH(c *gin.Context) {
	sth, err := s.log.GetLatestSTH(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sthToResponse(sth))
}

func (s *Server) handleGetEntries(c *gin.Context) {
	start, ok := queryInt64(c, "start")
	if !ok {
		return
	}
	end, ok := queryInt64(c, "end")
	if !ok {
		return
	}
	entries, err := s.log.GetEntries(c.Request.Context(), start, end)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := entriesResponse{Entries: make([]entryResponse, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, entryToResponse(entry))
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetProofByHash accepts either ?hash or ?leaf_index; an index is
// resolved to its entry's receipt hash first.
func (s *Server) handleGetProofByHash(c *gin.Context) {
	var treeSize int64
	if raw := c.Query("tree_size"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_RANGE", "invalid tree_size")
			return
		}
		treeSize = parsed
	}
	hash := c.Query("hash")
	if hash == "" {
		if raw := c.Query("leaf_index"); raw != "" {
			index, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || index < 0 {
				writeErrorCode(c, http.StatusBadRequest, "INVALID_RANGE", "invalid leaf_index")
				return
			}
			entries, err := s.log.GetEntries(c.Request.Context(), index, index)
			if err != nil {
				writeError(c, err)
				return
			}
			hash = entries[0].ReceiptHash
		}
	}
	if _, err := domain.ParseDigest(hash); err != nil {
		writeError(c, err)
		return
	}

	proof, err := s.log.GetInclusionProofByHash(c.Request.Context(), hash, treeSize)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, proofToResponse(proof))
}

func (s *Server) handleGetSTHConsistency(c *gin.Context) {
	first, ok := queryInt64(c, "first")
	if !ok {
		return
	}
	second, ok := queryInt64(c, "second")
	if !ok {
		return
	}
	proof, err := s.log.GetConsistencyProof(c.Request.Context(), first, second)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, consistencyResponse{
		FirstTreeSize:  proof.FirstSize,
		SecondTreeSize: proof.SecondSize,
		Consistency:    digestStrings(proof.Path),
	})
}

func (s *Server) handleIssueReceipt(c *gin.Context) {
	if !s.enforceRateLimit(c, routeReceiptsIssue) {
		return
	}
	if s.issueUC == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req issueReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}

	resp, err := s.issueUC.Execute(c.Request.Context(), usecase.IssueReceiptRequest{
		Purpose:       req.Purpose,
		Predicates:    req.Predicates,
		RPIdentifier:  req.RPIdentifier,
		RPDisplayName: req.RPDisplayName,
		CredentialID:  req.CredentialID,
		Consent: domain.ConsentDetails{
			ExplicitConsent:              req.Consent.ExplicitConsent,
			DataMinimizationAcknowledged: req.Consent.DataMinimizationAcknowledged,
			RetentionPeriodUnderstood:    req.Consent.RetentionPeriodUnderstood,
			RevocationRightsUnderstood:   req.Consent.RevocationRightsUnderstood,
			RetentionPeriodDays:          req.Consent.RetentionPeriodDays,
		},
	})
	if err != nil {
		writeError(c, err)
		return
	}

	out := issueReceiptResponse{Receipt: receiptToResponse(resp.Receipt)}
	if resp.STH != nil {
		sth := sthToResponse(*resp.STH)
		out.STH = &sth
	}
	c.JSON(http.StatusCreated, out)
}

func (s *Server) handleGetReceipt(c *gin.Context) {
	if s.receipts == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	receipt, err := s.receipts.GetByID(c.Request.Context(), c.Param("receipt_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receiptToResponse(*receipt))
}

func (s *Server) handleVerifyReceipt(c *gin.Context) {
	if s.verifyUC == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	result, err := s.verifyUC.Execute(c.Request.Context(), c.Param("receipt_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := verifyReceiptResponse{Verified: result.Verified, Reason: result.Reason}
	if result.Proof != nil {
		proof := proofToResponse(*result.Proof)
		resp.Proof = &proof
	}
	if result.STH != nil {
		sth := sthToResponse(*result.STH)
		resp.STH = &sth
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListAnchors(c *gin.Context) {
	if s.anchors == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	limit, ok := queryLimit(c, 20)
	if !ok {
		return
	}
	attempts, err := s.anchors.ListByLog(c.Request.Context(), s.cfg.LogID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(attempts))
	for _, attempt := range attempts {
		item := gin.H{
			"provider":     attempt.Provider,
			"status":       attempt.Status,
			"tree_size":    attempt.TreeSize,
			"payload_hash": attempt.PayloadHash,
			"created_at":   formatTime(attempt.CreatedAt),
		}
		if attempt.ErrorCode != "" {
			item["error_code"] = attempt.ErrorCode
		}
		if attempt.WitnessRef != "" {
			item["witness_ref"] = attempt.WitnessRef
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"anchors": out})
}

func (s *Server) handleListAuditReports(c *gin.Context) {
	if s.audits == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	limit, ok := queryLimit(c, 20)
	if !ok {
		return
	}
	reports, err := s.audits.ListByLog(c.Request.Context(), s.cfg.LogID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(reports))
	for _, report := range reports {
		out = append(out, gin.H{
			"id":             report.ID,
			"tree_size":      report.TreeSize,
			"root_hash":      digestString(report.RootHash),
			"sampled":        report.Sampled,
			"verified":       report.Verified,
			"failed":         report.Failed,
			"consistency_ok": report.ConsistencyOK,
			"outcome":        string(report.Outcome),
			"findings":       report.Findings,
			"started_at":     formatTime(report.StartedAt),
			"completed_at":   formatTime(report.CompletedAt),
		})
	}
	c.JSON(http.StatusOK, gin.H{"audit_reports": out})
}

func sctToResponse(sct domain.SCT) sctResponse {
	return sctResponse{
		LogID:     sct.LogID,
		Timestamp: formatTime(sct.Timestamp),
		Signature: base64.StdEncoding.EncodeToString(sct.Signature),
	}
}

func sthToResponse(sth domain.STH) sthResponse {
	return sthResponse{
		LogID:     sth.LogID,
		TreeSize:  sth.TreeSize,
		RootHash:  digestString(sth.RootHash),
		Timestamp: formatTime(sth.IssuedAt),
		Signature: base64.StdEncoding.EncodeToString(sth.Signature),
	}
}

func entryToResponse(entry domain.LogEntry) entryResponse {
	return entryResponse{
		LeafIndex:    entry.Index,
		Timestamp:    formatTime(entry.Timestamp),
		ReceiptHash:  entry.ReceiptHash,
		SaltHash:     entry.SaltHash,
		PolicyID:     entry.PolicyID,
		Jurisdiction: entry.Jurisdiction,
	}
}

func proofToResponse(proof domain.InclusionProof) inclusionResponse {
	return inclusionResponse{
		LeafIndex: proof.LeafIndex,
		TreeSize:  proof.TreeSize,
		AuditPath: digestStrings(proof.AuditPath),
		RootHash:  digestString(proof.RootHash),
	}
}

func receiptToResponse(receipt domain.ConsentReceipt) receiptResponse {
	predicates := make([]string, 0, len(receipt.Predicates))
	for _, p := range receipt.Predicates {
		predicates = append(predicates, p.Identifier())
	}
	out := receiptResponse{
		ID:            receipt.ID,
		Timestamp:     formatTime(receipt.Timestamp),
		Purpose:       receipt.Purpose,
		Predicates:    predicates,
		RPIdentifier:  receipt.RPIdentifier,
		RPDisplayName: receipt.RPDisplayName,
		CredentialID:  receipt.CredentialID,
		Consent: consentInput{
			ExplicitConsent:              receipt.UserConsent.ExplicitConsent,
			DataMinimizationAcknowledged: receipt.UserConsent.DataMinimizationAcknowledged,
			RetentionPeriodUnderstood:    receipt.UserConsent.RetentionPeriodUnderstood,
			RevocationRightsUnderstood:   receipt.UserConsent.RevocationRightsUnderstood,
			RetentionPeriodDays:          receipt.UserConsent.RetentionPeriodDays,
		},
		ReceiptHash: receipt.ReceiptHash,
		Signature:   base64.StdEncoding.EncodeToString(receipt.Signature),
		Salt:        receipt.Salt,
	}
	if entry := receipt.TransparencyLogEntry; entry != nil {
		logEntry := &logEntryResponse{
			LogID:      entry.LogID,
			LogIndex:   entry.LogIndex,
			SCT:        sctToResponse(entry.SCT),
			AnchoredAt: formatTime(entry.AnchoredAt),
			IsVerified: entry.IsVerified,
		}
		if entry.InclusionProof != nil {
			proof := proofToResponse(*entry.InclusionProof)
			logEntry.Proof = &proof
		}
		if entry.VerifiedAt != nil {
			logEntry.VerifiedAt = formatTime(*entry.VerifiedAt)
		}
		out.LogEntry = logEntry
	}
	return out
}

func digestString(sum []byte) string {
	return domain.NewSHA256Digest(sum).String()
}

func digestStrings(sums [][]byte) []string {
	out := make([]string, 0, len(sums))
	for _, sum := range sums {
		out = append(out, digestString(sum))
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func queryInt64(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_RANGE", "invalid "+name)
		return 0, false
	}
	return value, true
}

func queryLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_RANGE", "invalid limit")
		return 0, false
	}
	return value, true
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidReceipt):
		status, code = http.StatusBadRequest, "INVALID_RECEIPT"
	case errors.Is(err, domain.ErrInvalidHash):
		status, code = http.StatusBadRequest, "INVALID_HASH"
	case errors.Is(err, domain.ErrSaltMissing):
		status, code = http.StatusBadRequest, "SALT_MISSING"
	case errors.Is(err, domain.ErrSignatureInvalid):
		status, code = http.StatusBadRequest, "SIGNATURE_INVALID"
	case errors.Is(err, domain.ErrProofInvalid):
		status, code = http.StatusBadRequest, "PROOF_INVALID"
	case errors.Is(err, domain.ErrSTHInvalid):
		status, code = http.StatusBadRequest, "STH_INVALID"
	case errors.Is(err, merkle.ErrInvalidIndex), errors.Is(err, merkle.ErrInvalidSize):
		status, code = http.StatusBadRequest, "INVALID_RANGE"
	case errors.Is(err, domain.ErrPolicyDenied):
		status, code = http.StatusForbidden, "POLICY_DENIED"
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, merkle.ErrEmptyTree):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrEquivocation):
		status, code = http.StatusInternalServerError, "EQUIVOCATION"
	case errors.Is(err, domain.ErrLogUnavailable):
		status, code = http.StatusServiceUnavailable, "LOG_UNAVAILABLE"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}
