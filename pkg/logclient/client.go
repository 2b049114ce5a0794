// Package logclient is the holder- and auditor-side client for a consent
// transparency log. It speaks the CT-style HTTP surface and verifies
// everything it can locally: STH signatures, inclusion proofs and
// consistency proofs are checked on the client, never trusted from the
// server.
package logclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"trustpack/internal/domain"
	"trustpack/internal/infra/merkle"
)

const maxResponseBodyBytes = 4 << 20

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	logID string
}

// NewClient builds a client for the log at baseURL. The log ID may be left
// empty; it is then learned from the first tree head the log serves.
func NewClient(baseURL string, logID string, httpClient *http.Client) (*Client, error) {
	trimmed := strings.TrimRight(baseURL, "/")
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid log base URL %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: trimmed, http: httpClient, logID: logID}, nil
}

func (c *Client) LogID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logID
}

func (c *Client) rememberLogID(logID string) {
	if logID == "" {
		return
	}
	c.mu.Lock()
	if c.logID == "" {
		c.logID = logID
	}
	c.mu.Unlock()
}

type addChainRequest struct {
	ReceiptHash  string `json:"receipt_hash"`
	SaltHash     string `json:"salt_hash"`
	PolicyID     string `json:"policy_id,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
}

type sctWire struct {
	LogID     string `json:"log_id"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
}

type addChainWire struct {
	SCT       sctWire `json:"sct"`
	LeafIndex int64   `json:"leaf_index"`
}

type sthWire struct {
	LogID     string `json:"log_id"`
	TreeSize  int64  `json:"tree_size"`
	RootHash  string `json:"root_hash"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
}

type entryWire struct {
	LeafIndex    int64  `json:"leaf_index"`
	Timestamp    string `json:"timestamp"`
	ReceiptHash  string `json:"receipt_hash"`
	SaltHash     string `json:"salt_hash"`
	PolicyID     string `json:"policy_id,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
}

type entriesWire struct {
	Entries []entryWire `json:"entries"`
}

type inclusionWire struct {
	LeafIndex int64    `json:"leaf_index"`
	TreeSize  int64    `json:"tree_size"`
	AuditPath []string `json:"audit_path"`
	RootHash  string   `json:"root_hash"`
}

type consistencyWire struct {
	FirstTreeSize  int64    `json:"first_tree_size"`
	SecondTreeSize int64    `json:"second_tree_size"`
	Consistency    []string `json:"consistency"`
}

type errorWire struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AppendEntry submits a receipt hash to the log and returns the committed
// entry together with the SCT and the tree head covering it. A resubmitted
// hash yields the entry's original index.
func (c *Client) AppendEntry(ctx context.Context, sub domain.LogSubmission) (domain.LogEntry, domain.SCT, domain.STH, error) {
	var wire addChainWire
	err := c.do(ctx, http.MethodPost, "/ct/v1/add-chain", addChainRequest{
		ReceiptHash:  sub.ReceiptHash,
		SaltHash:     sub.SaltHash,
		PolicyID:     sub.PolicyID,
		Jurisdiction: sub.Jurisdiction,
	}, &wire)
	if err != nil {
		return domain.LogEntry{}, domain.SCT{}, domain.STH{}, err
	}
	sct, err := decodeSCT(wire.SCT)
	if err != nil {
		return domain.LogEntry{}, domain.SCT{}, domain.STH{}, err
	}
	c.rememberLogID(sct.LogID)

	sth, err := c.GetLatestSTH(ctx)
	if err != nil {
		return domain.LogEntry{}, domain.SCT{}, domain.STH{}, err
	}
	entry := domain.LogEntry{
		Index:        wire.LeafIndex,
		Timestamp:    sct.Timestamp,
		ReceiptHash:  sub.ReceiptHash,
		SaltHash:     sub.SaltHash,
		PolicyID:     sub.PolicyID,
		Jurisdiction: sub.Jurisdiction,
	}
	return entry, sct, sth, nil
}

func (c *Client) GetLatestSTH(ctx context.Context) (domain.STH, error) {
	var wire sthWire
	if err := c.do(ctx, http.MethodGet, "/ct/v1/get-sth", nil, &wire); err != nil {
		return domain.STH{}, err
	}
	sth, err := decodeSTH(wire)
	if err != nil {
		return domain.STH{}, err
	}
	c.rememberLogID(sth.LogID)
	return sth, nil
}

// GetSTHBySize returns the current head when it matches treeSize. The HTTP
// surface has no by-size lookup, so historical heads are ErrNotFound;
// remote auditors fall back on consistency proofs against heads they
// recorded themselves.
func (c *Client) GetSTHBySize(ctx context.Context, treeSize int64) (domain.STH, error) {
	latest, err := c.GetLatestSTH(ctx)
	if err != nil {
		return domain.STH{}, err
	}
	if latest.TreeSize == treeSize {
		return latest, nil
	}
	return domain.STH{}, domain.ErrNotFound
}

func (c *Client) GetEntries(ctx context.Context, start, end int64) ([]domain.LogEntry, error) {
	path := fmt.Sprintf("/ct/v1/get-entries?start=%d&end=%d", start, end)
	var wire entriesWire
	if err := c.do(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]domain.LogEntry, 0, len(wire.Entries))
	for _, e := range wire.Entries {
		entry, err := decodeEntry(e)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (c *Client) GetInclusionProofByHash(ctx context.Context, receiptHash string, treeSize int64) (domain.InclusionProof, error) {
	path := "/ct/v1/get-proof-by-hash?hash=" + url.QueryEscape(receiptHash)
	if treeSize > 0 {
		path += "&tree_size=" + strconv.FormatInt(treeSize, 10)
	}
	var wire inclusionWire
	if err := c.do(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return domain.InclusionProof{}, err
	}
	auditPath, err := decodeDigests(wire.AuditPath)
	if err != nil {
		return domain.InclusionProof{}, err
	}
	root, err := domain.ParseDigest(wire.RootHash)
	if err != nil {
		return domain.InclusionProof{}, err
	}
	return domain.InclusionProof{
		LogID:     c.LogID(),
		LeafIndex: wire.LeafIndex,
		TreeSize:  wire.TreeSize,
		AuditPath: auditPath,
		RootHash:  root.Value,
	}, nil
}

func (c *Client) GetConsistencyProof(ctx context.Context, firstSize, secondSize int64) (domain.ConsistencyProof, error) {
	path := fmt.Sprintf("/ct/v1/get-sth-consistency?first=%d&second=%d", firstSize, secondSize)
	var wire consistencyWire
	if err := c.do(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return domain.ConsistencyProof{}, err
	}
	proofPath, err := decodeDigests(wire.Consistency)
	if err != nil {
		return domain.ConsistencyProof{}, err
	}
	return domain.ConsistencyProof{
		LogID:      c.LogID(),
		FirstSize:  wire.FirstTreeSize,
		SecondSize: wire.SecondTreeSize,
		Path:       proofPath,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLogUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrLogUnavailable, err)
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError maps the server's error envelope back onto the domain errors
// callers already switch on.
func decodeError(status int, body []byte) error {
	var wire errorWire
	_ = json.Unmarshal(body, &wire)

	var base error
	switch wire.Code {
	case "NOT_FOUND":
		base = domain.ErrNotFound
	case "INVALID_HASH":
		base = domain.ErrInvalidHash
	case "INVALID_RANGE":
		base = merkle.ErrInvalidSize
	case "EQUIVOCATION":
		base = domain.ErrEquivocation
	case "POLICY_DENIED":
		base = domain.ErrPolicyDenied
	}
	if base == nil {
		switch {
		case status == http.StatusNotFound:
			base = domain.ErrNotFound
		case status >= 500:
			base = domain.ErrLogUnavailable
		default:
			return fmt.Errorf("log returned status %d: %s", status, wire.Message)
		}
	}
	if wire.Message != "" {
		return fmt.Errorf("%w: %s", base, wire.Message)
	}
	return fmt.Errorf("%w: status %d", base, status)
}

func decodeSCT(wire sctWire) (domain.SCT, error) {
	ts, err := time.Parse(time.RFC3339Nano, wire.Timestamp)
	if err != nil {
		return domain.SCT{}, fmt.Errorf("sct timestamp: %w", err)
	}
	var sig []byte
	if wire.Signature != "" {
		sig, err = base64.StdEncoding.DecodeString(wire.Signature)
		if err != nil {
			return domain.SCT{}, fmt.Errorf("sct signature: %w", err)
		}
	}
	return domain.SCT{LogID: wire.LogID, Timestamp: ts, Signature: sig}, nil
}

func decodeSTH(wire sthWire) (domain.STH, error) {
	root, err := domain.ParseDigest(wire.RootHash)
	if err != nil {
		return domain.STH{}, err
	}
	issuedAt, err := time.Parse(time.RFC3339Nano, wire.Timestamp)
	if err != nil {
		return domain.STH{}, fmt.Errorf("sth timestamp: %w", err)
	}
	var sig []byte
	if wire.Signature != "" {
		sig, err = base64.StdEncoding.DecodeString(wire.Signature)
		if err != nil {
			return domain.STH{}, fmt.Errorf("sth signature: %w", err)
		}
	}
	return domain.STH{
		LogID:     wire.LogID,
		TreeSize:  wire.TreeSize,
		RootHash:  root.Value,
		IssuedAt:  issuedAt,
		Signature: sig,
	}, nil
}

func decodeEntry(wire entryWire) (domain.LogEntry, error) {
	ts, err := time.Parse(time.RFC3339Nano, wire.Timestamp)
	if err != nil {
		return domain.LogEntry{}, fmt.Errorf("entry timestamp: %w", err)
	}
	return domain.LogEntry{
		Index:        wire.LeafIndex,
		Timestamp:    ts,
		ReceiptHash:  wire.ReceiptHash,
		SaltHash:     wire.SaltHash,
		PolicyID:     wire.PolicyID,
		Jurisdiction: wire.Jurisdiction,
	}, nil
}

func decodeDigests(values []string) ([][]byte, error) {
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		digest, err := domain.ParseDigest(v)
		if err != nil {
			return nil, err
		}
		out = append(out, digest.Value)
	}
	return out, nil
}
