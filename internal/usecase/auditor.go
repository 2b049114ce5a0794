package usecase

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"trustpack/internal/domain"
)

// Auditor runs periodic independent checks against a log: it verifies the
// latest signed tree head, samples recent entries for inclusion, and
// cross-checks consistency with the last head it observed. Equivocation,
// the same tree size with two different roots, is a fatal finding.
type Auditor struct {
	Log          ReceiptLog
	Crypto       CryptoService
	Merkle       MerkleService
	Reports      domain.AuditReportRepository
	LogPublicKey []byte
	SampleSize   int
	Interval     time.Duration
	Now          Clock

	mu      sync.Mutex
	lastSTH *domain.STH
}

const defaultAuditSampleSize = 5

// Run executes audit passes on a fixed cadence until the context is
// cancelled. A cancelled pass is abandoned without persisting a report.
func (a *Auditor) Run(ctx context.Context) error {
	interval := a.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := a.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Auditor) RunOnce(ctx context.Context) (domain.AuditReport, error) {
	started := a.now()
	report := domain.AuditReport{
		LogID:         a.Log.LogID(),
		ConsistencyOK: true,
		Outcome:       domain.AuditOutcomeHealthy,
		StartedAt:     started,
	}

	sth, err := a.Log.GetLatestSTH(ctx)
	if err != nil {
		report.Outcome = domain.AuditOutcomeUnavailable
		report.Findings = append(report.Findings, "latest sth unavailable: "+err.Error())
		return a.finish(ctx, report)
	}
	report.TreeSize = sth.TreeSize
	report.RootHash = append([]byte(nil), sth.RootHash...)

	if len(a.LogPublicKey) > 0 {
		if err := a.Crypto.VerifySTHSignature(sth, a.LogPublicKey); err != nil {
			report.Outcome = domain.AuditOutcomeProofFailure
			report.Findings = append(report.Findings, "sth signature invalid")
			return a.finish(ctx, report)
		}
	}

	a.checkConsistency(ctx, sth, &report)
	a.sampleInclusion(ctx, sth, &report)

	if report.Outcome != domain.AuditOutcomeEquivocation {
		if report.Failed > 0 || !report.ConsistencyOK {
			report.Outcome = domain.AuditOutcomeProofFailure
		}
		a.mu.Lock()
		a.lastSTH = &sth
		a.mu.Unlock()
	}
	return a.finish(ctx, report)
}

func (a *Auditor) checkConsistency(ctx context.Context, sth domain.STH, report *domain.AuditReport) {
	a.mu.Lock()
	last := a.lastSTH
	a.mu.Unlock()
	if last == nil {
		return
	}

	// The log must still vouch for the exact head we saw earlier.
	if stored, err := a.Log.GetSTHBySize(ctx, last.TreeSize); err == nil {
		if !bytes.Equal(stored.RootHash, last.RootHash) {
			report.Outcome = domain.AuditOutcomeEquivocation
			report.ConsistencyOK = false
			report.Findings = append(report.Findings,
				fmt.Sprintf("equivocation: two roots observed at tree size %d", last.TreeSize))
			return
		}
	}

	switch {
	case sth.TreeSize == last.TreeSize:
		if !bytes.Equal(sth.RootHash, last.RootHash) {
			report.Outcome = domain.AuditOutcomeEquivocation
			report.ConsistencyOK = false
			report.Findings = append(report.Findings,
				fmt.Sprintf("equivocation: root changed at tree size %d", sth.TreeSize))
		}
	case sth.TreeSize > last.TreeSize:
		proof, err := a.Log.GetConsistencyProof(ctx, last.TreeSize, sth.TreeSize)
		if err != nil {
			report.ConsistencyOK = false
			report.Findings = append(report.Findings, "consistency proof unavailable: "+err.Error())
			return
		}
		ok, err := a.Merkle.VerifyConsistencyProof(last.RootHash, sth.RootHash, last.TreeSize, sth.TreeSize, proof.Path)
		if err != nil || !ok {
			report.ConsistencyOK = false
			report.Findings = append(report.Findings,
				fmt.Sprintf("consistency proof %d -> %d does not verify", last.TreeSize, sth.TreeSize))
		}
	default:
		// A shrinking tree can only mean the log dropped entries.
		report.Outcome = domain.AuditOutcomeEquivocation
		report.ConsistencyOK = false
		report.Findings = append(report.Findings,
			fmt.Sprintf("tree size regressed from %d to %d", last.TreeSize, sth.TreeSize))
	}
}

func (a *Auditor) sampleInclusion(ctx context.Context, sth domain.STH, report *domain.AuditReport) {
	if sth.TreeSize == 0 {
		return
	}
	sample := int64(a.SampleSize)
	if sample <= 0 {
		sample = defaultAuditSampleSize
	}
	start := sth.TreeSize - sample
	if start < 0 {
		start = 0
	}
	entries, err := a.Log.GetEntries(ctx, start, sth.TreeSize-1)
	if err != nil {
		report.Findings = append(report.Findings, "sample entries unavailable: "+err.Error())
		report.Failed++
		return
	}
	for _, entry := range entries {
		report.Sampled++
		if a.verifyEntry(ctx, entry, sth) {
			report.Verified++
			continue
		}
		report.Failed++
		report.Findings = append(report.Findings,
			fmt.Sprintf("inclusion proof failed for leaf %d", entry.Index))
	}
}

func (a *Auditor) verifyEntry(ctx context.Context, entry domain.LogEntry, sth domain.STH) bool {
	proof, err := a.Log.GetInclusionProofByHash(ctx, entry.ReceiptHash, sth.TreeSize)
	if err != nil {
		return false
	}
	if !bytes.Equal(proof.RootHash, sth.RootHash) {
		return false
	}
	leafHash, err := a.Crypto.ComputeLeafHash(entry)
	if err != nil {
		return false
	}
	ok, err := a.Merkle.VerifyInclusionProof(leafHash, proof.LeafIndex, proof.TreeSize, proof.AuditPath, proof.RootHash)
	return err == nil && ok
}

// finish stamps and persists the report. Reports are never persisted for a
// cancelled pass.
func (a *Auditor) finish(ctx context.Context, report domain.AuditReport) (domain.AuditReport, error) {
	report.CompletedAt = a.now()
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	if a.Reports != nil {
		if err := a.Reports.Append(ctx, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (a *Auditor) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}
