// Package investigation fans all classified evidence through its
// investigation pathways. Pathways run in bounded-concurrency batches; a
// second wave runs any pathways discovered mid-investigation
// (cross-pathway evidence types).
package investigation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"inquest/internal/events"
	"inquest/internal/logging"
	"inquest/internal/pathway"
	"inquest/internal/types"
)

// Config bounds orchestrator concurrency.
type Config struct {
	BatchSize  int           // max concurrent pathways, default 5
	BatchDelay time.Duration // pause between batches, default 2s
}

// Runner executes one pathway for one evidence item. Satisfied by
// pathway.Executor.
type Runner interface {
	Run(ctx context.Context, ev types.EvidenceItem, pw *types.Pathway, workDir string) *types.PathwayResult
}

// Orchestrator maps evidence items through their pathways.
type Orchestrator struct {
	catalog    *pathway.Catalog
	executor   Runner
	emitter    events.Emitter
	batchSize  int
	batchDelay time.Duration
}

// NewOrchestrator creates an investigation orchestrator.
func NewOrchestrator(catalog *pathway.Catalog, executor Runner, emitter events.Emitter, cfg Config) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = 2 * time.Second
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Orchestrator{
		catalog:    catalog,
		executor:   executor,
		emitter:    emitter,
		batchSize:  cfg.BatchSize,
		batchDelay: cfg.BatchDelay,
	}
}

// Run investigates every evidence item in the manifests, then a second
// wave for cross-pathway discoveries. The returned results preserve input
// order within each wave; second-wave results are appended.
func (o *Orchestrator) Run(ctx context.Context, manifests []types.EvidenceManifest, workDir string) ([]*types.PathwayResult, error) {
	items := flatten(manifests)
	o.emitter.Emit(events.TypePhase, map[string]interface{}{
		"phase":    "investigating",
		"status":   "started",
		"evidence": len(items),
	})
	logging.Investigation("Investigating %d evidence items in batches of %d", len(items), o.batchSize)

	results, err := o.runBatches(ctx, items, workDir)
	if err != nil {
		return nil, err
	}

	// Second wave: evidence types discovered mid-pathway become synthetic
	// items and run through the same bounded-concurrency loop.
	second := o.collectCrossItems(items, results)
	if len(second) > 0 {
		logging.Investigation("Second wave: %d cross-pathway items", len(second))
		o.emitter.Emit(events.TypePhase, map[string]interface{}{
			"phase":  "investigating",
			"status": "second_wave",
			"count":  len(second),
		})
		secondResults, err := o.runBatches(ctx, second, workDir)
		if err != nil {
			return nil, err
		}
		results = append(results, secondResults...)
	}

	if err := o.writeSummary(results, workDir); err != nil {
		logging.Get(logging.CategoryInvestigation).Warn("Failed to write summary: %v", err)
	}
	o.emitter.Emit(events.TypePhase, map[string]interface{}{
		"phase":   "investigating",
		"status":  "done",
		"results": len(results),
	})
	return results, nil
}

// runBatches executes pathways in chunks of batchSize, all members of a
// chunk concurrently, with a courtesy delay between chunks.
func (o *Orchestrator) runBatches(ctx context.Context, items []types.EvidenceItem, workDir string) ([]*types.PathwayResult, error) {
	results := make([]*types.PathwayResult, len(items))

	for start := 0; start < len(items); start += o.batchSize {
		end := start + o.batchSize
		if end > len(items) {
			end = len(items)
		}
		if start > 0 {
			// Rate-limit courtesy toward the worker service.
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.batchDelay):
			}
		}

		logging.InvestigationDebug("Batch %d..%d of %d", start, end-1, len(items))
		eg, egCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			item := items[i]
			eg.Go(func() error {
				results[i] = o.runOne(egCtx, item, workDir)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// runOne resolves and executes the pathway for one item. A pathway that
// cannot start degrades to an unverified synthetic result instead of
// failing the whole investigation.
func (o *Orchestrator) runOne(ctx context.Context, item types.EvidenceItem, workDir string) *types.PathwayResult {
	pathwayID := item.TriggeredPathway
	if pathwayID == "" {
		pathwayID = item.Type.PathwayID()
	}
	if pathwayID == "" {
		return degraded(item, fmt.Sprintf("no pathway for evidence type %q", item.Type))
	}

	pw, err := o.catalog.Get(pathwayID)
	if err != nil {
		return degraded(item, err.Error())
	}
	return o.executor.Run(ctx, item, pw, workDir)
}

// degraded builds the synthetic unverified result for a pathway that
// never ran.
func degraded(item types.EvidenceItem, reason string) *types.PathwayResult {
	logging.Get(logging.CategoryInvestigation).Warn("Pathway degraded for %s: %s", item.ID, reason)
	return &types.PathwayResult{
		EvidenceID: item.ID,
		PathwayID:  item.TriggeredPathway,
		Results:    []*types.LevelOutput{},
		Confidence: types.Assessment{
			Confidence: types.ConfidenceUnverified,
			Label:      types.ConfidenceUnverified.Label(),
			Rationale:  "Pathway failed: " + reason,
		},
	}
}

// collectCrossItems builds the second-wave synthetic evidence items from
// every cross-pathway reference in the first wave's results. Ratings are
// inherited from the originating item.
func (o *Orchestrator) collectCrossItems(items []types.EvidenceItem, results []*types.PathwayResult) []types.EvidenceItem {
	byID := make(map[string]types.EvidenceItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	var second []types.EvidenceItem
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, cp := range res.CrossPathways {
			orig := byID[cp.SourceEvidenceID]
			second = append(second, types.EvidenceItem{
				ID:               fmt.Sprintf("%s-cross-%s", cp.SourceEvidenceID, cp.Type),
				Type:             cp.Type,
				SourceRating:     orig.SourceRating,
				InfoRating:       orig.InfoRating,
				Description:      fmt.Sprintf("Cross-pathway from %s (%s, depth %d): %s", cp.SourceEvidenceID, cp.SourcePathwayID, cp.DiscoveredAt, orig.Description),
				TriggeredPathway: cp.Type.PathwayID(),
			})
		}
	}
	return second
}

// Summary aggregates investigation results by type and confidence.
type Summary struct {
	Total        int            `json:"total"`
	ByPathway    map[string]int `json:"byPathway"`
	ByConfidence map[string]int `json:"byConfidence"`
}

// writeSummary records the terminal summary.json alongside the results.
func (o *Orchestrator) writeSummary(results []*types.PathwayResult, workDir string) error {
	s := Summary{
		Total:        len(results),
		ByPathway:    make(map[string]int),
		ByConfidence: make(map[string]int),
	}
	for _, r := range results {
		if r == nil {
			continue
		}
		s.ByPathway[r.PathwayID]++
		s.ByConfidence[string(r.Confidence.Confidence)]++
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(workDir, "summary.json"), data, 0644)
}

// flatten collects all evidence items across manifests, in manifest order.
func flatten(manifests []types.EvidenceManifest) []types.EvidenceItem {
	var items []types.EvidenceItem
	for _, m := range manifests {
		items = append(items, m.EvidenceItems...)
	}
	return items
}
