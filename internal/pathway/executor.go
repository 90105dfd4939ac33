package pathway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"inquest/internal/confidence"
	"inquest/internal/events"
	"inquest/internal/logging"
	"inquest/internal/strategos"
	"inquest/internal/types"
)

// ExecutorConfig holds executor settings.
type ExecutorConfig struct {
	LevelTimeout time.Duration // per-level worker timeout, default 15m
	OutputGrace  time.Duration // wait for the output file after done, default 10s
}

// Executor runs one pathway for one evidence item: sequential levels,
// branch evaluation between levels, cross-pathway discovery. Levels are
// strictly sequential; all parallelism lives a layer up in the
// investigation orchestrator.
type Executor struct {
	gateway      strategos.Gateway
	emitter      events.Emitter
	levelTimeout time.Duration
	outputGrace  time.Duration
}

// NewExecutor creates an executor over the given worker gateway.
func NewExecutor(gateway strategos.Gateway, emitter events.Emitter, cfg ExecutorConfig) *Executor {
	if cfg.LevelTimeout <= 0 {
		cfg.LevelTimeout = 15 * time.Minute
	}
	if cfg.OutputGrace <= 0 {
		cfg.OutputGrace = 10 * time.Second
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Executor{
		gateway:      gateway,
		emitter:      emitter,
		levelTimeout: cfg.LevelTimeout,
		outputGrace:  cfg.OutputGrace,
	}
}

// Run executes the pathway for the evidence item, writing level outputs
// under workDir. Failed levels append a nil result and execution
// continues; only a satisfied TERMINATE branch ends the pathway early.
func (e *Executor) Run(ctx context.Context, ev types.EvidenceItem, pw *types.Pathway, workDir string) *types.PathwayResult {
	result := &types.PathwayResult{
		EvidenceID: ev.ID,
		PathwayID:  pw.ID,
		Results:    []*types.LevelOutput{},
	}

	e.emitter.Emit(events.TypePathwayStarted, map[string]interface{}{
		"evidenceId": ev.ID,
		"pathwayId":  pw.ID,
		"levels":     len(pw.Levels),
	})
	logging.Pathway("Pathway %s started for evidence %s", pw.ID, ev.ID)

	var currentOutput *types.LevelOutput

	for _, level := range pw.Levels {
		if level.Depth > types.MaxPathwayDepth {
			logging.Pathway("Pathway %s level %d exceeds max depth, stopping", pw.ID, level.Depth)
			break
		}

		if level.Depth > 1 {
			decision := evaluateBranches(level, currentOutput)
			if decision == branchTerminate {
				e.emitter.Emit(events.TypePathwayBranch, map[string]interface{}{
					"evidenceId": ev.ID,
					"pathwayId":  pw.ID,
					"depth":      level.Depth,
					"action":     "terminated",
				})
				logging.Pathway("Pathway %s terminated by branch before depth %d", pw.ID, level.Depth)
				break
			}
			if decision == branchSkip {
				e.emitLevel(ev.ID, pw.ID, level.Depth, "gap", "")
				logging.PathwayDebug("Pathway %s skipping depth %d (no branch matched)", pw.ID, level.Depth)
				continue
			}
		}

		out := e.runLevel(ctx, ev, pw, level, currentOutput, workDir)
		result.Results = append(result.Results, out)
		if out == nil {
			continue
		}
		currentOutput = out

		// Cross-pathway discovery: a level may surface evidence types
		// outside this pathway; the orchestrator runs them second-wave.
		for _, raw := range out.NextEvidenceTypes {
			t := types.EvidenceType(raw)
			if pid := t.PathwayID(); pid != "" && pid != pw.ID {
				result.CrossPathways = append(result.CrossPathways, types.CrossPathwayRef{
					SourceEvidenceID: ev.ID,
					SourcePathwayID:  pw.ID,
					Type:             t,
					DiscoveredAt:     level.Depth,
				})
				logging.Pathway("Pathway %s discovered cross-pathway type %s at depth %d", pw.ID, t, level.Depth)
			}
		}
	}

	result.Confidence = confidence.Compute(result.Results, nil)
	e.emitter.Emit(events.TypeConfidenceComputed, map[string]interface{}{
		"evidenceId": ev.ID,
		"pathwayId":  pw.ID,
		"confidence": string(result.Confidence.Confidence),
		"label":      result.Confidence.Label,
	})
	e.emitter.Emit(events.TypePathwayComplete, map[string]interface{}{
		"evidenceId":      ev.ID,
		"pathwayId":       pw.ID,
		"levelsCompleted": result.LevelsCompleted(),
		"crossPathways":   len(result.CrossPathways),
	})
	logging.Pathway("Pathway %s complete for %s: %s, %d/%d levels",
		pw.ID, ev.ID, result.Confidence.Confidence, result.LevelsCompleted(), len(result.Results))
	return result
}

type branchDecision int

const (
	branchRun branchDecision = iota
	branchSkip
	branchTerminate
)

// evaluateBranches decides whether a level runs. Branches gate the level
// they are declared on, evaluated against the previous output's signals:
// a satisfied TERMINATE branch ends the pathway; a level that declares
// branches but has none targeting its own depth satisfied is skipped; a
// level without branches always runs.
func evaluateBranches(level types.LevelDef, prev *types.LevelOutput) branchDecision {
	if len(level.Branches) == 0 {
		return branchRun
	}
	signals := prev.Signals()

	for _, br := range level.Branches {
		if br.NextLevel == types.TerminateLevel && EvaluateCondition(br.Condition, signals) {
			return branchTerminate
		}
	}
	for _, br := range level.Branches {
		if br.NextLevel == level.Depth && EvaluateCondition(br.Condition, signals) {
			return branchRun
		}
	}
	return branchSkip
}

// runLevel spawns one level worker, waits for it, and parses its output
// file. Any failure returns nil: the level becomes a gap in the results.
func (e *Executor) runLevel(ctx context.Context, ev types.EvidenceItem, pw *types.Pathway,
	level types.LevelDef, parent *types.LevelOutput, workDir string) *types.LevelOutput {

	outputPath := filepath.Join(workDir, fmt.Sprintf("%s-level-%d.json", ev.ID, level.Depth))
	task := BuildTask(&level, TaskContext{Evidence: &ev, Parent: parent, OutputPath: outputPath})

	e.emitLevel(ev.ID, pw.ID, level.Depth, "spawning", "")
	workerID, err := e.gateway.Spawn(ctx, strategos.SpawnRequest{
		Template:        level.WorkerTemplate,
		Label:           fmt.Sprintf("%s-%s-L%d", ev.ID, pw.ID, level.Depth),
		WorkingDir:      workDir,
		TaskDescription: task.Describe(outputPath),
	})
	if err != nil {
		e.emitLevel(ev.ID, pw.ID, level.Depth, "spawn_failed", err.Error())
		logging.Get(logging.CategoryPathway).Error("Level %d spawn failed for %s: %v", level.Depth, ev.ID, err)
		return nil
	}
	e.emitLevel(ev.ID, pw.ID, level.Depth, "spawned", workerID)

	_, waitErr := e.gateway.WaitForDone(ctx, workerID, e.levelTimeout)

	// Best effort: a leaked worker is the service's problem, not ours.
	if delErr := e.gateway.Delete(ctx, workerID); delErr != nil {
		logging.GatewayDebug("Delete of worker %s failed: %v", workerID, delErr)
	}

	if waitErr != nil {
		e.emitLevel(ev.ID, pw.ID, level.Depth, "failed", waitErr.Error())
		logging.Get(logging.CategoryPathway).Error("Level %d failed for %s: %v", level.Depth, ev.ID, waitErr)
		return nil
	}

	if !WaitForFile(ctx, outputPath, e.outputGrace) {
		e.emitLevel(ev.ID, pw.ID, level.Depth, "no_output", outputPath)
		logging.Get(logging.CategoryPathway).Warn("Level %d output never materialized: %s", level.Depth, outputPath)
		return nil
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		e.emitLevel(ev.ID, pw.ID, level.Depth, "no_output", err.Error())
		return nil
	}
	var out types.LevelOutput
	if err := json.Unmarshal(data, &out); err != nil {
		e.emitLevel(ev.ID, pw.ID, level.Depth, "parse_error", err.Error())
		logging.Get(logging.CategoryPathway).Error("Level %d output unparseable for %s: %v", level.Depth, ev.ID, err)
		return nil
	}
	if out.Depth == 0 {
		out.Depth = level.Depth
	}
	if out.PathwayID == "" {
		out.PathwayID = pw.ID
	}

	e.emitLevel(ev.ID, pw.ID, level.Depth, "done", "")
	return &out
}

func (e *Executor) emitLevel(evidenceID, pathwayID string, depth int, status, detail string) {
	payload := map[string]interface{}{
		"evidenceId": evidenceID,
		"pathwayId":  pathwayID,
		"depth":      depth,
		"status":     status,
	}
	if detail != "" {
		payload["detail"] = detail
	}
	e.emitter.Emit(events.TypePathwayLevel, payload)
}
