// Package pipeline sequences the five research phases of a project:
// planning, classification, investigation, adjudication, synthesis. Each
// phase updates the project status before spawning any worker, emits
// progress events, and owns its failure semantics: planning and synthesis
// are fatal, classification tolerates partial worker failure, and
// investigation degrades per item.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"inquest/internal/events"
	"inquest/internal/graph"
	"inquest/internal/index"
	"inquest/internal/investigation"
	"inquest/internal/logging"
	"inquest/internal/pathway"
	"inquest/internal/project"
	"inquest/internal/strategos"
	"inquest/internal/types"
)

// Config holds phase timeouts and worker templates.
type Config struct {
	PlanningTimeout       time.Duration // default 45m
	ClassificationTimeout time.Duration // default 30m
	SynthesisTimeout      time.Duration // default 45m
	OutputGrace           time.Duration // wait for phase output files, default 10s

	PlannerTemplate     string // default "planner"
	ClassifierTemplate  string // default "classifier"
	SynthesizerTemplate string // default "synthesizer"
}

func (c *Config) fillDefaults() {
	if c.PlanningTimeout <= 0 {
		c.PlanningTimeout = 45 * time.Minute
	}
	if c.ClassificationTimeout <= 0 {
		c.ClassificationTimeout = 30 * time.Minute
	}
	if c.SynthesisTimeout <= 0 {
		c.SynthesisTimeout = 45 * time.Minute
	}
	if c.OutputGrace <= 0 {
		c.OutputGrace = 10 * time.Second
	}
	if c.PlannerTemplate == "" {
		c.PlannerTemplate = "planner"
	}
	if c.ClassifierTemplate == "" {
		c.ClassifierTemplate = "classifier"
	}
	if c.SynthesizerTemplate == "" {
		c.SynthesizerTemplate = "synthesizer"
	}
}

// Pipeline drives one project from pending to complete (or error).
type Pipeline struct {
	gateway      strategos.Gateway
	projects     *project.Store
	orchestrator *investigation.Orchestrator
	adjudicator  *Adjudicator
	idx          *index.Store // nil disables completed-project recording
	emitter      events.Emitter
	cfg          Config
}

// New assembles a pipeline. idx may be nil.
func New(gateway strategos.Gateway, projects *project.Store, orchestrator *investigation.Orchestrator,
	adjudicator *Adjudicator, idx *index.Store, emitter events.Emitter, cfg Config) *Pipeline {
	cfg.fillDefaults()
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Pipeline{
		gateway:      gateway,
		projects:     projects,
		orchestrator: orchestrator,
		adjudicator:  adjudicator,
		idx:          idx,
		emitter:      emitter,
		cfg:          cfg,
	}
}

// Run executes every phase for the project. Any fatal phase error moves
// the project to the error status, emits error_event, and is returned.
func (p *Pipeline) Run(ctx context.Context, projectID string) error {
	proj, err := p.projects.Load(projectID)
	if err != nil {
		return err
	}

	p.emitter.Emit(events.TypePipeline, map[string]interface{}{
		"projectId": proj.ID,
		"topic":     proj.Topic,
		"status":    "started",
	})
	logging.Pipeline("Pipeline started for project %s: %s", proj.ID, proj.Topic)

	if err := p.run(ctx, proj); err != nil {
		if _, serr := p.projects.UpdateStatus(proj.ID, types.StatusError, err.Error()); serr != nil {
			logging.Get(logging.CategoryPipeline).Error("Failed to record error status: %v", serr)
		}
		p.emitter.Emit(events.TypeError, map[string]interface{}{
			"projectId": proj.ID,
			"error":     err.Error(),
		})
		logging.Get(logging.CategoryPipeline).Error("Pipeline failed for %s: %v", proj.ID, err)
		return err
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, proj *types.Project) error {
	dir := p.projects.Dir(proj.ID)

	plan, err := p.runPlanning(ctx, proj, dir)
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}

	manifests, err := p.runClassification(ctx, proj, plan, dir)
	if err != nil {
		return fmt.Errorf("classification: %w", err)
	}

	results, err := p.runInvestigation(ctx, proj, manifests, dir)
	if err != nil {
		return fmt.Errorf("investigation: %w", err)
	}

	adjudications, err := p.runAdjudication(ctx, proj, plan, manifests, results, dir)
	if err != nil {
		return fmt.Errorf("adjudication: %w", err)
	}

	g, err := p.runSynthesis(ctx, proj, plan, adjudications, dir)
	if err != nil {
		return fmt.Errorf("synthesis: %w", err)
	}

	p.record(proj, g, manifests, dir)

	if _, err := p.projects.UpdateStatus(proj.ID, types.StatusComplete, ""); err != nil {
		return err
	}
	p.emitter.Emit(events.TypeComplete, map[string]interface{}{
		"projectId": proj.ID,
		"nodes":     len(g.Nodes),
		"edges":     len(g.Edges),
	})
	logging.Pipeline("Pipeline complete for %s: %d nodes, %d edges", proj.ID, len(g.Nodes), len(g.Edges))
	return nil
}

// runPlanning spawns the single planning worker and requires a plan with
// at least one sub-question. Fatal on any failure.
func (p *Pipeline) runPlanning(ctx context.Context, proj *types.Project, dir string) (*types.Plan, error) {
	if _, err := p.projects.UpdateStatus(proj.ID, types.StatusPlanning, "decomposing research topic"); err != nil {
		return nil, err
	}
	p.emitPhase("planning", "started", nil)

	planPath := filepath.Join(dir, "plan.json")
	task := planningTask(proj.Topic, planPath)
	if err := p.runWorker(ctx, p.cfg.PlannerTemplate, proj.ID+"-plan", dir, task, p.cfg.PlanningTimeout, planPath); err != nil {
		return nil, err
	}

	var plan types.Plan
	if err := p.projects.LoadArtifact(proj.ID, "plan.json", &plan); err != nil {
		return nil, err
	}
	if len(plan.SubQuestions) == 0 {
		return nil, fmt.Errorf("plan has no sub-questions")
	}
	if plan.Topic == "" {
		plan.Topic = proj.Topic
	}

	p.emitPhase("planning", "done", map[string]interface{}{"subQuestions": len(plan.SubQuestions)})
	logging.Pipeline("Plan for %s: %d sub-questions", proj.ID, len(plan.SubQuestions))
	return &plan, nil
}

// classificationWorkerCount distributes sub-questions across 3-5 workers.
func classificationWorkerCount(subQuestions int) int {
	count := (subQuestions + 1) / 2
	if count < 3 {
		count = 3
	}
	if count > 5 {
		count = 5
	}
	return count
}

// runClassification fans sub-questions across parallel classification
// workers, each producing an evidence manifest. The phase fails only when
// every worker fails; anything less is an observed partial_failure.
func (p *Pipeline) runClassification(ctx context.Context, proj *types.Project, plan *types.Plan, dir string) ([]types.EvidenceManifest, error) {
	if _, err := p.projects.UpdateStatus(proj.ID, types.StatusClassifying, "classifying evidence"); err != nil {
		return nil, err
	}

	workerCount := classificationWorkerCount(len(plan.SubQuestions))
	perWorker := (len(plan.SubQuestions) + workerCount - 1) / workerCount

	p.emitPhase("classifying", "started", map[string]interface{}{"workers": workerCount})
	logging.Pipeline("Classification for %s: %d workers over %d sub-questions", proj.ID, workerCount, len(plan.SubQuestions))

	manifests := make([]*types.EvidenceManifest, workerCount)
	failures := make([]error, workerCount)

	eg, egCtx := errgroup.WithContext(ctx)
	for w := 0; w < workerCount; w++ {
		w := w
		start := w * perWorker
		if start >= len(plan.SubQuestions) {
			break
		}
		end := start + perWorker
		if end > len(plan.SubQuestions) {
			end = len(plan.SubQuestions)
		}
		assigned := plan.SubQuestions[start:end]

		eg.Go(func() error {
			manifestPath := filepath.Join(dir, fmt.Sprintf("manifest-%d.json", w))
			label := fmt.Sprintf("%s-classify-%d", proj.ID, w)
			task := classificationTask(plan.Topic, assigned, manifestPath)

			if err := p.runWorker(egCtx, p.cfg.ClassifierTemplate, label, dir, task, p.cfg.ClassificationTimeout, manifestPath); err != nil {
				failures[w] = err
				return nil // isolated: the phase decides below
			}

			var m types.EvidenceManifest
			data, err := os.ReadFile(manifestPath)
			if err == nil {
				err = json.Unmarshal(data, &m)
			}
			if err != nil {
				failures[w] = fmt.Errorf("manifest %d unreadable: %w", w, err)
				return nil
			}
			if len(m.SubQuestions) == 0 {
				for _, q := range assigned {
					m.SubQuestions = append(m.SubQuestions, q.ID)
				}
			}
			manifests[w] = &m
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var out []types.EvidenceManifest
	failed := 0
	for w := 0; w < workerCount; w++ {
		if manifests[w] != nil {
			out = append(out, *manifests[w])
		} else if failures[w] != nil {
			failed++
			logging.Get(logging.CategoryPipeline).Warn("Classification worker %d failed: %v", w, failures[w])
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("all %d classification workers failed", workerCount)
	}
	if failed > 0 {
		p.emitPhase("classifying", "partial_failure", map[string]interface{}{"failed": failed})
	}

	p.emitPhase("classifying", "done", map[string]interface{}{"manifests": len(out)})
	return out, nil
}

func (p *Pipeline) runInvestigation(ctx context.Context, proj *types.Project, manifests []types.EvidenceManifest, dir string) ([]*types.PathwayResult, error) {
	if _, err := p.projects.UpdateStatus(proj.ID, types.StatusInvestigating, "running investigation pathways"); err != nil {
		return nil, err
	}
	results, err := p.orchestrator.Run(ctx, manifests, dir)
	if err != nil {
		return nil, err
	}
	if err := p.projects.SaveArtifact(proj.ID, "investigation-results.json", results); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) runAdjudication(ctx context.Context, proj *types.Project, plan *types.Plan,
	manifests []types.EvidenceManifest, results []*types.PathwayResult, dir string) ([]types.SubQuestionAdjudication, error) {
	if _, err := p.projects.UpdateStatus(proj.ID, types.StatusAdjudicating, "adjudicating evidence"); err != nil {
		return nil, err
	}
	p.emitPhase("adjudicating", "started", nil)
	adjudications, err := p.adjudicator.Run(ctx, proj, plan, manifests, results, dir)
	if err != nil {
		return nil, err
	}
	p.emitPhase("adjudicating", "done", map[string]interface{}{"subQuestions": len(adjudications)})
	return adjudications, nil
}

// runSynthesis spawns the single synthesis worker and validates its graph.
// A missing graph is fatal; a graph failing validation is recorded in
// validation-errors.json and kept.
func (p *Pipeline) runSynthesis(ctx context.Context, proj *types.Project, plan *types.Plan,
	adjudications []types.SubQuestionAdjudication, dir string) (*types.Graph, error) {
	if _, err := p.projects.UpdateStatus(proj.ID, types.StatusSynthesizing, "assembling knowledge graph"); err != nil {
		return nil, err
	}
	p.emitPhase("synthesizing", "started", nil)

	graphPath := filepath.Join(dir, "graph.json")
	task := synthesisTask(plan, adjudications, graphPath)
	if err := p.runWorker(ctx, p.cfg.SynthesizerTemplate, proj.ID+"-synth", dir, task, p.cfg.SynthesisTimeout, graphPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(graphPath)
	if err != nil {
		return nil, fmt.Errorf("graph artifact unreadable: %w", err)
	}

	validation := graph.ValidateJSON(data)
	p.emitter.Emit(events.TypeValidation, map[string]interface{}{
		"projectId": proj.ID,
		"valid":     validation.Valid,
		"errors":    len(validation.Errors),
		"warnings":  len(validation.Warnings),
	})
	if !validation.Valid {
		// Non-fatal: the artifact ships with its defect list.
		if err := p.projects.SaveArtifact(proj.ID, "validation-errors.json", validation); err != nil {
			return nil, err
		}
		logging.Get(logging.CategoryPipeline).Warn("Graph for %s failed validation: %d errors", proj.ID, len(validation.Errors))
	}

	var g types.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		// Structurally broken graphs already failed above as errors;
		// keep an empty graph so indexing still records the project.
		g = types.Graph{}
	}

	p.emitPhase("synthesizing", "done", map[string]interface{}{"valid": validation.Valid})
	return &g, nil
}

// record writes the completed project into the index. Best effort; the
// project completes whether or not indexing succeeds, and validation
// failures do not prevent recording.
func (p *Pipeline) record(proj *types.Project, g *types.Graph, manifests []types.EvidenceManifest, dir string) {
	if p.idx == nil {
		return
	}
	evidence := 0
	for _, m := range manifests {
		evidence += len(m.EvidenceItems)
	}
	disputed := 0
	for i := range g.Nodes {
		if g.Nodes[i].Confidence == "disputed" {
			disputed++
		}
	}
	err := p.idx.Record(index.Record{
		ProjectID:     proj.ID,
		Topic:         proj.Topic,
		Status:        string(types.StatusComplete),
		NodeCount:     len(g.Nodes),
		EvidenceCount: evidence,
		DisputedNodes: disputed,
		GraphPath:     filepath.Join(dir, "graph.json"),
		CompletedAt:   time.Now().UTC(),
	})
	if err != nil {
		logging.Get(logging.CategoryIndex).Warn("Failed to index project %s: %v", proj.ID, err)
		return
	}
	logging.Index("Indexed project %s (%d nodes, %d evidence, %d disputed)", proj.ID, len(g.Nodes), evidence, disputed)
}

// runWorker spawns one phase worker, waits for it to finish, deletes it
// best-effort, and requires its output file to materialize.
func (p *Pipeline) runWorker(ctx context.Context, template, label, dir, task string,
	timeout time.Duration, outputPath string) error {

	workerID, err := p.gateway.Spawn(ctx, strategos.SpawnRequest{
		Template:        template,
		Label:           label,
		WorkingDir:      dir,
		TaskDescription: task,
	})
	if err != nil {
		p.emitWorker(label, "", "failed", err.Error())
		return err
	}
	p.emitWorker(label, workerID, "spawned", "")

	_, waitErr := p.gateway.WaitForDone(ctx, workerID, timeout)
	if delErr := p.gateway.Delete(ctx, workerID); delErr != nil {
		logging.GatewayDebug("Delete of worker %s failed: %v", workerID, delErr)
	}
	if waitErr != nil {
		p.emitWorker(label, workerID, "failed", waitErr.Error())
		return waitErr
	}

	if outputPath != "" && !pathway.WaitForFile(ctx, outputPath, p.cfg.OutputGrace) {
		err := fmt.Errorf("worker %s produced no output at %s", label, outputPath)
		p.emitWorker(label, workerID, "failed", err.Error())
		return err
	}

	p.emitWorker(label, workerID, "done", "")
	return nil
}

func (p *Pipeline) emitPhase(phase, status string, extra map[string]interface{}) {
	payload := map[string]interface{}{"phase": phase, "status": status}
	for k, v := range extra {
		payload[k] = v
	}
	p.emitter.Emit(events.TypePhase, payload)
}

func (p *Pipeline) emitWorker(label, workerID, status, detail string) {
	payload := map[string]interface{}{"label": label, "status": status}
	if workerID != "" {
		payload["workerId"] = workerID
	}
	if detail != "" {
		payload["detail"] = detail
	}
	p.emitter.Emit(events.TypeWorker, payload)
}

// planningTask is the instruction text for the planning worker.
func planningTask(topic, outputPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Decompose the research topic into sub-questions.\n\n")
	fmt.Fprintf(&b, "Topic: %s\n\n", topic)
	b.WriteString("Produce 5-8 sub-questions. At least one must concern actionable recommendations.\n")
	b.WriteString("For each sub-question include: id, question, scope, expectedEvidenceTypes.\n\n")
	fmt.Fprintf(&b, "Write your JSON output to: %s\n", outputPath)
	b.WriteString(`Format: {"topic": "...", "subQuestions": [{"id": "sq-1", "question": "...", "scope": "...", "expectedEvidenceTypes": ["SCI"]}]}`)
	return b.String()
}

// classificationTask is the instruction text for one classification worker.
func classificationTask(topic string, assigned []types.SubQuestion, outputPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Classify evidence for the research topic: %s\n\n", topic)
	b.WriteString("Sub-questions assigned to you:\n")
	for _, q := range assigned {
		fmt.Fprintf(&b, "- [%s] %s\n", q.ID, q.Question)
	}
	b.WriteString("\nFor every piece of evidence you find, classify it into the taxonomy ")
	b.WriteString("(SCI, GOV, ORG, EXP, STA, FIN, DOC, MED, HIS, TES, TEC), rate the source (A-F) ")
	b.WriteString("and information (1-6), and name the triggered pathway (P-<TYPE>).\n\n")
	fmt.Fprintf(&b, "Write your JSON output to: %s\n", outputPath)
	b.WriteString(`Format: {"subQuestions": ["sq-1"], "evidenceItems": [{"id": "...", "type": "SCI", "sourceRating": "B", "infoRating": 2, "description": "...", "citation": "...", "triggeredPathway": "P-SCI"}]}`)
	return b.String()
}

// synthesisTask is the instruction text for the synthesis worker.
func synthesisTask(plan *types.Plan, adjudications []types.SubQuestionAdjudication, outputPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assemble the knowledge graph for: %s\n\n", plan.Topic)
	b.WriteString("Adjudicated evidence per sub-question:\n")
	for _, adj := range adjudications {
		fmt.Fprintf(&b, "- [%s] %s: %d records, verifiedFraction %.2f\n",
			adj.SubQuestionID, adj.Question, len(adj.Evidence), adj.VerifiedFraction)
	}
	b.WriteString("\nRead the adjudication-*.json files in your working directory for full detail.\n")
	b.WriteString("Build a graph of nodes, edges, and topics. Node ids kebab-case, labels uppercase.\n")
	b.WriteString("Exclude retracted evidence. Every non-domain node needs a topics entry; nodes rated ")
	b.WriteString("unverified or disputed must say so in their topic sections. Include a domain node ")
	b.WriteString("'recommendations' with at least 3 recommendation children.\n\n")
	fmt.Fprintf(&b, "Write your JSON output to: %s\n", outputPath)
	return b.String()
}
