package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"inquest/internal/index"
	"inquest/internal/investigation"
	"inquest/internal/logging"
	"inquest/internal/pathway"
	"inquest/internal/types"
)

// consensusThreshold triggers the contrarian check: when more than this
// fraction of a sub-question's evidence rates V or P, a P-CON pathway
// probes the consensus.
const consensusThreshold = 0.8

// consensusMinimum is the smallest evidence count worth a consensus check.
const consensusMinimum = 3

const contrarianDowngradeFlag = "contrarian-downgrade"

// Adjudicator aggregates pathway results per sub-question, probes strong
// consensus with the contrarian pathway, and annotates disputes seen in
// prior projects.
type Adjudicator struct {
	catalog  *pathway.Catalog
	executor investigation.Runner
	idx      *index.Store // nil disables cross-project reconciliation
}

// NewAdjudicator creates an adjudicator. idx may be nil.
func NewAdjudicator(catalog *pathway.Catalog, executor investigation.Runner, idx *index.Store) *Adjudicator {
	return &Adjudicator{catalog: catalog, executor: executor, idx: idx}
}

// Run adjudicates every sub-question in the plan and writes one
// adjudication artifact per sub-question into workDir.
func (a *Adjudicator) Run(ctx context.Context, proj *types.Project, plan *types.Plan,
	manifests []types.EvidenceManifest, results []*types.PathwayResult, workDir string) ([]types.SubQuestionAdjudication, error) {

	byEvidence := make(map[string]*types.PathwayResult, len(results))
	for _, r := range results {
		if r != nil {
			byEvidence[r.EvidenceID] = r
		}
	}

	disputes := a.priorDisputes(proj)

	var out []types.SubQuestionAdjudication
	for _, q := range plan.SubQuestions {
		adj := a.adjudicateOne(ctx, q, manifests, byEvidence, workDir)
		for i := range adj.Evidence {
			adj.Evidence[i].Flags = append(adj.Evidence[i].Flags, disputes...)
		}
		if err := writeAdjudication(workDir, adj); err != nil {
			return nil, err
		}
		out = append(out, adj)
		logging.Adjudication("Sub-question %s: %d records, verifiedFraction=%.2f, consensusChecked=%v",
			q.ID, len(adj.Evidence), adj.VerifiedFraction, adj.ConsensusChecked)
	}
	return out, nil
}

// writeAdjudication records one sub-question's artifact in workDir.
func writeAdjudication(workDir string, adj types.SubQuestionAdjudication) error {
	data, err := json.MarshalIndent(adj, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal adjudication for %s: %w", adj.SubQuestionID, err)
	}
	path := filepath.Join(workDir, "adjudication-"+adj.SubQuestionID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write adjudication for %s: %w", adj.SubQuestionID, err)
	}
	return nil
}

// adjudicateOne builds the adjudication record set for one sub-question
// and applies the consensus check.
func (a *Adjudicator) adjudicateOne(ctx context.Context, q types.SubQuestion,
	manifests []types.EvidenceManifest, byEvidence map[string]*types.PathwayResult,
	workDir string) types.SubQuestionAdjudication {

	adj := types.SubQuestionAdjudication{
		SubQuestionID: q.ID,
		Question:      q.Question,
	}

	for _, m := range manifests {
		if !manifestCovers(m, q.ID) {
			continue
		}
		for _, item := range m.EvidenceItems {
			res, ok := byEvidence[item.ID]
			if !ok {
				continue
			}
			adj.Evidence = append(adj.Evidence, types.AdjudicatedEvidence{
				EvidenceID:      item.ID,
				Confidence:      res.Confidence.Confidence,
				Label:           res.Confidence.Label,
				Rationale:       res.Confidence.Rationale,
				PathwayID:       res.PathwayID,
				LevelsCompleted: res.LevelsCompleted(),
				Flags:           append([]string(nil), res.Confidence.Flags...),
			})
		}
	}

	total := len(adj.Evidence)
	if total == 0 {
		return adj
	}

	highRated := 0
	for _, e := range adj.Evidence {
		if e.Confidence == types.ConfidenceVerified || e.Confidence == types.ConfidencePlausible {
			highRated++
		}
	}
	adj.VerifiedFraction = float64(highRated) / float64(total)

	if total >= consensusMinimum && adj.VerifiedFraction > consensusThreshold {
		adj.ConsensusChecked = true
		a.checkConsensus(ctx, q, &adj, workDir)
	}
	return adj
}

// checkConsensus runs the contrarian pathway against the sub-question's
// consensus. Only an explicit downgrade recommendation changes ratings:
// every V record drops to P and gains the contrarian-downgrade flag.
// Everything else about the contrarian run is advisory. The check is best
// effort; a missing P-CON pathway or failed run changes nothing.
func (a *Adjudicator) checkConsensus(ctx context.Context, q types.SubQuestion,
	adj *types.SubQuestionAdjudication, workDir string) {

	pw, err := a.catalog.Get(types.ContrarianPathwayID)
	if err != nil {
		logging.Adjudication("Consensus check skipped for %s: %v", q.ID, err)
		return
	}

	synthetic := types.EvidenceItem{
		ID:               "consensus-" + q.ID,
		Type:             types.EvidenceScientific,
		SourceRating:     "A",
		InfoRating:       1,
		Description:      fmt.Sprintf("Strong consensus (%d/%d high-rated) on: %s", countHigh(adj), len(adj.Evidence), q.Question),
		TriggeredPathway: types.ContrarianPathwayID,
	}

	res := a.executor.Run(ctx, synthetic, pw, workDir)
	rec := adjustmentRecommendation(res)
	logging.Adjudication("Contrarian pathway for %s recommends %q", q.ID, rec)

	if !strings.HasPrefix(rec, "downgrade") {
		return
	}
	for i := range adj.Evidence {
		if adj.Evidence[i].Confidence != types.ConfidenceVerified {
			continue
		}
		adj.Evidence[i].Confidence = types.ConfidencePlausible
		adj.Evidence[i].Label = types.ConfidencePlausible.Label()
		adj.Evidence[i].Flags = append(adj.Evidence[i].Flags, contrarianDowngradeFlag)
	}
}

// adjustmentRecommendation reads the contrarian run's final level for an
// adjustmentRecommendation finding.
func adjustmentRecommendation(res *types.PathwayResult) string {
	if res == nil {
		return ""
	}
	for i := len(res.Results) - 1; i >= 0; i-- {
		out := res.Results[i]
		if out == nil {
			continue
		}
		if rec, ok := out.Findings["adjustmentRecommendation"].(string); ok {
			return rec
		}
		return ""
	}
	return ""
}

// priorDisputes queries the project index for earlier projects on a
// related topic carrying disputed nodes. Bounded to the first 3 matches;
// failures annotate nothing.
func (a *Adjudicator) priorDisputes(proj *types.Project) []string {
	if a.idx == nil {
		return nil
	}
	matches, err := a.idx.FindByTopic(topicQuery(proj.Topic), proj.ID, 3)
	if err != nil {
		logging.Adjudication("Cross-project lookup failed: %v", err)
		return nil
	}
	var flags []string
	for _, m := range matches {
		if m.DisputedNodes > 0 {
			flags = append(flags, fmt.Sprintf("cross-project-dispute: %s has %d disputed nodes", m.Topic, m.DisputedNodes))
		}
	}
	return flags
}

// topicQuery picks the longest word of the topic as the index search key.
// Full-topic matching only ever finds exact re-runs; the longest word
// catches related investigations.
func topicQuery(topic string) string {
	longest := ""
	for _, w := range strings.Fields(topic) {
		if len(w) > len(longest) {
			longest = w
		}
	}
	if longest == "" {
		return topic
	}
	return longest
}

func countHigh(adj *types.SubQuestionAdjudication) int {
	n := 0
	for _, e := range adj.Evidence {
		if e.Confidence == types.ConfidenceVerified || e.Confidence == types.ConfidencePlausible {
			n++
		}
	}
	return n
}

// manifestCovers reports whether a manifest claims the sub-question.
func manifestCovers(m types.EvidenceManifest, sqID string) bool {
	if m.SubQuestionID == sqID {
		return true
	}
	for _, id := range m.SubQuestions {
		if id == sqID {
			return true
		}
	}
	return false
}
