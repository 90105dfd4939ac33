package investigation

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"inquest/internal/events"
	"inquest/internal/pathway"
	"inquest/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedRunner runs pathways instantly and records concurrency.
type scriptedRunner struct {
	mu         sync.Mutex
	inFlight   int32
	maxSeen    int32
	ran        []string
	delay      time.Duration
	crossFor   map[string][]types.CrossPathwayRef
	confidence types.Confidence
}

func (r *scriptedRunner) Run(ctx context.Context, ev types.EvidenceItem, pw *types.Pathway, workDir string) *types.PathwayResult {
	cur := atomic.AddInt32(&r.inFlight, 1)
	for {
		max := atomic.LoadInt32(&r.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&r.maxSeen, max, cur) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	atomic.AddInt32(&r.inFlight, -1)

	r.mu.Lock()
	r.ran = append(r.ran, ev.ID)
	cross := r.crossFor[ev.ID]
	r.mu.Unlock()

	conf := r.confidence
	if conf == "" {
		conf = types.ConfidencePlausible
	}
	return &types.PathwayResult{
		EvidenceID:    ev.ID,
		PathwayID:     pw.ID,
		Results:       []*types.LevelOutput{{EvidenceFound: true}},
		Confidence:    types.Assessment{Confidence: conf, Label: conf.Label()},
		CrossPathways: cross,
	}
}

func writePathways(t *testing.T, dir string, ids ...string) *pathway.Catalog {
	t.Helper()
	for _, id := range ids {
		def := `{"id":"` + id + `","levels":[{"depth":1,"name":"l1","workerTemplate":"researcher","task":{"purpose":"p","keyTasks":["k"],"endState":"e"}}]}`
		if err := os.WriteFile(filepath.Join(dir, id+".json"), []byte(def), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return pathway.NewCatalog(dir)
}

func manifest(itemIDs ...string) types.EvidenceManifest {
	m := types.EvidenceManifest{SubQuestions: []string{"sq-1"}}
	for _, id := range itemIDs {
		m.EvidenceItems = append(m.EvidenceItems, types.EvidenceItem{
			ID: id, Type: types.EvidenceScientific,
			SourceRating: "B", InfoRating: 2,
			TriggeredPathway: "P-SCI",
		})
	}
	return m
}

func TestBatchingBounds(t *testing.T) {
	dir := t.TempDir()
	cat := writePathways(t, dir, "P-SCI")
	runner := &scriptedRunner{delay: 20 * time.Millisecond}

	ids := make([]string, 11)
	for i := range ids {
		ids[i] = "ev-" + string(rune('a'+i))
	}
	o := NewOrchestrator(cat, runner, &events.Recorder{}, Config{
		BatchSize:  5,
		BatchDelay: 30 * time.Millisecond,
	})

	start := time.Now()
	results, err := o.Run(context.Background(), []types.EvidenceManifest{manifest(ids...)}, dir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 11 {
		t.Fatalf("expected 11 results, got %d", len(results))
	}
	if got := atomic.LoadInt32(&runner.maxSeen); got > 5 {
		t.Errorf("concurrency bound violated: %d in flight", got)
	}
	// 3 batches (5,5,1) with 2 inter-batch delays of 30ms
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("inter-batch delays not applied, took %v", elapsed)
	}
}

func TestResultsPreserveOrder(t *testing.T) {
	dir := t.TempDir()
	cat := writePathways(t, dir, "P-SCI")
	runner := &scriptedRunner{delay: 5 * time.Millisecond}

	o := NewOrchestrator(cat, runner, &events.Recorder{}, Config{BatchSize: 3, BatchDelay: time.Millisecond})
	results, err := o.Run(context.Background(),
		[]types.EvidenceManifest{manifest("ev-1", "ev-2", "ev-3", "ev-4")}, dir)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"ev-1", "ev-2", "ev-3", "ev-4"} {
		if results[i].EvidenceID != want {
			t.Errorf("result %d = %s, want %s", i, results[i].EvidenceID, want)
		}
	}
}

func TestUnknownPathwayDegradesToUnverified(t *testing.T) {
	dir := t.TempDir()
	cat := writePathways(t, dir, "P-SCI") // P-GOV intentionally missing
	runner := &scriptedRunner{}

	m := types.EvidenceManifest{EvidenceItems: []types.EvidenceItem{
		{ID: "ev-bad", Type: types.EvidenceGovernment, TriggeredPathway: "P-GOV"},
	}}
	o := NewOrchestrator(cat, runner, &events.Recorder{}, Config{BatchSize: 2, BatchDelay: time.Millisecond})
	results, err := o.Run(context.Background(), []types.EvidenceManifest{m}, dir)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Confidence.Confidence != types.ConfidenceUnverified {
		t.Errorf("expected U degradation, got %s", results[0].Confidence.Confidence)
	}
	if results[0].Confidence.Rationale == "" {
		t.Error("degraded result needs a rationale")
	}
}

func TestSecondWaveCrossPathways(t *testing.T) {
	dir := t.TempDir()
	cat := writePathways(t, dir, "P-SCI", "P-GOV")
	runner := &scriptedRunner{
		crossFor: map[string][]types.CrossPathwayRef{
			"ev-1": {{
				SourceEvidenceID: "ev-1",
				SourcePathwayID:  "P-SCI",
				Type:             types.EvidenceGovernment,
				DiscoveredAt:     2,
			}},
		},
	}

	o := NewOrchestrator(cat, runner, &events.Recorder{}, Config{BatchSize: 5, BatchDelay: time.Millisecond})
	results, err := o.Run(context.Background(), []types.EvidenceManifest{manifest("ev-1", "ev-2")}, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected original 2 + 1 cross result, got %d", len(results))
	}

	derived := results[2]
	if derived.EvidenceID != "ev-1-cross-GOV" {
		t.Errorf("unexpected synthetic id %s", derived.EvidenceID)
	}
	if derived.PathwayID != "P-GOV" {
		t.Errorf("cross item should run P-GOV, got %s", derived.PathwayID)
	}

	// The synthetic item inherits the original's ratings and carries a
	// cross-pathway description prefix.
	found := false
	runner.mu.Lock()
	for _, id := range runner.ran {
		if id == "ev-1-cross-GOV" {
			found = true
		}
	}
	runner.mu.Unlock()
	if !found {
		t.Error("second wave never ran the synthetic item")
	}
}

func TestSummaryWritten(t *testing.T) {
	dir := t.TempDir()
	cat := writePathways(t, dir, "P-SCI")
	runner := &scriptedRunner{confidence: types.ConfidenceVerified}

	o := NewOrchestrator(cat, runner, &events.Recorder{}, Config{BatchSize: 5, BatchDelay: time.Millisecond})
	if _, err := o.Run(context.Background(), []types.EvidenceManifest{manifest("ev-1", "ev-2")}, dir); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	if err != nil {
		t.Fatalf("summary.json missing: %v", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("summary.json unparseable: %v", err)
	}
	if s.Total != 2 || s.ByConfidence["V"] != 2 || s.ByPathway["P-SCI"] != 2 {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestDeterministicAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	cat := writePathways(t, dir, "P-SCI")
	manifests := []types.EvidenceManifest{manifest("ev-1", "ev-2", "ev-3")}

	run := func() []string {
		o := NewOrchestrator(cat, &scriptedRunner{delay: time.Millisecond}, &events.Recorder{},
			Config{BatchSize: 2, BatchDelay: time.Millisecond})
		results, err := o.Run(context.Background(), manifests, dir)
		if err != nil {
			t.Fatal(err)
		}
		var ids []string
		for _, r := range results {
			ids = append(ids, r.EvidenceID+":"+string(r.Confidence.Confidence))
		}
		return ids
	}

	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("run differs at %d: %s vs %s", i, first[i], second[i])
		}
	}
}
