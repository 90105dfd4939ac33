package types

// MaxPathwayDepth bounds how many levels any pathway may execute.
const MaxPathwayDepth = 4

// TerminateLevel is the branch target that ends a pathway early.
const TerminateLevel = -1

// ContrarianPathwayID is the consensus-check pathway invoked by the
// adjudicator when a sub-question's verified fraction exceeds the
// consensus threshold.
const ContrarianPathwayID = "P-CON"

// Operator names the comparison applied by a branch condition.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpIn          Operator = "in"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "notExists"
)

// Condition is a single predicate over a level's published signals.
type Condition struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
}

// Branch is a conditional transition out of a level. NextLevel is the depth
// of the level to run next, or TerminateLevel to stop the pathway.
type Branch struct {
	Condition Condition `json:"condition"`
	NextLevel int       `json:"nextLevel"`
}

// RequiredOutput documents one field the level worker must publish.
type RequiredOutput struct {
	Field       string `json:"field"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// TaskDef is the static task text of a level, before template expansion.
type TaskDef struct {
	Purpose  string   `json:"purpose"`
	KeyTasks []string `json:"keyTasks"`
	EndState string   `json:"endState"`
}

// LevelDef is one step of a pathway.
type LevelDef struct {
	Depth           int              `json:"depth"` // 1..MaxPathwayDepth
	Name            string           `json:"name"`
	WorkerTemplate  string           `json:"workerTemplate"`
	Task            TaskDef          `json:"task"`
	RequiredOutputs []RequiredOutput `json:"requiredOutputs,omitempty"`
	Branches        []Branch         `json:"branches,omitempty"`
}

// Pathway is a typed investigation script tied to a single evidence type.
type Pathway struct {
	ID     string     `json:"id"`
	Levels []LevelDef `json:"levels"`
}

// LevelByDepth returns the level definition at the given depth, or nil.
func (p *Pathway) LevelByDepth(depth int) *LevelDef {
	for i := range p.Levels {
		if p.Levels[i].Depth == depth {
			return &p.Levels[i]
		}
	}
	return nil
}

// Citation is a single reference published by a level worker.
type Citation struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
	Year int    `json:"year,omitempty"`
}

// LevelOutput is the on-disk contract a level worker writes when it
// completes. Findings carries free-form analysis; BranchSignals carries the
// keys downstream branch conditions read (falls back to Findings if empty).
type LevelOutput struct {
	PathwayID         string                 `json:"pathwayId"`
	Depth             int                    `json:"depth"`
	EvidenceFound     bool                   `json:"evidenceFound"`
	SourceRating      string                 `json:"sourceRating,omitempty"`
	InfoRating        int                    `json:"infoRating,omitempty"`
	Findings          map[string]interface{} `json:"findings,omitempty"`
	BranchSignals     map[string]interface{} `json:"branchSignals,omitempty"`
	Citations         []Citation             `json:"citations,omitempty"`
	NextEvidenceTypes []string               `json:"nextEvidenceTypes,omitempty"`
}

// Signals returns the map branch conditions should be evaluated against:
// BranchSignals when present, otherwise Findings, with the top-level
// evidenceFound and sourceRating fields folded in so branches can gate on
// them without the worker repeating them. Never nil.
func (o *LevelOutput) Signals() map[string]interface{} {
	if o == nil {
		return map[string]interface{}{}
	}
	base := o.Findings
	if len(o.BranchSignals) > 0 {
		base = o.BranchSignals
	}
	sig := make(map[string]interface{}, len(base)+2)
	for k, v := range base {
		sig[k] = v
	}
	if _, ok := sig["evidenceFound"]; !ok {
		sig["evidenceFound"] = o.EvidenceFound
	}
	if o.SourceRating != "" {
		if _, ok := sig["sourceRating"]; !ok {
			sig["sourceRating"] = o.SourceRating
		}
	}
	return sig
}

// CrossPathwayRef records a new evidence type discovered mid-pathway. The
// orchestrator turns these into second-wave synthetic evidence items.
type CrossPathwayRef struct {
	SourceEvidenceID string       `json:"sourceEvidenceId"`
	SourcePathwayID  string       `json:"sourcePathwayId"`
	Type             EvidenceType `json:"type"`
	DiscoveredAt     int          `json:"discoveredAtDepth"`
}

// PathwayResult pairs one evidence item with everything its pathway run
// produced. Results holds one entry per executed level, in depth order;
// entries are nil where a level's output never materialized.
type PathwayResult struct {
	EvidenceID    string            `json:"evidenceId"`
	PathwayID     string            `json:"pathwayId"`
	Results       []*LevelOutput    `json:"results"`
	Confidence    Assessment        `json:"confidence"`
	CrossPathways []CrossPathwayRef `json:"crossPathways,omitempty"`
}

// LevelsCompleted counts non-nil level outputs.
func (r *PathwayResult) LevelsCompleted() int {
	n := 0
	for _, out := range r.Results {
		if out != nil {
			n++
		}
	}
	return n
}
