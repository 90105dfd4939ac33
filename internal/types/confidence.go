package types

// Confidence is the ordered categorical reliability judgment produced by the
// confidence engine: R < D < U < P < V.
type Confidence string

const (
	ConfidenceRetracted  Confidence = "R"
	ConfidenceDisputed   Confidence = "D"
	ConfidenceUnverified Confidence = "U"
	ConfidencePlausible  Confidence = "P"
	ConfidenceVerified   Confidence = "V"
)

// confidenceLadder orders the categories from lowest to highest.
var confidenceLadder = []Confidence{
	ConfidenceRetracted,
	ConfidenceDisputed,
	ConfidenceUnverified,
	ConfidencePlausible,
	ConfidenceVerified,
}

// Rank returns the position of c on the ladder (R=0 .. V=4), or -1 for an
// unknown category.
func (c Confidence) Rank() int {
	for i, rung := range confidenceLadder {
		if c == rung {
			return i
		}
	}
	return -1
}

// Step moves c by delta rungs on the ladder, clamped to the ladder ends.
// Retracted never moves: it is terminal by rule.
func (c Confidence) Step(delta int) Confidence {
	if c == ConfidenceRetracted {
		return c
	}
	rank := c.Rank()
	if rank < 0 {
		return c
	}
	rank += delta
	if rank < 0 {
		rank = 0
	}
	if rank >= len(confidenceLadder) {
		rank = len(confidenceLadder) - 1
	}
	return confidenceLadder[rank]
}

// Label returns the uppercase display label for the category.
func (c Confidence) Label() string {
	switch c {
	case ConfidenceRetracted:
		return "RETRACTED"
	case ConfidenceDisputed:
		return "DISPUTED"
	case ConfidenceUnverified:
		return "UNVERIFIED"
	case ConfidencePlausible:
		return "PLAUSIBLE"
	case ConfidenceVerified:
		return "VERIFIED"
	default:
		return "UNKNOWN"
	}
}

// Word returns the lowercase form used by knowledge-graph nodes.
func (c Confidence) Word() string {
	switch c {
	case ConfidenceRetracted:
		return "retracted"
	case ConfidenceDisputed:
		return "disputed"
	case ConfidenceUnverified:
		return "unverified"
	case ConfidencePlausible:
		return "plausible"
	case ConfidenceVerified:
		return "verified"
	default:
		return ""
	}
}

// Score derives the numeric confidence from the midpoint of the category's
// range: verified 0.85-1.0, plausible 0.5-0.84, unverified 0.2-0.49,
// disputed 0.05-0.19, retracted 0.
func (c Confidence) Score() float64 {
	switch c {
	case ConfidenceVerified:
		return 0.925
	case ConfidencePlausible:
		return 0.67
	case ConfidenceUnverified:
		return 0.345
	case ConfidenceDisputed:
		return 0.12
	default:
		return 0
	}
}

// ParseConfidenceWord maps a graph-node confidence word back to its
// category. Unknown words map to "".
func ParseConfidenceWord(word string) Confidence {
	for _, c := range confidenceLadder {
		if c.Word() == word {
			return c
		}
	}
	return ""
}

// Assessment is the confidence engine's verdict for one evidence item.
type Assessment struct {
	Confidence Confidence `json:"confidence"`
	Label      string     `json:"label"`
	Rationale  string     `json:"rationale"`
	Flags      []string   `json:"flags,omitempty"`
}

// AdjudicatedEvidence pairs one evidence item with the engine's verdict,
// as recorded per sub-question by the adjudicator.
type AdjudicatedEvidence struct {
	EvidenceID      string     `json:"evidenceId"`
	Confidence      Confidence `json:"confidence"`
	Label           string     `json:"label"`
	Rationale       string     `json:"rationale"`
	PathwayID       string     `json:"pathwayId"`
	LevelsCompleted int        `json:"levelsCompleted"`
	Flags           []string   `json:"flags,omitempty"`
}

// SubQuestionAdjudication is the per-sub-question adjudication artifact.
type SubQuestionAdjudication struct {
	SubQuestionID    string                `json:"subQuestionId"`
	Question         string                `json:"question"`
	Evidence         []AdjudicatedEvidence `json:"evidence"`
	VerifiedFraction float64               `json:"verifiedFraction"`
	ConsensusChecked bool                  `json:"consensusChecked"`
}
