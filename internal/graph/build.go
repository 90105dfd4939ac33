package graph

import (
	"math"
	"strings"

	"inquest/internal/types"
)

// BuildNode normalizes a node into artifact form: kebab-case id, uppercase
// label, numeric confidence clamped to [0,1]. When a categorical confidence
// word is set without an explicit score, the score derives from the
// category midpoint, rounded to 2 decimals.
func BuildNode(n types.Node) types.Node {
	n.ID = kebab(n.ID)
	n.Label = strings.ToUpper(n.Label)
	if n.Parent != "" {
		n.Parent = kebab(n.Parent)
	}

	if n.ConfidenceScore != nil {
		v := clamp01(*n.ConfidenceScore)
		n.ConfidenceScore = &v
	} else if n.Confidence != "" {
		if c := types.ParseConfidenceWord(n.Confidence); c != "" {
			v := round2(c.Score())
			n.ConfidenceScore = &v
		}
	}
	return n
}

// BuildEdge normalizes an edge: endpoints kebab-cased, uppercase label,
// legacy type aliases canonicalized, confidence and weight clamped to [0,1].
func BuildEdge(e types.Edge) types.Edge {
	e.Source = kebab(e.Source)
	e.Target = kebab(e.Target)
	e.Label = strings.ToUpper(e.Label)
	e.Type = types.CanonicalEdgeType(e.Type)
	if e.Confidence != nil {
		v := clamp01(*e.Confidence)
		e.Confidence = &v
	}
	if e.Weight != nil {
		v := clamp01(*e.Weight)
		e.Weight = &v
	}
	return e
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// kebab lowercases and replaces whitespace and underscores with hyphens.
func kebab(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	lastHyphen := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '_' || r == '-':
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		default:
			b.WriteRune(r)
			lastHyphen = false
		}
	}
	return strings.TrimRight(b.String(), "-")
}
