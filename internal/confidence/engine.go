// Package confidence implements the deterministic confidence calculus.
// Given the level outputs of one pathway run, the engine scans each
// level's signal map for reliability signals, applies a strictly-ordered
// rule set to pick a base category, then applies flag-driven modifiers
// (caps, downgrades, upgrades). The same inputs always produce the same
// verdict, regardless of the order results arrived in.
package confidence

import (
	"fmt"
	"sort"
	"strings"

	"inquest/internal/logging"
	"inquest/internal/types"
)

// Pipeline flag names the engine harvests from findings and reports back.
const (
	FlagIndustryFundingNoReplication = "industry-funding-no-replication"
	FlagTestimonialOnly              = "testimonial-only"
	FlagLowHierarchyOnly             = "low-hierarchy-only"
	FlagSmallSample                  = "small-sample"
	FlagContrarianCredible           = "contrarian-credible"
)

// minSampleSize is the threshold below which a study caps at plausible.
const minSampleSize = 30

// signalScan aggregates the reliability signals found across all level
// outputs of one pathway run.
type signalScan struct {
	retracted          bool
	contradiction      bool
	confirmations      int
	unresolvedBias     bool
	methodologyUnsound bool
	highABRatings      int // source ratings A or B
	otherRatings       int // C..F

	// Modifier triggers
	industryFunding    bool
	replicationExists  bool
	testimonialOnly    bool
	lowHierarchyOnly   bool
	smallSample        bool
	smallestSample     int
	analysisRisk       bool // high p-hacking or cherry-picking on any level
	contrarianCredible bool
	largeEffect        bool
	doseResponse       bool
}

// confirmationArrays are findings keys whose array lengths count as
// independent confirmation sources.
var confirmationArrays = []string{
	"independentSources",
	"independentReports",
	"independentEvaluations",
	"additionalTestimonials",
}

// Compute classifies one evidence item from its pathway results. flags is
// the accumulated pipeline flag set for the item; the returned assessment
// carries it back augmented with anything harvested here.
func Compute(results []*types.LevelOutput, flags []string) types.Assessment {
	scan := scanResults(results)

	flagSet := newFlagSet(flags)
	if scan.industryFunding && !scan.replicationExists {
		flagSet.add(FlagIndustryFundingNoReplication)
	}
	if scan.testimonialOnly {
		flagSet.add(FlagTestimonialOnly)
	}
	if scan.lowHierarchyOnly {
		flagSet.add(FlagLowHierarchyOnly)
	}
	if scan.smallSample {
		flagSet.add(FlagSmallSample)
	}
	if scan.contrarianCredible {
		flagSet.add(FlagContrarianCredible)
	}

	base, rationale := baseRule(scan)
	logging.ConfidenceDebug("Base rule: %s (%s)", base, rationale)

	if base == types.ConfidenceRetracted {
		// R1 is terminal: no modifiers apply.
		return types.Assessment{
			Confidence: base,
			Label:      base.Label(),
			Rationale:  rationale,
			Flags:      flagSet.list(),
		}
	}

	final, notes := applyModifiers(base, scan)
	if len(notes) > 0 {
		rationale = rationale + "; " + strings.Join(notes, "; ")
	}

	logging.Confidence("Classified %s -> %s (%s)", base, final, rationale)
	return types.Assessment{
		Confidence: final,
		Label:      final.Label(),
		Rationale:  rationale,
		Flags:      flagSet.list(),
	}
}

// baseRule applies R1-R5 in strict order; the first match wins.
func baseRule(scan signalScan) (types.Confidence, string) {
	// R1: retraction is terminal.
	if scan.retracted {
		return types.ConfidenceRetracted, "retraction detected"
	}
	// R2: contradictory evidence of equal quality.
	if scan.contradiction {
		return types.ConfidenceDisputed, "contradictory evidence of comparable quality"
	}
	// R3: strong convergent confirmation from high-grade sources.
	if scan.confirmations >= 3 && scan.highABRatings >= 3 &&
		!scan.unresolvedBias && !scan.methodologyUnsound {
		return types.ConfidenceVerified, fmt.Sprintf(
			"%d independent confirmations from %d A/B-rated sources, no unresolved bias, sound methodology",
			scan.confirmations, scan.highABRatings)
	}
	// R4: some support.
	if scan.confirmations >= 1 || scan.highABRatings >= 1 || scan.otherRatings >= 3 ||
		(scan.unresolvedBias && scan.confirmations > 0) {
		return types.ConfidencePlausible, fmt.Sprintf(
			"partial support: %d confirmations, %d A/B sources, %d other-rated sources",
			scan.confirmations, scan.highABRatings, scan.otherRatings)
	}
	// R5: nothing conclusive either way.
	return types.ConfidenceUnverified, "insufficient corroboration"
}

// applyModifiers walks the modifier ladder: caps, then at most one
// downgrade, then upgrades. Caps hold through the whole pass: no modifier
// may lift a capped item above plausible.
func applyModifiers(base types.Confidence, scan signalScan) (types.Confidence, []string) {
	current := base
	var notes []string

	// Caps to P
	capped := false
	capNote := func(reason string) {
		capped = true
		notes = append(notes, reason)
	}
	if scan.industryFunding && !scan.replicationExists {
		capNote("capped at plausible: industry funding without replication")
	}
	if scan.testimonialOnly {
		capNote("capped at plausible: testimonial evidence only")
	}
	if scan.lowHierarchyOnly {
		capNote("capped at plausible: low-hierarchy evidence only")
	}
	if scan.smallSample {
		capNote(fmt.Sprintf("capped at plausible: sample size < %d (smallest %d)", minSampleSize, scan.smallestSample))
	}
	if capped && current.Rank() > types.ConfidencePlausible.Rank() {
		current = types.ConfidencePlausible
	}

	// Downgrade by one, applied at most once
	if scan.analysisRisk || scan.contrarianCredible {
		current = current.Step(-1)
		if scan.analysisRisk {
			notes = append(notes, "downgraded: high p-hacking or cherry-picking risk")
		} else {
			notes = append(notes, "downgraded: credible contrarian position")
		}
	}

	// Upgrades by one each
	if scan.largeEffect {
		current = current.Step(+1)
		notes = append(notes, "upgraded: large effect size")
	}
	if scan.doseResponse {
		current = current.Step(+1)
		notes = append(notes, "upgraded: dose-response relationship")
	}

	// A cap is a ceiling, not a one-time adjustment.
	if capped && current.Rank() > types.ConfidencePlausible.Rank() {
		current = types.ConfidencePlausible
	}

	return current, notes
}

// scanResults walks every non-nil level output and accumulates signals.
// Each level is read through Signals(), the same view the branch
// evaluator uses: a retraction reported only in branchSignals still
// reaches the engine.
func scanResults(results []*types.LevelOutput) signalScan {
	scan := signalScan{smallestSample: -1}
	sawHierarchySignal := false
	allLowHierarchy := true
	sawEvidenceKind := false
	allTestimonial := true

	for _, out := range results {
		if out == nil {
			continue // gap: level produced no output
		}

		switch strings.ToUpper(out.SourceRating) {
		case "A", "B":
			scan.highABRatings++
		case "C", "D", "E", "F":
			scan.otherRatings++
		}

		f := out.Signals()

		if truthy(f["retracted"]) || asString(f["confidence"]) == string(types.ConfidenceRetracted) {
			scan.retracted = true
		}
		if arr, ok := f["contradictoryEvidence"].([]interface{}); ok && len(arr) > 0 {
			scan.contradiction = true
		}

		// Confirmation sources
		if truthy(f["replicationExists"]) {
			scan.replicationExists = true
			if truthy(f["replicationConfirms"]) {
				scan.confirmations++
			}
		}
		for _, key := range confirmationArrays {
			if arr, ok := f[key].([]interface{}); ok {
				scan.confirmations += len(arr)
			}
		}
		if truthy(f["valuesMatch"]) {
			scan.confirmations++
		}
		if truthy(f["convergence"]) {
			scan.confirmations++
		}

		// Unresolved bias
		if asString(f["overallBias"]) == "high" || truthy(f["conflictsFound"]) || truthy(f["fundingBiasPattern"]) {
			scan.unresolvedBias = true
		}

		// Methodology
		if val, present := f["methodsAppropriate"]; present && !truthy(val) {
			scan.methodologyUnsound = true
		}
		highPHacking := asString(f["pHackingRisk"]) == "high"
		highCherryPicking := asString(f["cherryPickingRisk"]) == "high"
		if highPHacking || highCherryPicking {
			scan.methodologyUnsound = true
			scan.analysisRisk = true
		}

		// Modifier triggers
		if truthy(f["industryFunding"]) {
			scan.industryFunding = true
		}
		if kind, present := f["evidenceKind"]; present {
			sawEvidenceKind = true
			if asString(kind) != "testimonial" {
				allTestimonial = false
			}
		}
		if truthy(f["testimonialOnly"]) {
			sawEvidenceKind = true
		}
		if hier, present := f["evidenceHierarchy"]; present {
			sawHierarchySignal = true
			if !isLowHierarchy(asString(hier)) || truthy(f["higherEvidenceExists"]) {
				allLowHierarchy = false
			}
		}
		if truthy(f["lowHierarchyOnly"]) {
			sawHierarchySignal = true
		}
		if n, ok := asNumber(f["sampleSize"]); ok {
			size := int(n)
			if scan.smallestSample < 0 || size < scan.smallestSample {
				scan.smallestSample = size
			}
			if size < minSampleSize {
				scan.smallSample = true
			}
		}
		if truthy(f["contrarianCredible"]) {
			scan.contrarianCredible = true
		}
		if truthy(f["largeEffect"]) {
			scan.largeEffect = true
		}
		if truthy(f["doseResponse"]) {
			scan.doseResponse = true
		}
	}

	scan.testimonialOnly = sawEvidenceKind && allTestimonial
	scan.lowHierarchyOnly = sawHierarchySignal && allLowHierarchy
	return scan
}

// isLowHierarchy reports whether a study sits at the bottom of the
// evidence hierarchy: case reports, animal studies, in-vitro work.
func isLowHierarchy(kind string) bool {
	switch strings.ToLower(kind) {
	case "case-report", "case_report", "animal", "in-vitro", "in_vitro":
		return true
	default:
		return false
	}
}

// truthy interprets a JSON-decoded value as a boolean signal.
func truthy(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != "" && x != "false" && x != "none"
	case float64:
		return x != 0
	case []interface{}:
		return len(x) > 0
	case map[string]interface{}:
		return len(x) > 0
	default:
		return false
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asNumber(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

// flagSet keeps pipeline flags unique while preserving a stable order.
type flagSet struct {
	seen  map[string]bool
	items []string
}

func newFlagSet(initial []string) *flagSet {
	fs := &flagSet{seen: make(map[string]bool)}
	for _, f := range initial {
		fs.add(f)
	}
	return fs
}

func (fs *flagSet) add(flag string) {
	if fs.seen[flag] {
		return
	}
	fs.seen[flag] = true
	fs.items = append(fs.items, flag)
}

func (fs *flagSet) list() []string {
	if len(fs.items) == 0 {
		return nil
	}
	out := make([]string, len(fs.items))
	copy(out, fs.items)
	sort.Strings(out)
	return out
}
