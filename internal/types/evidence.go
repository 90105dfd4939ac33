// Package types defines the shared domain vocabulary of the inquest engine:
// evidence taxonomy, investigation pathways, confidence categories, and the
// knowledge-graph artifact. These types carry no behavior beyond small pure
// helpers; all orchestration logic lives in the feature packages.
package types

import "time"

// EvidenceType classifies a piece of evidence into the investigation taxonomy.
// Each type maps 1:1 to a pathway id "P-<TYPE>".
type EvidenceType string

const (
	EvidenceScientific    EvidenceType = "SCI" // Peer-reviewed scientific studies
	EvidenceGovernment    EvidenceType = "GOV" // Government / regulatory documents
	EvidenceOrganization  EvidenceType = "ORG" // NGO and industry-body reports
	EvidenceExpert        EvidenceType = "EXP" // Expert opinion and commentary
	EvidenceStatistical   EvidenceType = "STA" // Statistical datasets
	EvidenceFinancial     EvidenceType = "FIN" // Financial filings and disclosures
	EvidenceDocumentary   EvidenceType = "DOC" // Primary documents, leaks, FOIA
	EvidenceMedia         EvidenceType = "MED" // Journalism and media coverage
	EvidenceHistorical    EvidenceType = "HIS" // Historical records
	EvidenceTestimonial   EvidenceType = "TES" // First-person testimony
	EvidenceTechnical     EvidenceType = "TEC" // Technical analyses, measurements
)

// AllEvidenceTypes lists every member of the taxonomy.
var AllEvidenceTypes = []EvidenceType{
	EvidenceScientific, EvidenceGovernment, EvidenceOrganization,
	EvidenceExpert, EvidenceStatistical, EvidenceFinancial,
	EvidenceDocumentary, EvidenceMedia, EvidenceHistorical,
	EvidenceTestimonial, EvidenceTechnical,
}

// Valid reports whether t is a member of the closed taxonomy.
func (t EvidenceType) Valid() bool {
	for _, known := range AllEvidenceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// PathwayID returns the investigation pathway id for this type ("P-SCI"),
// or "" when the type is not part of the taxonomy.
func (t EvidenceType) PathwayID() string {
	if !t.Valid() {
		return ""
	}
	return "P-" + string(t)
}

// EvidenceItem is a single classified fact produced during the
// classification phase. Items are immutable once their manifest is written.
type EvidenceItem struct {
	ID               string       `json:"id"`
	Type             EvidenceType `json:"type"`
	SourceRating     string       `json:"sourceRating"` // A..F
	InfoRating       int          `json:"infoRating"`   // 1..6
	Description      string       `json:"description"`
	Citation         string       `json:"citation,omitempty"`
	TriggeredPathway string       `json:"triggeredPathway"`
}

// EvidenceManifest is the output of one classification worker: the
// sub-questions it covered plus the evidence items it produced.
type EvidenceManifest struct {
	SubQuestionID string         `json:"subQuestionId,omitempty"`
	SubQuestions  []string       `json:"subQuestions"`
	EvidenceItems []EvidenceItem `json:"evidenceItems"`
}

// SubQuestion is one element of a research plan.
type SubQuestion struct {
	ID                    string   `json:"id"`
	Question              string   `json:"question"`
	Scope                 string   `json:"scope,omitempty"`
	ExpectedEvidenceTypes []string `json:"expectedEvidenceTypes,omitempty"`
}

// Plan is the output of the planning phase: 5-8 sub-questions, at least one
// of which concerns actionable recommendations.
type Plan struct {
	Topic        string        `json:"topic"`
	SubQuestions []SubQuestion `json:"subQuestions"`
	CreatedAt    time.Time     `json:"createdAt,omitempty"`
}
