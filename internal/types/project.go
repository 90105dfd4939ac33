package types

import "time"

// ProjectStatus tracks a project through the pipeline. Statuses progress
// monotonically from pending through the phase names to a terminal
// complete or error.
type ProjectStatus string

const (
	StatusPending       ProjectStatus = "pending"
	StatusPlanning      ProjectStatus = "planning"
	StatusClassifying   ProjectStatus = "classifying"
	StatusInvestigating ProjectStatus = "investigating"
	StatusAdjudicating  ProjectStatus = "adjudicating"
	StatusSynthesizing  ProjectStatus = "synthesizing"
	StatusComplete      ProjectStatus = "complete"
	StatusError         ProjectStatus = "error"
)

// statusOrder gives the total order used for monotonicity checks.
var statusOrder = map[ProjectStatus]int{
	StatusPending:       0,
	StatusPlanning:      1,
	StatusClassifying:   2,
	StatusInvestigating: 3,
	StatusAdjudicating:  4,
	StatusSynthesizing:  5,
	StatusComplete:      6,
	StatusError:         6, // terminal, peer of complete
}

// Order returns the status position in the lifecycle, or -1 for unknown.
func (s ProjectStatus) Order() int {
	if o, ok := statusOrder[s]; ok {
		return o
	}
	return -1
}

// Terminal reports whether the status ends the lifecycle.
func (s ProjectStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Project is the engine's unit of work: one research topic, one directory,
// one graph artifact. Topic is immutable once accepted; only the pipeline
// mutates status.
type Project struct {
	ID           string        `json:"id"`
	Topic        string        `json:"topic"`
	Created      time.Time     `json:"created"`
	Updated      time.Time     `json:"updated"`
	Status       ProjectStatus `json:"status"`
	StatusDetail string        `json:"statusDetail,omitempty"`
}
