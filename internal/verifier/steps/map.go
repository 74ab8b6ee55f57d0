// Package steps describes the hierarchy of verification steps reported to
// callers and the ordered operations the orchestrator runs.
package steps

import "fmt"

// Substep is one atomic, independently reported check.
type Substep struct {
	Code         Code   `json:"code"`
	Label        string `json:"label"`
	LabelPending string `json:"labelPending"`
	ParentStep   Code   `json:"parentStep"`
}

// Step is a top-level phase grouping sub-steps.
type Step struct {
	Code         Code      `json:"code"`
	Label        string    `json:"label"`
	LabelPending string    `json:"labelPending"`
	Substeps     []Substep `json:"subSteps"`
}

// Map is the per-run step model: the reported hierarchy plus the ordered list
// of orchestrator operations.
type Map struct {
	Steps   []Step
	Process []Code
}

// operationParents places each orchestrator operation under its phase.
var operationParents = map[Code]Code{
	CheckImagesIntegrity:      StatusCheck,
	CheckRevokedStatus:        StatusCheck,
	CheckExpiresDate:          StatusCheck,
	ControlVerificationMethod: IdentityVerification,
}

var topLevel = []Code{ProofVerification, IdentityVerification, StatusCheck}

// NewSubstep builds a sub-step with labels from the label table.
func NewSubstep(code, parent Code) Substep {
	l := LabelFor(code)
	return Substep{Code: code, Label: l.Label, LabelPending: l.Pending, ParentStep: parent}
}

// NewSubsteps builds sub-steps for codes under parent, preserving order.
func NewSubsteps(parent Code, codes ...Code) []Substep {
	out := make([]Substep, 0, len(codes))
	for _, code := range codes {
		out = append(out, NewSubstep(code, parent))
	}
	return out
}

// Build assembles the step model for a run. hasIdentityBinding is true when
// the issuer carries a DID document.
func Build(hasIdentityBinding bool) *Map {
	process := []Code{CheckImagesIntegrity, CheckRevokedStatus, CheckExpiresDate}
	if hasIdentityBinding {
		process = append(process, ControlVerificationMethod)
	}

	m := &Map{
		Steps:   make([]Step, 0, len(topLevel)),
		Process: process,
	}
	for _, code := range topLevel {
		l := LabelFor(code)
		m.Steps = append(m.Steps, Step{Code: code, Label: l.Label, LabelPending: l.Pending, Substeps: []Substep{}})
	}
	for _, op := range process {
		parent := operationParents[op]
		step := m.find(parent)
		step.Substeps = append(step.Substeps, NewSubstep(op, parent))
	}
	return m
}

// Merge appends subs to the parent step in place.
func (m *Map) Merge(parent Code, subs []Substep) error {
	step := m.find(parent)
	if step == nil {
		return fmt.Errorf("unknown parent step %q", parent)
	}
	step.Substeps = append(step.Substeps, subs...)
	return nil
}

// Visible returns the hierarchy callers see: steps without sub-steps are
// dropped. The result is a copy.
func (m *Map) Visible() []Step {
	out := make([]Step, 0, len(m.Steps))
	for _, step := range m.Steps {
		if len(step.Substeps) == 0 {
			continue
		}
		cp := step
		cp.Substeps = append([]Substep(nil), step.Substeps...)
		out = append(out, cp)
	}
	return out
}

// Prune removes empty steps from the map itself.
func (m *Map) Prune() {
	m.Steps = m.Visible()
}

// ParentOf returns the top-level step that owns code.
func (m *Map) ParentOf(code Code) (Code, bool) {
	for _, step := range m.Steps {
		for _, sub := range step.Substeps {
			if sub.Code == code {
				return step.Code, true
			}
		}
	}
	return "", false
}

func (m *Map) find(code Code) *Step {
	for i := range m.Steps {
		if m.Steps[i].Code == code {
			return &m.Steps[i]
		}
	}
	return nil
}
