package policy

import (
	"fmt"
	"strings"
)

// Status is the overall outcome of a run.
type Status string

// Run outcomes.
const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusSkipped Status = "skipped"
)

// SummaryMode selects how much detail the rendered report body carries.
type SummaryMode string

// Report verbosity modes.
const (
	SummaryMinimal  SummaryMode = "minimal"
	SummaryStandard SummaryMode = "standard"
	SummaryVerbose  SummaryMode = "verbose"
)

// ParseSummaryMode validates a summary-mode string, defaulting to standard
// when empty.
func ParseSummaryMode(s string) (SummaryMode, error) {
	switch SummaryMode(s) {
	case "":
		return SummaryStandard, nil
	case SummaryMinimal, SummaryStandard, SummaryVerbose:
		return SummaryMode(s), nil
	default:
		return "", fmt.Errorf("invalid summary mode %q (want minimal, standard, or verbose)", s)
	}
}

// Report is the rendered outcome of a run: overall status, machine-readable
// label sets, and a human summary at the configured verbosity.
type Report struct {
	Status           Status
	Title            string
	Summary          string
	Body             string
	RequiredLabels   []string // matched domain keys, in match order
	MissingApprovals []string // unsatisfied domain keys, in match order
}

// Conclusion maps the run status to a check-run conclusion.
func (r *Report) Conclusion() string {
	if r.Status == StatusSkipped {
		return "neutral"
	}
	return string(r.Status)
}

// Glyphs used in rendered report lines.
const (
	glyphPass = "✅" // check mark
	glyphFail = "❌" // cross mark
)

// BuildReport renders evaluation records into a Report. Overall status is
// success iff every record is satisfied, including the vacuous zero-record
// case.
func BuildReport(evaluations []Evaluation, mode SummaryMode) *Report {
	r := &Report{Title: "Approval gate"}

	var lines []string
	passing := 0
	for _, e := range evaluations {
		r.RequiredLabels = append(r.RequiredLabels, e.DomainKey)
		if e.Satisfied {
			passing++
		} else {
			r.MissingApprovals = append(r.MissingApprovals, e.DomainKey)
		}
		lines = append(lines, renderLine(e, mode))
	}

	if len(evaluations) == 0 {
		lines = append(lines, "none")
	} else {
		lines = append(lines, fmt.Sprintf("%d passing, %d failing", passing, len(evaluations)-passing))
	}
	r.Body = strings.Join(lines, "\n")

	switch {
	case len(evaluations) == 0:
		r.Status = StatusSuccess
		r.Summary = "no enforced labels on this pull request"
	case len(r.MissingApprovals) == 0:
		r.Status = StatusSuccess
		r.Summary = fmt.Sprintf("all %d label gates satisfied", len(evaluations))
	default:
		r.Status = StatusFailure
		r.Summary = "missing approvals: " + strings.Join(r.MissingApprovals, ", ")
	}
	return r
}

// SkippedReport builds the report for a run that short-circuited before
// evaluation (draft PR, missing configuration).
func SkippedReport(reason string) *Report {
	return &Report{
		Status:  StatusSkipped,
		Title:   "Approval gate",
		Summary: reason,
		Body:    "skipped: " + reason,
	}
}

func renderLine(e Evaluation, mode SummaryMode) string {
	glyph := glyphPass
	if !e.Satisfied {
		glyph = glyphFail
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", glyph, e.DomainKey)
	if mode == SummaryVerbose {
		fmt.Fprintf(&b, " (label %q)", e.Label)
	}
	fmt.Fprintf(&b, " %d/%d", e.Approvals, e.Required)

	if mode == SummaryStandard || mode == SummaryVerbose {
		fmt.Fprintf(&b, " [%s]", e.TeamSlug)
		switch {
		case len(e.Approvers) > 0:
			fmt.Fprintf(&b, " approved by: %s", strings.Join(e.Approvers, ", "))
		case mode == SummaryVerbose:
			b.WriteString(" approved by: (none)")
		}
	}
	return b.String()
}
