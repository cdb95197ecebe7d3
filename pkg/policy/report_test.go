package policy

import (
	"reflect"
	"strings"
	"testing"
)

func TestBuildReport_Empty(t *testing.T) {
	r := BuildReport(nil, SummaryStandard)

	if r.Status != StatusSuccess {
		t.Errorf("expected success for empty evaluation set, got %s", r.Status)
	}
	if r.Summary != "no enforced labels on this pull request" {
		t.Errorf("unexpected summary: %q", r.Summary)
	}
	if r.Body != "none" {
		t.Errorf("expected body %q, got %q", "none", r.Body)
	}
	if r.Conclusion() != "success" {
		t.Errorf("expected success conclusion, got %q", r.Conclusion())
	}
}

func TestBuildReport_MixedOutcome(t *testing.T) {
	evals := []Evaluation{
		{DomainKey: "frontend", Label: "frontend", TeamSlug: "web-platform",
			Approvers: []string{"alice"}, Required: 1, Approvals: 1, Satisfied: true},
		{DomainKey: "billing", Label: "billing", TeamSlug: "finance-eng",
			Required: 2, Approvals: 0, Satisfied: false},
	}

	r := BuildReport(evals, SummaryStandard)
	if r.Status != StatusFailure {
		t.Fatalf("expected failure, got %s", r.Status)
	}
	if r.Summary != "missing approvals: billing" {
		t.Errorf("unexpected summary: %q", r.Summary)
	}
	if !reflect.DeepEqual(r.RequiredLabels, []string{"frontend", "billing"}) {
		t.Errorf("unexpected required labels: %v", r.RequiredLabels)
	}
	if !reflect.DeepEqual(r.MissingApprovals, []string{"billing"}) {
		t.Errorf("unexpected missing approvals: %v", r.MissingApprovals)
	}
	if !strings.HasSuffix(r.Body, "1 passing, 1 failing") {
		t.Errorf("expected trailing tally, got body:\n%s", r.Body)
	}
}

func TestBuildReport_LineFormats(t *testing.T) {
	pass := Evaluation{DomainKey: "frontend", Label: "frontend", TeamSlug: "web-platform",
		Approvers: []string{"alice", "bob"}, Required: 1, Approvals: 2, Satisfied: true}
	fail := Evaluation{DomainKey: "billing", Label: "billing", TeamSlug: "finance-eng",
		Required: 2, Approvals: 0, Satisfied: false}

	tests := []struct {
		name string
		mode SummaryMode
		eval Evaluation
		want string
	}{
		{"minimal pass", SummaryMinimal, pass, "✅ frontend 2/1"},
		{"minimal fail", SummaryMinimal, fail, "❌ billing 0/2"},
		{"standard pass", SummaryStandard, pass, "✅ frontend 2/1 [web-platform] approved by: alice, bob"},
		{"standard fail omits empty approvers", SummaryStandard, fail, "❌ billing 0/2 [finance-eng]"},
		{"verbose pass", SummaryVerbose, pass, `✅ frontend (label "frontend") 2/1 [web-platform] approved by: alice, bob`},
		{"verbose fail shows none", SummaryVerbose, fail, `❌ billing (label "billing") 0/2 [finance-eng] approved by: (none)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := BuildReport([]Evaluation{tt.eval}, tt.mode)
			lines := strings.Split(r.Body, "\n")
			if lines[0] != tt.want {
				t.Errorf("got  %q\nwant %q", lines[0], tt.want)
			}
		})
	}
}

func TestSkippedReport(t *testing.T) {
	r := SkippedReport("draft pull request")

	if r.Status != StatusSkipped {
		t.Errorf("expected skipped status, got %s", r.Status)
	}
	if r.Conclusion() != "neutral" {
		t.Errorf("expected neutral conclusion, got %q", r.Conclusion())
	}
	if r.Body != "skipped: draft pull request" {
		t.Errorf("unexpected body: %q", r.Body)
	}
}

func TestParseSummaryMode(t *testing.T) {
	tests := []struct {
		input   string
		want    SummaryMode
		wantErr bool
	}{
		{"", SummaryStandard, false},
		{"minimal", SummaryMinimal, false},
		{"standard", SummaryStandard, false},
		{"verbose", SummaryVerbose, false},
		{"loud", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSummaryMode(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseSummaryMode(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSummaryMode(%q): %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseSummaryMode(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}
