package gate

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/codeGROOVE-dev/approval-gate/pkg/github"
	"github.com/codeGROOVE-dev/approval-gate/pkg/internal/testutil"
	"github.com/codeGROOVE-dev/approval-gate/pkg/policy"
	"github.com/codeGROOVE-dev/approval-gate/pkg/types"
)

func testPolicy() *policy.Policy {
	return &policy.Policy{
		Domains: map[string]string{
			"frontend": "web-platform",
			"infra":    "platform",
			"tooling":  "platform",
		},
		DefaultRequiredApprovals: 1,
		RetractOnUnlabeled:       true,
	}
}

func TestDecide(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name           string
		labels         []string
		requestedTeams []string
		event          string
		removedLabel   string
		wantEnsure     []string
		wantRetract    []string
	}{
		{
			name:       "requests team for matched label",
			labels:     []string{"frontend"},
			event:      "labeled",
			wantEnsure: []string{"web-platform"},
		},
		{
			name:           "skips already requested team",
			labels:         []string{"frontend"},
			requestedTeams: []string{"web-platform"},
			event:          "labeled",
		},
		{
			name:       "dedupes shared team slug",
			labels:     []string{"infra", "tooling"},
			event:      "labeled",
			wantEnsure: []string{"platform"},
		},
		{
			name:         "retracts on unlabeled event",
			labels:       []string{},
			event:        EventUnlabeled,
			removedLabel: "frontend",
			wantRetract:  []string{"web-platform"},
		},
		{
			name:         "ignores unlabeled for unconfigured label",
			labels:       []string{},
			event:        EventUnlabeled,
			removedLabel: "wip",
		},
		{
			name:           "keeps team still required by another label",
			labels:         []string{"infra"},
			requestedTeams: []string{"platform"},
			event:          EventUnlabeled,
			removedLabel:   "tooling",
		},
		{
			name:         "no retract on other events",
			labels:       []string{},
			event:        "synchronize",
			removedLabel: "frontend",
		},
		{
			name:           "ensure and retract in one run",
			labels:         []string{"frontend"},
			requestedTeams: []string{"platform"},
			event:          EventUnlabeled,
			removedLabel:   "infra",
			wantEnsure:     []string{"web-platform"},
			wantRetract:    []string{"platform"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := p.MatchLabels(tt.labels)
			d := decide(p, matches, tt.requestedTeams, tt.event, tt.removedLabel)
			if !reflect.DeepEqual(d.Ensure, tt.wantEnsure) {
				t.Errorf("ensure = %v, want %v", d.Ensure, tt.wantEnsure)
			}
			if !reflect.DeepEqual(d.Retract, tt.wantRetract) {
				t.Errorf("retract = %v, want %v", d.Retract, tt.wantRetract)
			}
		})
	}
}

func TestDecide_RetractDisabledByPolicy(t *testing.T) {
	p := testPolicy()
	p.RetractOnUnlabeled = false

	d := decide(p, nil, nil, EventUnlabeled, "frontend")
	if len(d.Retract) != 0 {
		t.Errorf("expected no retraction when disabled, got %v", d.Retract)
	}
}

func TestApplyReconcile_BenignRejections(t *testing.T) {
	pr := &types.PullRequest{Owner: "acme", Repository: "shop", Number: 7}

	tests := []struct {
		name     string
		errKey   string
		err      error
		decision Decision
		wantErr  bool
	}{
		{
			name:     "duplicate request is benign",
			errKey:   "add-reviewers",
			err:      fmt.Errorf("POST: %w", github.ErrAlreadyRequested),
			decision: Decision{Ensure: []string{"web-platform"}},
		},
		{
			name:     "missing request is benign",
			errKey:   "remove-reviewers",
			err:      fmt.Errorf("DELETE: %w", github.ErrNotRequested),
			decision: Decision{Retract: []string{"web-platform"}},
		},
		{
			name:     "other add errors are fatal",
			errKey:   "add-reviewers",
			err:      errors.New("boom"),
			decision: Decision{Ensure: []string{"web-platform"}},
			wantErr:  true,
		},
		{
			name:     "other remove errors are fatal",
			errKey:   "remove-reviewers",
			err:      errors.New("boom"),
			decision: Decision{Retract: []string{"web-platform"}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockClient()
			mock.SetError(tt.errKey, tt.err)
			c := New(mock, Options{})

			err := c.applyReconcile(context.Background(), pr, tt.decision)
			if (err != nil) != tt.wantErr {
				t.Errorf("applyReconcile error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyReconcile_DryRunHasNoSideEffects(t *testing.T) {
	mock := testutil.NewMockClient()
	c := New(mock, Options{DryRun: true})
	pr := &types.PullRequest{Owner: "acme", Repository: "shop", Number: 7}

	err := c.applyReconcile(context.Background(), pr, Decision{
		Ensure:  []string{"web-platform"},
		Retract: []string{"platform"},
	})
	if err != nil {
		t.Fatalf("applyReconcile: %v", err)
	}
	if len(mock.AddCalls()) != 0 || len(mock.RemoveCalls()) != 0 {
		t.Error("dry run must not mutate review requests")
	}
}
