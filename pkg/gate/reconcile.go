package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codeGROOVE-dev/approval-gate/pkg/github"
	"github.com/codeGROOVE-dev/approval-gate/pkg/policy"
	"github.com/codeGROOVE-dev/approval-gate/pkg/types"
)

// EventUnlabeled is the triggering event that can retract a team review
// request.
const EventUnlabeled = "unlabeled"

// Decision is the set of team review-request mutations one run will apply:
// teams to request because their label is present, and teams to withdraw
// because their label was just removed. The decision is computed without any
// side effect so it can be tested in isolation.
type Decision struct {
	Ensure  []string
	Retract []string
}

// decide computes the reconciliation decision. requestedTeams must be a
// fresh read of the PR's requested team reviewers taken before this run's
// own additions. Retraction fires only for an unlabeled event whose removed
// label is a configured domain key, and only when the policy allows it; a
// team another still-present label maps to is kept, and recorded approvals
// are never touched.
func decide(p *policy.Policy, matches []policy.Match, requestedTeams []string, event, removedLabel string) Decision {
	requested := make(map[string]bool, len(requestedTeams))
	for _, slug := range requestedTeams {
		requested[slug] = true
	}

	var d Decision
	matched := make(map[string]bool, len(matches))
	for _, m := range matches {
		first := !matched[m.TeamSlug]
		matched[m.TeamSlug] = true
		if requested[m.TeamSlug] || !first {
			continue
		}
		d.Ensure = append(d.Ensure, m.TeamSlug)
	}

	if event == EventUnlabeled && p.RetractOnUnlabeled && removedLabel != "" {
		if slug, ok := p.Domains[removedLabel]; ok && !matched[slug] {
			d.Retract = append(d.Retract, slug)
		}
	}
	return d
}

// applyReconcile performs the decided mutations. Under dry-run it only logs
// the would-be actions. Remote rejections of already-satisfied mutations are
// benign; any other error aborts the run.
func (c *Checker) applyReconcile(ctx context.Context, pr *types.PullRequest, d Decision) error {
	if c.opts.DryRun {
		if len(d.Ensure) > 0 {
			slog.Info("Dry run: would request team reviewers",
				"owner", pr.Owner, "repo", pr.Repository, "pr", pr.Number, "teams", d.Ensure)
		}
		if len(d.Retract) > 0 {
			slog.Info("Dry run: would remove team review requests",
				"owner", pr.Owner, "repo", pr.Repository, "pr", pr.Number, "teams", d.Retract)
		}
		return nil
	}

	if len(d.Ensure) > 0 {
		err := c.client.AddTeamReviewers(ctx, pr.Owner, pr.Repository, pr.Number, d.Ensure)
		switch {
		case err == nil:
		case errors.Is(err, github.ErrAlreadyRequested):
			slog.Info("Team review request already present", "pr", pr.Number, "teams", d.Ensure)
		default:
			return fmt.Errorf("failed to request team reviewers: %w", err)
		}
	}

	if len(d.Retract) > 0 {
		err := c.client.RemoveTeamReviewers(ctx, pr.Owner, pr.Repository, pr.Number, d.Retract)
		switch {
		case err == nil:
		case errors.Is(err, github.ErrNotRequested):
			slog.Info("Team review request already absent", "pr", pr.Number, "teams", d.Retract)
		default:
			return fmt.Errorf("failed to remove team review requests: %w", err)
		}
	}
	return nil
}
