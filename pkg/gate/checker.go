// Package gate orchestrates a single approval-gate run: it loads and
// validates the policy, matches PR labels against configured domains,
// reconciles team review requests, evaluates approval quotas against team
// membership, and publishes the result as a check run. A run is a stateless
// transformation of current PR state into a decision; nothing survives it.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeGROOVE-dev/approval-gate/pkg/github"
	"github.com/codeGROOVE-dev/approval-gate/pkg/policy"
	"github.com/codeGROOVE-dev/approval-gate/pkg/types"
)

// DefaultConfigPath is where the policy document lives unless overridden.
const DefaultConfigPath = ".github/approval-gate.yaml"

// DefaultCheckName is the check-run name published against the head commit.
const DefaultCheckName = "approval-gate"

// Options configures a Checker.
type Options struct {
	ConfigPath          string
	CheckName           string
	SummaryMode         policy.SummaryMode
	FailOnMissingConfig bool
	DryRun              bool
	SkipCheckRun        bool // suppress check-run publication (CLI inspection mode)
}

// Checker runs the approval gate against pull requests.
type Checker struct {
	client github.API
	opts   Options
}

// New creates a Checker. Zero-value options get defaults.
func New(client github.API, opts Options) *Checker {
	if opts.ConfigPath == "" {
		opts.ConfigPath = DefaultConfigPath
	}
	if opts.CheckName == "" {
		opts.CheckName = DefaultCheckName
	}
	if opts.SummaryMode == "" {
		opts.SummaryMode = policy.SummaryStandard
	}
	return &Checker{client: client, opts: opts}
}

// Target identifies the pull request and triggering event for one run. For
// unlabeled events the removed label name must be supplied from the event
// payload.
type Target struct {
	Owner        string
	Repo         string
	Event        string
	RemovedLabel string
	Number       int
}

// Result is the outcome of one run.
type Result struct {
	Report      *policy.Report
	Evaluations []policy.Evaluation
	Status      policy.Status
}

// RequiredLabels returns the comma-joined matched domain keys.
func (r *Result) RequiredLabels() string {
	return strings.Join(r.Report.RequiredLabels, ",")
}

// MissingApprovals returns the comma-joined unsatisfied domain keys.
func (r *Result) MissingApprovals() string {
	return strings.Join(r.Report.MissingApprovals, ",")
}

// Run executes the gate against one pull request. Fatal conditions (invalid
// config, transport failures outside the recovered classes) return an error;
// everything else is expressed through the Result status.
func (c *Checker) Run(ctx context.Context, t Target) (*Result, error) {
	pr, err := c.client.PullRequest(ctx, t.Owner, t.Repo, t.Number)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch PR %s/%s#%d: %w", t.Owner, t.Repo, t.Number, err)
	}

	raw, err := c.client.ConfigFile(ctx, pr.Owner, pr.Repository, c.opts.ConfigPath)
	if err != nil {
		if errors.Is(err, github.ErrConfigMissing) {
			if c.opts.FailOnMissingConfig {
				return nil, fmt.Errorf("configuration required but not found: %w", err)
			}
			slog.Warn("No configuration found, skipping", "path", c.opts.ConfigPath,
				"owner", pr.Owner, "repo", pr.Repository)
			return c.skip(ctx, pr, "no approval policy configured")
		}
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	pol, err := policy.ParseConfig(raw)
	if err != nil {
		// ConfigError is fatal and precedes any side effect.
		return nil, err
	}

	if pr.Draft && pol.IgnoreDraft {
		slog.Info("Draft PR, skipping evaluation", "owner", pr.Owner, "repo", pr.Repository, "pr", pr.Number)
		return c.skip(ctx, pr, "draft pull request")
	}

	matches := pol.MatchLabels(pr.Labels)

	// Reconcile review requests before evaluation. pr.RequestedTeams is the
	// fresh read taken at the start of this run, before our own additions.
	decision := decide(pol, matches, pr.RequestedTeams, t.Event, t.RemovedLabel)
	if err := c.applyReconcile(ctx, pr, decision); err != nil {
		return nil, err
	}

	reviews, err := c.client.Reviews(ctx, pr.Owner, pr.Repository, pr.Number)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	approved := policy.ApprovedUsers(policy.LatestReviewStates(reviews))

	teams := policy.NewMembershipCache(c.client, pr.Owner)
	evaluations := policy.Evaluate(ctx, pol, matches, approved, teams)

	report := policy.BuildReport(evaluations, c.opts.SummaryMode)
	c.publish(ctx, pr, report)

	slog.Info("Run complete", "owner", pr.Owner, "repo", pr.Repository, "pr", pr.Number,
		"status", report.Status, "required_labels", len(report.RequiredLabels),
		"missing_approvals", len(report.MissingApprovals))

	return &Result{Report: report, Evaluations: evaluations, Status: report.Status}, nil
}

// skip finalizes a short-circuited run: the skipped report is still
// published so the check surface reflects why nothing was evaluated.
func (c *Checker) skip(ctx context.Context, pr *types.PullRequest, reason string) (*Result, error) {
	report := policy.SkippedReport(reason)
	c.publish(ctx, pr, report)
	return &Result{Report: report, Status: report.Status}, nil
}

// publish attaches the report to the PR's head commit. Publish failures are
// warnings and never change the computed status.
func (c *Checker) publish(ctx context.Context, pr *types.PullRequest, report *policy.Report) {
	if c.opts.SkipCheckRun {
		return
	}
	if c.opts.DryRun {
		slog.Info("Dry run: would publish check run", "pr", pr.Number,
			"conclusion", report.Conclusion(), "summary", report.Summary)
		return
	}
	check := types.CheckRun{
		Name:       c.opts.CheckName,
		HeadSHA:    pr.HeadSHA,
		Conclusion: report.Conclusion(),
		Title:      report.Title,
		Summary:    report.Summary,
		Text:       report.Body,
	}
	if err := c.client.CreateCheckRun(ctx, pr.Owner, pr.Repository, check); err != nil {
		slog.Warn("Failed to publish check run", "owner", pr.Owner, "repo", pr.Repository,
			"pr", pr.Number, "error", err)
	}
}
