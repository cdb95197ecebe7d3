package gate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/codeGROOVE-dev/approval-gate/pkg/github"
	"github.com/codeGROOVE-dev/approval-gate/pkg/internal/testutil"
	"github.com/codeGROOVE-dev/approval-gate/pkg/policy"
	"github.com/codeGROOVE-dev/approval-gate/pkg/types"
)

const testConfig = `
domains:
  frontend: web-platform
  billing: finance-eng
requiredApprovals: 1
overrides:
  billing:
    requiredApprovals: 2
`

func setupChecker(t *testing.T, opts Options) (*Checker, *testutil.MockClient) {
	t.Helper()
	mock := testutil.NewMockClient()
	mock.SetConfigFile("acme", "shop", DefaultConfigPath, []byte(testConfig))
	mock.SetTeamMembers("acme", "web-platform", []string{"alice", "dave"})
	mock.SetTeamMembers("acme", "finance-eng", []string{"bob", "erin"})
	return New(mock, opts), mock
}

func testPR(labels []string) *types.PullRequest {
	return &types.PullRequest{
		Owner:      "acme",
		Repository: "shop",
		Number:     42,
		Title:      "Add checkout flow",
		Author:     "carol",
		State:      "open",
		HeadSHA:    "abc123",
		Labels:     labels,
	}
}

func approval(user string, minute int) types.Review {
	return types.Review{
		User:        user,
		State:       policy.StateApproved,
		SubmittedAt: time.Date(2026, 3, 1, 12, minute, 0, 0, time.UTC),
	}
}

func TestRun_SatisfiedGate(t *testing.T) {
	checker, mock := setupChecker(t, Options{})
	mock.SetPullRequest(testPR([]string{"frontend"}))
	mock.SetReviews("acme", "shop", 42, []types.Review{approval("alice", 0)})

	result, err := checker.Run(context.Background(), Target{Owner: "acme", Repo: "shop", Number: 42, Event: "labeled"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != policy.StatusSuccess {
		t.Errorf("expected success, got %s", result.Status)
	}
	if result.RequiredLabels() != "frontend" {
		t.Errorf("unexpected required labels: %q", result.RequiredLabels())
	}
	if result.MissingApprovals() != "" {
		t.Errorf("unexpected missing approvals: %q", result.MissingApprovals())
	}

	adds := mock.AddCalls()
	if len(adds) != 1 || adds[0].Teams[0] != "web-platform" {
		t.Errorf("expected one review request for web-platform, got %v", adds)
	}

	checks := mock.CheckRuns()
	if len(checks) != 1 {
		t.Fatalf("expected one check run, got %d", len(checks))
	}
	if checks[0].Name != DefaultCheckName || checks[0].Conclusion != "success" || checks[0].HeadSHA != "abc123" {
		t.Errorf("unexpected check run: %+v", checks[0])
	}
}

func TestRun_UnsatisfiedOverride(t *testing.T) {
	checker, mock := setupChecker(t, Options{})
	mock.SetPullRequest(testPR([]string{"billing"}))
	mock.SetReviews("acme", "shop", 42, []types.Review{approval("bob", 0)})

	result, err := checker.Run(context.Background(), Target{Owner: "acme", Repo: "shop", Number: 42, Event: "labeled"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != policy.StatusFailure {
		t.Errorf("expected failure with 1/2 approvals, got %s", result.Status)
	}
	if result.MissingApprovals() != "billing" {
		t.Errorf("unexpected missing approvals: %q", result.MissingApprovals())
	}
	if got := mock.CheckRuns()[0].Conclusion; got != "failure" {
		t.Errorf("expected failure conclusion, got %q", got)
	}
}

func TestRun_DismissalSupersedesApproval(t *testing.T) {
	checker, mock := setupChecker(t, Options{})
	mock.SetPullRequest(testPR([]string{"frontend"}))
	mock.SetReviews("acme", "shop", 42, []types.Review{
		approval("alice", 0),
		{User: "alice", State: "CHANGES_REQUESTED",
			SubmittedAt: time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)},
	})

	result, err := checker.Run(context.Background(), Target{Owner: "acme", Repo: "shop", Number: 42, Event: "labeled"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != policy.StatusFailure {
		t.Errorf("expected failure after approval superseded, got %s", result.Status)
	}
}

func TestRun_AlreadyRequestedTeamNotReRequested(t *testing.T) {
	checker, mock := setupChecker(t, Options{})
	pr := testPR([]string{"frontend"})
	pr.RequestedTeams = []string{"web-platform"}
	mock.SetPullRequest(pr)
	mock.SetReviews("acme", "shop", 42, []types.Review{approval("alice", 0)})

	if _, err := checker.Run(context.Background(), Target{Owner: "acme", Repo: "shop", Number: 42, Event: "labeled"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls := mock.AddCalls(); len(calls) != 0 {
		t.Errorf("expected no review request for already-requested team, got %v", calls)
	}
}

func TestRun_UnlabeledRetractsRequest(t *testing.T) {
	checker, mock := setupChecker(t, Options{})
	pr := testPR(nil)
	pr.RequestedTeams = []string{"web-platform"}
	mock.SetPullRequest(pr)

	result, err := checker.Run(context.Background(), Target{
		Owner: "acme", Repo: "shop", Number: 42,
		Event: EventUnlabeled, RemovedLabel: "frontend",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != policy.StatusSuccess {
		t.Errorf("expected vacuous success with no labels left, got %s", result.Status)
	}

	removes := mock.RemoveCalls()
	if len(removes) != 1 || removes[0].Teams[0] != "web-platform" {
		t.Errorf("expected one retraction for web-platform, got %v", removes)
	}
}

func TestRun_DraftSkipped(t *testing.T) {
	checker, mock := setupChecker(t, Options{})
	pr := testPR([]string{"frontend"})
	pr.Draft = true
	mock.SetPullRequest(pr)

	result, err := checker.Run(context.Background(), Target{Owner: "acme", Repo: "shop", Number: 42, Event: "labeled"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != policy.StatusSkipped {
		t.Errorf("expected skipped for draft, got %s", result.Status)
	}
	if len(mock.AddCalls()) != 0 {
		t.Error("draft skip must not request reviewers")
	}

	checks := mock.CheckRuns()
	if len(checks) != 1 || checks[0].Conclusion != "neutral" {
		t.Errorf("expected neutral check run for draft, got %v", checks)
	}
}

func TestRun_MissingConfig(t *testing.T) {
	mock := testutil.NewMockClient()
	mock.SetPullRequest(testPR([]string{"frontend"}))
	mock.SetError("config:acme/shop/"+DefaultConfigPath, github.ErrConfigMissing)

	checker := New(mock, Options{})
	result, err := checker.Run(context.Background(), Target{Owner: "acme", Repo: "shop", Number: 42, Event: "labeled"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != policy.StatusSkipped {
		t.Errorf("expected skipped without config, got %s", result.Status)
	}

	checker = New(mock, Options{FailOnMissingConfig: true})
	if _, err := checker.Run(context.Background(), Target{Owner: "acme", Repo: "shop", Number: 42, Event: "labeled"}); !errors.Is(err, github.ErrConfigMissing) {
		t.Errorf("expected fatal missing-config error, got %v", err)
	}
}

func TestRun_InvalidConfigAbortsBeforeSideEffects(t *testing.T) {
	mock := testutil.NewMockClient()
	mock.SetPullRequest(testPR([]string{"frontend"}))
	mock.SetConfigFile("acme", "shop", DefaultConfigPath, []byte("domains:\n  frontend: 7\n"))

	checker := New(mock, Options{})
	_, err := checker.Run(context.Background(), Target{Owner: "acme", Repo: "shop", Number: 42, Event: "labeled"})

	var cfgErr *policy.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !strings.Contains(cfgErr.Error(), "domains.frontend") {
		t.Errorf("expected error to name offending key, got %q", cfgErr.Error())
	}
	if len(mock.AddCalls()) != 0 || len(mock.CheckRuns()) != 0 {
		t.Error("invalid config must abort before any side effect")
	}
}

func TestRun_TeamResolutionFailureDegrades(t *testing.T) {
	checker, mock := setupChecker(t, Options{})
	mock.SetPullRequest(testPR([]string{"frontend"}))
	mock.SetReviews("acme", "shop", 42, []types.Review{approval("alice", 0)})
	mock.SetError("team:acme/web-platform", errors.New("HTTP 403"))

	result, err := checker.Run(context.Background(), Target{Owner: "acme", Repo: "shop", Number: 42, Event: "labeled"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != policy.StatusFailure {
		t.Errorf("expected failure when team cannot be resolved, got %s", result.Status)
	}
	if mock.TeamListCount("acme", "web-platform") != 1 {
		t.Errorf("expected a single resolution attempt, got %d", mock.TeamListCount("acme", "web-platform"))
	}
}

func TestRun_PublishFailureIsWarningOnly(t *testing.T) {
	checker, mock := setupChecker(t, Options{})
	mock.SetPullRequest(testPR([]string{"frontend"}))
	mock.SetReviews("acme", "shop", 42, []types.Review{approval("alice", 0)})
	mock.SetError("check-run", errors.New("HTTP 502"))

	result, err := checker.Run(context.Background(), Target{Owner: "acme", Repo: "shop", Number: 42, Event: "labeled"})
	if err != nil {
		t.Fatalf("Run should tolerate publish failure: %v", err)
	}
	if result.Status != policy.StatusSuccess {
		t.Errorf("publish failure must not change computed status, got %s", result.Status)
	}
}

func TestRun_SkipCheckRun(t *testing.T) {
	checker, mock := setupChecker(t, Options{SkipCheckRun: true})
	mock.SetPullRequest(testPR([]string{"frontend"}))
	mock.SetReviews("acme", "shop", 42, []types.Review{approval("alice", 0)})

	if _, err := checker.Run(context.Background(), Target{Owner: "acme", Repo: "shop", Number: 42, Event: "labeled"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(mock.CheckRuns()) != 0 {
		t.Error("expected no check-run publication in inspection mode")
	}
}

func TestRun_DryRun(t *testing.T) {
	checker, mock := setupChecker(t, Options{DryRun: true})
	mock.SetPullRequest(testPR([]string{"billing"}))
	mock.SetReviews("acme", "shop", 42, nil)

	result, err := checker.Run(context.Background(), Target{Owner: "acme", Repo: "shop", Number: 42, Event: "labeled"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != policy.StatusFailure {
		t.Errorf("dry run still evaluates, got %s", result.Status)
	}
	if len(mock.AddCalls()) != 0 || len(mock.CheckRuns()) != 0 {
		t.Error("dry run must not mutate GitHub state")
	}
}

func TestRun_NoEnforcedLabels(t *testing.T) {
	checker, mock := setupChecker(t, Options{})
	mock.SetPullRequest(testPR([]string{"wip", "help wanted"}))
	mock.SetReviews("acme", "shop", 42, nil)

	result, err := checker.Run(context.Background(), Target{Owner: "acme", Repo: "shop", Number: 42, Event: "labeled"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != policy.StatusSuccess {
		t.Errorf("expected vacuous success, got %s", result.Status)
	}
	if len(mock.AddCalls()) != 0 {
		t.Error("unmatched labels must not request reviewers")
	}
	if got := mock.CheckRuns()[0].Text; got != "none" {
		t.Errorf("expected %q body, got %q", "none", got)
	}
}
