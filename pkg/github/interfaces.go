package github

import (
	"context"

	"github.com/codeGROOVE-dev/approval-gate/pkg/types"
)

// API defines the GitHub operations an approval-gate run depends on. The
// gate orchestrator consumes this interface so runs are testable without a
// live transport.
type API interface {
	// Pull request state
	PullRequest(ctx context.Context, owner, repo string, prNumber int) (*types.PullRequest, error)
	Reviews(ctx context.Context, owner, repo string, prNumber int) ([]types.Review, error)

	// Policy inputs
	ConfigFile(ctx context.Context, owner, repo, path string) ([]byte, error)
	TeamMembers(ctx context.Context, org, slug string) ([]string, error)

	// Side effects
	AddTeamReviewers(ctx context.Context, owner, repo string, prNumber int, teams []string) error
	RemoveTeamReviewers(ctx context.Context, owner, repo string, prNumber int, teams []string) error
	CreateCheckRun(ctx context.Context, owner, repo string, check types.CheckRun) error
}
