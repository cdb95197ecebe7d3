package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/codeGROOVE-dev/approval-gate/pkg/types"
)

// CreateCheckRun publishes a completed check run against a commit.
func (c *Client) CreateCheckRun(ctx context.Context, owner, repo string, check types.CheckRun) error {
	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/check-runs", owner, repo)

	payload := map[string]any{
		"name":       check.Name,
		"head_sha":   check.HeadSHA,
		"status":     "completed",
		"conclusion": check.Conclusion,
		"output": map[string]any{
			"title":   check.Title,
			"summary": check.Summary,
			"text":    check.Text,
		},
	}

	resp, err := c.doRequest(ctx, http.MethodPost, apiURL, payload)
	if err != nil {
		return fmt.Errorf("failed to create check run: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return errorWithStatus("create check run", resp)
	}

	slog.Info("Published check run", "owner", owner, "repo", repo,
		"sha", check.HeadSHA, "name", check.Name, "conclusion", check.Conclusion)
	return nil
}
