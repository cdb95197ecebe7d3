package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Sentinel errors for review-request reconciliation. Both represent the
// remote side already being in the desired state and are safe to ignore.
var (
	// ErrAlreadyRequested indicates the team was already a requested reviewer.
	ErrAlreadyRequested = errors.New("team already requested for review")
	// ErrNotRequested indicates the team was not a pending requested reviewer.
	ErrNotRequested = errors.New("team not requested for review")
)

// AddTeamReviewers requests review from the given teams on a pull request.
// Returns ErrAlreadyRequested when GitHub rejects the request as redundant.
func (c *Client) AddTeamReviewers(ctx context.Context, owner, repo string, prNumber int, teams []string) error {
	if len(teams) == 0 {
		return nil
	}
	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/pulls/%d/requested_reviewers", owner, repo, prNumber)
	payload := map[string]any{"team_reviewers": teams}

	resp, err := c.doRequest(ctx, http.MethodPost, apiURL, payload)
	if err != nil {
		return fmt.Errorf("failed to request team reviewers: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		slog.Info("Requested team reviewers", "owner", owner, "repo", repo, "pr", prNumber, "teams", teams)
		return nil
	case http.StatusUnprocessableEntity:
		// GitHub rejects requests that are already in the desired state.
		return fmt.Errorf("%w: %v", ErrAlreadyRequested, teams)
	default:
		return errorWithStatus("request team reviewers", resp)
	}
}

// RemoveTeamReviewers withdraws pending review requests for the given teams.
// Returns ErrNotRequested when none of the teams had a pending request.
func (c *Client) RemoveTeamReviewers(ctx context.Context, owner, repo string, prNumber int, teams []string) error {
	if len(teams) == 0 {
		return nil
	}
	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/pulls/%d/requested_reviewers", owner, repo, prNumber)
	payload := map[string]any{"team_reviewers": teams}

	resp, err := c.doRequest(ctx, http.MethodDelete, apiURL, payload)
	if err != nil {
		return fmt.Errorf("failed to remove team reviewers: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		slog.Info("Removed team review requests", "owner", owner, "repo", repo, "pr", prNumber, "teams", teams)
		return nil
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %v", ErrNotRequested, teams)
	default:
		return errorWithStatus("remove team reviewers", resp)
	}
}
