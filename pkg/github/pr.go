package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/approval-gate/pkg/types"
)

// PR-related constants.
const (
	perPageLimit = 100 // GitHub API per_page limit
)

// PullRequest fetches a single pull request, including its current labels
// and requested team reviewers. Never cached: the reconciler depends on a
// fresh read of the requested-reviewer state.
func (c *Client) PullRequest(ctx context.Context, owner, repo string, prNumber int) (*types.PullRequest, error) {
	slog.Info("Fetching PR details", "component", "api", "owner", owner, "repo", repo, "pr", prNumber)
	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/pulls/%d", owner, repo, prNumber)
	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get PR (status %d)", resp.StatusCode)
	}

	var prData struct {
		Title     string `json:"title"`
		State     string `json:"state"`
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
		User      struct {
			Login string `json:"login"`
		} `json:"user"`
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
		RequestedReviewers []struct {
			Login string `json:"login"`
		} `json:"requested_reviewers"`
		RequestedTeams []struct {
			Slug string `json:"slug"`
		} `json:"requested_teams"`
		Number int  `json:"number"`
		Draft  bool `json:"draft"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&prData); err != nil {
		return nil, fmt.Errorf("failed to decode pull request: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339, prData.CreatedAt)
	if err != nil {
		slog.Warn("Failed to parse created_at time", "error", err)
		createdAt = time.Now()
	}
	updatedAt, err := time.Parse(time.RFC3339, prData.UpdatedAt)
	if err != nil {
		slog.Warn("Failed to parse updated_at time", "error", err)
		updatedAt = time.Now()
	}

	var labels []string
	for _, label := range prData.Labels {
		labels = append(labels, label.Name)
	}
	var teams []string
	for _, team := range prData.RequestedTeams {
		teams = append(teams, team.Slug)
	}
	var reviewers []string
	for _, reviewer := range prData.RequestedReviewers {
		reviewers = append(reviewers, reviewer.Login)
	}

	return &types.PullRequest{
		Number:         prData.Number,
		Title:          prData.Title,
		State:          prData.State,
		Draft:          prData.Draft,
		Author:         prData.User.Login,
		HeadSHA:        prData.Head.SHA,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		Repository:     repo,
		Owner:          owner,
		Labels:         labels,
		RequestedTeams: teams,
		RequestedUsers: reviewers,
	}, nil
}

// Reviews fetches all reviews on a pull request in the order the API
// delivers them.
func (c *Client) Reviews(ctx context.Context, owner, repo string, prNumber int) ([]types.Review, error) {
	slog.Info("Fetching PR reviews", "component", "api", "owner", owner, "repo", repo, "pr", prNumber)

	var all []types.Review
	page := 1
	for {
		apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/pulls/%d/reviews?per_page=%d&page=%d",
			owner, repo, prNumber, perPageLimit, page)

		reviews, lastPage, err := func() ([]types.Review, bool, error) {
			resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
			if err != nil {
				return nil, false, err
			}
			defer drainAndCloseBody(resp.Body)

			if resp.StatusCode != http.StatusOK {
				return nil, false, fmt.Errorf("failed to list reviews (status %d)", resp.StatusCode)
			}

			var reviewData []struct {
				User struct {
					Login string `json:"login"`
				} `json:"user"`
				State       string `json:"state"`
				SubmittedAt string `json:"submitted_at"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&reviewData); err != nil {
				return nil, false, fmt.Errorf("failed to decode reviews: %w", err)
			}

			reviews := make([]types.Review, 0, len(reviewData))
			for _, rd := range reviewData {
				var submittedAt time.Time
				if rd.SubmittedAt != "" {
					if t, err := time.Parse(time.RFC3339, rd.SubmittedAt); err == nil {
						submittedAt = t
					}
				}
				reviews = append(reviews, types.Review{
					User:        rd.User.Login,
					State:       rd.State,
					SubmittedAt: submittedAt,
				})
			}
			return reviews, len(reviewData) < perPageLimit, nil
		}()
		if err != nil {
			return nil, err
		}

		all = append(all, reviews...)
		if lastPage {
			break
		}
		page++
	}
	return all, nil
}

// OpenPullRequestsForOrg lists references to all open pull requests across
// an organization via the search API.
func (c *Client) OpenPullRequestsForOrg(ctx context.Context, org string) ([]types.PRRef, error) {
	slog.Info("Searching open PRs for org", "component", "api", "org", org)

	var refs []types.PRRef
	page := 1
	for {
		apiURL := fmt.Sprintf("https://api.github.com/search/issues?q=is:pr+is:open+org:%s&per_page=%d&page=%d",
			org, perPageLimit, page)

		pageRefs, lastPage, err := func() ([]types.PRRef, bool, error) {
			resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
			if err != nil {
				return nil, false, err
			}
			defer drainAndCloseBody(resp.Body)

			if resp.StatusCode != http.StatusOK {
				return nil, false, fmt.Errorf("failed to search PRs (status %d)", resp.StatusCode)
			}

			var result struct {
				Items []struct {
					RepositoryURL string `json:"repository_url"`
					Number        int    `json:"number"`
				} `json:"items"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				return nil, false, fmt.Errorf("failed to decode search results: %w", err)
			}

			var refs []types.PRRef
			for _, item := range result.Items {
				owner, repo, ok := splitRepositoryURL(item.RepositoryURL)
				if !ok {
					slog.Warn("Skipping search result with unexpected repository_url", "url", item.RepositoryURL)
					continue
				}
				refs = append(refs, types.PRRef{Owner: owner, Repo: repo, Number: item.Number})
			}
			return refs, len(result.Items) < perPageLimit, nil
		}()
		if err != nil {
			return nil, err
		}

		refs = append(refs, pageRefs...)
		if lastPage {
			break
		}
		page++
	}
	return refs, nil
}

// splitRepositoryURL extracts owner and repo from an API repository URL
// (https://api.github.com/repos/{owner}/{repo}).
func splitRepositoryURL(repositoryURL string) (owner, repo string, ok bool) {
	const prefix = "https://api.github.com/repos/"
	if len(repositoryURL) <= len(prefix) || repositoryURL[:len(prefix)] != prefix {
		return "", "", false
	}
	rest := repositoryURL[len(prefix):]
	for i := range rest {
		if rest[i] == '/' {
			if i == 0 || i == len(rest)-1 {
				return "", "", false
			}
			return rest[:i], rest[i+1:], true
		}
	}
	return "", "", false
}
