// Package types contains shared data structures used across the approval-gate system.
//
//nolint:revive // "types" is a standard Go package name for shared data structures
package types

import "time"

// PullRequest represents a GitHub pull request.
type PullRequest struct {
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Title          string
	State          string
	Author         string
	Repository     string
	Owner          string
	HeadSHA        string
	Labels         []string // label names in API order
	RequestedTeams []string // team slugs currently requested for review
	RequestedUsers []string // individual reviewers currently requested (informational)
	Number         int
	Draft          bool
}

// PRRef identifies a pull request without carrying its state.
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

// Review is a single review event on a pull request, in delivery order.
type Review struct {
	SubmittedAt time.Time // zero when the API omits submitted_at
	User        string
	State       string // "APPROVED", "CHANGES_REQUESTED", "COMMENTED", "DISMISSED", "PENDING"
}

// CheckRun is the report published against a PR's head commit.
type CheckRun struct {
	Name       string
	HeadSHA    string
	Conclusion string // "success", "failure", or "neutral"
	Title      string
	Summary    string
	Text       string
}
