package policy

import (
	"github.com/codeGROOVE-dev/approval-gate/pkg/types"
)

// StateApproved is the review state that counts toward an approval quota.
const StateApproved = "APPROVED"

// LatestReviewStates folds a delivery-ordered review sequence into one
// authoritative state per user. A later event replaces the stored one when
// its submitted_at is greater than or equal to the stored timestamp; a
// missing submitted_at counts as the zero time. Ties therefore resolve to
// the event delivered later, not necessarily the one submitted later.
func LatestReviewStates(reviews []types.Review) map[string]types.Review {
	latest := make(map[string]types.Review, len(reviews))
	for _, review := range reviews {
		if review.User == "" {
			continue
		}
		prev, ok := latest[review.User]
		if !ok || !review.SubmittedAt.Before(prev.SubmittedAt) {
			latest[review.User] = review
		}
	}
	return latest
}

// ApprovedUsers returns the set of users whose authoritative review state is
// APPROVED.
func ApprovedUsers(states map[string]types.Review) map[string]bool {
	approved := make(map[string]bool)
	for user, review := range states {
		if review.State == StateApproved {
			approved[user] = true
		}
	}
	return approved
}
