package policy

import (
	"context"
	"log/slog"
)

// TeamLister lists the member logins of an organization team.
type TeamLister interface {
	TeamMembers(ctx context.Context, org, slug string) ([]string, error)
}

// MembershipCache memoizes team membership for a single run. It guarantees at
// most one resolution attempt per slug per run, even when several domains map
// to the same team. A resolution failure is recorded as a warning and the
// team is treated as having zero members, so an unresolvable team can never
// silently satisfy a requirement. The cache is owned by the run and discarded
// with it; runs are single-threaded, so no locking is needed.
type MembershipCache struct {
	lister  TeamLister
	members map[string]map[string]bool
	org     string
}

// NewMembershipCache creates an empty cache bound to one organization.
func NewMembershipCache(lister TeamLister, org string) *MembershipCache {
	return &MembershipCache{
		lister:  lister,
		members: make(map[string]map[string]bool),
		org:     org,
	}
}

// Members returns the member-login set for a team slug, resolving it on first
// use. Failed resolutions are cached too, so the listing is attempted at most
// once per run.
func (c *MembershipCache) Members(ctx context.Context, slug string) map[string]bool {
	if set, ok := c.members[slug]; ok {
		return set
	}
	set := make(map[string]bool)
	logins, err := c.lister.TeamMembers(ctx, c.org, slug)
	if err != nil {
		slog.Warn("Failed to list team members, treating team as empty",
			"org", c.org, "team", slug, "error", err)
	} else {
		for _, login := range logins {
			set[login] = true
		}
	}
	c.members[slug] = set
	return set
}
