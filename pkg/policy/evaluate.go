package policy

import (
	"context"
	"sort"
)

// Evaluation is the approval result for one matched domain. Computed fresh
// every run, never persisted.
type Evaluation struct {
	DomainKey string
	Label     string
	TeamSlug  string
	Approvers []string // sorted member logins whose latest state is APPROVED
	Required  int
	Approvals int
	Satisfied bool
}

// Evaluate computes one Evaluation per matched domain, in match order. An
// unresolved team or an empty match set is not an error: absence of
// satisfaction is expressed purely through the Satisfied flag.
func Evaluate(ctx context.Context, p *Policy, matches []Match, approved map[string]bool, teams *MembershipCache) []Evaluation {
	evaluations := make([]Evaluation, 0, len(matches))
	for _, m := range matches {
		members := teams.Members(ctx, m.TeamSlug)
		var approvers []string
		for user := range approved {
			if members[user] {
				approvers = append(approvers, user)
			}
		}
		sort.Strings(approvers)

		required := p.Required(m.DomainKey)
		evaluations = append(evaluations, Evaluation{
			DomainKey: m.DomainKey,
			Label:     m.Label,
			TeamSlug:  m.TeamSlug,
			Approvers: approvers,
			Required:  required,
			Approvals: len(approvers),
			Satisfied: len(approvers) >= required,
		})
	}
	return evaluations
}

// AllSatisfied reports whether every evaluation is satisfied. It is vacuously
// true for an empty slice: no enforced label imposes no requirement.
func AllSatisfied(evaluations []Evaluation) bool {
	for _, e := range evaluations {
		if !e.Satisfied {
			return false
		}
	}
	return true
}
