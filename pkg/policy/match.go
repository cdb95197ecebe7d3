package policy

// Match pairs a matched domain key with the literal PR label that matched it
// and the team slug it maps to. Matching is exact, so Label always equals
// DomainKey; the literal string is carried separately for verbose reporting.
type Match struct {
	DomainKey string
	Label     string
	TeamSlug  string
}

// MatchLabels intersects the PR's current labels with the configured domain
// keys. The result is ordered by first appearance in the label sequence, with
// duplicate labels collapsed. Labels with no configured domain are ignored;
// an empty result is valid and means no domain is enforced.
func (p *Policy) MatchLabels(labels []string) []Match {
	seen := make(map[string]bool, len(labels))
	var matches []Match
	for _, label := range labels {
		slug, configured := p.Domains[label]
		if !configured || seen[label] {
			continue
		}
		seen[label] = true
		matches = append(matches, Match{DomainKey: label, Label: label, TeamSlug: slug})
	}
	return matches
}
