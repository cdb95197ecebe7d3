package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// TeamMembers lists the member logins of an organization team. All roles are
// included; pagination is followed to the end.
func (c *Client) TeamMembers(ctx context.Context, org, slug string) ([]string, error) {
	slog.Info("Fetching team members", "component", "api", "org", org, "team", slug)

	var members []string
	page := 1
	for {
		apiURL := fmt.Sprintf("https://api.github.com/orgs/%s/teams/%s/members?per_page=%d&page=%d",
			org, slug, perPageLimit, page)

		logins, lastPage, err := func() ([]string, bool, error) {
			resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
			if err != nil {
				return nil, false, err
			}
			defer drainAndCloseBody(resp.Body)

			if resp.StatusCode != http.StatusOK {
				return nil, false, fmt.Errorf("failed to list team members for %s/%s (status %d)", org, slug, resp.StatusCode)
			}

			var memberData []struct {
				Login string `json:"login"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&memberData); err != nil {
				return nil, false, fmt.Errorf("failed to decode team members: %w", err)
			}

			logins := make([]string, 0, len(memberData))
			for _, m := range memberData {
				logins = append(logins, m.Login)
			}
			return logins, len(memberData) < perPageLimit, nil
		}()
		if err != nil {
			return nil, err
		}

		members = append(members, logins...)
		if lastPage {
			break
		}
		page++
	}
	return members, nil
}
