package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// ErrConfigMissing indicates the configuration file does not exist in the
// repository. Callers decide whether that is fatal.
var ErrConfigMissing = errors.New("configuration file not found")

// ConfigFile fetches a file from the repository's default branch via the
// contents API. A 404 is reported as ErrConfigMissing.
func (c *Client) ConfigFile(ctx context.Context, owner, repo, path string) ([]byte, error) {
	slog.Info("Fetching configuration file", "component", "api", "owner", owner, "repo", repo, "path", path)
	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/contents/%s", owner, repo, path)

	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	defer drainAndCloseBody(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrConfigMissing, path)
	default:
		return nil, fmt.Errorf("failed to fetch %s (status %d)", path, resp.StatusCode)
	}

	var fileData struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fileData); err != nil {
		return nil, fmt.Errorf("failed to decode contents response: %w", err)
	}

	if fileData.Encoding != "base64" {
		return nil, fmt.Errorf("unexpected content encoding %q for %s", fileData.Encoding, path)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(fileData.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode file content: %w", err)
	}
	return decoded, nil
}
