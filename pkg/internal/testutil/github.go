// Package testutil provides mock implementations and testing utilities for
// the approval-gate project.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeGROOVE-dev/approval-gate/pkg/types"
)

// MockClient implements github.API for testing. It is a smart, programmable
// mock: configure state with the Set* methods and inspect recorded side
// effects afterward.
type MockClient struct {
	pullRequests   map[string]*types.PullRequest
	reviews        map[string][]types.Review
	configFiles    map[string][]byte
	teamMembers    map[string][]string
	errors         map[string]error
	addCalls       []TeamReviewerCall
	removeCalls    []TeamReviewerCall
	checkRuns      []types.CheckRun
	teamListCounts map[string]int
	mu             sync.RWMutex
}

// TeamReviewerCall records a review-request mutation.
type TeamReviewerCall struct {
	Owner    string
	Repo     string
	Teams    []string
	PRNumber int
}

// NewMockClient creates a new MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		pullRequests:   make(map[string]*types.PullRequest),
		reviews:        make(map[string][]types.Review),
		configFiles:    make(map[string][]byte),
		teamMembers:    make(map[string][]string),
		errors:         make(map[string]error),
		teamListCounts: make(map[string]int),
	}
}

func prKey(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, number)
}

// SetPullRequest configures the PR returned for its owner/repo/number.
func (m *MockClient) SetPullRequest(pr *types.PullRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pullRequests[prKey(pr.Owner, pr.Repository, pr.Number)] = pr
}

// SetReviews configures the review sequence for a PR.
func (m *MockClient) SetReviews(owner, repo string, number int, reviews []types.Review) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews[prKey(owner, repo, number)] = reviews
}

// SetConfigFile configures the config document at a path.
func (m *MockClient) SetConfigFile(owner, repo, path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configFiles[owner+"/"+repo+"/"+path] = data
}

// SetTeamMembers configures the member list for an org team.
func (m *MockClient) SetTeamMembers(org, slug string, members []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teamMembers[org+"/"+slug] = members
}

// SetError configures an operation to fail. Keys: "config:<owner>/<repo>/<path>",
// "team:<org>/<slug>", "pr:<owner>/<repo>#<n>", "reviews:<owner>/<repo>#<n>",
// "add-reviewers", "remove-reviewers", "check-run".
func (m *MockClient) SetError(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[key] = err
}

// PullRequest returns the configured PR.
func (m *MockClient) PullRequest(_ context.Context, owner, repo string, number int) (*types.PullRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := prKey(owner, repo, number)
	if err, ok := m.errors["pr:"+key]; ok {
		return nil, err
	}
	pr, ok := m.pullRequests[key]
	if !ok {
		return nil, fmt.Errorf("no mock PR for %s", key)
	}
	return pr, nil
}

// Reviews returns the configured review sequence.
func (m *MockClient) Reviews(_ context.Context, owner, repo string, number int) ([]types.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := prKey(owner, repo, number)
	if err, ok := m.errors["reviews:"+key]; ok {
		return nil, err
	}
	return m.reviews[key], nil
}

// ConfigFile returns the configured document.
func (m *MockClient) ConfigFile(_ context.Context, owner, repo, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := owner + "/" + repo + "/" + path
	if err, ok := m.errors["config:"+key]; ok {
		return nil, err
	}
	data, ok := m.configFiles[key]
	if !ok {
		return nil, fmt.Errorf("no mock config at %s", key)
	}
	return data, nil
}

// TeamMembers returns the configured member list, counting resolutions.
func (m *MockClient) TeamMembers(_ context.Context, org, slug string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := org + "/" + slug
	m.teamListCounts[key]++
	if err, ok := m.errors["team:"+key]; ok {
		return nil, err
	}
	members, ok := m.teamMembers[key]
	if !ok {
		return nil, fmt.Errorf("no mock team %s", key)
	}
	return members, nil
}

// AddTeamReviewers records the call.
func (m *MockClient) AddTeamReviewers(_ context.Context, owner, repo string, number int, teams []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errors["add-reviewers"]; ok {
		return err
	}
	m.addCalls = append(m.addCalls, TeamReviewerCall{Owner: owner, Repo: repo, PRNumber: number, Teams: teams})
	return nil
}

// RemoveTeamReviewers records the call.
func (m *MockClient) RemoveTeamReviewers(_ context.Context, owner, repo string, number int, teams []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errors["remove-reviewers"]; ok {
		return err
	}
	m.removeCalls = append(m.removeCalls, TeamReviewerCall{Owner: owner, Repo: repo, PRNumber: number, Teams: teams})
	return nil
}

// CreateCheckRun records the published check run.
func (m *MockClient) CreateCheckRun(_ context.Context, _, _ string, check types.CheckRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errors["check-run"]; ok {
		return err
	}
	m.checkRuns = append(m.checkRuns, check)
	return nil
}

// AddCalls returns recorded AddTeamReviewers calls.
func (m *MockClient) AddCalls() []TeamReviewerCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]TeamReviewerCall(nil), m.addCalls...)
}

// RemoveCalls returns recorded RemoveTeamReviewers calls.
func (m *MockClient) RemoveCalls() []TeamReviewerCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]TeamReviewerCall(nil), m.removeCalls...)
}

// CheckRuns returns recorded check-run publications.
func (m *MockClient) CheckRuns() []types.CheckRun {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.CheckRun(nil), m.checkRuns...)
}

// TeamListCount returns how many times a team's membership was resolved.
func (m *MockClient) TeamListCount(org, slug string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.teamListCounts[org+"/"+slug]
}
