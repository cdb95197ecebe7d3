package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/approval-gate/pkg/policy"
)

// MetricsCollector tracks run metrics for the health endpoint.
type MetricsCollector struct {
	uniqueOrgs    map[string]bool
	uniquePRsSeen map[string]bool
	lastRun       time.Time
	mu            sync.RWMutex
	totalRuns     int64
	failing       int64
	skipped       int64
}

// Stats is a point-in-time snapshot of collected metrics.
type Stats struct {
	LastRun   time.Time
	Orgs      int
	PRsSeen   int
	Failing   int64
	Skipped   int64
	TotalRuns int64
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		uniqueOrgs:    make(map[string]bool),
		uniquePRsSeen: make(map[string]bool),
	}
}

// RecordOrg records that an organization was processed.
func (m *MetricsCollector) RecordOrg(org string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uniqueOrgs[org] = true
}

// RecordPRSeen records that a PR was evaluated.
func (m *MetricsCollector) RecordPRSeen(owner, repo string, prNumber int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uniquePRsSeen[fmt.Sprintf("%s/%s#%d", owner, repo, prNumber)] = true
}

// RecordStatus tallies a run outcome.
func (m *MetricsCollector) RecordStatus(status policy.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch status {
	case policy.StatusFailure:
		m.failing++
	case policy.StatusSkipped:
		m.skipped++
	case policy.StatusSuccess:
	}
}

// RecordRunComplete marks the end of a full sweep.
func (m *MetricsCollector) RecordRunComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalRuns++
	m.lastRun = time.Now()
}

// Stats returns a snapshot of the collected metrics.
func (m *MetricsCollector) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		LastRun:   m.lastRun,
		Orgs:      len(m.uniqueOrgs),
		PRsSeen:   len(m.uniquePRsSeen),
		Failing:   m.failing,
		Skipped:   m.skipped,
		TotalRuns: m.totalRuns,
	}
}
