// Package main implements a GitHub App bot that enforces label-gated
// approval quotas on pull requests across all installed organizations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/approval-gate/pkg/gate"
	"github.com/codeGROOVE-dev/approval-gate/pkg/github"
	"github.com/codeGROOVE-dev/approval-gate/pkg/policy"
	"github.com/codeGROOVE-dev/approval-gate/pkg/types"
)

var (
	// GitHub App authentication flags.
	appID      = flag.String("app-id", "", "GitHub App ID for authentication")
	appKeyPath = flag.String("app-key-path", "", "Path to GitHub App private key file")

	// Behavior flags.
	loopDelay   = flag.Duration("loop-delay", 5*time.Minute, "Loop delay between polling cycles (default: 5m)")
	dryRun      = flag.Bool("dry-run", false, "Run in dry-run mode (no review requests or check runs)")
	configPath  = flag.String("config", gate.DefaultConfigPath, "Path to the approval policy file in each repository")
	summaryMode = flag.String("summary", "standard", "Report verbosity: minimal, standard, or verbose")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "GitHub App bot that gates PR merges on label-mapped team approval quotas.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_APP_ID               - GitHub App ID\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_APP_KEY              - GitHub App private key content\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_APP_KEY_PATH         - Path to GitHub App private key file\n")
		fmt.Fprintf(os.Stderr, "  PORT                        - HTTP server port (default: 8080)\n")
	}
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	mode, err := policy.ParseSummaryMode(*summaryMode)
	if err != nil {
		slog.Error("Invalid summary mode", "error", err)
		os.Exit(1)
	}

	effectiveAppID := *appID
	if effectiveAppID == "" {
		effectiveAppID = os.Getenv("GITHUB_APP_ID")
	}
	if effectiveAppID == "" {
		slog.Error("GitHub App ID is required")
		slog.Info("Set via --app-id flag or GITHUB_APP_ID environment variable")
		os.Exit(1)
	}

	ctx := context.Background()

	client, err := github.New(ctx, github.Config{
		UseAppAuth:  true,
		AppID:       effectiveAppID,
		AppKeyPath:  *appKeyPath,
		HTTPTimeout: 30 * time.Second,
	})
	if err != nil {
		slog.Error("Failed to create GitHub client", "error", err)
		os.Exit(1)
	}

	checker := gate.New(client, gate.Options{
		ConfigPath:  *configPath,
		SummaryMode: mode,
		DryRun:      *dryRun,
	})

	bot := &Bot{
		client:            client,
		checker:           checker,
		sprinklerMonitors: make(map[string]*sprinklerMonitor),
	}

	slog.Info("Starting in server mode", "loop_delay", *loopDelay)
	bot.runServeMode(ctx, *loopDelay)
}

// Bot enforces the approval gate across all installed organizations.
type Bot struct {
	client            *github.Client
	checker           *gate.Checker
	metrics           *MetricsCollector
	sprinklerMonitors map[string]*sprinklerMonitor // one monitor per org
	monitorsMu        sync.Mutex
}

// processAllOrgs runs the gate over every organization where the app is
// installed.
func (b *Bot) processAllOrgs(ctx context.Context) error {
	orgs, err := b.client.ListAppInstallations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list app installations: %w", err)
	}

	if len(orgs) == 0 {
		slog.Info("No organization installations found")
		return nil
	}

	slog.Info("Processing organizations", "count", len(orgs))

	var totalProcessed, totalFailing int
	for i, orgName := range orgs {
		slog.Info("Processing organization", "org", orgName, "progress", fmt.Sprintf("%d/%d", i+1, len(orgs)))

		b.client.SetCurrentOrg(orgName)
		processed, failing := b.processOrg(ctx, orgName)
		totalProcessed += processed
		totalFailing += failing

		if b.metrics != nil {
			b.metrics.RecordOrg(orgName)
		}
		b.client.SetCurrentOrg("")
	}

	slog.Info("Completed all organizations",
		"total_prs", totalProcessed, "failing", totalFailing, "orgs", len(orgs))
	return nil
}

// processOrg runs the gate over all open PRs in one organization.
func (b *Bot) processOrg(ctx context.Context, org string) (processed, failing int) {
	refs, err := b.client.OpenPullRequestsForOrg(ctx, org)
	if err != nil {
		slog.Warn("Failed to get PRs for org", "org", org, "error", err)
		return 0, 0
	}

	for _, ref := range refs {
		processed++
		status := b.runGate(ctx, ref, "")
		if status == policy.StatusFailure {
			failing++
		}
	}
	return processed, failing
}

// processSinglePR runs the gate for a single PR (used by sprinkler events).
func (b *Bot) processSinglePR(ctx context.Context, owner, repo string, prNumber int) error {
	ref := types.PRRef{Owner: owner, Repo: repo, Number: prNumber}
	if status := b.runGate(ctx, ref, "pull_request"); status == "" {
		return fmt.Errorf("gate run failed for %s/%s#%d", owner, repo, prNumber)
	}
	return nil
}

// runGate executes one checker run and records metrics. Returns the run
// status, or "" when the run itself failed.
func (b *Bot) runGate(ctx context.Context, ref types.PRRef, event string) policy.Status {
	if b.metrics != nil {
		b.metrics.RecordPRSeen(ref.Owner, ref.Repo, ref.Number)
	}

	result, err := b.checker.Run(ctx, gate.Target{
		Owner:  ref.Owner,
		Repo:   ref.Repo,
		Number: ref.Number,
		Event:  event,
	})
	if err != nil {
		slog.Warn("Gate run failed", "owner", ref.Owner, "repo", ref.Repo, "pr", ref.Number, "error", err)
		return ""
	}

	if b.metrics != nil {
		b.metrics.RecordStatus(result.Status)
	}
	return result.Status
}

// runServeMode runs the bot in server mode with periodic sweeps and
// event-driven runs.
func (b *Bot) runServeMode(ctx context.Context, loopDelay time.Duration) {
	b.metrics = NewMetricsCollector()

	go b.startHealthServer(ctx)

	orgs, err := b.client.ListAppInstallations(ctx)
	if err != nil {
		slog.Warn("Failed to list organizations for sprinkler", "error", err)
	} else {
		for _, org := range orgs {
			monitor := newSprinklerMonitor(b, org)
			if err := monitor.start(ctx); err != nil {
				slog.Error("Failed to start sprinkler for org", "org", org, "error", err)
				continue
			}
			b.sprinklerMonitors[org] = monitor
			slog.Info("Started sprinkler monitor", "org", org)
		}

		defer func() {
			for org, monitor := range b.sprinklerMonitors {
				slog.Info("Stopping sprinkler monitor", "org", org)
				monitor.stop()
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Context cancelled, shutting down")
			return
		default:
			slog.Info("Starting approval-gate sweep")
			startTime := time.Now()

			if err := b.processAllOrgs(ctx); err != nil {
				slog.Error("Failed to process app installations", "error", err)
			}

			b.updateSprinklerMonitors(ctx)
			b.metrics.RecordRunComplete()
			slog.Info("Sweep completed", "duration", time.Since(startTime), "sleep_duration", loopDelay)

			timer := time.NewTimer(loopDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

// updateSprinklerMonitors reconciles the monitor set with the current
// installations.
func (b *Bot) updateSprinklerMonitors(ctx context.Context) {
	orgs, err := b.client.ListAppInstallations(ctx)
	if err != nil {
		slog.Warn("Failed to list organizations for sprinkler update", "error", err)
		return
	}

	b.monitorsMu.Lock()
	defer b.monitorsMu.Unlock()

	currentOrgs := make(map[string]bool)
	for _, org := range orgs {
		currentOrgs[org] = true
	}

	for org, monitor := range b.sprinklerMonitors {
		if !currentOrgs[org] {
			slog.Info("Stopping sprinkler for removed org", "org", org)
			monitor.stop()
			delete(b.sprinklerMonitors, org)
		}
	}

	for _, org := range orgs {
		if _, exists := b.sprinklerMonitors[org]; exists {
			continue
		}
		monitor := newSprinklerMonitor(b, org)
		if err := monitor.start(ctx); err != nil {
			slog.Error("Failed to start sprinkler for new org", "org", org, "error", err)
			continue
		}
		b.sprinklerMonitors[org] = monitor
		slog.Info("Started sprinkler monitor for new org", "org", org)
	}
}

// startHealthServer starts the HTTP server for health checks.
func (b *Bot) startHealthServer(_ context.Context) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	http.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		stats := b.metrics.Stats()

		status := "ok"
		statusCode := http.StatusOK
		if stats.TotalRuns > 0 && time.Since(stats.LastRun) > 15*time.Minute {
			status = "stale"
			statusCode = http.StatusServiceUnavailable
		}

		response := fmt.Sprintf("%s - %d organizations, %d PRs seen, %d failing, %d skipped (last: %s, runs: %d)\n",
			status, stats.Orgs, stats.PRsSeen, stats.Failing, stats.Skipped,
			stats.LastRun.Format(time.RFC3339), stats.TotalRuns)

		w.WriteHeader(statusCode)
		if _, err := w.Write([]byte(response)); err != nil {
			slog.Warn("Failed to write response", "error", err)
		}
	})

	server := &http.Server{
		Addr:         ":" + port,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	slog.Info("Health server listening", "port", port)
	if err := server.ListenAndServe(); err != nil {
		slog.Error("Health server stopped", "error", err)
	}
}
