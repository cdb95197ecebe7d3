// Package main implements a CLI tool that evaluates label-gated approval
// quotas for a GitHub pull request and publishes the result as a check run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/approval-gate/pkg/gate"
	"github.com/codeGROOVE-dev/approval-gate/pkg/github"
	"github.com/codeGROOVE-dev/approval-gate/pkg/policy"
)

var (
	prURL               = flag.String("pr", "", "Pull request URL (e.g., https://github.com/owner/repo/pull/123 or owner/repo#123)")
	configPath          = flag.String("config", gate.DefaultConfigPath, "Path to the approval policy file in the repository")
	event               = flag.String("event", "", "Triggering event (opened, reopened, synchronize, ready_for_review, labeled, unlabeled)")
	removedLabel        = flag.String("removed-label", "", "Removed label name (required for unlabeled events)")
	failOnMissingConfig = flag.Bool("fail-on-missing-config", false, "Fail instead of skipping when no policy file exists")
	dryRun              = flag.Bool("dry-run", false, "Compute the decision without sending review requests or check runs")
	debug               = flag.Bool("debug", false, "Verbose output with detailed diagnostics")
	summaryMode         = flag.String("summary", "standard", "Report verbosity: minimal, standard, or verbose")
	token               = flag.String("token", "", "GitHub token (defaults to GITHUB_TOKEN, then gh CLI)")
	noCheck             = flag.Bool("no-check", false, "Skip check-run publication, print the report only")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -pr <PR_URL> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Gates a pull request on team-based approval quotas tied to labels.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -pr https://github.com/owner/repo/pull/123\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -pr owner/repo#123 -event unlabeled -removed-label billing\n", os.Args[0])
	}
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if *prURL == "" {
		// No PR context: nothing to evaluate.
		slog.Warn("No pull request specified, skipping")
		writeOutputs(string(policy.StatusSkipped), "", "")
		return
	}

	mode, err := policy.ParseSummaryMode(*summaryMode)
	if err != nil {
		slog.Error("Invalid summary mode", "error", err)
		os.Exit(1)
	}

	owner, repo, prNumber, err := parsePRURL(*prURL)
	if err != nil {
		slog.Error("Invalid PR URL", "error", err)
		os.Exit(1)
	}

	effectiveToken := *token
	if effectiveToken == "" {
		effectiveToken = os.Getenv("GITHUB_TOKEN")
	}

	ctx := context.Background()
	client, err := github.New(ctx, github.Config{
		UseAppAuth:  false,
		Token:       effectiveToken,
		HTTPTimeout: 30 * time.Second,
	})
	if err != nil {
		slog.Error("Failed to create GitHub client", "error", err)
		slog.Info("Provide -token, set GITHUB_TOKEN, or authenticate the gh CLI (run: gh auth login)")
		os.Exit(1)
	}

	checker := gate.New(client, gate.Options{
		ConfigPath:          *configPath,
		SummaryMode:         mode,
		FailOnMissingConfig: *failOnMissingConfig,
		DryRun:              *dryRun,
		SkipCheckRun:        *noCheck,
	})

	result, err := checker.Run(ctx, gate.Target{
		Owner:        owner,
		Repo:         repo,
		Number:       prNumber,
		Event:        *event,
		RemovedLabel: *removedLabel,
	})
	if err != nil {
		slog.Error("Run failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("\n%s: %s\n%s\n", result.Report.Title, result.Report.Summary, result.Report.Body)
	writeOutputs(string(result.Status), result.RequiredLabels(), result.MissingApprovals())

	if result.Status == policy.StatusFailure {
		os.Exit(1)
	}
}

// writeOutputs emits the machine-readable output set, appending to
// $GITHUB_OUTPUT when the host environment provides one.
func writeOutputs(status, requiredLabels, missingApprovals string) {
	lines := fmt.Sprintf("status=%s\nrequired_labels=%s\nmissing_approvals=%s\n",
		status, requiredLabels, missingApprovals)

	if outputPath := os.Getenv("GITHUB_OUTPUT"); outputPath != "" {
		f, err := os.OpenFile(outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			slog.Warn("Failed to open GITHUB_OUTPUT", "error", err)
			fmt.Print(lines)
			return
		}
		defer func() {
			if err := f.Close(); err != nil {
				slog.Warn("Failed to close GITHUB_OUTPUT", "error", err)
			}
		}()
		if _, err := f.WriteString(lines); err != nil {
			slog.Warn("Failed to write GITHUB_OUTPUT", "error", err)
		}
		return
	}
	fmt.Print(lines)
}

// parsePRURL parses a PR URL or shorthand into owner, repo, and PR number.
func parsePRURL(url string) (owner, repo string, prNumber int, err error) {
	// Handle shorthand: owner/repo#123
	if strings.Contains(url, "#") && !strings.Contains(url, "://") {
		parts := strings.Split(url, "#")
		if len(parts) != 2 {
			return "", "", 0, fmt.Errorf("invalid PR shorthand format (expected owner/repo#number)")
		}
		repoPath := strings.Split(parts[0], "/")
		if len(repoPath) != 2 {
			return "", "", 0, fmt.Errorf("invalid repository path (expected owner/repo)")
		}
		if _, err := fmt.Sscanf(parts[1], "%d", &prNumber); err != nil {
			return "", "", 0, fmt.Errorf("invalid PR number: %w", err)
		}
		return repoPath[0], repoPath[1], prNumber, nil
	}

	// Handle full URL: https://github.com/owner/repo/pull/123
	if strings.HasPrefix(url, "https://github.com/") || strings.HasPrefix(url, "http://github.com/") {
		url = strings.TrimPrefix(url, "https://github.com/")
		url = strings.TrimPrefix(url, "http://github.com/")
		parts := strings.Split(url, "/")
		if len(parts) < 4 || parts[2] != "pull" {
			return "", "", 0, fmt.Errorf("invalid GitHub PR URL format")
		}
		if _, err := fmt.Sscanf(parts[3], "%d", &prNumber); err != nil {
			return "", "", 0, fmt.Errorf("invalid PR number: %w", err)
		}
		return parts[0], parts[1], prNumber, nil
	}

	return "", "", 0, fmt.Errorf("invalid PR URL format (use: https://github.com/owner/repo/pull/123 or owner/repo#123)")
}
