package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/codeGROOVE-dev/sprinkler/pkg/client"
)

const (
	eventChannelSize      = 100             // Buffer size for event channel
	eventDedupWindow      = 5 * time.Second // Time window for deduplicating events
	eventMapMaxSize       = 1000            // Maximum entries in event dedup map
	eventMapCleanupAge    = 1 * time.Hour   // Age threshold for cleaning up old entries
	sprinklerMaxRetries   = 3               // Max retries for PR processing
	sprinklerMaxDelay     = 10 * time.Second
	connectionHealthCheck = 2 * time.Minute // Check connection health every 2 minutes
	maxReconnectAttempts  = 100             // Max outer reconnection attempts
	reconnectBackoff      = 30 * time.Second
)

// sprinklerMonitor manages WebSocket event subscriptions for a single org.
type sprinklerMonitor struct {
	mu                sync.RWMutex
	lastConnectedAt   time.Time
	lastEventAt       time.Time
	bot               *Bot
	client            *client.Client
	eventChan         chan string          // PR URLs that need a gate run
	lastEventMap      map[string]time.Time // last event per URL, for dedup
	stopChan          chan struct{}
	org               string
	reconnectAttempts int
	isRunning         bool
	isConnected       bool
	isStopped         bool
}

// newSprinklerMonitor creates a new sprinkler monitor for a specific org.
func newSprinklerMonitor(bot *Bot, org string) *sprinklerMonitor {
	return &sprinklerMonitor{
		bot:          bot,
		org:          org,
		eventChan:    make(chan string, eventChannelSize),
		lastEventMap: make(map[string]time.Time),
		stopChan:     make(chan struct{}),
	}
}

// start begins monitoring PR events for this org.
func (sm *sprinklerMonitor) start(ctx context.Context) error {
	sm.mu.Lock()
	if sm.isRunning {
		sm.mu.Unlock()
		slog.Info("Monitor already running", "component", "sprinkler", "org", sm.org)
		return nil
	}
	sm.isRunning = true
	sm.isStopped = false
	sm.mu.Unlock()

	slog.Info("Starting event monitor for org", "component", "sprinkler", "org", sm.org)

	go sm.processEvents(ctx)
	go sm.manageConnection(ctx)
	go sm.monitorHealth(ctx)

	return nil
}

// stop signals the monitor to shut down.
func (sm *sprinklerMonitor) stop() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.isStopped {
		return
	}
	sm.isStopped = true
	sm.isRunning = false
	close(sm.stopChan)
}

// manageConnection restarts the WebSocket client when it gives up. The
// sprinkler client has its own internal reconnection logic; this loop only
// handles fatal exits.
func (sm *sprinklerMonitor) manageConnection(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Connection manager panic", "component", "sprinkler", "org", sm.org, "panic", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sm.stopChan:
			return
		default:
			sm.mu.RLock()
			stopped := sm.isStopped
			sm.mu.RUnlock()
			if stopped {
				return
			}

			if err := sm.connectWebSocket(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}

				sm.mu.Lock()
				sm.reconnectAttempts++
				attempts := sm.reconnectAttempts
				sm.mu.Unlock()

				if attempts >= maxReconnectAttempts {
					slog.Error("Max reconnection attempts reached, giving up", "component", "sprinkler", "org", sm.org, "attempts", attempts)
					return
				}

				backoff := reconnectBackoff * time.Duration(attempts)
				if backoff > 5*time.Minute {
					backoff = 5 * time.Minute
				}
				slog.Warn("WebSocket client gave up, will restart after backoff",
					"component", "sprinkler", "org", sm.org, "attempt", attempts, "backoff", backoff, "error", err)

				select {
				case <-ctx.Done():
					return
				case <-sm.stopChan:
					return
				case <-time.After(backoff):
				}
			} else {
				sm.mu.Lock()
				sm.reconnectAttempts = 0
				sm.mu.Unlock()

				select {
				case <-ctx.Done():
					return
				case <-sm.stopChan:
					return
				case <-time.After(5 * time.Second):
				}
			}
		}
	}
}

// connectWebSocket establishes a WebSocket connection and blocks until the
// client exits.
func (sm *sprinklerMonitor) connectWebSocket(ctx context.Context) error {
	config := client.Config{
		ServerURL:    "wss://" + client.DefaultServerAddress + "/ws",
		Organization: sm.org,
		TokenProvider: func() (string, error) {
			sm.bot.client.SetCurrentOrg(sm.org)
			token, err := sm.bot.client.Token(ctx)
			sm.bot.client.SetCurrentOrg("")
			if err != nil {
				return "", fmt.Errorf("failed to get token: %w", err)
			}
			return token, nil
		},
		EventTypes:     []string{"pull_request"},
		UserEventsOnly: false,
		Verbose:        false,
		NoReconnect:    false,
		OnConnect: func() {
			sm.mu.Lock()
			sm.isConnected = true
			sm.lastConnectedAt = time.Now()
			sm.mu.Unlock()
			slog.Info("WebSocket connected", "component", "sprinkler", "org", sm.org)
		},
		OnDisconnect: func(err error) {
			sm.mu.Lock()
			wasConnected := sm.isConnected
			sm.isConnected = false
			sm.mu.Unlock()
			if err != nil && !errors.Is(err, context.Canceled) && wasConnected {
				slog.Warn("WebSocket disconnected", "component", "sprinkler", "org", sm.org, "error", err)
			}
		},
		OnEvent: func(event client.Event) {
			sm.handleEvent(event)
		},
	}

	wsClient, err := client.New(config)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	sm.mu.Lock()
	sm.client = wsClient
	sm.mu.Unlock()

	slog.Info("Starting WebSocket client", "component", "sprinkler", "org", sm.org)
	startTime := time.Now()

	if err := wsClient.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("WebSocket client stopped with error",
			"component", "sprinkler", "org", sm.org,
			"uptime", time.Since(startTime).Round(time.Second), "error", err)
		return err
	}
	return nil
}

// handleEvent filters and dedupes incoming PR events.
func (sm *sprinklerMonitor) handleEvent(event client.Event) {
	if event.Type != "pull_request" {
		return
	}
	if event.URL == "" {
		slog.Warn("Received PR event with empty URL", "component", "sprinkler")
		return
	}

	// URL format: https://github.com/org/repo/pull/123
	parts := strings.Split(event.URL, "/")
	const minParts = 5
	if len(parts) < minParts || parts[2] != "github.com" {
		slog.Warn("Failed to extract org from URL", "component", "sprinkler", "url", event.URL)
		return
	}
	if parts[3] != sm.org {
		slog.Debug("Ignoring event for different org", "component", "sprinkler", "event_org", parts[3], "monitor_org", sm.org)
		return
	}

	sm.mu.Lock()
	sm.lastEventAt = time.Now()
	last, seen := sm.lastEventMap[event.URL]
	if seen && time.Since(last) < eventDedupWindow {
		sm.mu.Unlock()
		slog.Debug("Deduplicating event", "component", "sprinkler", "url", event.URL)
		return
	}
	sm.lastEventMap[event.URL] = time.Now()
	if len(sm.lastEventMap) > eventMapMaxSize {
		cutoff := time.Now().Add(-eventMapCleanupAge)
		for url, t := range sm.lastEventMap {
			if t.Before(cutoff) {
				delete(sm.lastEventMap, url)
			}
		}
	}
	sm.mu.Unlock()

	select {
	case sm.eventChan <- event.URL:
	default:
		slog.Warn("Event channel full, dropping event", "component", "sprinkler", "url", event.URL)
	}
}

// processEvents drains the event channel and runs the gate for each PR.
func (sm *sprinklerMonitor) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sm.stopChan:
			return
		case prURL := <-sm.eventChan:
			owner, repo, number, err := parseEventURL(prURL)
			if err != nil {
				slog.Warn("Failed to parse PR URL from event", "component", "sprinkler", "url", prURL, "error", err)
				continue
			}

			sm.bot.client.SetCurrentOrg(owner)
			err = retry.Do(
				func() error {
					return sm.bot.processSinglePR(ctx, owner, repo, number)
				},
				retry.Context(ctx),
				retry.Attempts(sprinklerMaxRetries),
				retry.MaxDelay(sprinklerMaxDelay),
				retry.LastErrorOnly(true),
			)
			sm.bot.client.SetCurrentOrg("")
			if err != nil {
				slog.Error("Failed to process PR event", "component", "sprinkler", "url", prURL, "error", err)
			}
		}
	}
}

// monitorHealth periodically logs connection health.
func (sm *sprinklerMonitor) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(connectionHealthCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sm.stopChan:
			return
		case <-ticker.C:
			sm.mu.RLock()
			isConnected := sm.isConnected
			lastConnected := sm.lastConnectedAt
			lastEvent := sm.lastEventAt
			stopped := sm.isStopped
			sm.mu.RUnlock()

			if stopped {
				return
			}

			if isConnected {
				var sinceEvent time.Duration
				if !lastEvent.IsZero() {
					sinceEvent = time.Since(lastEvent)
				}
				slog.Info("Sprinkler health check - connected",
					"component", "sprinkler", "org", sm.org,
					"connected_for", time.Since(lastConnected).Round(time.Second),
					"time_since_last_event", sinceEvent.Round(time.Second))
			} else if !lastConnected.IsZero() {
				slog.Warn("Sprinkler health check - disconnected",
					"component", "sprinkler", "org", sm.org,
					"disconnected_for", time.Since(lastConnected).Round(time.Second))
			}
		}
	}
}

// parseEventURL extracts owner, repo, and PR number from a PR web URL.
func parseEventURL(prURL string) (owner, repo string, number int, err error) {
	// Format: https://github.com/owner/repo/pull/123
	trimmed := strings.TrimPrefix(prURL, "https://github.com/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 4 || parts[2] != "pull" {
		return "", "", 0, fmt.Errorf("unexpected PR URL format: %s", prURL)
	}
	n, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid PR number in URL %s: %w", prURL, err)
	}
	return parts[0], parts[1], n, nil
}
