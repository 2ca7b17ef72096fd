package supervisor

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/himorishige/hatago-mcp-hub/internal/connector"
	"github.com/himorishige/hatago-mcp-hub/pkg/logging"
)

// DefaultHealthCheckInterval is the period between health-check sweeps.
const DefaultHealthCheckInterval = 30 * time.Second

// restartBackoffSchedule is the exponential backoff schedule between
// restart attempts, capped at 30s (spec.md §4.2: "0s, 5s, 15s capped at 30s").
var restartBackoffSchedule = []time.Duration{0, 5 * time.Second, 15 * time.Second}

func restartBackoff(attempt int) time.Duration {
	if attempt < len(restartBackoffSchedule) {
		return restartBackoffSchedule[attempt]
	}
	return 30 * time.Second
}

// RunHealthChecks runs one health-check sweep across every connected server,
// concurrently, awaited with allSettled-equivalent semantics (spec.md §5).
// Call this on a timer (DefaultHealthCheckInterval by default) for the
// lifetime of the hub.
func (s *Supervisor) RunHealthChecks(ctx context.Context) {
	var eg errgroup.Group

	for _, record := range s.All() {
		record := record
		if record.Status != StateConnected || record.IsRestarting {
			continue
		}
		eg.Go(func() error {
			s.checkOne(ctx, record)
			return nil
		})
	}

	_ = eg.Wait()
}

// checkOne probes one server with a benign request (tools/list) and advances
// its failure count, triggering a restart once the budget is exhausted.
func (s *Supervisor) checkOne(ctx context.Context, record *Record) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := record.Client.ListTools(checkCtx)

	s.mu.Lock()
	if err != nil {
		record.HealthCheckFailures++
		failures := record.HealthCheckFailures
		s.mu.Unlock()
		logging.Warn("supervisor", "server %s: health check failed (%d/%d): %v", record.ID, failures, s.maxHealthCheckFailures, err)

		if failures >= s.maxHealthCheckFailures {
			go s.restart(ctx, record)
		}
		return
	}
	record.HealthCheckFailures = 0
	s.mu.Unlock()
}

// restart performs the restarting → connected|crashed transition with
// budgeted, backed-off attempts (spec.md §4.2).
func (s *Supervisor) restart(ctx context.Context, record *Record) {
	s.mu.Lock()
	if record.IsRestarting {
		s.mu.Unlock()
		return
	}
	record.IsRestarting = true
	record.Status = StateRestarting
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		record.IsRestarting = false
		s.mu.Unlock()
	}()

	for attempt := 0; attempt < s.maxAutoRestartAttempts; attempt++ {
		delay := restartBackoff(attempt)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}

		if record.Client != nil {
			_ = record.Client.Close()
		}

		client, err := connector.Connect(ctx, record.ID, record.Spec)
		if err == nil {
			now := time.Now()
			s.mu.Lock()
			record.Client = client
			record.Status = StateConnected
			record.HealthCheckFailures = 0
			record.AutoRestartAttempts = 0
			record.LastRestartAt = &now
			s.mu.Unlock()

			if s.notificationHandler != nil {
				id := record.ID
				client.OnNotification(func(n mcp.JSONRPCNotification) {
					s.notificationHandler(id, n)
				})
			}

			s.discover(ctx, record)
			logging.Info("supervisor", "server:auto-restart-success server=%s attempt=%d", record.ID, attempt+1)
			return
		}

		logging.Warn("supervisor", "server %s: restart attempt %d/%d failed: %v", record.ID, attempt+1, s.maxAutoRestartAttempts, err)
		s.mu.Lock()
		record.AutoRestartAttempts = attempt + 1
		record.LastError = err
		s.mu.Unlock()
	}

	s.mu.Lock()
	record.Status = StateCrashed
	s.mu.Unlock()
	logging.Warn("supervisor", "server %s: exhausted %d restart attempts, marking crashed", record.ID, s.maxAutoRestartAttempts)
}
