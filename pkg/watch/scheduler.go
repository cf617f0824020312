// Package watch keeps configured sources fresh: a scheduler re-harvests each
// source on an interval, in refresh mode, persisting last-run state across
// restarts so a newly started watcher does not re-pull sources that were
// harvested recently.
package watch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/orchestrate"
)

// Scheduler manages periodic re-harvesting of sources.
type Scheduler struct {
	appCfg       *config.AppConfig
	sourceKeys   []string
	interval     time.Duration
	log          *logrus.Entry
	stateManager *StateManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new watch scheduler.
func NewScheduler(appCfg *config.AppConfig, sourceKeys []string, interval time.Duration, log *logrus.Entry) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		appCfg:       appCfg,
		sourceKeys:   sourceKeys,
		interval:     interval,
		log:          log,
		stateManager: NewStateManager(appCfg.StateDir),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Run starts the watch scheduler and blocks until stopped.
func (s *Scheduler) Run() error {
	// Load existing state
	if err := s.stateManager.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Starting watch mode for %d sources with interval %v", len(s.sourceKeys), s.interval)
	s.logSchedule()

	// Run initial harvest for sources that need it
	s.runDueSources()

	// Start the ticker for periodic checks
	ticker := time.NewTicker(s.calculateTickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.runDueSources()
		}
	}
}

// Stop stops the watch scheduler.
func (s *Scheduler) Stop() {
	s.log.Info("Stopping watch scheduler...")
	s.cancel()
}

// runDueSources harvests all sources that are due. Runs in refresh mode:
// the crawler re-fetches previously harvested articles and rewrites only
// those whose content changed.
func (s *Scheduler) runDueSources() {
	dueSources := s.getDueSources()
	if len(dueSources) == 0 {
		s.logNextRun()
		return
	}

	s.log.Infof("Running harvest for %d due sources: %v", len(dueSources), dueSources)

	orch, err := orchestrate.NewOrchestratorWithOptions(s.appCfg, dueSources, false, s.log, &orchestrate.Options{Refresh: true})
	if err != nil {
		s.log.Errorf("Failed to build orchestrator for due sources: %v", err)
		return
	}

	// Run in a goroutine so we can handle shutdown
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		results := orch.Run()

		// Update state for each source
		for _, result := range results {
			errorMsg := ""
			if result.Error != nil {
				errorMsg = result.Error.Error()
			}
			s.stateManager.UpdateSourceState(result.SourceKey, result.Success, result.ArticlesProcessed, errorMsg)
		}

		// Save state
		if err := s.stateManager.Save(); err != nil {
			s.log.Errorf("Failed to save watch state: %v", err)
		}

		s.logNextRun()
	}()
}

// getDueSources returns sources that are due for a harvest.
func (s *Scheduler) getDueSources() []string {
	var due []string
	for _, sourceKey := range s.sourceKeys {
		if s.stateManager.ShouldRun(sourceKey, s.interval) {
			due = append(due, sourceKey)
		}
	}
	return due
}

// calculateTickInterval returns how often to check for due sources.
func (s *Scheduler) calculateTickInterval() time.Duration {
	// Check at least every minute, or every 1/10th of the interval
	checkInterval := s.interval / 10
	if checkInterval < time.Minute {
		checkInterval = time.Minute
	}
	if checkInterval > 10*time.Minute {
		checkInterval = 10 * time.Minute
	}
	return checkInterval
}

// logSchedule logs the current schedule.
func (s *Scheduler) logSchedule() {
	s.log.Info("Watch schedule:")
	for _, sourceKey := range s.sourceKeys {
		state, exists := s.stateManager.GetSourceState(sourceKey)
		if exists {
			nextRun := s.stateManager.GetNextRunTime(sourceKey, s.interval)
			status := "success"
			if !state.LastRunSuccess {
				status = "failed"
			}
			s.log.Infof("  %s: last run %v (%s, %d articles), next run %v",
				sourceKey,
				state.LastRunTime.Format(time.RFC3339),
				status,
				state.ArticlesProcessed,
				nextRun.Format(time.RFC3339))
		} else {
			s.log.Infof("  %s: never run, will run immediately", sourceKey)
		}
	}
}

// logNextRun logs when the next run will occur.
func (s *Scheduler) logNextRun() {
	var nextRuns []struct {
		source string
		time   time.Time
	}

	for _, sourceKey := range s.sourceKeys {
		nextRun := s.stateManager.GetNextRunTime(sourceKey, s.interval)
		nextRuns = append(nextRuns, struct {
			source string
			time   time.Time
		}{sourceKey, nextRun})
	}

	// Sort by next run time
	sort.Slice(nextRuns, func(i, j int) bool {
		return nextRuns[i].time.Before(nextRuns[j].time)
	})

	if len(nextRuns) > 0 {
		next := nextRuns[0]
		until := time.Until(next.time)
		if until < 0 {
			until = 0
		}
		s.log.Infof("Next harvest: %s in %v (at %s)", next.source, until.Round(time.Second), next.time.Format("15:04:05"))
	}
}

// GetStatus returns the current status of all watched sources.
func (s *Scheduler) GetStatus() map[string]SourceStatus {
	status := make(map[string]SourceStatus)

	for _, sourceKey := range s.sourceKeys {
		state, exists := s.stateManager.GetSourceState(sourceKey)
		nextRun := s.stateManager.GetNextRunTime(sourceKey, s.interval)

		status[sourceKey] = SourceStatus{
			SourceKey:         sourceKey,
			LastRunTime:       state.LastRunTime,
			LastRunSuccess:    state.LastRunSuccess,
			ArticlesProcessed: state.ArticlesProcessed,
			ErrorMessage:      state.ErrorMessage,
			NextRunTime:       nextRun,
			NeverRun:          !exists,
		}
	}

	return status
}

// SourceStatus contains the status of a watched source.
type SourceStatus struct {
	SourceKey         string
	LastRunTime       time.Time
	LastRunSuccess    bool
	ArticlesProcessed int64
	ErrorMessage      string
	NextRunTime       time.Time
	NeverRun          bool
}

// FormatInterval formats a duration for display.
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string with support for days.
func ParseInterval(s string) (time.Duration, error) {
	// Try standard parsing first
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	// Check for day suffix
	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
