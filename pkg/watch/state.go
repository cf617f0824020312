package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const stateFileName = "watch_state.json"

// SourceState contains the last run information for a source.
type SourceState struct {
	LastRunTime       time.Time `json:"last_run_time"`
	LastRunSuccess    bool      `json:"last_run_success"`
	ArticlesProcessed int64     `json:"articles_processed"`
	ErrorMessage      string    `json:"error_message,omitempty"`
}

// WatchState contains the persistent state for the watch scheduler.
type WatchState struct {
	Sources   map[string]SourceState `json:"sources"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// StateManager handles persisting and loading watch state.
type StateManager struct {
	stateDir  string
	statePath string
	state     WatchState
	mu        sync.RWMutex
}

// NewStateManager creates a new state manager.
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		state: WatchState{
			Sources: make(map[string]SourceState),
		},
	}
}

// Load loads the state from disk.
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No state file yet, start fresh
			m.state = WatchState{
				Sources: make(map[string]SourceState),
			}
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if err := json.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}

	if m.state.Sources == nil {
		m.state.Sources = make(map[string]SourceState)
	}

	return nil
}

// Save saves the state to disk.
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()

	// Ensure state directory exists
	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(m.statePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// GetSourceState returns the state for a specific source.
func (m *StateManager) GetSourceState(sourceKey string) (SourceState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.state.Sources[sourceKey]
	return state, ok
}

// UpdateSourceState updates the state for a specific source.
func (m *StateManager) UpdateSourceState(sourceKey string, success bool, articlesProcessed int64, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Sources[sourceKey] = SourceState{
		LastRunTime:       time.Now(),
		LastRunSuccess:    success,
		ArticlesProcessed: articlesProcessed,
		ErrorMessage:      errorMsg,
	}
}

// ShouldRun checks if a source should run based on the interval.
func (m *StateManager) ShouldRun(sourceKey string, interval time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Sources[sourceKey]
	if !ok {
		// Never run before, should run now
		return true
	}

	// Check if enough time has passed since last run
	return time.Since(state.LastRunTime) >= interval
}

// GetNextRunTime returns when the source should next run.
func (m *StateManager) GetNextRunTime(sourceKey string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Sources[sourceKey]
	if !ok {
		return time.Now()
	}

	return state.LastRunTime.Add(interval)
}

// GetAllSourceStates returns all source states.
func (m *StateManager) GetAllSourceStates() map[string]SourceState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy
	result := make(map[string]SourceState, len(m.state.Sources))
	for k, v := range m.state.Sources {
		result[k] = v
	}
	return result
}
