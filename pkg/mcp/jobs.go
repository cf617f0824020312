package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a harvest job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job represents a background harvest job. ID, SourceKey, StartedAt, and
// Refresh are fixed at creation; the mutable fields belong to the JobManager,
// whose accessors hand out copies so readers never race the progress poller.
type Job struct {
	ID                string    `json:"id"`
	SourceKey         string    `json:"source_key"`
	Status            JobStatus `json:"status"`
	StartedAt         time.Time `json:"started_at"`
	CompletedAt       time.Time `json:"completed_at,omitempty"`
	ArticlesProcessed int64     `json:"articles_processed"`
	ArticlesQueued    int64     `json:"articles_queued"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	Refresh           bool      `json:"refresh"`

	// Internal fields
	ctx    context.Context
	cancel context.CancelFunc
}

// terminal reports whether a status is final. Terminal statuses are sticky:
// once a job completes, fails, or is cancelled, later status updates are
// ignored so a slow crawler shutdown cannot overwrite a cancellation.
func (s JobStatus) terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobManager manages background harvest jobs
type JobManager struct {
	jobs     map[string]*Job
	mu       sync.RWMutex
	bySource map[string]string // sourceKey -> jobID for the active job
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:     make(map[string]*Job),
		bySource: make(map[string]string),
	}
}

// CreateJob creates a new job for a source, or returns the job already
// pending or running for it. The returned value is a snapshot; the manager
// keeps the live record.
func (m *JobManager) CreateJob(sourceKey string, refresh bool) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingJobID, exists := m.bySource[sourceKey]; exists {
		existingJob := m.jobs[existingJobID]
		if existingJob != nil && !existingJob.Status.terminal() {
			snapshot := *existingJob
			return &snapshot, nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        uuid.New().String(),
		SourceKey: sourceKey,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		Refresh:   refresh,
		ctx:       ctx,
		cancel:    cancel,
	}

	m.jobs[job.ID] = job
	m.bySource[sourceKey] = job.ID

	snapshot := *job
	return &snapshot, nil
}

// GetJob retrieves a snapshot of a job by ID, or nil if unknown
func (m *JobManager) GetJob(jobID string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return nil
	}
	snapshot := *job
	return &snapshot
}

// GetJobBySource retrieves a snapshot of the active job for a source, or nil
func (m *JobManager) GetJobBySource(sourceKey string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if jobID, exists := m.bySource[sourceKey]; exists {
		if job := m.jobs[jobID]; job != nil {
			snapshot := *job
			return &snapshot
		}
	}
	return nil
}

// IsRunning checks whether a job is pending or running for a source
func (m *JobManager) IsRunning(sourceKey string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if jobID, exists := m.bySource[sourceKey]; exists {
		job := m.jobs[jobID]
		return job != nil && !job.Status.terminal()
	}
	return false
}

// UpdateStatus updates the status of a job. Updates to a job already in a
// terminal state are ignored.
func (m *JobManager) UpdateStatus(jobID string, status JobStatus, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists || job.Status.terminal() {
		return
	}

	job.Status = status
	if status.terminal() {
		job.CompletedAt = time.Now()
		// Free the source for the next job
		if activeID, ok := m.bySource[job.SourceKey]; ok && activeID == jobID {
			delete(m.bySource, job.SourceKey)
		}
	}
	if errorMsg != "" {
		job.ErrorMessage = errorMsg
	}
}

// UpdateProgress updates the progress counters of a job. Counters still
// update on terminal jobs so the final poll lands after a cancellation.
func (m *JobManager) UpdateProgress(jobID string, processed, queued int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists {
		job.ArticlesProcessed = processed
		job.ArticlesQueued = queued
	}
}

// CancelJob cancels a pending or running job. Returns false when the job is
// unknown or already finished.
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists || job.Status.terminal() {
		return false
	}

	job.cancel()
	job.Status = JobStatusCancelled
	job.CompletedAt = time.Now()
	if activeID, ok := m.bySource[job.SourceKey]; ok && activeID == jobID {
		delete(m.bySource, job.SourceKey)
	}
	return true
}

// CancelAll cancels every pending or running job
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if !job.Status.terminal() {
			job.cancel()
			job.Status = JobStatusCancelled
			job.CompletedAt = time.Now()
		}
	}
	m.bySource = make(map[string]string)
}

// ListJobs returns snapshots of all jobs, in no particular order
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	return jobs
}

// GetContext returns the cancellation context for a job. Unknown IDs get a
// background context so callers need no nil check.
func (m *JobManager) GetContext(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job, exists := m.jobs[jobID]; exists {
		return job.ctx
	}
	return context.Background()
}
