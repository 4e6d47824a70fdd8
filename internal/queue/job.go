package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeReminder is a job delivering the pending tasks of one chat
	JobTypeReminder JobType = "reminder"
)

// DefaultMaxRetries bounds redelivery of a failed job
const DefaultMaxRetries = 3

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID      `json:"id"`
	Type       JobType        `json:"type"`
	ChatID     int64          `json:"chat_id"`
	Username   string         `json:"username,omitempty"`   // last username seen for the chat
	NotBefore  *time.Time     `json:"not_before,omitempty"` // Earliest time to process job (nil = immediate)
	NotAfter   *time.Time     `json:"not_after,omitempty"`  // Latest time to process job (nil = no expiration)
	Metadata   map[string]any `json:"metadata,omitempty"`   // Job-specific data
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewJob creates a new job
func NewJob(jobType JobType, chatID int64, username string) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		ChatID:     chatID,
		Username:   username,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}
}

// MetadataSource names who requested a job, e.g. "scheduler"
const MetadataSource = "source"

// NewReminderJob creates a reminder job that goes stale after staleAfter.
// A zero staleAfter never expires.
func NewReminderJob(chatID int64, username string, staleAfter time.Duration) *Job {
	job := NewJob(JobTypeReminder, chatID, username)
	if staleAfter > 0 {
		notAfter := job.CreatedAt.Add(staleAfter)
		job.NotAfter = &notAfter
	}
	return job
}

// Source returns who requested the job, or "" when unset
func (j *Job) Source() string {
	source, _ := j.Metadata[MetadataSource].(string)
	return source
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()

	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}

	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}

	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}

	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}
