package jobqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeBatchExtraction   JobType = "batch_extraction"
	JobTypeReceiptExtraction JobType = "receipt_extraction"
)

// ParseJobType validates an external job type string
func ParseJobType(s string) (JobType, error) {
	switch JobType(s) {
	case JobTypeBatchExtraction, JobTypeReceiptExtraction:
		return JobType(s), nil
	default:
		return "", fmt.Errorf("unknown job type: %s", s)
	}
}

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

const (
	// DefaultMaxRetries counts retries after the first attempt
	DefaultMaxRetries = 2
	DefaultJobTimeout = 60 * time.Second
)

// ErrPermanent marks a handler error that must not be retried
var ErrPermanent = errors.New("permanent job failure")

// Permanent wraps err so the queue drops the job instead of retrying it
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// EnqueueOptions configures retry budget and wall-clock timeout of a single job
type EnqueueOptions struct {
	MaxRetries int
	Timeout    time.Duration
}

// DefaultEnqueueOptions is the policy for extraction jobs: 2 retries, 60s per attempt
func DefaultEnqueueOptions() EnqueueOptions {
	return EnqueueOptions{MaxRetries: DefaultMaxRetries, Timeout: DefaultJobTimeout}
}

// Job represents a background job
type Job struct {
	ID             string                 `json:"id"`
	Type           JobType                `json:"type"`
	Status         JobStatus              `json:"status"`
	Payload        map[string]interface{} `json:"payload"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	ProcessedAt    *time.Time             `json:"processed_at,omitempty"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg       string                 `json:"error_msg,omitempty"`
	RetryCount     int                    `json:"retry_count"`
	MaxRetries     int                    `json:"max_retries"`
	TimeoutSeconds int                    `json:"timeout_seconds"`
}

// Timeout returns the per-attempt deadline, falling back to DefaultJobTimeout
func (j *Job) Timeout() time.Duration {
	if j.TimeoutSeconds <= 0 {
		return DefaultJobTimeout
	}
	return time.Duration(j.TimeoutSeconds) * time.Second
}

// BatchExtractionPayload is the task for one file of a batch session
type BatchExtractionPayload struct {
	BatchSessionID uint   `json:"batch_session_id"`
	FileIndex      int    `json:"file_index"`
	UserID         uint   `json:"user_id"`
	FileURL        string `json:"file_url"`
	Filename       string `json:"filename"`
}

// ToMap converts the payload to a map for storage
func (p BatchExtractionPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"batch_session_id": p.BatchSessionID,
		"file_index":       p.FileIndex,
		"user_id":          p.UserID,
		"file_url":         p.FileURL,
		"filename":         p.Filename,
	}
}

func BatchExtractionPayloadFromMap(data map[string]interface{}) (*BatchExtractionPayload, error) {
	var payload BatchExtractionPayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	if payload.BatchSessionID == 0 || payload.FileURL == "" {
		return nil, errors.New("batch payload requires batch_session_id and file_url")
	}
	return &payload, nil
}

// ReceiptExtractionPayload is the task for a single-file receipt
type ReceiptExtractionPayload struct {
	ReceiptID uint   `json:"receipt_id"`
	UserID    uint   `json:"user_id"`
	FileURL   string `json:"file_url"`
	Filename  string `json:"filename"`
}

func (p ReceiptExtractionPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"receipt_id": p.ReceiptID,
		"user_id":    p.UserID,
		"file_url":   p.FileURL,
		"filename":   p.Filename,
	}
}

func ReceiptExtractionPayloadFromMap(data map[string]interface{}) (*ReceiptExtractionPayload, error) {
	var payload ReceiptExtractionPayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	if payload.ReceiptID == 0 || payload.FileURL == "" {
		return nil, errors.New("receipt payload requires receipt_id and file_url")
	}
	return &payload, nil
}

func decodePayload(data map[string]interface{}, out interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, out)
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount <= j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed and counts the attempt
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
