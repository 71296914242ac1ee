package jobqueue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType(t *testing.T) {
	assert.Equal(t, "send_email", string(JobTypeSendEmail))
	assert.Equal(t, "membership_renewal", string(JobTypeRenewal))
}

func TestJobStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   JobStatus
		expected string
	}{
		{"Pending", JobStatusPending, "pending"},
		{"Processing", JobStatusProcessing, "processing"},
		{"Completed", JobStatusCompleted, "completed"},
		{"Failed", JobStatusFailed, "failed"},
		{"Retrying", JobStatusRetrying, "retrying"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.status))
		})
	}
}

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       *Job
		retryable bool
	}{
		{"Failed job with retries remaining", &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}, true},
		{"Failed job with no retries remaining", &Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3}, false},
		{"Completed job", &Job{Status: JobStatusCompleted, RetryCount: 1, MaxRetries: 3}, false},
		{"Pending job", &Job{Status: JobStatusPending, MaxRetries: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestJob_StatusTransitions(t *testing.T) {
	job := &Job{Status: JobStatusPending, MaxRetries: 3}
	before := time.Now()

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)
	assert.False(t, job.UpdatedAt.Before(before))

	job.MarkAsFailed("smtp down")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "smtp down", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)
	assert.True(t, job.IsRetryable())

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
}

func TestEmailJobPayloadThroughJSON(t *testing.T) {
	payload := EmailJobPayload{
		To:       "lan@example.vn",
		Template: "membership_upgraded",
		Data:     map[string]string{"Name": "Lan", "Plan": "Thành viên"},
	}

	// the payload travels inside a stored job
	raw, err := json.Marshal(Job{ID: "j1", Type: JobTypeSendEmail, Payload: payload.ToMap()})
	require.NoError(t, err)
	var job Job
	require.NoError(t, json.Unmarshal(raw, &job))

	got, err := EmailJobPayloadFromMap(job.Payload)
	require.NoError(t, err)
	assert.Equal(t, payload, *got)
}

func TestRenewalJobPayloadFromMap(t *testing.T) {
	got, err := RenewalJobPayloadFromMap(RenewalJobPayload{UserID: "u-42"}.ToMap())
	require.NoError(t, err)
	assert.Equal(t, "u-42", got.UserID)

	_, err = RenewalJobPayloadFromMap(map[string]interface{}{"user_id": 42})
	assert.Error(t, err)
}
