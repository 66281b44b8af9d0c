package entities

import (
	"fmt"
	"github.com/google/uuid"
	"time"
	"vet-transcribe/constant"
)

type TranscriptionJob struct {
	ID              uuid.UUID          `json:"id" gorm:"type:uuid;primary_key"`
	AudioFileId     uuid.UUID          `json:"audio_file_id" gorm:"type:uuid;not null;index:idx_transcription_jobs_audio_file_id"`
	Status          constant.JobStatus `json:"status" gorm:"type:varchar(20);not null;index:idx_transcription_jobs_status_created,priority:1"`
	Transcript      *string            `json:"transcript" gorm:"type:text"`
	ConfidenceScore *float64           `json:"confidence_score"`
	ErrorMessage    *string            `json:"error_message" gorm:"type:text"`
	CreatedAt       time.Time          `json:"created_at" gorm:"not null;index:idx_transcription_jobs_status_created,priority:2"`
	StartedAt       *time.Time         `json:"started_at"`
	CompletedAt     *time.Time         `json:"completed_at"`
}

func (TranscriptionJob) TableName() string {
	return "transcription_jobs"
}

// Validate checks the lifecycle invariants between status and the nullable
// columns.
func (j TranscriptionJob) Validate() error {
	switch j.Status {
	case constant.JobStatusPending:
		if j.StartedAt != nil || j.CompletedAt != nil {
			return fmt.Errorf("pending job %s has lifecycle timestamps", j.ID)
		}
	case constant.JobStatusProcessing:
		if j.StartedAt == nil || j.CompletedAt != nil {
			return fmt.Errorf("processing job %s: started_at must be set and completed_at unset", j.ID)
		}
	case constant.JobStatusCompleted:
		if j.StartedAt == nil || j.CompletedAt == nil {
			return fmt.Errorf("completed job %s is missing lifecycle timestamps", j.ID)
		}
		if j.Transcript == nil || j.ConfidenceScore == nil {
			return fmt.Errorf("completed job %s is missing transcript or confidence", j.ID)
		}
		if j.ErrorMessage != nil {
			return fmt.Errorf("completed job %s carries an error message", j.ID)
		}
		return nil
	case constant.JobStatusFailed:
		if j.StartedAt == nil || j.CompletedAt == nil {
			return fmt.Errorf("failed job %s is missing lifecycle timestamps", j.ID)
		}
		if j.ErrorMessage == nil {
			return fmt.Errorf("failed job %s has no error message", j.ID)
		}
		if j.Transcript != nil || j.ConfidenceScore != nil {
			return fmt.Errorf("failed job %s carries transcription results", j.ID)
		}
		return nil
	default:
		return fmt.Errorf("job %s has unknown status %q", j.ID, j.Status)
	}

	if j.Transcript != nil || j.ConfidenceScore != nil || j.ErrorMessage != nil {
		return fmt.Errorf("non-terminal job %s carries results", j.ID)
	}
	return nil
}
