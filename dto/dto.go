package dto

import (
	"github.com/google/uuid"
	"time"
	"vet-transcribe/constant"
	"vet-transcribe/entities"
)

type UploadAudioForm struct {
	PatientId       string   `form:"patient_id" binding:"omitempty,uuid"`
	DurationSeconds *float64 `form:"duration_seconds" binding:"omitempty,gte=0"`
}

type UploadAudioResponse struct {
	AudioFileId        uuid.UUID `json:"audio_file_id"`
	TranscriptionJobId uuid.UUID `json:"transcription_job_id"`
	Message            string    `json:"message"`
}

type RetryJobResponse struct {
	TranscriptionJobId uuid.UUID `json:"transcription_job_id"`
}

type TranscriptionJobResponse struct {
	ID              uuid.UUID          `json:"id"`
	AudioFileId     uuid.UUID          `json:"audio_file_id"`
	Status          constant.JobStatus `json:"status"`
	Transcript      *string            `json:"transcript,omitempty"`
	ConfidenceScore *float64           `json:"confidence_score,omitempty"`
	ErrorMessage    *string            `json:"error_message,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
}

func NewTranscriptionJobResponse(job *entities.TranscriptionJob) TranscriptionJobResponse {
	return TranscriptionJobResponse{
		ID:              job.ID,
		AudioFileId:     job.AudioFileId,
		Status:          job.Status,
		Transcript:      job.Transcript,
		ConfidenceScore: job.ConfidenceScore,
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
	}
}

type GenerateNoteRequest struct {
	TranscriptionJobId uuid.UUID `json:"transcription_job_id"`
	PatientId          uuid.UUID `json:"patient_id"`
	TemplateType       string    `json:"template_type"`
}

type GenerateNoteResponse struct {
	Success         bool     `json:"success"`
	NoteId          string   `json:"note_id"`
	Message         string   `json:"message"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`
}

// JobEvent is published on the broker whenever a job is created or reaches
// a terminal state.
type JobEvent struct {
	Type               constant.EventType `json:"type"`
	TranscriptionJobId uuid.UUID          `json:"transcriptionJobId"`
	AudioFileId        uuid.UUID          `json:"audioFileId"`
	Status             constant.JobStatus `json:"status"`
	ConfidenceScore    *float64           `json:"confidenceScore,omitempty"`
	ErrorMessage       *string            `json:"errorMessage,omitempty"`
	OccurredAt         time.Time          `json:"occurredAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
