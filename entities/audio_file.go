package entities

import (
	"github.com/google/uuid"
	"time"
	"vet-transcribe/constant"
)

type AudioFile struct {
	ID                 uuid.UUID           `json:"id" gorm:"type:uuid;primary_key"`
	StorageKey         string              `json:"storage_key" gorm:"type:varchar(500);not null"`
	Filename           string              `json:"filename" gorm:"type:varchar(255)"`
	ContentType        string              `json:"content_type" gorm:"type:varchar(100)"`
	Codec              constant.AudioCodec `json:"codec" gorm:"type:varchar(32);not null"`
	FileSize           int64               `json:"file_size" gorm:"type:bigint"`
	DurationSeconds    *float64            `json:"duration_seconds"`
	TranscriptionJobId *uuid.UUID          `json:"transcription_job_id" gorm:"type:uuid"`
	PatientId          *uuid.UUID          `json:"patient_id" gorm:"type:uuid;index:idx_audio_files_patient_id"`
	UploadedAt         time.Time           `json:"uploaded_at" gorm:"not null"`
}

func (AudioFile) TableName() string {
	return "audio_files"
}
