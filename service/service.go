package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"io"
	"mime"
	"path"
	"strings"
	"time"
	"vet-transcribe/constant"
	"vet-transcribe/entities"
	"vet-transcribe/pkg/metrics"
	"vet-transcribe/pkg/storage"
	"vet-transcribe/repository"
)

var (
	ErrJobNotFound     = repository.ErrJobNotFound
	ErrJobNotRetryable = repository.ErrJobNotRetryable
)

type UploadRequest struct {
	Filename        string
	ContentType     string
	Size            int64
	Body            io.Reader
	PatientId       *uuid.UUID
	DurationSeconds *float64
}

type UploadResult struct {
	AudioFile *entities.AudioFile
	Job       *entities.TranscriptionJob
}

// UploadService is the server side entry point: it accepts audio, enqueues
// transcription jobs and exposes their current state.
type UploadService interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
	GetJob(ctx context.Context, id uuid.UUID) (*entities.TranscriptionJob, error)
	RetryJob(ctx context.Context, id uuid.UUID) (*entities.TranscriptionJob, error)
}

type uploadService struct {
	repo      repository.JobRepository
	store     storage.Store
	publisher EventPublisher
	maxBytes  int64
	now       func() time.Time
}

func NewUploadService(repo repository.JobRepository, store storage.Store, publisher EventPublisher, maxBytes int64) UploadService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &uploadService{
		repo:      repo,
		store:     store,
		publisher: publisher,
		maxBytes:  maxBytes,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *uploadService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if err := checkContentType(req.ContentType); err != nil {
		return nil, err
	}
	if req.Size == 0 {
		return nil, ErrEmptyUpload
	}
	if s.maxBytes > 0 && req.Size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, req.Size, s.maxBytes)
	}

	now := s.now()
	codec := constant.ResolveCodec(req.Filename, req.ContentType)
	audio := &entities.AudioFile{
		ID:              uuid.New(),
		Filename:        path.Base(req.Filename),
		ContentType:     req.ContentType,
		Codec:           codec,
		DurationSeconds: req.DurationSeconds,
		PatientId:       req.PatientId,
		UploadedAt:      now,
	}
	audio.StorageKey = storageKey(audio.ID, codec, req.Filename, now)

	body := &countingReader{r: req.Body, limit: s.maxBytes}
	if err := s.store.Put(ctx, audio.StorageKey, body, req.Size, req.ContentType); err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			s.removeOrphan(ctx, audio.StorageKey)
			return nil, err
		}
		return nil, fmt.Errorf("store audio: %w", err)
	}
	if body.n == 0 {
		s.removeOrphan(ctx, audio.StorageKey)
		return nil, ErrEmptyUpload
	}
	audio.FileSize = body.n

	job := &entities.TranscriptionJob{
		ID:          uuid.New(),
		AudioFileId: audio.ID,
		Status:      constant.JobStatusPending,
		CreatedAt:   now,
	}
	audio.TranscriptionJobId = &job.ID

	if err := s.repo.CreateAudioWithJob(ctx, audio, job); err != nil {
		s.removeOrphan(ctx, audio.StorageKey)
		return nil, fmt.Errorf("create transcription job: %w", err)
	}

	metrics.JobsCreated.Inc()
	publish(ctx, s.publisher, constant.EventTranscriptionCreated, job, now)

	zerolog.Ctx(ctx).Info().
		Str("job_id", job.ID.String()).
		Str("audio_file_id", audio.ID.String()).
		Str("codec", string(codec)).
		Int64("file_size", audio.FileSize).
		Msg("transcription job created")

	return &UploadResult{AudioFile: audio, Job: job}, nil
}

// removeOrphan deletes an object that no row will ever reference.
func (s *uploadService) removeOrphan(ctx context.Context, key string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("storage_key", key).Msg("failed to remove orphaned audio")
	}
}

func (s *uploadService) GetJob(ctx context.Context, id uuid.UUID) (*entities.TranscriptionJob, error) {
	return s.repo.FindJobById(ctx, id)
}

func (s *uploadService) RetryJob(ctx context.Context, id uuid.UUID) (*entities.TranscriptionJob, error) {
	job, err := s.repo.CreateRetryJob(ctx, id)
	if err != nil {
		return nil, err
	}

	metrics.JobsCreated.Inc()
	publish(ctx, s.publisher, constant.EventTranscriptionCreated, job, s.now())

	zerolog.Ctx(ctx).Info().
		Str("job_id", job.ID.String()).
		Str("retry_of", id.String()).
		Msg("transcription job retried")
	return job, nil
}

func checkContentType(contentType string) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	switch {
	case strings.HasPrefix(mediaType, "audio/"):
	case mediaType == "video/webm", mediaType == "application/octet-stream":
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedContentType, mediaType)
	}
	return nil
}

// storageKey lays artifacts out by upload date: audio/2026/10/14/<id>.wav.
func storageKey(id uuid.UUID, codec constant.AudioCodec, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = constant.ExtensionFor(codec)
	}
	return fmt.Sprintf("audio/%s/%s%s", now.Format("2006/01/02"), id, ext)
}

// countingReader records how many bytes went through and refuses to read
// past limit when the declared size was wrong.
type countingReader struct {
	r     io.Reader
	n     int64
	limit int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.limit > 0 && c.n > c.limit {
		return n, ErrFileTooLarge
	}
	return n, err
}
