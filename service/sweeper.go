package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"io"
	"sync"
	"time"
	"vet-transcribe/constant"
	"vet-transcribe/entities"
	"vet-transcribe/pkg/metrics"
	"vet-transcribe/pkg/speech"
	"vet-transcribe/pkg/storage"
	"vet-transcribe/repository"
)

type SweeperConfig struct {
	BatchSize       int
	Interval        time.Duration
	JobTimeout      time.Duration
	ErrorBackoff    time.Duration
	LanguageCode    string
	Model           string
	SampleRateHertz int32
	Phrases         []string
}

// SweepResult counts what happened to the jobs selected by one sweep.
type SweepResult struct {
	Selected  int
	Claimed   int
	Completed int
	Failed    int
}

// Sweeper periodically claims the oldest pending jobs and transcribes them
// concurrently. Several sweepers may run against the same database.
type Sweeper interface {
	Sweep(ctx context.Context) (SweepResult, error)
	Run(ctx context.Context) error
	// Trigger requests a sweep ahead of the next tick.
	Trigger()
}

type sweeper struct {
	repo       repository.JobRepository
	store      storage.Store
	recognizer speech.Recognizer
	publisher  EventPublisher
	cfg        SweeperConfig
	now        func() time.Time
	wake       chan struct{}
}

func NewSweeper(repo repository.JobRepository, store storage.Store, recognizer speech.Recognizer, publisher EventPublisher, cfg SweeperConfig) Sweeper {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 30 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &sweeper{
		repo:       repo,
		store:      store,
		recognizer: recognizer,
		publisher:  publisher,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		wake:       make(chan struct{}, 1),
	}
}

func (s *sweeper) Trigger() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *sweeper) Run(ctx context.Context) error {
	zerolog.Ctx(ctx).Info().
		Int("batch_size", s.cfg.BatchSize).
		Dur("interval", s.cfg.Interval).
		Msg("transcription sweeper started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			zerolog.Ctx(ctx).Info().Msg("transcription sweeper stopped")
			return nil
		case <-timer.C:
		case <-s.wake:
		}

		delay := s.cfg.Interval
		if _, err := s.Sweep(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			zerolog.Ctx(ctx).Error().Err(err).Dur("retry_in", s.cfg.ErrorBackoff).Msg("sweep failed")
			delay = s.cfg.ErrorBackoff
		}
		timer.Reset(delay)
	}
}

func (s *sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var result SweepResult

	pending, err := s.repo.ListPendingJobs(ctx, s.cfg.BatchSize)
	if err != nil {
		return result, fmt.Errorf("list pending jobs: %w", err)
	}
	result.Selected = len(pending)
	if len(pending) == 0 {
		return result, nil
	}

	claimed := make([]*entities.TranscriptionJob, 0, len(pending))
	for _, job := range pending {
		now := s.now()
		if err := s.repo.ClaimJob(ctx, job.ID, now); err != nil {
			if errors.Is(err, repository.ErrAlreadyClaimed) || errors.Is(err, repository.ErrJobNotFound) {
				metrics.ClaimConflicts.Inc()
				zerolog.Ctx(ctx).Debug().Err(err).Str("job_id", job.ID.String()).Msg("skipping job")
				continue
			}
			zerolog.Ctx(ctx).Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to claim job")
			continue
		}
		job.Status = constant.JobStatusProcessing
		job.StartedAt = &now
		claimed = append(claimed, job)
	}
	result.Claimed = len(claimed)
	metrics.SweepBatchSize.Observe(float64(len(claimed)))

	zerolog.Ctx(ctx).Info().
		Int("selected", result.Selected).
		Int("claimed", result.Claimed).
		Msg("processing transcription batch")

	// claimed jobs run to completion even if the caller is shutting down
	jobCtx := context.WithoutCancel(ctx)
	statuses := make([]constant.JobStatus, len(claimed))
	var wg sync.WaitGroup
	for i, job := range claimed {
		wg.Add(1)
		go func(i int, job *entities.TranscriptionJob) {
			defer wg.Done()
			statuses[i] = s.process(jobCtx, job)
		}(i, job)
	}
	wg.Wait()

	for _, status := range statuses {
		switch status {
		case constant.JobStatusCompleted:
			result.Completed++
		case constant.JobStatusFailed:
			result.Failed++
		}
	}
	metrics.SweepDuration.Observe(time.Since(start).Seconds())

	zerolog.Ctx(ctx).Info().
		Int("completed", result.Completed).
		Int("failed", result.Failed).
		Dur("took", time.Since(start)).
		Msg("transcription batch finished")

	return result, nil
}

// process transcribes one claimed job and records the outcome on it. It
// never returns an error: every failure ends up on the job row.
func (s *sweeper) process(ctx context.Context, job *entities.TranscriptionJob) (status constant.JobStatus) {
	logger := zerolog.Ctx(ctx).With().
		Str("job_id", job.ID.String()).
		Str("audio_file_id", job.AudioFileId.String()).
		Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("transcription panicked")
			status = s.fail(ctx, job, fmt.Errorf("%w: %v", errTranscriptionPanicked, r))
		}
	}()

	audio, err := s.locateAudio(ctx, job.AudioFileId)
	if err != nil {
		logger.Warn().Err(err).Msg("audio source missing")
		return s.fail(ctx, job, err)
	}

	transcript, confidence, err := s.transcribe(ctx, audio)
	if err != nil {
		logger.Error().Err(err).Msg("transcription failed")
		return s.fail(ctx, job, err)
	}

	now := s.now()
	if err := s.repo.CompleteJob(ctx, job.ID, transcript, confidence, now); err != nil {
		logger.Error().Err(err).Msg("failed to record transcription result")
		return ""
	}
	job.Status = constant.JobStatusCompleted
	job.Transcript = &transcript
	job.ConfidenceScore = &confidence
	job.CompletedAt = &now
	metrics.JobsFinished.WithLabelValues(string(constant.JobStatusCompleted)).Inc()
	publish(ctx, s.publisher, constant.EventTranscriptionCompleted, job, now)

	logger.Info().
		Int("transcript_length", len(transcript)).
		Float64("confidence", confidence).
		Msg("transcription completed")
	return constant.JobStatusCompleted
}

// locateAudio resolves the job's audio record and checks the artifact is
// still in storage, without calling the speech backend.
func (s *sweeper) locateAudio(ctx context.Context, audioFileId uuid.UUID) (*entities.AudioFile, error) {
	audio, err := s.repo.FindAudioFileById(ctx, audioFileId)
	if errors.Is(err, repository.ErrAudioFileNotFound) {
		return nil, fmt.Errorf("%w: audio file record %s", ErrAudioMissing, audioFileId)
	}
	if err != nil {
		return nil, err
	}

	exists, err := s.store.Exists(ctx, audio.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("check audio source: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAudioMissing, audio.StorageKey)
	}
	return audio, nil
}

func (s *sweeper) transcribe(ctx context.Context, audio *entities.AudioFile) (string, float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	rc, err := s.store.Open(ctx, audio.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return "", 0, fmt.Errorf("%w: %s", ErrAudioMissing, audio.StorageKey)
	}
	if err != nil {
		return "", 0, fmt.Errorf("read audio source: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return "", 0, fmt.Errorf("read audio source: %w", err)
	}

	start := time.Now()
	segments, err := s.recognizer.Recognize(ctx, speech.Request{
		Audio:           data,
		Filename:        audio.Filename,
		Encoding:        audio.Codec,
		SampleRateHertz: s.cfg.SampleRateHertz,
		LanguageCode:    s.cfg.LanguageCode,
		Model:           s.cfg.Model,
		Phrases:         s.cfg.Phrases,
	})
	metrics.RecognizeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", 0, fmt.Errorf("%w after %s: %w", ErrTranscriptionTimeout, s.cfg.JobTimeout, err)
		}
		return "", 0, err
	}

	return BuildTranscript(segments)
}

func (s *sweeper) fail(ctx context.Context, job *entities.TranscriptionJob, cause error) constant.JobStatus {
	now := s.now()
	message := cause.Error()
	if err := s.repo.FailJob(ctx, job.ID, message, now); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to record job failure")
		return ""
	}
	job.Status = constant.JobStatusFailed
	job.ErrorMessage = &message
	job.CompletedAt = &now
	metrics.JobsFinished.WithLabelValues(string(constant.JobStatusFailed)).Inc()
	publish(ctx, s.publisher, constant.EventTranscriptionFailed, job, now)
	return constant.JobStatusFailed
}
