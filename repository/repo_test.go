package repository

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"path/filepath"
	"sync"
	"testing"
	"time"
	"vet-transcribe/constant"
	"vet-transcribe/entities"
)

func newTestRepo(t *testing.T) JobRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "queue.db")), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewGormRepo(db)
}

func seedJob(t *testing.T, r JobRepository, createdAt time.Time) *entities.TranscriptionJob {
	t.Helper()

	jobId := uuid.New()
	audio := &entities.AudioFile{
		ID:                 uuid.New(),
		StorageKey:         "audio/" + jobId.String() + ".wav",
		Filename:           "visit.wav",
		ContentType:        "audio/wav",
		Codec:              constant.CodecLinear16,
		TranscriptionJobId: &jobId,
		UploadedAt:         createdAt,
	}
	job := &entities.TranscriptionJob{
		ID:          jobId,
		AudioFileId: audio.ID,
		Status:      constant.JobStatusPending,
		CreatedAt:   createdAt,
	}
	if err := r.CreateAudioWithJob(context.Background(), audio, job); err != nil {
		t.Fatalf("create audio with job: %v", err)
	}
	return job
}

func TestCreateAudioWithJob(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	job := seedJob(t, r, time.Now().UTC())

	got, err := r.FindJobById(ctx, job.ID)
	if err != nil {
		t.Fatalf("find job: %v", err)
	}
	if got.Status != constant.JobStatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("invariants: %v", err)
	}

	audio, err := r.FindAudioFileById(ctx, got.AudioFileId)
	if err != nil {
		t.Fatalf("find audio: %v", err)
	}
	if audio.TranscriptionJobId == nil || *audio.TranscriptionJobId != job.ID {
		t.Fatalf("audio back-reference = %v, want %s", audio.TranscriptionJobId, job.ID)
	}
}

func TestFindMissingRows(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	if _, err := r.FindJobById(ctx, uuid.New()); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("FindJobById error = %v, want %v", err, ErrJobNotFound)
	}
	if _, err := r.FindAudioFileById(ctx, uuid.New()); !errors.Is(err, ErrAudioFileNotFound) {
		t.Fatalf("FindAudioFileById error = %v, want %v", err, ErrAudioFileNotFound)
	}
}

func TestListPendingJobsOrderAndLimit(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	third := seedJob(t, r, base.Add(2*time.Minute))
	first := seedJob(t, r, base)
	second := seedJob(t, r, base.Add(time.Minute))
	claimed := seedJob(t, r, base.Add(-time.Hour))
	if err := r.ClaimJob(ctx, claimed.ID, base); err != nil {
		t.Fatalf("claim: %v", err)
	}

	jobs, err := r.ListPendingJobs(ctx, 2)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len = %d, want 2", len(jobs))
	}
	if jobs[0].ID != first.ID || jobs[1].ID != second.ID {
		t.Fatalf("order = [%s %s], want [%s %s]", jobs[0].ID, jobs[1].ID, first.ID, second.ID)
	}

	all, err := r.ListPendingJobs(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(all) != 3 || all[2].ID != third.ID {
		t.Fatalf("unexpected pending set: %+v", all)
	}
}

func TestClaimJobLifecycle(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	job := seedJob(t, r, time.Now().UTC())
	now := time.Now().UTC()

	if err := r.ClaimJob(ctx, job.ID, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	got, _ := r.FindJobById(ctx, job.ID)
	if got.Status != constant.JobStatusProcessing || got.StartedAt == nil {
		t.Fatalf("after claim: status=%s started_at=%v", got.Status, got.StartedAt)
	}

	if err := r.ClaimJob(ctx, job.ID, now); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim error = %v, want %v", err, ErrAlreadyClaimed)
	}
	if err := r.ClaimJob(ctx, uuid.New(), now); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("claim of missing job error = %v, want %v", err, ErrJobNotFound)
	}

	if err := r.CompleteJob(ctx, job.ID, "ear infection noted", 0.92, now); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ = r.FindJobById(ctx, job.ID)
	if err := got.Validate(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	if *got.Transcript != "ear infection noted" || *got.ConfidenceScore != 0.92 {
		t.Fatalf("results = %q %v", *got.Transcript, *got.ConfidenceScore)
	}
}

func TestTerminalStatesArePermanent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	completed := seedJob(t, r, now)
	failed := seedJob(t, r, now)
	for _, id := range []uuid.UUID{completed.ID, failed.ID} {
		if err := r.ClaimJob(ctx, id, now); err != nil {
			t.Fatalf("claim: %v", err)
		}
	}
	if err := r.CompleteJob(ctx, completed.ID, "done", 0.5, now); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := r.FailJob(ctx, failed.ID, "boom", now); err != nil {
		t.Fatalf("fail: %v", err)
	}

	for _, id := range []uuid.UUID{completed.ID, failed.ID} {
		if err := r.ClaimJob(ctx, id, now); !errors.Is(err, ErrAlreadyClaimed) {
			t.Fatalf("claim terminal job error = %v", err)
		}
		if err := r.CompleteJob(ctx, id, "again", 1, now); !errors.Is(err, ErrJobNotProcessing) {
			t.Fatalf("complete terminal job error = %v", err)
		}
		if err := r.FailJob(ctx, id, "again", now); !errors.Is(err, ErrJobNotProcessing) {
			t.Fatalf("fail terminal job error = %v", err)
		}
	}

	got, _ := r.FindJobById(ctx, completed.ID)
	if got.Status != constant.JobStatusCompleted || *got.Transcript != "done" {
		t.Fatalf("completed job mutated: %+v", got)
	}
	got, _ = r.FindJobById(ctx, failed.ID)
	if got.Status != constant.JobStatusFailed || *got.ErrorMessage != "boom" || got.Transcript != nil {
		t.Fatalf("failed job mutated: %+v", got)
	}
}

func TestConcurrentClaimHasSingleWinner(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	job := seedJob(t, r, time.Now().UTC())

	const claimers = 8
	errs := make([]error, claimers)
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.ClaimJob(ctx, job.ID, time.Now().UTC())
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyClaimed):
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
}

func TestCreateRetryJob(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	job := seedJob(t, r, now)

	if _, err := r.CreateRetryJob(ctx, job.ID); !errors.Is(err, ErrJobNotRetryable) {
		t.Fatalf("retry of pending job error = %v, want %v", err, ErrJobNotRetryable)
	}

	if err := r.ClaimJob(ctx, job.ID, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := r.FailJob(ctx, job.ID, "timeout", now); err != nil {
		t.Fatalf("fail: %v", err)
	}

	retry, err := r.CreateRetryJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.ID == job.ID || retry.AudioFileId != job.AudioFileId || retry.Status != constant.JobStatusPending {
		t.Fatalf("unexpected retry job: %+v", retry)
	}

	original, _ := r.FindJobById(ctx, job.ID)
	if original.Status != constant.JobStatusFailed {
		t.Fatalf("original job status = %s, want failed", original.Status)
	}

	if _, err := r.CreateRetryJob(ctx, uuid.New()); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("retry of missing job error = %v, want %v", err, ErrJobNotFound)
	}
}
