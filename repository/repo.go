package repository

import (
	"context"
	"database/sql"
	"errors"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"time"
	"vet-transcribe/constant"
	"vet-transcribe/entities"
)

var (
	ErrJobNotFound       = errors.New("transcription job not found")
	ErrAudioFileNotFound = errors.New("audio file not found")
	ErrAlreadyClaimed    = errors.New("transcription job already claimed")
	ErrJobNotProcessing  = errors.New("transcription job is not processing")
	ErrJobNotRetryable   = errors.New("only failed transcription jobs can be retried")
)

// JobRepository is the only way to read or mutate queue state. Every status
// change is a conditional update against the current status, so concurrent
// sweepers never both win the same transition.
type JobRepository interface {
	Transaction(ctx context.Context, callback func(repo JobRepository) error, opts ...*sql.TxOptions) error
	GetDB() *gorm.DB
	CreateAudioWithJob(ctx context.Context, audio *entities.AudioFile, job *entities.TranscriptionJob) error
	CreateRetryJob(ctx context.Context, failedJobId uuid.UUID) (*entities.TranscriptionJob, error)
	FindJobById(ctx context.Context, id uuid.UUID) (*entities.TranscriptionJob, error)
	FindAudioFileById(ctx context.Context, id uuid.UUID) (*entities.AudioFile, error)
	ListPendingJobs(ctx context.Context, limit int) ([]*entities.TranscriptionJob, error)
	ClaimJob(ctx context.Context, id uuid.UUID, now time.Time) error
	CompleteJob(ctx context.Context, id uuid.UUID, transcript string, confidence float64, now time.Time) error
	FailJob(ctx context.Context, id uuid.UUID, message string, now time.Time) error
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) (JobRepository, error) {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger:  logger.Default.LogMode(logger.Warn),
			NowFunc: func() time.Time { return time.Now().UTC() },
		},
	)
	if err != nil {
		return nil, err
	}
	return NewGormRepo(gormDB), nil
}

// NewGormRepo wraps an already opened gorm handle.
func NewGormRepo(db *gorm.DB) JobRepository {
	return &repo{
		db: db,
	}
}

// Migrate creates or updates the queue tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&entities.AudioFile{}, &entities.TranscriptionJob{})
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) Transaction(ctx context.Context, callback func(repo JobRepository) error, opts ...*sql.TxOptions) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return callback(&repo{db: tx})
	}, opts...)
}

func (r *repo) CreateAudioWithJob(ctx context.Context, audio *entities.AudioFile, job *entities.TranscriptionJob) error {
	return r.Transaction(ctx, func(txRepo JobRepository) error {
		tx := txRepo.GetDB()
		if err := tx.Create(audio).Error; err != nil {
			return err
		}
		return tx.Create(job).Error
	})
}

func (r *repo) CreateRetryJob(ctx context.Context, failedJobId uuid.UUID) (*entities.TranscriptionJob, error) {
	var retry *entities.TranscriptionJob
	err := r.Transaction(ctx, func(txRepo JobRepository) error {
		failed, err := txRepo.FindJobById(ctx, failedJobId)
		if err != nil {
			return err
		}
		if failed.Status != constant.JobStatusFailed {
			return ErrJobNotRetryable
		}
		retry = &entities.TranscriptionJob{
			ID:          uuid.New(),
			AudioFileId: failed.AudioFileId,
			Status:      constant.JobStatusPending,
		}
		return txRepo.GetDB().Create(retry).Error
	})
	if err != nil {
		return nil, err
	}
	return retry, nil
}

func (r *repo) FindJobById(ctx context.Context, id uuid.UUID) (*entities.TranscriptionJob, error) {
	job := &entities.TranscriptionJob{}
	err := r.db.WithContext(ctx).First(job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (r *repo) FindAudioFileById(ctx context.Context, id uuid.UUID) (*entities.AudioFile, error) {
	audio := &entities.AudioFile{}
	err := r.db.WithContext(ctx).First(audio, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAudioFileNotFound
	}
	if err != nil {
		return nil, err
	}

	return audio, nil
}

func (r *repo) ListPendingJobs(ctx context.Context, limit int) ([]*entities.TranscriptionJob, error) {
	var jobs []*entities.TranscriptionJob
	err := r.db.WithContext(ctx).
		Where("status = ?", constant.JobStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) ClaimJob(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.transition(ctx, id, constant.JobStatusPending, ErrAlreadyClaimed, map[string]interface{}{
		"status":     constant.JobStatusProcessing,
		"started_at": now.UTC(),
	})
}

func (r *repo) CompleteJob(ctx context.Context, id uuid.UUID, transcript string, confidence float64, now time.Time) error {
	return r.transition(ctx, id, constant.JobStatusProcessing, ErrJobNotProcessing, map[string]interface{}{
		"status":           constant.JobStatusCompleted,
		"transcript":       transcript,
		"confidence_score": confidence,
		"completed_at":     now.UTC(),
	})
}

func (r *repo) FailJob(ctx context.Context, id uuid.UUID, message string, now time.Time) error {
	return r.transition(ctx, id, constant.JobStatusProcessing, ErrJobNotProcessing, map[string]interface{}{
		"status":        constant.JobStatusFailed,
		"error_message": message,
		"completed_at":  now.UTC(),
	})
}

// transition applies updates only while the job is still in status from.
// When nothing matched it tells a vanished row apart from a lost race.
func (r *repo) transition(ctx context.Context, id uuid.UUID, from constant.JobStatus, conflict error, updates map[string]interface{}) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&entities.TranscriptionJob{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := db.Model(&entities.TranscriptionJob{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrJobNotFound
	}
	return conflict
}
