// Package poller follows a transcription job until it reaches a terminal
// status.
package poller

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"time"
	"vet-transcribe/constant"
	"vet-transcribe/dto"
)

const DefaultInterval = 3 * time.Second

var ErrTooManyFailures = errors.New("poller: too many consecutive read failures")

type Reader interface {
	GetJob(ctx context.Context, id uuid.UUID) (*dto.TranscriptionJobResponse, error)
}

// Outcome is the terminal state of a job as observed by the poller.
type Outcome struct {
	JobId           uuid.UUID
	Status          constant.JobStatus
	Transcript      string
	ConfidenceScore *float64
	ErrorMessage    string
}

func (o Outcome) Completed() bool {
	return o.Status == constant.JobStatusCompleted
}

type Poller struct {
	Reader   Reader
	Interval time.Duration
	// MaxConsecutiveErrors bounds back-to-back read failures. Zero keeps
	// retrying until ctx is done.
	MaxConsecutiveErrors int
	// OnStatus, if set, sees every status read before it is acted on.
	OnStatus func(status constant.JobStatus)
}

func New(reader Reader) *Poller {
	return &Poller{Reader: reader, Interval: DefaultInterval}
}

// Poll reads the job immediately and then once per Interval. It returns as
// soon as a terminal status is read and never reads again after that.
func (p *Poller) Poll(ctx context.Context, jobId uuid.UUID) (Outcome, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := zerolog.Ctx(ctx).With().Str("job_id", jobId.String()).Logger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		job, err := p.Reader.GetJob(ctx, jobId)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			failures++
			logger.Warn().Err(err).Int("failures", failures).Msg("failed to read transcription status")
			if p.MaxConsecutiveErrors > 0 && failures >= p.MaxConsecutiveErrors {
				return Outcome{}, fmt.Errorf("%w: %w", ErrTooManyFailures, err)
			}
		default:
			failures = 0
			if p.OnStatus != nil {
				p.OnStatus(job.Status)
			}
			if job.Status.IsTerminal() {
				logger.Debug().Str("status", string(job.Status)).Msg("transcription finished")
				return outcome(job), nil
			}
		}

		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func outcome(job *dto.TranscriptionJobResponse) Outcome {
	o := Outcome{
		JobId:           job.ID,
		Status:          job.Status,
		ConfidenceScore: job.ConfidenceScore,
	}
	if job.Transcript != nil {
		o.Transcript = *job.Transcript
	}
	if job.ErrorMessage != nil {
		o.ErrorMessage = *job.ErrorMessage
	}
	return o
}
