package service

import (
	"context"
	"github.com/rs/zerolog"
	"time"
	"vet-transcribe/constant"
	"vet-transcribe/dto"
	"vet-transcribe/entities"
)

// EventPublisher announces job lifecycle changes. Delivery is best effort,
// the job table stays the source of truth.
type EventPublisher interface {
	Publish(ctx context.Context, event dto.JobEvent) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, dto.JobEvent) error { return nil }

func publish(ctx context.Context, publisher EventPublisher, eventType constant.EventType, job *entities.TranscriptionJob, now time.Time) {
	event := dto.JobEvent{
		Type:               eventType,
		TranscriptionJobId: job.ID,
		AudioFileId:        job.AudioFileId,
		Status:             job.Status,
		ConfidenceScore:    job.ConfidenceScore,
		ErrorMessage:       job.ErrorMessage,
		OccurredAt:         now,
	}
	if err := publisher.Publish(ctx, event); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("job_id", job.ID.String()).
			Str("event", string(eventType)).
			Msg("failed to publish job event")
	}
}
