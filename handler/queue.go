package handler

import (
	"context"
	"encoding/json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"vet-transcribe/constant"
	"vet-transcribe/dto"
	"vet-transcribe/service"
)

type ServiceDependencies struct {
	Sweeper service.Sweeper
}

// WakeupHandler turns a transcription.created event into an early sweep.
// The event only carries a hint; the sweep reads the job table itself.
func WakeupHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var event dto.JobEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal job event")
		return err
	}

	if event.Type != constant.EventTranscriptionCreated {
		zerolog.Ctx(ctx).Debug().Str("event", string(event.Type)).Msg("ignoring job event")
		return nil
	}

	zerolog.Ctx(ctx).Debug().
		Str("job_id", event.TranscriptionJobId.String()).
		Msg("received transcription wake-up")
	deps.Sweeper.Trigger()

	return nil
}
