package handler

import (
	"context"
	"encoding/json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"testing"
	"vet-transcribe/constant"
	"vet-transcribe/dto"
	"vet-transcribe/service"
)

type countingSweeper struct {
	service.Sweeper
	triggers int
}

func (s *countingSweeper) Trigger() { s.triggers++ }

func delivery(t *testing.T, eventType constant.EventType) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(dto.JobEvent{Type: eventType, TranscriptionJobId: uuid.New()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return amqp.Delivery{Body: body}
}

func TestWakeupHandler(t *testing.T) {
	sweeper := &countingSweeper{}
	deps := ServiceDependencies{Sweeper: sweeper}
	ctx := context.Background()

	if err := WakeupHandler(ctx, delivery(t, constant.EventTranscriptionCreated), deps); err != nil {
		t.Fatalf("created event: %v", err)
	}
	if err := WakeupHandler(ctx, delivery(t, constant.EventTranscriptionCompleted), deps); err != nil {
		t.Fatalf("completed event: %v", err)
	}
	if sweeper.triggers != 1 {
		t.Fatalf("triggers = %d, want 1", sweeper.triggers)
	}

	if err := WakeupHandler(ctx, amqp.Delivery{Body: []byte("{")}, deps); err == nil {
		t.Fatal("malformed body accepted")
	}
}
