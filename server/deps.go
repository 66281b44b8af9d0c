package server

import (
	"context"
	"errors"
	"fmt"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"net/http"
	"os"
	"vet-transcribe/config"
	"vet-transcribe/constant"
	"vet-transcribe/handler"
	"vet-transcribe/pkg/rabbitmq"
	"vet-transcribe/pkg/speech"
	"vet-transcribe/pkg/storage"
	"vet-transcribe/repository"
	"vet-transcribe/service"
)

// dependencies are shared by the http server and the standalone worker.
type dependencies struct {
	repo      repository.JobRepository
	store     storage.Store
	conn      *amqp.Connection
	publisher *rabbitmq.Publisher
	closers   []func() error
}

func (d *dependencies) eventPublisher() service.EventPublisher {
	if d.publisher == nil {
		return nil
	}
	return d.publisher
}

func (d *dependencies) Close(ctx context.Context) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to release dependency")
		}
	}
}

func newDependencies(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	deps := &dependencies{}

	db, err := config.OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	deps.closers = append(deps.closers, db.Close)

	deps.repo, err = repository.NewRepo(db)
	if err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("open repository: %w", err)
	}

	deps.store, err = newStore(ctx, cfg)
	if err != nil {
		deps.Close(ctx)
		return nil, err
	}

	if cfg.Queue.Enabled {
		deps.conn, err = config.NewRabbitMQConn(ctx, cfg.Queue)
		if err != nil {
			// events are best effort, the sweeper still finds every job
			zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
			return deps, nil
		}
		deps.publisher, err = rabbitmq.NewPublisher(deps.conn, cfg.Queue)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("NewPublisher")
			return deps, nil
		}
		deps.closers = append(deps.closers, deps.publisher.Close)
	}

	return deps, nil
}

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case constant.StorageDriverMinio:
		client, err := config.NewMinioClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		store := storage.NewMinioStore(client, cfg.Storage.MinIO.Bucket)
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio bucket: %w", err)
		}
		return store, nil
	default:
		return storage.NewLocalStore(cfg.Storage.LocalDir)
	}
}

func newRecognizer(ctx context.Context, cfg *config.Config) (speech.Recognizer, func() error, error) {
	switch cfg.Speech.Provider {
	case constant.SpeechProviderOpenAI:
		apiKey := cfg.Speech.OpenAI.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, nil, errors.New("speech.openai.api_key is not set")
		}
		client := &http.Client{Timeout: cfg.Worker.JobTimeout}
		return speech.NewWhisperRecognizer(cfg.Speech.OpenAI.BaseURL, apiKey, cfg.Speech.OpenAI.Model, client), func() error { return nil }, nil
	default:
		recognizer, err := speech.NewGoogleRecognizer(ctx, cfg.Speech.CredentialsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("google speech client: %w", err)
		}
		return recognizer, recognizer.Close, nil
	}
}

func newSweeper(ctx context.Context, cfg *config.Config, deps *dependencies) (service.Sweeper, error) {
	recognizer, closeRecognizer, err := newRecognizer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	deps.closers = append(deps.closers, closeRecognizer)

	return service.NewSweeper(deps.repo, deps.store, recognizer, deps.eventPublisher(), service.SweeperConfig{
		BatchSize:       cfg.Worker.BatchSize,
		Interval:        cfg.Worker.Interval,
		JobTimeout:      cfg.Worker.JobTimeout,
		ErrorBackoff:    cfg.Worker.ErrorBackoff,
		LanguageCode:    cfg.Speech.LanguageCode,
		Model:           cfg.Speech.Model,
		SampleRateHertz: cfg.Speech.SampleRateHertz,
		Phrases:         speech.VeterinaryPhrases,
	}), nil
}

// startSweeper runs the sweep loop and, when a broker is connected, the
// wake-up consumer that triggers early sweeps on new uploads.
func startSweeper(ctx context.Context, cfg *config.Config, deps *dependencies, sweeper service.Sweeper) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sweeper.Run(ctx); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("sweeper error")
		}
	}()

	if deps.conn != nil {
		consumer := rabbitmq.NewConsumer(deps.conn, cfg.Queue, string(constant.EventTranscriptionCreated), 1, handler.WakeupHandler)
		go func() {
			err := consumer.Consume(ctx, handler.ServiceDependencies{Sweeper: sweeper})
			if err != nil && !errors.Is(err, context.Canceled) {
				zerolog.Ctx(ctx).Error().Err(err).Msg("wake-up consumer error")
			}
		}()
	}
	return done
}
