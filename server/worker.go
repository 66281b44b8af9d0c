package server

import (
	"github.com/rs/zerolog"
	"os/signal"
	"syscall"
	"vet-transcribe/config"
	"vet-transcribe/repository"
)

// RunWorker runs only the transcription sweeper. Any number of workers may
// share one database; claims keep them from processing the same job.
func RunWorker(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, err := newDependencies(ctx, cfg)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("failed to initialise dependencies")
	}
	defer deps.Close(ctx)

	sweeper, err := newSweeper(ctx, cfg, deps)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("failed to initialise sweeper")
	}

	<-startSweeper(ctx, cfg, deps, sweeper)
	zerolog.Ctx(ctx).Info().Msg("worker shutdown")
}

func RunMigrate(cfg *config.Config) error {
	ctx := setupLogger(cfg)

	db, err := config.OpenDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repo, err := repository.NewRepo(db)
	if err != nil {
		return err
	}
	if err := repository.Migrate(repo.GetDB()); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().Msg("database migrated")
	return nil
}
