package cmd

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	"vet-transcribe/capture"
	"vet-transcribe/client"
	"vet-transcribe/config"
	"vet-transcribe/constant"
	"vet-transcribe/dto"
	"vet-transcribe/poller"
)

type transcribeOptions struct {
	patientId    string
	record       bool
	maxDuration  time.Duration
	sampleRate   int
	generateNote bool
	templateType string
	timeout      time.Duration
}

func transcribe(cfg *config.Config) *cobra.Command {
	opts := transcribeOptions{}
	cmd := &cobra.Command{
		Use:   "transcribe [file]",
		Short: "upload a recording and wait for its transcript",
		Long: "Uploads an audio file, or with --record raw 16-bit mono PCM read from stdin,\n" +
			"then polls the transcription job until it completes or fails.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := cliLogger(cmd.ErrOrStderr())

			var artifact *capture.Artifact
			var err error
			switch {
			case opts.record:
				// the first Ctrl-C only ends the recording
				recordCtx, stopRecording := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
				artifact, err = recordPCM(recordCtx, os.Stdin, opts)
				stopRecording()
			case len(args) == 1:
				artifact, err = readFile(args[0])
			default:
				return errors.New("pass an audio file or --record")
			}
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			api := client.New(cfg.Client.BaseURL, cfg.Client.Token, opts.timeout)
			p := &poller.Poller{
				Reader:               api,
				Interval:             cfg.Client.PollInterval,
				MaxConsecutiveErrors: cfg.Client.MaxPollFails,
			}
			return runTranscribe(ctx, api, p, artifact, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.patientId, "patient", "", "patient id to attach to the recording")
	cmd.Flags().BoolVar(&opts.record, "record", false, "record PCM from stdin until interrupted")
	cmd.Flags().DurationVar(&opts.maxDuration, "max-duration", 0, "stop recording after this long")
	cmd.Flags().IntVar(&opts.sampleRate, "sample-rate", 16000, "sample rate of the PCM on stdin")
	cmd.Flags().BoolVar(&opts.generateNote, "generate-note", false, "generate a note once the transcript is ready")
	cmd.Flags().StringVar(&opts.templateType, "template", client.DefaultTemplateType, "note template type")
	cmd.Flags().DurationVar(&opts.timeout, "http-timeout", 5*time.Minute, "timeout for a single api request")
	return cmd
}

func cliLogger(w io.Writer) context.Context {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

func readFile(path string) (*capture.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return capture.FromFile(path, data)
}

// recordPCM records from src until ctx is cancelled, src ends or
// maxDuration passes.
func recordPCM(ctx context.Context, src io.Reader, opts transcribeOptions) (*capture.Artifact, error) {
	device := &capture.PCMDevice{Source: src, SampleRate: opts.sampleRate}
	recorder := capture.NewRecorder(device, capture.Options{MimeType: capture.WAVMimeType})
	if err := recorder.Start(ctx); err != nil {
		return nil, errors.New(capture.UserMessage(err))
	}
	zerolog.Ctx(ctx).Info().Msg("recording, press Ctrl-C to stop")

	var deadline <-chan time.Time
	if opts.maxDuration > 0 {
		timer := time.NewTimer(opts.maxDuration)
		defer timer.Stop()
		deadline = timer.C
	}
	select {
	case <-ctx.Done():
	case <-deadline:
	case <-device.Done():
		zerolog.Ctx(ctx).Info().Msg("audio input ended")
	}

	artifact, err := recorder.Stop()
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Dur("duration", artifact.Duration).Int("bytes", len(artifact.Data)).Msg("recording stopped")
	return artifact, nil
}

type transcriptionAPI interface {
	UploadAudio(ctx context.Context, filename, contentType string, data []byte, opts client.UploadOptions) (*dto.UploadAudioResponse, error)
	GenerateNote(ctx context.Context, jobId, patientId uuid.UUID, templateType string) (*dto.GenerateNoteResponse, error)
}

func runTranscribe(ctx context.Context, api transcriptionAPI, p *poller.Poller, artifact *capture.Artifact, opts transcribeOptions, out io.Writer) error {
	var patientId *uuid.UUID
	if opts.patientId != "" {
		id, err := uuid.Parse(opts.patientId)
		if err != nil {
			return fmt.Errorf("invalid --patient: %w", err)
		}
		patientId = &id
	}
	if opts.generateNote && patientId == nil {
		return errors.New("--generate-note needs --patient")
	}

	// uploads survive Ctrl-C so a finished recording is never lost
	uploaded, err := api.UploadAudio(context.WithoutCancel(ctx), artifact.Filename, artifact.MimeType, artifact.Data, client.UploadOptions{
		PatientId:       patientId,
		DurationSeconds: artifact.DurationSeconds(),
	})
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("job_id", uploaded.TranscriptionJobId.String()).Msg("uploaded, waiting for transcript")

	last := constant.JobStatus("")
	p.OnStatus = func(status constant.JobStatus) {
		if status != last {
			zerolog.Ctx(ctx).Info().Str("status", string(status)).Msg("transcription status")
			last = status
		}
	}
	outcome, err := p.Poll(ctx, uploaded.TranscriptionJobId)
	if err != nil {
		return err
	}
	if !outcome.Completed() {
		return fmt.Errorf("transcription failed: %s", outcome.ErrorMessage)
	}

	fmt.Fprintln(out, outcome.Transcript)
	if outcome.ConfidenceScore != nil {
		zerolog.Ctx(ctx).Info().Float64("confidence", *outcome.ConfidenceScore).Msg("transcription completed")
	}

	if !opts.generateNote {
		return nil
	}
	note, err := api.GenerateNote(ctx, outcome.JobId, *patientId, opts.templateType)
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("note_id", note.NoteId).Bool("success", note.Success).Msg(note.Message)
	return nil
}
