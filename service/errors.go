package service

import "errors"

var (
	ErrAudioMissing           = errors.New("audio source not found")
	ErrNoSpeech               = errors.New("no speech detected in audio file")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrFileTooLarge           = errors.New("audio file exceeds upload limit")
	ErrEmptyUpload            = errors.New("audio file is empty")
	ErrTranscriptionTimeout   = errors.New("transcription timed out")
	errTranscriptionPanicked  = errors.New("transcription aborted unexpectedly")
)
