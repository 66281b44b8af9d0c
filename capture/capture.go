// Package capture records audio from an input device into an uploadable
// artifact. Hardware sits behind small interfaces so the recorder state
// machine can run against a real device, a PCM pipe or a test fake.
package capture

import (
	"context"
	"errors"
	"time"
)

type State string

const (
	StateIdle                 State = "idle"
	StateRequestingPermission State = "requesting-permission"
	StateRecording            State = "recording"
	StatePaused               State = "paused"
	StateStopped              State = "stopped"
)

var (
	ErrInvalidState     = errors.New("capture: operation not allowed in current state")
	ErrPermissionDenied = errors.New("capture: microphone permission denied")
	ErrDeviceNotFound   = errors.New("capture: no audio input device found")
	ErrUnsupported      = errors.New("capture: audio recording not supported")
)

// UserMessage turns a capture error into something a clinician can act on.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Microphone access was denied. Allow microphone access for this application and try again."
	case errors.Is(err, ErrDeviceNotFound):
		return "No microphone was found. Connect a microphone and try again."
	case errors.Is(err, ErrUnsupported):
		return "Audio recording is not supported on this device. Upload a pre-recorded file instead."
	case errors.Is(err, ErrInvalidState):
		return "The recorder is busy. Stop or reset the current recording first."
	default:
		return "Could not access the microphone: " + err.Error()
	}
}

type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
}

type Device interface {
	// Acquire requests exclusive access to the input. Implementations wrap
	// ErrPermissionDenied or ErrDeviceNotFound where they apply.
	Acquire(ctx context.Context, constraints Constraints) (Stream, error)
}

// Stream is an acquired device handle.
type Stream interface {
	Analyser() (Analyser, error)
	Encoder(mimeType string) (Encoder, error)
	Close()
}

type Analyser interface {
	// Level is the RMS amplitude of the latest frame in 0..1.
	Level() float64
	Close()
}

type Encoder interface {
	// Start emits encoded data every slice through onData.
	Start(slice time.Duration, onData func([]byte)) error
	Pause()
	Resume()
	// Stop flushes the final slice before returning.
	Stop() error
}

// Finalizer is implemented by encoders whose container needs fixing up once
// the total length is known.
type Finalizer interface {
	Finalize(data []byte) []byte
}

type Scheduler interface {
	// Every runs fn every d until cancel is called.
	Every(d time.Duration, fn func()) (cancel func())
}
