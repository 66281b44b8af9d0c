package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultMimeType      = "audio/webm;codecs=opus"
	DefaultSlice         = time.Second
	DefaultMeterInterval = time.Second / 60
)

// Resources counts what the recorder currently holds open.
type Resources struct {
	Stream   bool
	Analyser bool
	Encoder  bool
	Timers   int
}

func (r Resources) Zero() bool {
	return !r.Stream && !r.Analyser && !r.Encoder && r.Timers == 0
}

type Options struct {
	MimeType      string
	Slice         time.Duration
	MeterInterval time.Duration
	Scheduler     Scheduler
	// OnLevel receives every metered level outside the recorder lock.
	OnLevel func(level float64)
	now     func() time.Time
}

// Recorder is the capture state machine. All methods are safe for
// concurrent use; an operation that is not valid in the current state
// returns ErrInvalidState and changes nothing.
type Recorder struct {
	device  Device
	opts    Options
	mu      sync.Mutex
	state   State
	elapsed time.Duration
	level   float64

	stream   Stream
	analyser Analyser
	encoder  Encoder
	cancels  []func()
	// generation invalidates timer callbacks that fire after a cancel.
	generation int

	dataMu sync.Mutex
	chunks [][]byte

	artifact *Artifact
}

func NewRecorder(device Device, opts Options) *Recorder {
	if opts.MimeType == "" {
		opts.MimeType = DefaultMimeType
	}
	if opts.Slice <= 0 {
		opts.Slice = DefaultSlice
	}
	if opts.MeterInterval <= 0 {
		opts.MeterInterval = DefaultMeterInterval
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TickerScheduler{}
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Recorder{device: device, opts: opts, state: StateIdle}
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

func (r *Recorder) Level() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level
}

func (r *Recorder) Live() Resources {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Resources{
		Stream:   r.stream != nil,
		Analyser: r.analyser != nil,
		Encoder:  r.encoder != nil,
		Timers:   len(r.cancels),
	}
}

// Artifact returns the last finished recording until Reset.
func (r *Recorder) Artifact() *Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.artifact
}

// Start acquires the device and begins recording. The device request runs
// without holding the lock so state and meters stay readable while a
// permission prompt is open.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidState, r.state)
	}
	r.state = StateRequestingPermission
	r.mu.Unlock()

	stream, err := r.device.Acquire(ctx, Constraints{EchoCancellation: true, NoiseSuppression: true})

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = StateIdle
		return classify(err)
	}
	r.stream = stream

	if err := r.open(); err != nil {
		r.teardown()
		r.state = StateIdle
		return classify(err)
	}

	r.elapsed = 0
	r.state = StateRecording
	r.startTimers()
	return nil
}

func (r *Recorder) open() error {
	analyser, err := r.stream.Analyser()
	if err != nil {
		return fmt.Errorf("open level analyser: %w", err)
	}
	r.analyser = analyser

	encoder, err := r.stream.Encoder(r.opts.MimeType)
	if err != nil {
		return fmt.Errorf("open encoder for %s: %w", r.opts.MimeType, err)
	}
	r.encoder = encoder

	r.dataMu.Lock()
	r.chunks = nil
	r.dataMu.Unlock()
	return encoder.Start(r.opts.Slice, r.appendChunk)
}

func (r *Recorder) appendChunk(data []byte) {
	if len(data) == 0 {
		return
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	r.dataMu.Lock()
	r.chunks = append(r.chunks, chunk)
	r.dataMu.Unlock()
}

func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return fmt.Errorf("%w: pause from %s", ErrInvalidState, r.state)
	}
	r.stopTimers()
	r.encoder.Pause()
	r.level = 0
	r.state = StatePaused
	return nil
}

func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidState, r.state)
	}
	r.encoder.Resume()
	r.state = StateRecording
	r.startTimers()
	return nil
}

// Stop finalizes the recording and releases the device. The recorder holds
// on to the artifact until Reset.
func (r *Recorder) Stop() (*Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording && r.state != StatePaused {
		return nil, fmt.Errorf("%w: stop from %s", ErrInvalidState, r.state)
	}

	r.stopTimers()
	encoder := r.encoder
	stopErr := encoder.Stop()
	r.encoder = nil
	r.teardown()
	r.level = 0

	if stopErr != nil {
		r.state = StateIdle
		return nil, fmt.Errorf("capture: finalize recording: %w", stopErr)
	}

	r.dataMu.Lock()
	data := bytes.Join(r.chunks, nil)
	r.chunks = nil
	r.dataMu.Unlock()
	if f, ok := encoder.(Finalizer); ok {
		data = f.Finalize(data)
	}

	r.artifact = &Artifact{
		Filename: "recording-" + r.opts.now().UTC().Format("20060102-150405") + extensionFor(r.opts.MimeType),
		MimeType: r.opts.MimeType,
		Data:     data,
		Duration: r.elapsed,
	}
	r.state = StateStopped
	return r.artifact, nil
}

func (r *Recorder) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateStopped {
		return fmt.Errorf("%w: reset from %s", ErrInvalidState, r.state)
	}
	r.artifact = nil
	r.elapsed = 0
	r.level = 0
	r.state = StateIdle
	return nil
}

func (r *Recorder) startTimers() {
	r.generation++
	generation := r.generation
	r.cancels = append(r.cancels,
		r.opts.Scheduler.Every(time.Second, func() { r.tick(generation) }),
		r.opts.Scheduler.Every(r.opts.MeterInterval, func() { r.meter(generation) }),
	)
}

func (r *Recorder) stopTimers() {
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
	r.generation++
}

func (r *Recorder) tick(generation int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if generation != r.generation || r.state != StateRecording {
		return
	}
	r.elapsed += time.Second
}

func (r *Recorder) meter(generation int) {
	r.mu.Lock()
	if generation != r.generation || r.state != StateRecording || r.analyser == nil {
		r.mu.Unlock()
		return
	}
	level := r.analyser.Level()
	r.level = level
	onLevel := r.opts.OnLevel
	r.mu.Unlock()

	if onLevel != nil {
		onLevel(level)
	}
}

// teardown is the single release path for everything Start acquires. It is
// safe on a partially opened recorder.
func (r *Recorder) teardown() {
	r.stopTimers()
	if r.encoder != nil {
		_ = r.encoder.Stop()
		r.encoder = nil
	}
	if r.analyser != nil {
		r.analyser.Close()
		r.analyser = nil
	}
	if r.stream != nil {
		r.stream.Close()
		r.stream = nil
	}
}

// classify maps device failures onto the three user-facing start errors.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrDeviceNotFound), errors.Is(err, ErrUnsupported):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
}
