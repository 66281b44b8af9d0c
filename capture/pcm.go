package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

const WAVMimeType = "audio/wav"

// PCMDevice captures signed 16-bit little-endian mono PCM from a reader,
// for example the stdout of `arecord -f S16_LE -r 16000 -c 1 -t raw`.
// Echo cancellation and noise suppression are left to the producer.
//
// One goroutine reads Source for the life of the device and hands frames to
// whichever stream is currently acquired. Frames read while no stream is
// open are dropped.
type PCMDevice struct {
	Source     io.Reader
	SampleRate int
	// FrameSamples is the analysis window, 1024 samples when zero.
	FrameSamples int

	readOnce sync.Once
	mu       sync.Mutex
	current  *pcmStream
	acquired bool
	ended    chan struct{}
	readErr  error
}

func (d *PCMDevice) Acquire(ctx context.Context, _ Constraints) (Stream, error) {
	if d.Source == nil {
		return nil, ErrDeviceNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.acquired {
		return nil, fmt.Errorf("%w: pcm source already in use", ErrUnsupported)
	}
	select {
	case <-d.endedLocked():
		return nil, fmt.Errorf("%w: pcm source ended", ErrDeviceNotFound)
	default:
	}
	d.acquired = true

	rate := d.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	s := &pcmStream{device: d, rate: rate}
	d.current = s
	d.readOnce.Do(func() { go d.pump() })
	return s, nil
}

// Done is closed once Source is exhausted or fails. Every frame read before
// that has already been handed to the open stream.
func (d *PCMDevice) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.endedLocked()
}

func (d *PCMDevice) endedLocked() chan struct{} {
	if d.ended == nil {
		d.ended = make(chan struct{})
	}
	return d.ended
}

func (d *PCMDevice) err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readErr
}

func (d *PCMDevice) pump() {
	frame := d.FrameSamples
	if frame <= 0 {
		frame = 1024
	}
	buf := make([]byte, frame*2)
	for {
		n, err := io.ReadFull(d.Source, buf)
		if n > 0 {
			d.mu.Lock()
			s := d.current
			d.mu.Unlock()
			if s != nil {
				s.deliver(buf[:n-n%2])
			}
		}
		if err != nil {
			d.mu.Lock()
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				d.readErr = err
			}
			close(d.endedLocked())
			d.mu.Unlock()
			return
		}
	}
}

func (d *PCMDevice) release(s *pcmStream) {
	d.mu.Lock()
	if d.current == s {
		d.current = nil
	}
	d.acquired = false
	d.mu.Unlock()
}

type pcmStream struct {
	device    *PCMDevice
	rate      int
	closeOnce sync.Once

	mu      sync.Mutex
	level   float64
	encoder *wavEncoder
}

func (s *pcmStream) deliver(frame []byte) {
	level := rms(frame)
	s.mu.Lock()
	s.level = level
	encoder := s.encoder
	s.mu.Unlock()
	if encoder != nil {
		encoder.write(frame)
	}
}

func (s *pcmStream) Analyser() (Analyser, error) {
	return pcmAnalyser{s}, nil
}

func (s *pcmStream) Encoder(mimeType string) (Encoder, error) {
	if mimeType != WAVMimeType {
		return nil, fmt.Errorf("%w: pcm device encodes %s, not %s", ErrUnsupported, WAVMimeType, mimeType)
	}
	e := &wavEncoder{stream: s, rate: s.rate}
	s.mu.Lock()
	s.encoder = e
	s.mu.Unlock()
	return e, nil
}

func (s *pcmStream) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.encoder = nil
		s.mu.Unlock()
		s.device.release(s)
	})
}

type pcmAnalyser struct {
	stream *pcmStream
}

func (a pcmAnalyser) Level() float64 {
	a.stream.mu.Lock()
	defer a.stream.mu.Unlock()
	return a.stream.level
}

func (pcmAnalyser) Close() {}

// wavEncoder buffers PCM and emits it once per slice. The first slice
// starts with a WAV header whose sizes are patched by Finalize.
type wavEncoder struct {
	stream *pcmStream
	rate   int

	mu      sync.Mutex
	buf     []byte
	started bool
	paused  bool
	stopped bool
	onData  func([]byte)
	cancel  chan struct{}
	flushed sync.WaitGroup
}

func (e *wavEncoder) Start(slice time.Duration, onData func([]byte)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.New("capture: encoder already started")
	}
	e.started = true
	e.onData = onData
	e.buf = append(e.buf, wavHeader(e.rate, 0)...)
	e.cancel = make(chan struct{})

	e.flushed.Add(1)
	go func() {
		defer e.flushed.Done()
		ticker := time.NewTicker(slice)
		defer ticker.Stop()
		for {
			select {
			case <-e.cancel:
				return
			case <-ticker.C:
				e.flush()
			}
		}
	}()
	return nil
}

func (e *wavEncoder) write(frame []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.paused || e.stopped {
		return
	}
	e.buf = append(e.buf, frame...)
}

func (e *wavEncoder) flush() {
	e.mu.Lock()
	data := e.buf
	e.buf = nil
	onData := e.onData
	e.mu.Unlock()
	if len(data) > 0 && onData != nil {
		onData(data)
	}
}

func (e *wavEncoder) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

func (e *wavEncoder) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
}

func (e *wavEncoder) Stop() error {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.stopped = true
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	close(e.cancel)
	e.mu.Unlock()

	e.flushed.Wait()
	e.flush()
	return e.stream.device.err()
}

// Finalize writes the real RIFF and data chunk sizes into the header.
func (e *wavEncoder) Finalize(data []byte) []byte {
	if len(data) < wavHeaderSize {
		return data
	}
	dataLen := uint32(len(data) - wavHeaderSize)
	binary.LittleEndian.PutUint32(data[4:8], 36+dataLen)
	binary.LittleEndian.PutUint32(data[40:44], dataLen)
	return data
}

const wavHeaderSize = 44

func wavHeader(rate int, dataLen uint32) []byte {
	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataLen)
	copy(h[8:16], "WAVEfmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1)
	binary.LittleEndian.PutUint16(h[22:24], 1)
	binary.LittleEndian.PutUint32(h[24:28], uint32(rate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(rate*2))
	binary.LittleEndian.PutUint16(h[32:34], 2)
	binary.LittleEndian.PutUint16(h[34:36], 16)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataLen)
	return h
}

// rms of 16-bit samples normalised to 0..1.
func rms(frame []byte) float64 {
	samples := len(frame) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(frame[i*2:]))) / math.MaxInt16
		sum += v * v
	}
	return math.Min(1, math.Sqrt(sum/float64(samples)))
}
