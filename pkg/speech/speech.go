// Package speech adapts third-party speech-to-text engines to a single
// batch Recognize call.
package speech

import (
	"context"
	"vet-transcribe/constant"
)

type Request struct {
	Audio           []byte
	Filename        string
	Encoding        constant.AudioCodec
	SampleRateHertz int32
	LanguageCode    string
	Model           string
	// Phrases bias recognition toward expected terminology.
	Phrases []string
}

// Segment is one recognized utterance span. Confidence is nil when the
// engine did not report one.
type Segment struct {
	Text       string
	Confidence *float64
}

type Recognizer interface {
	Recognize(ctx context.Context, req Request) ([]Segment, error)
}
