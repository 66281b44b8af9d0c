package service

import (
	"errors"
	"math"
	"testing"
	"vet-transcribe/pkg/speech"
)

func conf(v float64) *float64 { return &v }

func TestBuildTranscript(t *testing.T) {
	tests := []struct {
		name           string
		segments       []speech.Segment
		wantTranscript string
		wantConfidence float64
		wantErr        error
	}{
		{
			name:     "zero segments is no speech",
			segments: nil,
			wantErr:  ErrNoSpeech,
		},
		{
			name:     "blank segments is no speech",
			segments: []speech.Segment{{Text: "  "}, {Text: ""}},
			wantErr:  ErrNoSpeech,
		},
		{
			name:           "single segment",
			segments:       []speech.Segment{{Text: "ear infection noted", Confidence: conf(0.92)}},
			wantTranscript: "ear infection noted",
			wantConfidence: 0.92,
		},
		{
			name: "missing confidence excluded from mean",
			segments: []speech.Segment{
				{Text: "temperature normal", Confidence: conf(0.9)},
				{Text: "heart rate one twenty", Confidence: conf(0.8)},
				{Text: "plan recheck"},
			},
			wantTranscript: "temperature normal heart rate one twenty plan recheck",
			wantConfidence: 0.85,
		},
		{
			name:           "no confidences reported",
			segments:       []speech.Segment{{Text: " canine "}, {Text: "otitis externa"}},
			wantTranscript: "canine otitis externa",
			wantConfidence: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transcript, confidence, err := BuildTranscript(tt.segments)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if transcript != tt.wantTranscript {
				t.Fatalf("transcript = %q, want %q", transcript, tt.wantTranscript)
			}
			if math.Abs(confidence-tt.wantConfidence) > 1e-9 {
				t.Fatalf("confidence = %v, want %v", confidence, tt.wantConfidence)
			}
		})
	}
}
