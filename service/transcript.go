package service

import (
	"strings"
	"vet-transcribe/pkg/speech"
)

// BuildTranscript joins the best alternative of every segment in order and
// averages the confidences that were reported. Segments without a score are
// left out of the mean rather than counted as zero.
func BuildTranscript(segments []speech.Segment) (string, float64, error) {
	if len(segments) == 0 {
		return "", 0, ErrNoSpeech
	}

	parts := make([]string, 0, len(segments))
	var total float64
	var scored int
	for _, segment := range segments {
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		if segment.Confidence != nil {
			total += *segment.Confidence
			scored++
		}
	}

	transcript := strings.Join(parts, " ")
	if transcript == "" {
		return "", 0, ErrNoSpeech
	}

	var confidence float64
	if scored > 0 {
		confidence = total / float64(scored)
	}
	return transcript, confidence, nil
}
