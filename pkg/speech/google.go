package speech

import (
	speechapi "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"context"
	"fmt"
	"google.golang.org/api/option"
	"vet-transcribe/constant"
)

// GoogleRecognizer calls Cloud Speech-to-Text synchronous recognition.
type GoogleRecognizer struct {
	client *speechapi.Client
}

func NewGoogleRecognizer(ctx context.Context, credentialsFile string) (*GoogleRecognizer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := speechapi.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech: create google client: %w", err)
	}
	return &GoogleRecognizer{client: client}, nil
}

func (g *GoogleRecognizer) Close() error {
	return g.client.Close()
}

func (g *GoogleRecognizer) Recognize(ctx context.Context, req Request) ([]Segment, error) {
	resp, err := g.client.Recognize(ctx, buildGoogleRequest(req))
	if err != nil {
		return nil, fmt.Errorf("speech: google recognize: %w", err)
	}
	return googleSegments(resp), nil
}

func buildGoogleRequest(req Request) *speechpb.RecognizeRequest {
	cfg := &speechpb.RecognitionConfig{
		Encoding:                   googleEncoding(req.Encoding),
		LanguageCode:               req.LanguageCode,
		Model:                      req.Model,
		UseEnhanced:                true,
		EnableAutomaticPunctuation: true,
		EnableWordConfidence:       true,
	}
	// WAV, FLAC and WebM carry the rate in their header and the API rejects
	// a mismatching explicit value. Browsers record WebM Opus at 48 kHz.
	switch req.Encoding {
	case constant.CodecLinear16, constant.CodecFLAC, constant.CodecWebmOpus:
	default:
		cfg.SampleRateHertz = req.SampleRateHertz
	}
	if len(req.Phrases) > 0 {
		cfg.SpeechContexts = []*speechpb.SpeechContext{{Phrases: req.Phrases}}
	}

	return &speechpb.RecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: req.Audio},
		},
	}
}

func googleEncoding(c constant.AudioCodec) speechpb.RecognitionConfig_AudioEncoding {
	switch c {
	case constant.CodecLinear16:
		return speechpb.RecognitionConfig_LINEAR16
	case constant.CodecMP3:
		return speechpb.RecognitionConfig_MP3
	case constant.CodecWebmOpus:
		return speechpb.RecognitionConfig_WEBM_OPUS
	case constant.CodecOggOpus:
		return speechpb.RecognitionConfig_OGG_OPUS
	case constant.CodecFLAC:
		return speechpb.RecognitionConfig_FLAC
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

// googleSegments keeps the best alternative of every result. The API
// reports 0.0 when confidence was not computed, which maps to nil.
func googleSegments(resp *speechpb.RecognizeResponse) []Segment {
	segments := make([]Segment, 0, len(resp.GetResults()))
	for _, result := range resp.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		best := alternatives[0]
		segment := Segment{Text: best.GetTranscript()}
		if c := best.GetConfidence(); c > 0 {
			confidence := float64(c)
			segment.Confidence = &confidence
		}
		segments = append(segments, segment)
	}
	return segments
}
