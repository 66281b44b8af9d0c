package speech

import (
	"cloud.google.com/go/speech/apiv1/speechpb"
	"testing"
	"vet-transcribe/constant"
)

func TestBuildGoogleRequest(t *testing.T) {
	req := buildGoogleRequest(Request{
		Audio:           []byte("ogg"),
		Encoding:        constant.CodecOggOpus,
		SampleRateHertz: 48000,
		LanguageCode:    "en-US",
		Model:           "medical_conversation",
		Phrases:         VeterinaryPhrases,
	})

	cfg := req.GetConfig()
	if cfg.GetEncoding() != speechpb.RecognitionConfig_OGG_OPUS {
		t.Fatalf("encoding = %v, want OGG_OPUS", cfg.GetEncoding())
	}
	if cfg.GetSampleRateHertz() != 48000 {
		t.Fatalf("sample rate = %d, want 48000", cfg.GetSampleRateHertz())
	}
	if len(cfg.GetSpeechContexts()) != 1 || len(cfg.GetSpeechContexts()[0].GetPhrases()) != len(VeterinaryPhrases) {
		t.Fatalf("speech contexts not populated: %+v", cfg.GetSpeechContexts())
	}
	if !cfg.GetEnableAutomaticPunctuation() || cfg.GetModel() != "medical_conversation" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if string(req.GetAudio().GetContent()) != "ogg" {
		t.Fatalf("audio content = %q", req.GetAudio().GetContent())
	}
}

func TestBuildGoogleRequestOmitsRateForHeaderedFormats(t *testing.T) {
	for _, codec := range []constant.AudioCodec{constant.CodecLinear16, constant.CodecFLAC, constant.CodecWebmOpus} {
		req := buildGoogleRequest(Request{Encoding: codec, SampleRateHertz: 16000})
		if got := req.GetConfig().GetSampleRateHertz(); got != 0 {
			t.Fatalf("%s: sample rate = %d, want 0", codec, got)
		}
	}
}

func TestGoogleEncodingFallsBackToUnspecified(t *testing.T) {
	if got := googleEncoding(constant.CodecUnspecified); got != speechpb.RecognitionConfig_ENCODING_UNSPECIFIED {
		t.Fatalf("encoding = %v, want ENCODING_UNSPECIFIED", got)
	}
	if got := googleEncoding("SOMETHING_ELSE"); got != speechpb.RecognitionConfig_ENCODING_UNSPECIFIED {
		t.Fatalf("encoding = %v, want ENCODING_UNSPECIFIED", got)
	}
}

func TestGoogleSegments(t *testing.T) {
	resp := &speechpb.RecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{
				{Transcript: "ear infection noted", Confidence: 0.92},
				{Transcript: "year infection noted", Confidence: 0.41},
			}},
			{Alternatives: nil},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{
				{Transcript: "recheck in two weeks"},
			}},
		},
	}

	segments := googleSegments(resp)
	if len(segments) != 2 {
		t.Fatalf("len = %d, want 2", len(segments))
	}
	if segments[0].Text != "ear infection noted" || segments[0].Confidence == nil {
		t.Fatalf("first segment = %+v", segments[0])
	}
	if c := *segments[0].Confidence; c < 0.919 || c > 0.921 {
		t.Fatalf("confidence = %v, want ~0.92", c)
	}
	if segments[1].Confidence != nil {
		t.Fatalf("unset confidence should be nil, got %v", *segments[1].Confidence)
	}
}
