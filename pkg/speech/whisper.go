package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
)

// WhisperRecognizer talks to an OpenAI-compatible /audio/transcriptions
// endpoint. Phrase hints travel in the prompt field, which is the biasing
// mechanism Whisper exposes.
type WhisperRecognizer struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewWhisperRecognizer(baseURL, apiKey, model string, client *http.Client) *WhisperRecognizer {
	if client == nil {
		client = http.DefaultClient
	}
	return &WhisperRecognizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  client,
	}
}

type whisperResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text       string   `json:"text"`
		AvgLogprob *float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func (w *WhisperRecognizer) Recognize(ctx context.Context, req Request) ([]Segment, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := map[string]string{
		"model":           w.model,
		"response_format": "verbose_json",
	}
	if lang := whisperLanguage(req.LanguageCode); lang != "" {
		fields["language"] = lang
	}
	if len(req.Phrases) > 0 {
		fields["prompt"] = strings.Join(req.Phrases, ", ")
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}

	filename := req.Filename
	if filename == "" {
		filename = "audio"
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(req.Audio); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, err
	}
	if w.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+w.apiKey)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("speech: whisper request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("speech: whisper http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("speech: decode whisper response: %w", err)
	}
	return whisperSegments(wr), nil
}

// whisperSegments uses exp(avg_logprob) as the per-segment confidence.
func whisperSegments(wr whisperResponse) []Segment {
	if len(wr.Segments) == 0 {
		if strings.TrimSpace(wr.Text) == "" {
			return nil
		}
		return []Segment{{Text: strings.TrimSpace(wr.Text)}}
	}

	segments := make([]Segment, 0, len(wr.Segments))
	for _, s := range wr.Segments {
		segment := Segment{Text: strings.TrimSpace(s.Text)}
		if s.AvgLogprob != nil {
			confidence := math.Min(1, math.Exp(*s.AvgLogprob))
			segment.Confidence = &confidence
		}
		segments = append(segments, segment)
	}
	return segments
}

// whisperLanguage turns "en-US" into the ISO-639-1 code Whisper expects.
func whisperLanguage(code string) string {
	lang, _, _ := strings.Cut(code, "-")
	return strings.ToLower(lang)
}
