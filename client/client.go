// Package client talks to the transcription API from the capture side:
// uploading recordings, reading job state and handing completed jobs off to
// note generation.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
	"vet-transcribe/dto"
)

const DefaultTemplateType = "soap_standard"

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

type UploadOptions struct {
	PatientId       *uuid.UUID
	DurationSeconds *float64
}

// UploadAudio posts one recording as multipart form data.
func (c *Client) UploadAudio(ctx context.Context, filename, contentType string, data []byte, opts UploadOptions) (*dto.UploadAudioResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if opts.PatientId != nil {
		if err := writer.WriteField("patient_id", opts.PatientId.String()); err != nil {
			return nil, fmt.Errorf("write patient_id: %w", err)
		}
	}
	if opts.DurationSeconds != nil {
		duration := strconv.FormatFloat(*opts.DurationSeconds, 'f', -1, 64)
		if err := writer.WriteField("duration_seconds", duration); err != nil {
			return nil, fmt.Errorf("write duration_seconds: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var resp dto.UploadAudioResponse
	if err := c.do(ctx, http.MethodPost, "/audio/upload", writer.FormDataContentType(), &body, &resp); err != nil {
		return nil, fmt.Errorf("upload audio: %w", err)
	}
	return &resp, nil
}

func (c *Client) GetJob(ctx context.Context, id uuid.UUID) (*dto.TranscriptionJobResponse, error) {
	var resp dto.TranscriptionJobResponse
	if err := c.do(ctx, http.MethodGet, "/transcriptions/"+id.String(), "", http.NoBody, &resp); err != nil {
		return nil, fmt.Errorf("get transcription %s: %w", id, err)
	}
	return &resp, nil
}

func (c *Client) RetryJob(ctx context.Context, id uuid.UUID) (*dto.RetryJobResponse, error) {
	var resp dto.RetryJobResponse
	if err := c.do(ctx, http.MethodPost, "/transcriptions/"+id.String()+"/retry", "", http.NoBody, &resp); err != nil {
		return nil, fmt.Errorf("retry transcription %s: %w", id, err)
	}
	return &resp, nil
}

// GenerateNote hands a completed transcription off to note generation. An
// empty templateType selects the standard SOAP template.
func (c *Client) GenerateNote(ctx context.Context, jobId, patientId uuid.UUID, templateType string) (*dto.GenerateNoteResponse, error) {
	if templateType == "" {
		templateType = DefaultTemplateType
	}
	payload, err := json.Marshal(dto.GenerateNoteRequest{
		TranscriptionJobId: jobId,
		PatientId:          patientId,
		TemplateType:       templateType,
	})
	if err != nil {
		return nil, err
	}

	var resp dto.GenerateNoteResponse
	if err := c.do(ctx, http.MethodPost, "/notes/generate-from-transcription", "application/json", bytes.NewReader(payload), &resp); err != nil {
		return nil, fmt.Errorf("generate note: %w", err)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var errResp dto.ErrorResponse
		message := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			message = errResp.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
