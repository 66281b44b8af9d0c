package client

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/google/uuid"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"vet-transcribe/constant"
	"vet-transcribe/dto"
)

func TestUploadAudio(t *testing.T) {
	patient := uuid.New()
	jobId := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/audio/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		data, _ := io.ReadAll(file)
		if header.Filename != "visit.webm" || header.Header.Get("Content-Type") != "audio/webm" || string(data) != "opus" {
			t.Errorf("file part = %s %s %q", header.Filename, header.Header.Get("Content-Type"), data)
		}
		if r.FormValue("patient_id") != patient.String() || r.FormValue("duration_seconds") != "12.5" {
			t.Errorf("fields = %q %q", r.FormValue("patient_id"), r.FormValue("duration_seconds"))
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(dto.UploadAudioResponse{TranscriptionJobId: jobId})
	}))
	defer srv.Close()

	duration := 12.5
	c := New(srv.URL+"/", "secret", time.Second)
	resp, err := c.UploadAudio(context.Background(), "visit.webm", "audio/webm", []byte("opus"), UploadOptions{
		PatientId:       &patient,
		DurationSeconds: &duration,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.TranscriptionJobId != jobId {
		t.Fatalf("job id = %s, want %s", resp.TranscriptionJobId, jobId)
	}
}

func TestGetJobErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(dto.ErrorResponse{Error: "transcription job not found"})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", time.Second).GetJob(context.Background(), uuid.New())
	if !IsNotFound(err) {
		t.Fatalf("error = %v, want not found", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "transcription job not found" {
		t.Fatalf("api error = %+v", apiErr)
	}
}

func TestGetJob(t *testing.T) {
	jobId := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcriptions/"+jobId.String() {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(dto.TranscriptionJobResponse{ID: jobId, Status: constant.JobStatusProcessing})
	}))
	defer srv.Close()

	job, err := New(srv.URL, "", time.Second).GetJob(context.Background(), jobId)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.ID != jobId || job.Status != constant.JobStatusProcessing {
		t.Fatalf("job = %+v", job)
	}
}

func TestGenerateNoteDefaultsTemplate(t *testing.T) {
	jobId, patient := uuid.New(), uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/notes/generate-from-transcription" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req dto.GenerateNoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.TranscriptionJobId != jobId || req.PatientId != patient || req.TemplateType != DefaultTemplateType {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(dto.GenerateNoteResponse{Success: true, NoteId: "note-1"})
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "", time.Second).GenerateNote(context.Background(), jobId, patient, "")
	if err != nil {
		t.Fatalf("generate note: %v", err)
	}
	if !resp.Success || resp.NoteId != "note-1" {
		t.Fatalf("response = %+v", resp)
	}
}
