package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/google/uuid"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"vet-transcribe/capture"
	"vet-transcribe/client"
	"vet-transcribe/constant"
	"vet-transcribe/dto"
	"vet-transcribe/poller"
)

// fakeAPI serves the transcription endpoints and finishes the job after a
// few status reads.
type fakeAPI struct {
	mu         sync.Mutex
	jobId      uuid.UUID
	reads      int
	failWith   string
	notes      []dto.GenerateNoteRequest
	uploadedAs string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.URL.Path == "/audio/upload":
		_, header, _ := r.FormFile("file")
		f.uploadedAs = header.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(dto.UploadAudioResponse{TranscriptionJobId: f.jobId})
	case strings.HasPrefix(r.URL.Path, "/transcriptions/"):
		f.reads++
		job := dto.TranscriptionJobResponse{ID: f.jobId, Status: constant.JobStatusProcessing}
		if f.reads >= 2 {
			if f.failWith != "" {
				job.Status = constant.JobStatusFailed
				job.ErrorMessage = &f.failWith
			} else {
				transcript, confidence := "ear infection noted", 0.92
				job.Status = constant.JobStatusCompleted
				job.Transcript = &transcript
				job.ConfidenceScore = &confidence
			}
		}
		json.NewEncoder(w).Encode(job)
	case r.URL.Path == "/notes/generate-from-transcription":
		var req dto.GenerateNoteRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.notes = append(f.notes, req)
		json.NewEncoder(w).Encode(dto.GenerateNoteResponse{Success: true, NoteId: "note-1", Message: "note generated"})
	default:
		http.NotFound(w, r)
	}
}

func setup(t *testing.T, api *fakeAPI) (*client.Client, *poller.Poller) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c := client.New(srv.URL, "", time.Second)
	return c, &poller.Poller{Reader: c, Interval: time.Millisecond}
}

func TestRunTranscribe(t *testing.T) {
	api := &fakeAPI{jobId: uuid.New()}
	c, p := setup(t, api)
	artifact, _ := capture.FromFile("visit.wav", []byte("RIFF"))
	patient := uuid.New()

	var out bytes.Buffer
	err := runTranscribe(cliLogger(&bytes.Buffer{}), c, p, artifact, transcribeOptions{
		patientId:    patient.String(),
		generateNote: true,
		templateType: client.DefaultTemplateType,
	}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out.String()) != "ear infection noted" {
		t.Fatalf("output = %q", out.String())
	}
	if api.uploadedAs != "audio/wav" {
		t.Fatalf("uploaded content type = %q", api.uploadedAs)
	}
	if len(api.notes) != 1 || api.notes[0].TranscriptionJobId != api.jobId || api.notes[0].PatientId != patient {
		t.Fatalf("notes = %+v", api.notes)
	}
}

func TestRunTranscribeReportsFailure(t *testing.T) {
	api := &fakeAPI{jobId: uuid.New(), failWith: "no speech detected in audio file"}
	c, p := setup(t, api)
	artifact, _ := capture.FromFile("visit.wav", []byte("RIFF"))

	err := runTranscribe(cliLogger(&bytes.Buffer{}), c, p, artifact, transcribeOptions{}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "no speech detected") {
		t.Fatalf("error = %v", err)
	}
	if len(api.notes) != 0 {
		t.Fatalf("note generated for failed job")
	}
}

func TestRunTranscribeNeedsPatientForNote(t *testing.T) {
	api := &fakeAPI{jobId: uuid.New()}
	c, p := setup(t, api)
	artifact, _ := capture.FromFile("visit.wav", []byte("RIFF"))

	err := runTranscribe(context.Background(), c, p, artifact, transcribeOptions{generateNote: true}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error without --patient")
	}
	if api.reads != 0 || api.uploadedAs != "" {
		t.Fatal("request sent before validating flags")
	}
}

func TestRecordPCMStopsWhenInputEnds(t *testing.T) {
	src, w := io.Pipe()
	go func() {
		// one second of 16 kHz mono silence
		w.Write(make([]byte, 32000))
		w.Close()
	}()

	ctx, cancel := context.WithTimeout(cliLogger(&bytes.Buffer{}), 5*time.Second)
	defer cancel()
	started := time.Now()
	artifact, err := recordPCM(ctx, src, transcribeOptions{sampleRate: 16000})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ctx.Err() != nil || time.Since(started) > 2*time.Second {
		t.Fatalf("recording ran for %s after the input ended", time.Since(started))
	}
	if len(artifact.Data) != 44+32000 {
		t.Fatalf("artifact = %d bytes, want %d", len(artifact.Data), 44+32000)
	}
	if artifact.Duration > time.Second {
		t.Fatalf("duration = %s for one second of audio", artifact.Duration)
	}
}
