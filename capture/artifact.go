package capture

import (
	"errors"
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// Artifact is a finished recording ready for upload.
type Artifact struct {
	Filename string
	MimeType string
	Data     []byte
	// Duration is zero for pre-recorded files.
	Duration time.Duration
}

// DurationSeconds is nil when the duration is unknown.
func (a *Artifact) DurationSeconds() *float64 {
	if a.Duration <= 0 {
		return nil
	}
	seconds := a.Duration.Seconds()
	return &seconds
}

var errEmptyFile = errors.New("capture: audio file is empty")

// FromFile wraps a pre-recorded file without capturing anything. The server
// works out the duration.
func FromFile(name string, data []byte) (*Artifact, error) {
	if len(data) == 0 {
		return nil, errEmptyFile
	}
	ext := strings.ToLower(filepath.Ext(name))
	mimeType, ok := mimeByExtension[ext]
	if !ok {
		mimeType = mime.TypeByExtension(ext)
	}
	if !acceptedMimeType(mimeType) {
		mimeType = "application/octet-stream"
	}
	return &Artifact{
		Filename: filepath.Base(name),
		MimeType: mimeType,
		Data:     data,
	}, nil
}

var mimeByExtension = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".flac": "audio/flac",
}

func acceptedMimeType(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "audio/") || mediaType == "video/webm"
}

func extensionFor(mimeType string) string {
	mediaType, _, _ := mime.ParseMediaType(mimeType)
	switch mediaType {
	case "audio/webm", "video/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	}
	return ".bin"
}
