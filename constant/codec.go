package constant

import (
	"mime"
	"path/filepath"
	"strings"
)

// AudioCodec is the encoding hint handed to the speech backend. It is
// resolved once at upload time and stored on the audio file record.
type AudioCodec string

const (
	CodecUnspecified AudioCodec = "ENCODING_UNSPECIFIED"
	CodecLinear16    AudioCodec = "LINEAR16"
	CodecMP3         AudioCodec = "MP3"
	CodecWebmOpus    AudioCodec = "WEBM_OPUS"
	CodecOggOpus     AudioCodec = "OGG_OPUS"
	CodecFLAC        AudioCodec = "FLAC"
)

func (c AudioCodec) String() string {
	return string(c)
}

var codecByExtension = map[string]AudioCodec{
	".wav":  CodecLinear16,
	".mp3":  CodecMP3,
	".webm": CodecWebmOpus,
	".ogg":  CodecOggOpus,
	".opus": CodecOggOpus,
	".flac": CodecFLAC,
	// m4a (AAC) has no native encoding on the backend; MP3 is the closest
	// decoder the recognizer will autodetect.
	".m4a": CodecMP3,
}

var codecByMediaType = map[string]AudioCodec{
	"audio/wav":    CodecLinear16,
	"audio/x-wav":  CodecLinear16,
	"audio/wave":   CodecLinear16,
	"audio/mpeg":   CodecMP3,
	"audio/mp3":    CodecMP3,
	"audio/webm":   CodecWebmOpus,
	"video/webm":   CodecWebmOpus,
	"audio/ogg":    CodecOggOpus,
	"audio/opus":   CodecOggOpus,
	"audio/flac":   CodecFLAC,
	"audio/x-flac": CodecFLAC,
	"audio/m4a":    CodecMP3,
	"audio/x-m4a":  CodecMP3,
	"audio/mp4":    CodecMP3,
}

// ResolveCodec classifies an upload by file extension first and declared
// content type second. Unknown inputs resolve to CodecUnspecified.
func ResolveCodec(filename, contentType string) AudioCodec {
	if codec, ok := codecByExtension[strings.ToLower(filepath.Ext(filename))]; ok {
		return codec
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return CodecUnspecified
	}
	if codec, ok := codecByMediaType[strings.ToLower(mediaType)]; ok {
		return codec
	}
	return CodecUnspecified
}

// ExtensionFor returns the canonical file extension for a codec, used when
// the uploaded filename carries none.
func ExtensionFor(c AudioCodec) string {
	switch c {
	case CodecLinear16:
		return ".wav"
	case CodecMP3:
		return ".mp3"
	case CodecWebmOpus:
		return ".webm"
	case CodecOggOpus:
		return ".ogg"
	case CodecFLAC:
		return ".flac"
	default:
		return ".bin"
	}
}
