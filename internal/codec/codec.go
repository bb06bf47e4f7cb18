// Package codec turns encoded audio assets into sample buffers and writes
// canonical 16-bit PCM WAV files.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/crysgarage/engine/dsp"
)

// Format identifies an audio container/codec.
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatFLAC    Format = "flac"
	FormatOGG     Format = "ogg"
	FormatAAC     Format = "aac"
)

var (
	// ErrUnsupportedFormat is returned for formats that are recognised but
	// have no decoder, and for data whose format cannot be determined.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrNoFrames is returned when an asset decodes to an empty buffer.
	ErrNoFrames = errors.New("no audio frames")
)

var mimeFormats = map[string]Format{
	"audio/wav":       FormatWAV,
	"audio/x-wav":     FormatWAV,
	"audio/wave":      FormatWAV,
	"audio/vnd.wave":  FormatWAV,
	"audio/mpeg":      FormatMP3,
	"audio/mp3":       FormatMP3,
	"audio/mpeg3":     FormatMP3,
	"audio/flac":      FormatFLAC,
	"audio/x-flac":    FormatFLAC,
	"audio/ogg":       FormatOGG,
	"audio/vorbis":    FormatOGG,
	"application/ogg": FormatOGG,
	"audio/aac":       FormatAAC,
	"audio/aacp":      FormatAAC,
	"audio/mp4":       FormatAAC,
	"audio/x-m4a":     FormatAAC,
}

var extFormats = map[string]Format{
	".wav":  FormatWAV,
	".wave": FormatWAV,
	".mp3":  FormatMP3,
	".flac": FormatFLAC,
	".ogg":  FormatOGG,
	".oga":  FormatOGG,
	".aac":  FormatAAC,
	".m4a":  FormatAAC,
}

// Detect resolves the asset format from its declared MIME type, then its
// file name extension, then its leading magic bytes.
func Detect(mimeType string, name string, data []byte) Format {
	if mimeType != "" {
		mt, _, err := mime.ParseMediaType(mimeType)
		if err == nil {
			if f, ok := mimeFormats[strings.ToLower(mt)]; ok {
				return f
			}
		}
	}
	if name != "" {
		if f, ok := extFormats[strings.ToLower(filepath.Ext(name))]; ok {
			return f
		}
	}
	return Sniff(data)
}

// Sniff inspects magic bytes.
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("fLaC")):
		return FormatFLAC
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("OggS")):
		return FormatOGG
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return FormatAAC
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG audio frame sync. Layer bits 00 mean ADTS (AAC).
		if (data[1]>>1)&0x03 == 0 {
			return FormatAAC
		}
		return FormatMP3
	}
	return FormatUnknown
}

// Decode decodes data in the given format into a planar float buffer.
func Decode(data []byte, f Format) (*dsp.Buffer, error) {
	var decode func([]byte) (*dsp.Buffer, error)
	switch f {
	case FormatWAV:
		decode = decodeWAV
	case FormatMP3:
		decode = decodeMP3
	case FormatFLAC:
		decode = decodeFLAC
	case FormatOGG:
		decode = decodeOGG
	case FormatUnknown:
		return nil, fmt.Errorf("%w: cannot determine format", ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	buf, err := guard(decode, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f, err)
	}
	if buf.Frames() == 0 {
		return nil, fmt.Errorf("%s: %w", f, ErrNoFrames)
	}
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", f, err)
	}
	return buf, nil
}

// guard turns a decoder panic on malformed input into an error.
func guard(decode func([]byte) (*dsp.Buffer, error), data []byte) (buf *dsp.Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("malformed stream: %v", r)
		}
	}()
	return decode(data)
}
