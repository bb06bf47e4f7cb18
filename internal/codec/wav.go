package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/crysgarage/engine/dsp"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

// WAVHeaderSize is the size of the canonical RIFF/WAVE/fmt/data header.
const WAVHeaderSize = 44

// maxPCM16 keeps positive full scale representable as int16 regardless of
// whether the encoder scales by 32767 or 32768.
const maxPCM16 = 32767.0 / 32768.0

func decodeWAV(data []byte) (*dsp.Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, fmt.Errorf("invalid wav buffer")
	}
	if buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid wav sample-rate: %d", buf.Format.SampleRate)
	}
	return dsp.FromInterleaved(buf.Data, buf.Format.NumChannels, buf.Format.SampleRate), nil
}

// EncodeWAV serialises b as a 16-bit PCM WAV file (format tag 1) with the
// source sample rate and channel count. Samples are clamped to full scale.
func EncodeWAV(b *dsp.Buffer) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	out := &seekBuffer{}
	if err := WriteWAV(out, b); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// WriteWAV writes b to w as 16-bit PCM WAV.
func WriteWAV(w io.WriteSeeker, b *dsp.Buffer) error {
	numCh := b.NumChannels()
	data := b.Interleaved32()
	for i, v := range data {
		if v > maxPCM16 {
			data[i] = maxPCM16
		} else if v < -1 {
			data[i] = -1
		}
	}

	enc := wav.NewEncoder(w, b.SampleRate, 16, numCh, 1)
	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  b.SampleRate,
			NumChannels: numCh,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wav write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wav close: %w", err)
	}
	return nil
}

// seekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes once the data length is known.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		if end > cap(s.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, s.buf)
			s.buf = grown
		} else {
			s.buf = s.buf[:end]
		}
	}
	copy(s.buf[s.pos:], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(s.pos) + offset
	case io.SeekEnd:
		next = int64(len(s.buf)) + offset
	default:
		return 0, errors.New("seek: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("seek: negative position")
	}
	s.pos = int(next)
	return next, nil
}

func (s *seekBuffer) Bytes() []byte {
	return s.buf
}
