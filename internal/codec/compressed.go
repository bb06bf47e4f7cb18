package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/crysgarage/engine/dsp"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// go-mp3 always emits signed 16-bit little-endian stereo frames.
const mp3Channels = 2

func decodeMP3(data []byte) (*dsp.Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	frames := len(pcm) / (2 * mp3Channels)
	b := dsp.NewBuffer(dec.SampleRate(), mp3Channels, frames)
	for i := 0; i < frames; i++ {
		for c := 0; c < mp3Channels; c++ {
			off := (i*mp3Channels + c) * 2
			v := int16(uint16(pcm[off]) | uint16(pcm[off+1])<<8)
			b.Channels[c][i] = float64(v) / 32768.0
		}
	}
	return b, nil
}

func decodeFLAC(data []byte) (*dsp.Buffer, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	numCh := int(stream.Info.NChannels)
	bps := int(stream.Info.BitsPerSample)
	if numCh < 1 || bps < 1 {
		return nil, fmt.Errorf("invalid flac stream info: channels=%d bps=%d", numCh, bps)
	}
	scale := 1.0 / float64(int64(1)<<(bps-1))

	b := dsp.NewBuffer(int(stream.Info.SampleRate), numCh, 0)
	for {
		f, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(f.Subframes) < numCh {
			return nil, fmt.Errorf("flac frame has %d subframes, want %d", len(f.Subframes), numCh)
		}
		for c := 0; c < numCh; c++ {
			for _, s := range f.Subframes[c].Samples {
				b.Channels[c] = append(b.Channels[c], float64(s)*scale)
			}
		}
	}
	return b, nil
}

func decodeOGG(data []byte) (*dsp.Buffer, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels < 1 {
		return nil, fmt.Errorf("invalid ogg stream format")
	}
	return dsp.FromInterleaved(samples, format.Channels, format.SampleRate), nil
}
