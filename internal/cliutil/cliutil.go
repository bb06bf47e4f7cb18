// Package cliutil holds helpers shared by the command-line tools.
package cliutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"

	"github.com/crysgarage/engine/dsp"
	"github.com/crysgarage/engine/internal/codec"
)

// ParseWorkers parses a worker count flag. "auto" maps to the number of CPUs.
func ParseWorkers(raw string) (int, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return 0, fmt.Errorf("empty value (use integer >= 1 or 'auto')")
	}
	if v == "auto" {
		return runtime.NumCPU(), nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%q (use integer >= 1 or 'auto')", raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("%d (must be >= 1 or 'auto')", n)
	}
	return n, nil
}

// ReadAudio reads and decodes an audio file of any supported format.
func ReadAudio(path string) (*dsp.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b, err := codec.Decode(data, codec.Detect("", filepath.Base(path), data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// ResampleIfNeeded converts b to toRate, channel by channel. b is returned
// unchanged when the rates already match.
func ResampleIfNeeded(b *dsp.Buffer, toRate int) (*dsp.Buffer, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if toRate <= 0 {
		return nil, fmt.Errorf("invalid target sample rate %d", toRate)
	}
	if b.SampleRate == toRate {
		return b, nil
	}
	out := &dsp.Buffer{SampleRate: toRate, Channels: make([][]float64, b.NumChannels())}
	for c, ch := range b.Channels {
		r, err := dspresample.NewForRates(
			float64(b.SampleRate),
			float64(toRate),
			dspresample.WithQuality(dspresample.QualityBest),
		)
		if err != nil {
			return nil, err
		}
		out.Channels[c] = r.Process(ch)
	}
	// Channels can differ by a sample after independent resampling.
	n := out.Frames()
	for _, ch := range out.Channels {
		n = min(n, len(ch))
	}
	for c := range out.Channels {
		out.Channels[c] = out.Channels[c][:n]
	}
	return out, nil
}
