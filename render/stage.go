package render

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/effects/dynamics"
	"github.com/cwbudde/algo-dsp/dsp/effects/spatial"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"github.com/crysgarage/engine/dsp"
)

// Processor transforms a block of planar samples in place. State carries
// over between calls, so consecutive blocks behave like one long buffer.
type Processor interface {
	Process(block [][]float64)
}

// Build constructs the processor for s. Filters at or above Nyquist build
// as identity stages.
func (s Stage) Build(sampleRate float64, channels int) (Processor, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("stage %s: invalid sample rate %f", s.Name, sampleRate)
	}
	if channels < 1 {
		return nil, fmt.Errorf("stage %s: invalid channel count %d", s.Name, channels)
	}

	switch s.Kind {
	case KindHighpass:
		return newFilter(s, design.Highpass(s.FreqHz, s.Q, sampleRate), sampleRate, channels), nil
	case KindPeaking:
		return newFilter(s, design.Peak(s.FreqHz, s.GainDB, s.Q, sampleRate), sampleRate, channels), nil
	case KindCompressor:
		return newLinkedCompressor(s, sampleRate)
	case KindStereo:
		if channels < 2 {
			return identity{}, nil
		}
		w, err := spatial.NewStereoWidener(sampleRate,
			spatial.WithWidth(s.Width),
			spatial.WithBassMonoFreq(bassMonoFreq(s.BassMonoHz, sampleRate)),
		)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.Name, err)
		}
		return &widener{w: w}, nil
	case KindGain:
		if math.IsNaN(s.Gain) || math.IsInf(s.Gain, 0) || s.Gain < 0 {
			return nil, fmt.Errorf("stage %s: invalid gain %f", s.Name, s.Gain)
		}
		return gain(s.Gain), nil
	case KindSoftClip:
		if !(s.Ceiling > 0) || math.IsInf(s.Ceiling, 0) {
			return nil, fmt.Errorf("stage %s: invalid ceiling %f", s.Name, s.Ceiling)
		}
		return softClip(s.Ceiling), nil
	default:
		return nil, fmt.Errorf("stage %s: unknown kind %q", s.Name, s.Kind)
	}
}

type identity struct{}

func (identity) Process([][]float64) {}

type filter struct {
	sections []*biquad.Section
}

func newFilter(s Stage, c biquad.Coefficients, sampleRate float64, channels int) Processor {
	// The designers return zero coefficients for frequencies they cannot
	// realise; that would turn the stage into silence.
	if s.FreqHz >= sampleRate/2 || c == (biquad.Coefficients{}) {
		return identity{}
	}
	f := &filter{sections: make([]*biquad.Section, channels)}
	for i := range f.sections {
		f.sections[i] = biquad.NewSection(c)
	}
	return f
}

func (f *filter) Process(block [][]float64) {
	for c, ch := range block {
		sec := f.sections[c]
		for i, v := range ch {
			// Decaying IIR tails end in exact silence instead of denormals.
			ch[i] = dsp.FlushDenormals(sec.ProcessSample(v))
		}
	}
}

// linkedCompressor applies one gain, computed from the loudest channel, to
// every channel so the stereo image does not shift under gain reduction.
type linkedCompressor struct {
	c *dynamics.Compressor
}

func newLinkedCompressor(s Stage, sampleRate float64) (Processor, error) {
	c, err := dynamics.NewCompressor(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", s.Name, err)
	}
	steps := []func() error{
		func() error { return c.SetThreshold(s.ThresholdDB) },
		func() error { return c.SetRatio(s.Ratio) },
		func() error { return c.SetKnee(s.KneeDB) },
		func() error { return c.SetAttack(s.AttackMs) },
		func() error { return c.SetRelease(s.ReleaseMs) },
		// Also turns off auto makeup.
		func() error { return c.SetMakeupGain(0) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.Name, err)
		}
	}
	c.Reset()
	return &linkedCompressor{c: c}, nil
}

func (l *linkedCompressor) Process(block [][]float64) {
	if len(block) == 0 {
		return
	}
	n := len(block[0])
	for i := 0; i < n; i++ {
		var detect float64
		for _, ch := range block {
			if a := math.Abs(ch[i]); a > detect {
				detect = a
			}
		}
		out := l.c.ProcessSample(detect)
		if detect == 0 {
			continue
		}
		g := out / detect
		for _, ch := range block {
			ch[i] *= g
		}
	}
}

// widener handles the first two channels; any further channels pass through.
type widener struct {
	w *spatial.StereoWidener
}

func (w *widener) Process(block [][]float64) {
	left, right := block[0], block[1]
	for i := range left {
		left[i], right[i] = w.w.ProcessStereo(left[i], right[i])
	}
}

// bassMonoFreq disables the crossover when the sample rate cannot carry it.
func bassMonoFreq(hz, sampleRate float64) float64 {
	if hz <= 0 || hz >= sampleRate/4 {
		return 0
	}
	return hz
}

type gain float64

func (g gain) Process(block [][]float64) {
	if g == 1 {
		return
	}
	for _, ch := range block {
		for i := range ch {
			ch[i] *= float64(g)
		}
	}
}

type softClip float64

func (c softClip) Process(block [][]float64) {
	ceiling := float64(c)
	for _, ch := range block {
		for i, v := range ch {
			ch[i] = SoftClip(v, ceiling)
		}
	}
}

// SoftClip maps x smoothly into (-ceiling, ceiling).
func SoftClip(x, ceiling float64) float64 {
	return math.Tanh(x/ceiling) * ceiling
}
