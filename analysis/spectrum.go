package analysis

import (
	"fmt"
	"math"

	"github.com/crysgarage/engine/dsp"
	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/spectrum"
	"github.com/cwbudde/algo-dsp/dsp/window"
)

// Band edges in Hz.
const (
	LowBandMaxHz  = 250.0
	HighBandMinHz = 4000.0

	spectrumFFTSize = 4096
	spectrumHop     = 2048
	tiltFloorDB     = -60.0
)

// SpectrumReport splits averaged spectral energy of the channel mix into
// three bands. Shares are percentages of the total and sum to 100 unless the
// buffer is silent.
type SpectrumReport struct {
	LowPct  float64 `json:"lowPct"`
	MidPct  float64 `json:"midPct"`
	HighPct float64 `json:"highPct"`
	// TiltDB is the high band energy relative to the low band.
	TiltDB float64 `json:"tiltDb"`
}

// Spectrum computes band energy shares with a Hann-windowed STFT. Buffers
// shorter than one frame are zero padded.
func Spectrum(b *dsp.Buffer) (SpectrumReport, error) {
	if err := b.Validate(); err != nil {
		return SpectrumReport{}, err
	}
	mix := mixdown(b)

	plan, err := algofft.NewPlanReal64(spectrumFFTSize)
	if err != nil {
		return SpectrumReport{}, fmt.Errorf("fft plan: %w", err)
	}
	hann := window.Generate(window.TypeHann, spectrumFFTSize)
	frame := make([]float64, spectrumFFTSize)
	bins := make([]complex128, spectrumFFTSize/2+1)
	avg := make([]float64, len(bins))

	frames := 0
	for pos := 0; pos == 0 || pos+spectrumFFTSize <= len(mix); pos += spectrumHop {
		for i := range frame {
			v := 0.0
			if pos+i < len(mix) {
				v = mix[pos+i]
			}
			frame[i] = v * hann[i]
		}
		plan.Forward(bins, frame)
		for k, p := range spectrum.Power(bins) {
			avg[k] += p
		}
		frames++
	}

	binHz := float64(b.SampleRate) / float64(spectrumFFTSize)
	var low, mid, high float64
	// Skip DC.
	for k := 1; k < len(avg); k++ {
		hz := float64(k) * binHz
		switch {
		case hz < LowBandMaxHz:
			low += avg[k]
		case hz <= HighBandMinHz:
			mid += avg[k]
		default:
			high += avg[k]
		}
	}
	total := low + mid + high
	if total <= 0 {
		return SpectrumReport{}, nil
	}
	return SpectrumReport{
		LowPct:  100 * low / total,
		MidPct:  100 * mid / total,
		HighPct: 100 * high / total,
		TiltDB:  tiltDB(low, high),
	}, nil
}

func tiltDB(low, high float64) float64 {
	switch {
	case low <= 0 && high <= 0:
		return 0
	case low <= 0:
		return -tiltFloorDB
	case high <= 0:
		return tiltFloorDB
	}
	db := 10 * math.Log10(high/low)
	return math.Max(tiltFloorDB, math.Min(-tiltFloorDB, db))
}

func mixdown(b *dsp.Buffer) []float64 {
	n := b.Frames()
	out := make([]float64, n)
	g := 1.0 / float64(b.NumChannels())
	for _, ch := range b.Channels {
		for i, v := range ch {
			out[i] += v * g
		}
	}
	return out
}
