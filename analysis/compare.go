package analysis

import (
	"math"

	"github.com/crysgarage/engine/dsp"
	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/window"
)

const (
	envelopeFrame = 256
	envelopeHop   = 128
	compareFloor  = 1e-12
	compareRMS    = 0.1
	maxSpecFrame  = 4096
)

// Difference describes how much processing changed a buffer. Time, envelope
// and spectral distances are measured after both signals are matched to the
// same RMS, so the figures describe tonal and dynamic change rather than gain.
type Difference struct {
	SampleRate    int `json:"sampleRate"`
	ComparedFrame int `json:"comparedFrames"`

	LevelChangeDB  float64 `json:"levelChangeDb"`
	TimeRMSE       float64 `json:"timeRmse"`
	EnvelopeRMSEDB float64 `json:"envelopeRmseDb"`
	SpectralRMSEDB float64 `json:"spectralRmseDb"`

	// Score is in [0,1]; 0 means unchanged.
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

// Compare measures the difference between a reference buffer and a
// processed version of it. Channel mixes are compared sample for sample.
func Compare(reference, processed *dsp.Buffer) Difference {
	d := Difference{Score: 1}
	if reference.Validate() != nil || processed.Validate() != nil {
		return d
	}
	d.SampleRate = reference.SampleRate
	ref := mixdown(reference)
	proc := mixdown(processed)
	n := min(len(ref), len(proc))
	ref, proc = ref[:n], proc[:n]
	d.ComparedFrame = n

	refRMS, procRMS := rms1(ref), rms1(proc)
	if refRMS <= compareFloor || procRMS <= compareFloor {
		return d
	}
	d.LevelChangeDB = 20 * math.Log10(procRMS/refRMS)

	ref = scaled(ref, compareRMS/refRMS)
	proc = scaled(proc, compareRMS/procRMS)

	d.TimeRMSE = rmse(ref, proc)

	refEnv := rmsEnvelope(ref, envelopeFrame, envelopeHop)
	procEnv := rmsEnvelope(proc, envelopeFrame, envelopeHop)
	if len(refEnv) > 0 {
		diff := make([]float64, len(refEnv))
		for i := range refEnv {
			diff[i] = magDB(refEnv[i]) - magDB(procEnv[i])
		}
		d.EnvelopeRMSEDB = rms1(diff)
	}
	d.SpectralRMSEDB = spectralRMSEDB(ref, proc)

	timeNorm := clamp01(d.TimeRMSE / 0.25)
	envNorm := clamp01(d.EnvelopeRMSEDB / 30.0)
	specNorm := clamp01(d.SpectralRMSEDB / 30.0)
	d.Score = clamp01(0.35*timeNorm + 0.30*envNorm + 0.35*specNorm)
	d.Similarity = clamp01(math.Exp(-4.0 * d.Score))
	return d
}

func scaled(x []float64, g float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v * g
	}
	return out
}

func rmse(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}

func rms1(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func rmsEnvelope(x []float64, frame, hop int) []float64 {
	if frame <= 0 || hop <= 0 || len(x) < frame {
		return nil
	}
	n := 1 + (len(x)-frame)/hop
	out := make([]float64, n)
	for i := range out {
		start := i * hop
		out[i] = rms1(x[start : start+frame])
	}
	return out
}

// spectralRMSEDB compares the magnitude spectra of the leading frame of a
// and b, using the largest power-of-two frame that fits.
func spectralRMSEDB(a, b []float64) float64 {
	n := min(len(a), len(b))
	size := maxSpecFrame
	for size > n {
		size >>= 1
	}
	if size < 512 {
		return 0
	}
	plan, err := algofft.NewPlanReal64(size)
	if err != nil {
		return 0
	}
	hann := window.Generate(window.TypeHann, size)
	aw := make([]float64, size)
	bw := make([]float64, size)
	for i := 0; i < size; i++ {
		aw[i] = a[i] * hann[i]
		bw[i] = b[i] * hann[i]
	}
	specA := make([]complex128, size/2+1)
	specB := make([]complex128, size/2+1)
	plan.Forward(specA, aw)
	plan.Forward(specB, bw)

	bins := size / 2
	var sum float64
	for k := 1; k < bins; k++ {
		d := magDB(cabs(specA[k])) - magDB(cabs(specB[k]))
		sum += d * d
	}
	return math.Sqrt(sum / float64(bins-1))
}

func cabs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

func magDB(x float64) float64 {
	if x < compareFloor {
		x = compareFloor
	}
	return 20.0 * math.Log10(x)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
