package analysis

import (
	"math"

	"github.com/crysgarage/engine/dsp"
	"github.com/cwbudde/algo-dsp/dsp/core"
)

// Clamp ranges for Measurements fields.
const (
	MinLevelDB = -60.0
	MaxLevelDB = 0.0

	MinDynamicRangeDB = 0.0
	MaxDynamicRangeDB = 20.0

	MinPct = 0.0
	MaxPct = 100.0

	// MonoStereoWidthPct is reported for single-channel buffers.
	MonoStereoWidthPct = 60.0

	balanceRegion  = 0.3
	balanceEpsilon = 1e-10
	rangeEpsilon   = 1e-10
)

// Measurements is the fixed set of scalar levels computed for a buffer.
type Measurements struct {
	LoudnessDB          float64 `json:"loudnessDb"`
	PeakDB              float64 `json:"peakDb"`
	RMSDB               float64 `json:"rmsDb"`
	DynamicRangeDB      float64 `json:"dynamicRangeDb"`
	FrequencyBalancePct float64 `json:"frequencyBalancePct"`
	StereoWidthPct      float64 `json:"stereoWidthPct"`
}

// Fallback replaces any field that evaluates to NaN.
var Fallback = Measurements{
	LoudnessDB:          MinLevelDB,
	PeakDB:              MinLevelDB,
	RMSDB:               MinLevelDB,
	DynamicRangeDB:      MinDynamicRangeDB,
	FrequencyBalancePct: 50,
	StereoWidthPct:      MonoStereoWidthPct,
}

// Analyze measures the buffer. Levels, range and balance are taken from the
// first channel; stereo width from the correlation of channels 0 and 1.
//
// Frequency balance compares the mean absolute amplitude of the first and
// last 30% of the samples. This is a time-domain envelope proxy, not a
// spectral measurement; see Spectrum for band energies.
//
// Buffers that fail dsp.Buffer.Validate, such as empty or ragged ones, yield
// Fallback.
func Analyze(b *dsp.Buffer) Measurements {
	if b.Validate() != nil {
		return Fallback
	}
	ch := b.Channels[0]

	var sumAbs, sumSq, peak float64
	maxV := math.Inf(-1)
	minV := math.Inf(1)
	for _, v := range ch {
		a := math.Abs(v)
		sumAbs += a
		sumSq += v * v
		if a > peak {
			peak = a
		}
		if v > maxV {
			maxV = v
		}
		if v < minV {
			minV = v
		}
	}
	n := float64(len(ch))

	m := Measurements{
		LoudnessDB:          levelDB(sumAbs / n),
		PeakDB:              levelDB(peak),
		RMSDB:               levelDB(math.Sqrt(sumSq / n)),
		DynamicRangeDB:      dynamicRangeDB(maxV, minV),
		FrequencyBalancePct: frequencyBalancePct(ch),
		StereoWidthPct:      stereoWidthPct(b),
	}
	return m.Sanitize()
}

// Sanitize replaces NaN fields with Fallback values and clamps every field
// to its documented range.
func (m Measurements) Sanitize() Measurements {
	return Measurements{
		LoudnessDB:          sanitize(m.LoudnessDB, Fallback.LoudnessDB, MinLevelDB, MaxLevelDB),
		PeakDB:              sanitize(m.PeakDB, Fallback.PeakDB, MinLevelDB, MaxLevelDB),
		RMSDB:               sanitize(m.RMSDB, Fallback.RMSDB, MinLevelDB, MaxLevelDB),
		DynamicRangeDB:      sanitize(m.DynamicRangeDB, Fallback.DynamicRangeDB, MinDynamicRangeDB, MaxDynamicRangeDB),
		FrequencyBalancePct: sanitize(m.FrequencyBalancePct, Fallback.FrequencyBalancePct, MinPct, MaxPct),
		StereoWidthPct:      sanitize(m.StereoWidthPct, Fallback.StereoWidthPct, MinPct, MaxPct),
	}
}

// InRange reports whether every field is finite and within its range.
func (m Measurements) InRange() bool {
	in := func(v, lo, hi float64) bool { return !math.IsNaN(v) && v >= lo && v <= hi }
	return in(m.LoudnessDB, MinLevelDB, MaxLevelDB) &&
		in(m.PeakDB, MinLevelDB, MaxLevelDB) &&
		in(m.RMSDB, MinLevelDB, MaxLevelDB) &&
		in(m.DynamicRangeDB, MinDynamicRangeDB, MaxDynamicRangeDB) &&
		in(m.FrequencyBalancePct, MinPct, MaxPct) &&
		in(m.StereoWidthPct, MinPct, MaxPct)
}

func sanitize(v, fallback, lo, hi float64) float64 {
	if math.IsNaN(v) {
		v = fallback
	}
	return core.Clamp(v, lo, hi)
}

// levelDB converts a linear level to dB, with silence pinned to the floor.
func levelDB(x float64) float64 {
	if !(x > 0) {
		return MinLevelDB
	}
	return core.Clamp(core.LinearToDB(x), MinLevelDB, MaxLevelDB)
}

func dynamicRangeDB(maxV, minV float64) float64 {
	if !(maxV > 0) {
		return MinDynamicRangeDB
	}
	den := math.Abs(minV)
	if den < rangeEpsilon {
		den = rangeEpsilon
	}
	return core.Clamp(20*math.Log10(maxV/den), MinDynamicRangeDB, MaxDynamicRangeDB)
}

func frequencyBalancePct(ch []float64) float64 {
	n := len(ch)
	k := int(float64(n) * balanceRegion)
	if k < 1 {
		k = 1
	}
	low := meanAbs(ch[:k])
	high := meanAbs(ch[n-k:])
	return core.Clamp(50*high/(low+balanceEpsilon), MinPct, MaxPct)
}

func stereoWidthPct(b *dsp.Buffer) float64 {
	if b.NumChannels() < 2 {
		return MonoStereoWidthPct
	}
	l, r := b.Channels[0], b.Channels[1]
	var lr, ll, rr float64
	for i := range min(len(l), len(r)) {
		lr += l[i] * r[i]
		ll += l[i] * l[i]
		rr += r[i] * r[i]
	}
	den := math.Sqrt(ll * rr)
	if den == 0 {
		return MonoStereoWidthPct
	}
	corr := lr / den
	return core.Clamp(100*(1-corr), MinPct, MaxPct)
}

func meanAbs(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += math.Abs(v)
	}
	return sum / float64(len(x))
}
