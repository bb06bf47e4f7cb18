// Package preset derives mastering parameters from analysis measurements.
package preset

import (
	"math"

	"github.com/crysgarage/engine/analysis"
	"github.com/cwbudde/algo-dsp/dsp/core"
)

// Fixed mastering targets.
const (
	TargetLoudnessDB = -9.0
	// TargetPeakLinear is about -6 dBFS.
	TargetPeakLinear = 0.501
	// TargetPeakDisplayDB is the true-peak figure shown for simulated results.
	TargetPeakDisplayDB = -0.2
)

// Volume boost clamp.
const (
	MinVolumeBoost = 0.5
	MaxVolumeBoost = 4.0
)

// Fixed EQ gains in dB.
const (
	HighBoostGainDB   = 4.0
	LowMidScoopGainDB = -2.0
	SubCutGainDB      = -6.0
	PresenceGainDB    = 2.0
)

// Dynamic range regime edges in dB. Values equal to an edge use the middle
// regime.
const (
	WideDynamicsDB   = 15.0
	NarrowDynamicsDB = 8.0
)

// Stereo width regime edges in percent. Values equal to an edge use the
// middle regime.
const (
	NarrowStereoPct = 50.0
	WideStereoPct   = 80.0
)

// Ranges accepted by ApplyFile and enforced by Clamp.
const (
	MinEQGainDB      = -24.0
	MaxEQGainDB      = 24.0
	MinRatio         = 1.0
	MaxRatio         = 20.0
	MinThresholdDB   = -60.0
	MaxThresholdDB   = 0.0
	MinStereoWidth   = 0.0
	MaxStereoWidth   = 2.0
	MaxNormalization = 1e6
)

// Parameters drive one render.
type Parameters struct {
	VolumeBoostLinear float64 `json:"volumeBoostLinear"`

	HighBoostGainDB   float64 `json:"highBoostGainDb"`
	LowMidScoopGainDB float64 `json:"lowMidScoopGainDb"`
	SubCutGainDB      float64 `json:"subCutGainDb"`
	PresenceGainDB    float64 `json:"presenceGainDb"`

	CompressionRatio       float64 `json:"compressionRatio"`
	CompressionThresholdDB float64 `json:"compressionThresholdDb"`

	StereoWidthFactor float64 `json:"stereoWidthFactor"`

	// NormalizationGainLinear comes from the source buffer peak, not from
	// Measurements. See NormalizationGain.
	NormalizationGainLinear float64 `json:"normalizationGainLinear"`
}

// Derive maps measurements to render parameters. normGain is passed through
// unchanged apart from clamping. Out-of-range measurements are clamped
// first, so Derive is total.
func Derive(m analysis.Measurements, normGain float64) Parameters {
	m = m.Sanitize()
	ratio, threshold := compression(m.DynamicRangeDB)
	p := Parameters{
		VolumeBoostLinear:       VolumeBoost(m.LoudnessDB),
		HighBoostGainDB:         HighBoostGainDB,
		LowMidScoopGainDB:       LowMidScoopGainDB,
		SubCutGainDB:            SubCutGainDB,
		PresenceGainDB:          PresenceGainDB,
		CompressionRatio:        ratio,
		CompressionThresholdDB:  threshold,
		StereoWidthFactor:       stereoWidth(m.StereoWidthPct),
		NormalizationGainLinear: normGain,
	}
	return p.Clamp()
}

// VolumeBoost returns the linear gain that moves loudnessDB to
// TargetLoudnessDB, clamped to [MinVolumeBoost, MaxVolumeBoost].
func VolumeBoost(loudnessDB float64) float64 {
	boost := core.DBToLinear(TargetLoudnessDB - loudnessDB)
	if math.IsNaN(boost) {
		return 1
	}
	return core.Clamp(boost, MinVolumeBoost, MaxVolumeBoost)
}

// NormalizationGain targets TargetPeakLinear from the absolute peak of the
// source buffer. A zero or non-finite peak yields unity gain.
func NormalizationGain(peak float64) float64 {
	peak = math.Abs(peak)
	if peak == 0 || math.IsNaN(peak) || math.IsInf(peak, 0) {
		return 1
	}
	return TargetPeakLinear / peak
}

func compression(dynamicRangeDB float64) (ratio, thresholdDB float64) {
	switch {
	case dynamicRangeDB > WideDynamicsDB:
		return 3.0, -12
	case dynamicRangeDB < NarrowDynamicsDB:
		return 2.5, -8
	default:
		return 2.8, -10
	}
}

func stereoWidth(pct float64) float64 {
	switch {
	case pct < NarrowStereoPct:
		return 1.4
	case pct > WideStereoPct:
		return 1.2
	default:
		return 1.3
	}
}

// Clamp returns p with every field forced into its valid range. NaN fields
// take the neutral value for that field.
func (p Parameters) Clamp() Parameters {
	return Parameters{
		VolumeBoostLinear:       clampOr(p.VolumeBoostLinear, 1, MinVolumeBoost, MaxVolumeBoost),
		HighBoostGainDB:         clampOr(p.HighBoostGainDB, 0, MinEQGainDB, MaxEQGainDB),
		LowMidScoopGainDB:       clampOr(p.LowMidScoopGainDB, 0, MinEQGainDB, MaxEQGainDB),
		SubCutGainDB:            clampOr(p.SubCutGainDB, 0, MinEQGainDB, MaxEQGainDB),
		PresenceGainDB:          clampOr(p.PresenceGainDB, 0, MinEQGainDB, MaxEQGainDB),
		CompressionRatio:        clampOr(p.CompressionRatio, MinRatio, MinRatio, MaxRatio),
		CompressionThresholdDB:  clampOr(p.CompressionThresholdDB, MaxThresholdDB, MinThresholdDB, MaxThresholdDB),
		StereoWidthFactor:       clampOr(p.StereoWidthFactor, 1, MinStereoWidth, MaxStereoWidth),
		NormalizationGainLinear: clampOr(p.NormalizationGainLinear, 1, 0, MaxNormalization),
	}
}

func clampOr(v, neutral, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return neutral
	}
	return core.Clamp(v, lo, hi)
}
