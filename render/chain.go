// Package render runs the fixed mastering chain over a sample buffer.
//
// The chain is described as data: Chain returns an ordered list of Stage
// descriptors, and each Stage builds its own Processor. Engine.Render wires
// them together block by block.
package render

import (
	"math"

	"github.com/crysgarage/engine/preset"
)

// Kind identifies the processor a Stage builds.
type Kind string

const (
	KindHighpass   Kind = "highpass"
	KindPeaking    Kind = "peaking"
	KindCompressor Kind = "compressor"
	KindStereo     Kind = "stereo"
	KindGain       Kind = "gain"
	KindSoftClip   Kind = "softclip"
)

// Stage names in chain order.
const (
	StageSubCut        = "sub-cut"
	StageLowMidScoop   = "low-mid-scoop"
	StagePresence      = "presence"
	StageHighBoost     = "high-boost"
	StageCompressor    = "compressor"
	StageGentle        = "gentle-compressor"
	StageStereo        = "stereo"
	StageNormalization = "normalization"
	StageLoudness      = "loudness"
	StageLimiter       = "limiter"
	StageSoftClip      = "soft-clip"
)

// Fixed chain constants.
const (
	SubCutHz       = 35.0
	SubCutQ        = 0.7071
	LowMidHz       = 350.0
	LowMidQ        = 1.0
	PresenceHz     = 2500.0
	PresenceQ      = 1.0
	HighBoostHz    = 10000.0
	HighBoostQ     = 0.7
	CompressorKnee = 6.0

	CompressorAttackMs  = 0.5
	CompressorReleaseMs = 30.0

	GentleRatio       = 1.5
	GentleThresholdDB = -6.0
	GentleAttackMs    = 10.0
	GentleReleaseMs   = 200.0

	BassMonoHz = 120.0

	LimiterRatio       = 10.0
	LimiterThresholdDB = -0.5
	LimiterAttackMs    = 2.0
	LimiterReleaseMs   = 500.0

	// SoftClipCeilingDB is the ceiling of the final tanh stage.
	SoftClipCeilingDB = -0.5
)

// SoftClipCeiling is 10^(-0.5/20).
var SoftClipCeiling = math.Pow(10, SoftClipCeilingDB/20)

// Stage describes one processor in the chain. Only the fields relevant to
// Kind are set.
type Stage struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	FreqHz float64 `json:"freqHz,omitempty"`
	Q      float64 `json:"q,omitempty"`
	// GainDB is the filter gain. The high-pass stage carries the preset's
	// sub-cut gain for reporting; a high-pass response has no gain term.
	GainDB float64 `json:"gainDb,omitempty"`

	Ratio       float64 `json:"ratio,omitempty"`
	ThresholdDB float64 `json:"thresholdDb,omitempty"`
	KneeDB      float64 `json:"kneeDb,omitempty"`
	AttackMs    float64 `json:"attackMs,omitempty"`
	ReleaseMs   float64 `json:"releaseMs,omitempty"`

	Width      float64 `json:"width,omitempty"`
	BassMonoHz float64 `json:"bassMonoHz,omitempty"`

	Gain    float64 `json:"gain,omitempty"`
	Ceiling float64 `json:"ceiling,omitempty"`
}

// Chain returns the mastering chain for p in processing order.
func Chain(p preset.Parameters) []Stage {
	return []Stage{
		{Name: StageSubCut, Kind: KindHighpass, FreqHz: SubCutHz, Q: SubCutQ, GainDB: p.SubCutGainDB},
		{Name: StageLowMidScoop, Kind: KindPeaking, FreqHz: LowMidHz, Q: LowMidQ, GainDB: p.LowMidScoopGainDB},
		{Name: StagePresence, Kind: KindPeaking, FreqHz: PresenceHz, Q: PresenceQ, GainDB: p.PresenceGainDB},
		{Name: StageHighBoost, Kind: KindPeaking, FreqHz: HighBoostHz, Q: HighBoostQ, GainDB: p.HighBoostGainDB},
		{
			Name: StageCompressor, Kind: KindCompressor,
			Ratio: p.CompressionRatio, ThresholdDB: p.CompressionThresholdDB, KneeDB: CompressorKnee,
			AttackMs: CompressorAttackMs, ReleaseMs: CompressorReleaseMs,
		},
		{
			Name: StageGentle, Kind: KindCompressor,
			Ratio: GentleRatio, ThresholdDB: GentleThresholdDB, KneeDB: CompressorKnee,
			AttackMs: GentleAttackMs, ReleaseMs: GentleReleaseMs,
		},
		{Name: StageStereo, Kind: KindStereo, Width: p.StereoWidthFactor, BassMonoHz: BassMonoHz},
		{Name: StageNormalization, Kind: KindGain, Gain: p.NormalizationGainLinear},
		{Name: StageLoudness, Kind: KindGain, Gain: p.VolumeBoostLinear},
		{
			Name: StageLimiter, Kind: KindCompressor,
			Ratio: LimiterRatio, ThresholdDB: LimiterThresholdDB,
			AttackMs: LimiterAttackMs, ReleaseMs: LimiterReleaseMs,
		},
		{Name: StageSoftClip, Kind: KindSoftClip, Ceiling: SoftClipCeiling},
	}
}
