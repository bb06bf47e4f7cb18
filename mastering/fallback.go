package mastering

import (
	"math"

	"github.com/crysgarage/engine/analysis"
	"github.com/crysgarage/engine/dsp"
	"github.com/crysgarage/engine/preset"
	"github.com/crysgarage/engine/render"
)

// Simulate produces the degraded output used when rendering fails: a copy
// of in with the normalization gain and the soft-clip ceiling applied.
// Non-finite input samples are zeroed so the result is always playable.
func Simulate(in *dsp.Buffer, p preset.Parameters) *dsp.Buffer {
	out := in.Clone()
	g := p.NormalizationGainLinear
	for _, ch := range out.Channels {
		for i, v := range ch {
			v *= g
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			ch[i] = render.SoftClip(v, render.SoftClipCeiling)
		}
	}
	return out
}

// SimulatedMeasurements analyzes a simulated buffer and reports the fixed
// mastering targets for loudness and peak.
func SimulatedMeasurements(b *dsp.Buffer) analysis.Measurements {
	m := analysis.Analyze(b)
	m.LoudnessDB = preset.TargetLoudnessDB
	m.PeakDB = preset.TargetPeakDisplayDB
	return m.Sanitize()
}
