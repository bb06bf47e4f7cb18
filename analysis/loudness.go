package analysis

import (
	"math"

	"github.com/crysgarage/engine/dsp"
	"github.com/cwbudde/algo-dsp/measure/loudness"
)

// LUFSFloor is reported when a buffer is gated out entirely.
const LUFSFloor = -120.0

// LoudnessReport holds BS.1770 loudness figures. These are reported next to
// Measurements and never drive preset derivation.
type LoudnessReport struct {
	IntegratedLUFS float64 `json:"integratedLufs"`
	ShortTermLUFS  float64 `json:"shortTermLufs"`
	MomentaryLUFS  float64 `json:"momentaryLufs"`
	SamplePeakDBFS float64 `json:"samplePeakDbfs"`
}

// Loudness runs the whole buffer through a K-weighted loudness meter.
// Short-term and momentary values describe the end of the buffer.
func Loudness(b *dsp.Buffer) LoudnessReport {
	if b.Validate() != nil {
		return LoudnessReport{
			IntegratedLUFS: LUFSFloor,
			ShortTermLUFS:  LUFSFloor,
			MomentaryLUFS:  LUFSFloor,
			SamplePeakDBFS: LUFSFloor,
		}
	}
	numCh := b.NumChannels()
	meter := loudness.NewMeter(
		loudness.WithSampleRate(float64(b.SampleRate)),
		loudness.WithChannels(numCh),
	)
	meter.StartIntegration()

	frame := make([]float64, numCh)
	for i := 0; i < b.Frames(); i++ {
		for c := 0; c < numCh; c++ {
			frame[c] = b.Channels[c][i]
		}
		meter.ProcessSample(frame)
	}

	var peak float64
	for _, p := range meter.Peaks() {
		peak = math.Max(peak, p)
	}
	return LoudnessReport{
		IntegratedLUFS: floorLUFS(meter.Integrated()),
		ShortTermLUFS:  floorLUFS(meter.ShortTerm()),
		MomentaryLUFS:  floorLUFS(meter.Momentary()),
		SamplePeakDBFS: linToDB(peak, LUFSFloor),
	}
}

func floorLUFS(v float64) float64 {
	if math.IsNaN(v) || v < LUFSFloor {
		return LUFSFloor
	}
	return v
}

func linToDB(x float64, floor float64) float64 {
	if !(x > 0) {
		return floor
	}
	db := 20.0 * math.Log10(x)
	if db < floor {
		return floor
	}
	return db
}
