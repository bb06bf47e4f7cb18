package analysis

import (
	"math"
	"math/rand"
	"testing"

	"github.com/crysgarage/engine/dsp"
)

func constantBuffer(sr, channels, frames int, v float64) *dsp.Buffer {
	b := dsp.NewBuffer(sr, channels, frames)
	for c := range b.Channels {
		for i := range b.Channels[c] {
			b.Channels[c][i] = v
		}
	}
	return b
}

func sineBuffer(sr, channels, frames int, freq, amp float64) *dsp.Buffer {
	b := dsp.NewBuffer(sr, channels, frames)
	for c := range b.Channels {
		for i := range b.Channels[c] {
			b.Channels[c][i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sr))
		}
	}
	return b
}

func noiseBuffer(sr, channels, frames int, amp float64, seed int64) *dsp.Buffer {
	rng := rand.New(rand.NewSource(seed))
	b := dsp.NewBuffer(sr, channels, frames)
	for c := range b.Channels {
		for i := range b.Channels[c] {
			b.Channels[c][i] = amp * (rng.Float64()*2 - 1)
		}
	}
	return b
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestAnalyzeConstantMono(t *testing.T) {
	m := Analyze(constantBuffer(44100, 1, 44100, 0.1))
	if !near(m.LoudnessDB, -20, 1e-6) || !near(m.PeakDB, -20, 1e-6) || !near(m.RMSDB, -20, 1e-6) {
		t.Fatalf("expected -20 dB levels, got %+v", m)
	}
	if m.DynamicRangeDB != 0 {
		t.Fatalf("dynamic range = %f, want 0", m.DynamicRangeDB)
	}
	if !near(m.FrequencyBalancePct, 50, 1e-3) {
		t.Fatalf("frequency balance = %f, want 50", m.FrequencyBalancePct)
	}
	if m.StereoWidthPct != MonoStereoWidthPct {
		t.Fatalf("mono stereo width = %f, want %f", m.StereoWidthPct, MonoStereoWidthPct)
	}
}

func TestAnalyzeSilence(t *testing.T) {
	for _, channels := range []int{1, 2} {
		m := Analyze(constantBuffer(48000, channels, 4800, 0))
		if m.LoudnessDB != MinLevelDB || m.PeakDB != MinLevelDB || m.RMSDB != MinLevelDB {
			t.Fatalf("silence levels should sit at the floor, got %+v", m)
		}
		if m.DynamicRangeDB != 0 {
			t.Fatalf("silence dynamic range = %f", m.DynamicRangeDB)
		}
		if m.StereoWidthPct != MonoStereoWidthPct {
			t.Fatalf("silence stereo width = %f", m.StereoWidthPct)
		}
		if !m.InRange() {
			t.Fatalf("silence measurements out of range: %+v", m)
		}
	}
}

func TestAnalyzeEmptyBufferReturnsFallback(t *testing.T) {
	if got := Analyze(dsp.NewBuffer(44100, 2, 0)); got != Fallback {
		t.Fatalf("empty buffer = %+v, want fallback", got)
	}
	if got := Analyze(&dsp.Buffer{SampleRate: 44100}); got != Fallback {
		t.Fatalf("channel-less buffer = %+v, want fallback", got)
	}
}

func TestAnalyzeRaggedBuffer(t *testing.T) {
	tests := []struct {
		name string
		buf  *dsp.Buffer
	}{
		{"empty right", &dsp.Buffer{SampleRate: 44100, Channels: [][]float64{{0.1, 0.2, 0.3}, {}}}},
		{"short right", &dsp.Buffer{SampleRate: 44100, Channels: [][]float64{{0.1, 0.2, 0.3}, {0.1}}}},
		{"short left", &dsp.Buffer{SampleRate: 44100, Channels: [][]float64{{0.1}, {0.1, 0.2, 0.3}}}},
		{"no sample rate", &dsp.Buffer{Channels: [][]float64{{0.1, 0.2}, {0.1, 0.2}}}},
	}
	for _, tt := range tests {
		if got := Analyze(tt.buf); got != Fallback {
			t.Fatalf("%s: got %+v, want fallback", tt.name, got)
		}
	}
	// Analyze screens these out; the width helper still has to cope.
	if w := stereoWidthPct(tests[0].buf); w != MonoStereoWidthPct {
		t.Fatalf("width of ragged buffer = %f, want %f", w, MonoStereoWidthPct)
	}
	if w := stereoWidthPct(tests[1].buf); w < 0 || w > MaxPct {
		t.Fatalf("width of short buffer = %f out of range", w)
	}
}

func TestAnalyzeAlwaysInRange(t *testing.T) {
	hot := sineBuffer(44100, 2, 8192, 997, 4)
	withNaN := sineBuffer(44100, 2, 4096, 440, 0.5)
	withNaN.Channels[0][100] = math.NaN()
	withNaN.Channels[1][200] = math.Inf(1)

	tests := []struct {
		name string
		buf  *dsp.Buffer
	}{
		{"noise", noiseBuffer(44100, 2, 44100, 0.8, 1)},
		{"quiet noise", noiseBuffer(22050, 1, 2000, 1e-6, 2)},
		{"overdriven sine", hot},
		{"non-finite samples", withNaN},
		{"single frame", constantBuffer(8000, 2, 1, -0.5)},
	}
	for _, tt := range tests {
		m := Analyze(tt.buf)
		if !m.InRange() {
			t.Fatalf("%s: measurements out of range: %+v", tt.name, m)
		}
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	b := noiseBuffer(44100, 2, 20000, 0.5, 42)
	first := Analyze(b)
	for i := 0; i < 5; i++ {
		if got := Analyze(b); got != first {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestAnalyzeStereoWidth(t *testing.T) {
	same := sineBuffer(44100, 2, 8192, 440, 0.5)
	if w := Analyze(same).StereoWidthPct; !near(w, 0, 1e-6) {
		t.Fatalf("identical channels width = %f, want 0", w)
	}

	inverted := sineBuffer(44100, 2, 8192, 440, 0.5)
	for i := range inverted.Channels[1] {
		inverted.Channels[1][i] = -inverted.Channels[1][i]
	}
	if w := Analyze(inverted).StereoWidthPct; w != MaxPct {
		t.Fatalf("inverted channels width = %f, want %f", w, MaxPct)
	}

	uncorrelated := noiseBuffer(44100, 2, 44100, 0.5, 3)
	if w := Analyze(uncorrelated).StereoWidthPct; !near(w, 100, 5) {
		t.Fatalf("uncorrelated channels width = %f, want about 100", w)
	}
}

func TestAnalyzeDynamicRangeCapped(t *testing.T) {
	b := dsp.NewBuffer(44100, 1, 4)
	copy(b.Channels[0], []float64{0.9, 0.1, 0.2, 0.0001})
	if got := Analyze(b).DynamicRangeDB; got != MaxDynamicRangeDB {
		t.Fatalf("dynamic range = %f, want cap %f", got, MaxDynamicRangeDB)
	}

	neg := constantBuffer(44100, 1, 16, -0.3)
	if got := Analyze(neg).DynamicRangeDB; got != 0 {
		t.Fatalf("all-negative dynamic range = %f, want 0", got)
	}
}

func TestAnalyzeFrequencyBalanceTracksEnvelope(t *testing.T) {
	fadeIn := dsp.NewBuffer(44100, 1, 10000)
	for i := range fadeIn.Channels[0] {
		fadeIn.Channels[0][i] = float64(i) / 10000
	}
	if got := Analyze(fadeIn).FrequencyBalancePct; got <= 50 {
		t.Fatalf("fade-in balance = %f, want > 50", got)
	}
}

func TestSanitizeReplacesNaNAndClamps(t *testing.T) {
	m := Measurements{
		LoudnessDB:          math.NaN(),
		PeakDB:              12,
		RMSDB:               -200,
		DynamicRangeDB:      math.NaN(),
		FrequencyBalancePct: math.NaN(),
		StereoWidthPct:      math.Inf(1),
	}.Sanitize()
	want := Measurements{
		LoudnessDB:          Fallback.LoudnessDB,
		PeakDB:              MaxLevelDB,
		RMSDB:               MinLevelDB,
		DynamicRangeDB:      Fallback.DynamicRangeDB,
		FrequencyBalancePct: Fallback.FrequencyBalancePct,
		StereoWidthPct:      MaxPct,
	}
	if m != want {
		t.Fatalf("Sanitize() = %+v, want %+v", m, want)
	}
}
