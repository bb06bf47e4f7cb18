package render

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/crysgarage/engine/dsp"
	"github.com/crysgarage/engine/preset"
)

func testParams() preset.Parameters {
	return preset.Parameters{
		VolumeBoostLinear:       2,
		HighBoostGainDB:         preset.HighBoostGainDB,
		LowMidScoopGainDB:       preset.LowMidScoopGainDB,
		SubCutGainDB:            preset.SubCutGainDB,
		PresenceGainDB:          preset.PresenceGainDB,
		CompressionRatio:        2.8,
		CompressionThresholdDB:  -10,
		StereoWidthFactor:       1.3,
		NormalizationGainLinear: 1,
	}
}

func noise(sr, channels, frames int, amp float64, seed int64) *dsp.Buffer {
	rng := rand.New(rand.NewSource(seed))
	b := dsp.NewBuffer(sr, channels, frames)
	for c := range b.Channels {
		for i := range b.Channels[c] {
			b.Channels[c][i] = amp * (rng.Float64()*2 - 1)
		}
	}
	return b
}

func sine(sr, channels, frames int, freq, amp float64) *dsp.Buffer {
	b := dsp.NewBuffer(sr, channels, frames)
	for c := range b.Channels {
		for i := range b.Channels[c] {
			b.Channels[c][i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sr))
		}
	}
	return b
}

func TestChainOrder(t *testing.T) {
	stages := Chain(testParams())
	want := []struct {
		name string
		kind Kind
	}{
		{StageSubCut, KindHighpass},
		{StageLowMidScoop, KindPeaking},
		{StagePresence, KindPeaking},
		{StageHighBoost, KindPeaking},
		{StageCompressor, KindCompressor},
		{StageGentle, KindCompressor},
		{StageStereo, KindStereo},
		{StageNormalization, KindGain},
		{StageLoudness, KindGain},
		{StageLimiter, KindCompressor},
		{StageSoftClip, KindSoftClip},
	}
	if len(stages) != len(want) {
		t.Fatalf("chain has %d stages, want %d", len(stages), len(want))
	}
	for i, w := range want {
		if stages[i].Name != w.name || stages[i].Kind != w.kind {
			t.Fatalf("stage %d = %s/%s, want %s/%s", i, stages[i].Name, stages[i].Kind, w.name, w.kind)
		}
	}
}

func TestChainParameters(t *testing.T) {
	p := testParams()
	p.NormalizationGainLinear = 0.7
	stages := Chain(p)
	byName := map[string]Stage{}
	for _, s := range stages {
		byName[s.Name] = s
	}

	if s := byName[StageSubCut]; s.FreqHz != 35 {
		t.Fatalf("sub-cut at %f Hz", s.FreqHz)
	}
	checks := []struct {
		name string
		hz   float64
		gain float64
	}{
		{StageLowMidScoop, 350, -2},
		{StagePresence, 2500, 2},
		{StageHighBoost, 10000, 4},
	}
	for _, c := range checks {
		s := byName[c.name]
		if s.FreqHz != c.hz || s.GainDB != c.gain {
			t.Fatalf("%s = %.0f Hz %.1f dB, want %.0f Hz %.1f dB", c.name, s.FreqHz, s.GainDB, c.hz, c.gain)
		}
	}

	comp := byName[StageCompressor]
	if comp.Ratio != 2.8 || comp.ThresholdDB != -10 || comp.AttackMs != 0.5 || comp.ReleaseMs != 30 {
		t.Fatalf("primary compressor = %+v", comp)
	}
	gentle := byName[StageGentle]
	if gentle.Ratio != 1.5 || gentle.ThresholdDB != -6 || gentle.AttackMs != 10 || gentle.ReleaseMs != 200 {
		t.Fatalf("gentle compressor = %+v", gentle)
	}
	lim := byName[StageLimiter]
	if lim.Ratio != 10 || lim.ThresholdDB != -0.5 || lim.AttackMs != 2 || lim.ReleaseMs != 500 {
		t.Fatalf("limiter = %+v", lim)
	}
	if byName[StageNormalization].Gain != 0.7 || byName[StageLoudness].Gain != 2 {
		t.Fatalf("gain stages = %+v / %+v", byName[StageNormalization], byName[StageLoudness])
	}
	if byName[StageStereo].Width != 1.3 {
		t.Fatalf("stereo width = %f", byName[StageStereo].Width)
	}
	if c := byName[StageSoftClip].Ceiling; math.Abs(c-math.Pow(10, -0.5/20)) > 1e-15 {
		t.Fatalf("soft clip ceiling = %f", c)
	}
}

func TestRenderPreservesShapeAndInput(t *testing.T) {
	for _, channels := range []int{1, 2} {
		in := noise(44100, channels, 10000, 0.3, int64(channels))
		orig := in.Clone()
		out, err := Engine{}.Render(context.Background(), in, testParams())
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		if out.SampleRate != in.SampleRate || out.NumChannels() != channels || out.Frames() != in.Frames() {
			t.Fatalf("shape changed: rate=%d ch=%d frames=%d", out.SampleRate, out.NumChannels(), out.Frames())
		}
		for c := range in.Channels {
			for i := range in.Channels[c] {
				if in.Channels[c][i] != orig.Channels[c][i] {
					t.Fatalf("input mutated at ch%d[%d]", c, i)
				}
			}
		}
	}
}

func TestRenderStaysUnderCeiling(t *testing.T) {
	in := noise(48000, 2, 48000, 0.9, 5)
	p := testParams()
	p.VolumeBoostLinear = preset.MaxVolumeBoost
	p.NormalizationGainLinear = 8
	out, err := Engine{}.Render(context.Background(), in, p)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if peak := out.AbsPeak(); peak > SoftClipCeiling {
		t.Fatalf("peak %f exceeds ceiling %f", peak, SoftClipCeiling)
	}
}

func TestRenderBlockSizeIndependent(t *testing.T) {
	in := noise(44100, 2, 9000, 0.5, 11)
	a, err := Engine{BlockSize: 64}.Render(context.Background(), in, testParams())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b, err := Engine{BlockSize: 5000}.Render(context.Background(), in, testParams())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for c := range a.Channels {
		for i := range a.Channels[c] {
			if a.Channels[c][i] != b.Channels[c][i] {
				t.Fatalf("block size changed output at ch%d[%d]", c, i)
			}
		}
	}
}

func TestRenderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Engine{}).Render(ctx, noise(44100, 2, 1000, 0.5, 1), testParams()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRenderFailures(t *testing.T) {
	bad := noise(44100, 2, 1000, 0.5, 1)
	bad.Channels[1][10] = math.NaN()

	badRatio := testParams()
	badRatio.CompressionRatio = 0

	tests := []struct {
		name string
		buf  *dsp.Buffer
		p    preset.Parameters
	}{
		{"nil buffer", nil, testParams()},
		{"empty buffer", dsp.NewBuffer(44100, 2, 0), testParams()},
		{"zero sample rate", dsp.NewBuffer(0, 2, 100), testParams()},
		{"non-finite input", bad, testParams()},
		{"invalid ratio", noise(44100, 1, 100, 0.1, 2), badRatio},
	}
	for _, tt := range tests {
		out, err := Engine{}.Render(context.Background(), tt.buf, tt.p)
		if !errors.Is(err, ErrRenderFailure) {
			t.Fatalf("%s: expected ErrRenderFailure, got %v", tt.name, err)
		}
		if out != nil {
			t.Fatalf("%s: partial output returned", tt.name)
		}
	}
}

func TestRenderStagesUnknownKind(t *testing.T) {
	_, err := Engine{}.RenderStages(context.Background(), noise(8000, 1, 10, 0.1, 1), []Stage{{Name: "x", Kind: "reverb"}})
	if !errors.Is(err, ErrRenderFailure) {
		t.Fatalf("expected ErrRenderFailure, got %v", err)
	}
}

func TestFilterAtNyquistIsIdentity(t *testing.T) {
	// 10 kHz is above Nyquist at 16 kHz.
	s := Chain(testParams())[3]
	proc, err := s.Build(16000, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	in := noise(16000, 1, 512, 0.5, 3)
	block := in.Clone().Channels
	proc.Process(block)
	for i := range block[0] {
		if block[0][i] != in.Channels[0][i] {
			t.Fatalf("sample %d changed: %f -> %f", i, in.Channels[0][i], block[0][i])
		}
	}
}

func TestHighpassRemovesDC(t *testing.T) {
	s := Chain(testParams())[0]
	proc, err := s.Build(44100, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b := dsp.NewBuffer(44100, 1, 44100)
	for i := range b.Channels[0] {
		b.Channels[0][i] = 0.5
	}
	proc.Process(b.Channels)
	if tail := math.Abs(b.Channels[0][44099]); tail > 1e-3 {
		t.Fatalf("DC not removed, tail sample = %f", tail)
	}
}

func TestFilterTailReachesExactZero(t *testing.T) {
	s := Stage{Name: StageSubCut, Kind: KindHighpass, FreqHz: 50, Q: 0.707}
	proc, err := s.Build(8000, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b := dsp.NewBuffer(8000, 1, 8000)
	b.Channels[0][0] = 1
	proc.Process(b.Channels)
	if b.Channels[0][0] == 0 {
		t.Fatalf("impulse did not pass the filter")
	}
	// The envelope falls below 1e-30 after about 2500 samples.
	for i := 4000; i < len(b.Channels[0]); i++ {
		if v := b.Channels[0][i]; v != 0 {
			t.Fatalf("sample %d = %g, want exact zero", i, v)
		}
	}
}

func TestStereoStageMonoPassthrough(t *testing.T) {
	s := Stage{Name: StageStereo, Kind: KindStereo, Width: 1.4, BassMonoHz: BassMonoHz}
	proc, err := s.Build(44100, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	in := noise(44100, 1, 256, 0.5, 4)
	block := in.Clone().Channels
	proc.Process(block)
	for i := range block[0] {
		if block[0][i] != in.Channels[0][i] {
			t.Fatalf("mono sample %d changed", i)
		}
	}
}

func TestStereoStageWidensSide(t *testing.T) {
	s := Stage{Name: StageStereo, Kind: KindStereo, Width: 1.4}
	proc, err := s.Build(44100, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	block := [][]float64{{0.5}, {0.1}}
	proc.Process(block)
	// mid 0.3, side 0.2 * 1.4
	if math.Abs(block[0][0]-0.58) > 1e-12 || math.Abs(block[1][0]-0.02) > 1e-12 {
		t.Fatalf("widened pair = %f, %f", block[0][0], block[1][0])
	}
}

func TestLinkedCompressorKeepsChannelBalance(t *testing.T) {
	s := Stage{Name: "c", Kind: KindCompressor, Ratio: 4, ThresholdDB: -20, KneeDB: 0, AttackMs: 0.5, ReleaseMs: 30}
	proc, err := s.Build(44100, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b := sine(44100, 2, 4410, 220, 0.8)
	for i := range b.Channels[1] {
		b.Channels[1][i] *= 0.5
	}
	orig := b.Clone()
	proc.Process(b.Channels)

	reduced := false
	for i := range b.Channels[0] {
		if orig.Channels[1][i] == 0 {
			continue
		}
		if math.Abs(b.Channels[0][i]-2*b.Channels[1][i]) > 1e-12 {
			t.Fatalf("balance changed at %d: %f vs %f", i, b.Channels[0][i], b.Channels[1][i])
		}
		if math.Abs(b.Channels[0][i]) < math.Abs(orig.Channels[0][i])*0.9 {
			reduced = true
		}
	}
	if !reduced {
		t.Fatalf("expected gain reduction above threshold")
	}
}

func TestCompressorBelowThresholdUntouched(t *testing.T) {
	s := Chain(testParams())[5]
	proc, err := s.Build(44100, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// -26 dB peak is far below the knee of the -6 dB gentle stage.
	b := sine(44100, 1, 2000, 440, 0.05)
	orig := b.Clone()
	proc.Process(b.Channels)
	for i := range b.Channels[0] {
		if math.Abs(b.Channels[0][i]-orig.Channels[0][i]) > 1e-6 {
			t.Fatalf("sample %d changed below threshold", i)
		}
	}
}

func TestBuildRejectsInvalidStages(t *testing.T) {
	tests := []Stage{
		{Name: "gain", Kind: KindGain, Gain: math.NaN()},
		{Name: "gain", Kind: KindGain, Gain: -1},
		{Name: "clip", Kind: KindSoftClip, Ceiling: 0},
		{Name: "comp", Kind: KindCompressor, Ratio: 2, AttackMs: 0},
		{Name: "stereo", Kind: KindStereo, Width: 9},
		{Name: "mystery", Kind: "mystery"},
	}
	for _, s := range tests {
		if _, err := s.Build(44100, 2); err == nil {
			t.Fatalf("expected error building %+v", s)
		}
	}
	if _, err := (Stage{Kind: KindGain, Gain: 1}).Build(0, 2); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
}

func TestSoftClip(t *testing.T) {
	c := SoftClipCeiling
	if SoftClip(0, c) != 0 {
		t.Fatalf("SoftClip(0) != 0")
	}
	if got := SoftClip(1e-4, c); math.Abs(got-1e-4) > 1e-9 {
		t.Fatalf("small signals should pass nearly unchanged, got %g", got)
	}
	prev := SoftClip(-10, c)
	for x := -9.9; x <= 10; x += 0.1 {
		y := SoftClip(x, c)
		if y < prev {
			t.Fatalf("SoftClip not monotonic at %f", x)
		}
		if math.Abs(y) > c {
			t.Fatalf("SoftClip(%f) = %f exceeds ceiling", x, y)
		}
		prev = y
	}
	if SoftClip(-3, c) != -SoftClip(3, c) {
		t.Fatalf("SoftClip should be odd-symmetric")
	}
}
