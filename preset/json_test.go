package preset

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadJSONAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	presetPath := filepath.Join(dir, "preset.json")
	content := `{
  "compressionRatio": 4,
  "compressionThresholdDb": -18,
  "stereoWidthFactor": 1.0
}`
	if err := os.WriteFile(presetPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write preset: %v", err)
	}

	f, err := LoadJSON(presetPath)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	p := Derive(testMeasurements(-20, 10, 60), 1.5)
	if err := ApplyFile(&p, f); err != nil {
		t.Fatalf("ApplyFile: %v", err)
	}
	if p.CompressionRatio != 4 || p.CompressionThresholdDB != -18 || p.StereoWidthFactor != 1.0 {
		t.Fatalf("overrides not applied: %+v", p)
	}
	if p.HighBoostGainDB != HighBoostGainDB || p.NormalizationGainLinear != 1.5 {
		t.Fatalf("untouched fields changed: %+v", p)
	}
}

func TestWriteJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	want := Derive(testMeasurements(-14, 18, 30), 0.8)
	if err := WriteJSON(path, want); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	f, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	var got Parameters
	if err := ApplyFile(&got, f); err != nil {
		t.Fatalf("ApplyFile: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, want)
	}
}

func TestLoadJSONRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"compressionRatio": "hard"}`), 0o644); err != nil {
		t.Fatalf("write preset: %v", err)
	}
	if _, err := LoadJSON(path); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := LoadJSON(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestApplyFileRejectsInvalidRanges(t *testing.T) {
	ratio := 0.5
	width := 1.1
	p := Derive(testMeasurements(-20, 10, 60), 1)
	before := p
	err := ApplyFile(&p, &File{CompressionRatio: &ratio, StereoWidthFactor: &width})
	if err == nil {
		t.Fatalf("expected error for ratio below 1")
	}
	if p != before {
		t.Fatalf("rejected file must not modify parameters: %+v", p)
	}
	if err := ApplyFile(nil, &File{}); err == nil {
		t.Fatalf("expected error for nil destination")
	}
	if err := ApplyFile(&p, nil); err != nil {
		t.Fatalf("nil file should be a no-op, got %v", err)
	}
}
