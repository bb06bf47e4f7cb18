package preset

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// File is the JSON schema for preset override files. Absent fields leave the
// derived value untouched.
type File struct {
	VolumeBoostLinear       *float64 `json:"volumeBoostLinear"`
	HighBoostGainDB         *float64 `json:"highBoostGainDb"`
	LowMidScoopGainDB       *float64 `json:"lowMidScoopGainDb"`
	SubCutGainDB            *float64 `json:"subCutGainDb"`
	PresenceGainDB          *float64 `json:"presenceGainDb"`
	CompressionRatio        *float64 `json:"compressionRatio"`
	CompressionThresholdDB  *float64 `json:"compressionThresholdDb"`
	StereoWidthFactor       *float64 `json:"stereoWidthFactor"`
	NormalizationGainLinear *float64 `json:"normalizationGainLinear"`
}

// LoadJSON reads a preset override file.
func LoadJSON(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", path, err)
	}
	return &f, nil
}

// WriteJSON writes p as an indented preset file that LoadJSON can read back.
func WriteJSON(path string, p Parameters) error {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// ApplyFile applies a parsed preset file onto existing parameters. Values
// outside the accepted ranges are rejected.
func ApplyFile(dst *Parameters, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination parameters")
	}
	if f == nil {
		return nil
	}

	fields := []struct {
		name   string
		src    *float64
		dst    *float64
		lo, hi float64
	}{
		{"volumeBoostLinear", f.VolumeBoostLinear, &dst.VolumeBoostLinear, MinVolumeBoost, MaxVolumeBoost},
		{"highBoostGainDb", f.HighBoostGainDB, &dst.HighBoostGainDB, MinEQGainDB, MaxEQGainDB},
		{"lowMidScoopGainDb", f.LowMidScoopGainDB, &dst.LowMidScoopGainDB, MinEQGainDB, MaxEQGainDB},
		{"subCutGainDb", f.SubCutGainDB, &dst.SubCutGainDB, MinEQGainDB, MaxEQGainDB},
		{"presenceGainDb", f.PresenceGainDB, &dst.PresenceGainDB, MinEQGainDB, MaxEQGainDB},
		{"compressionRatio", f.CompressionRatio, &dst.CompressionRatio, MinRatio, MaxRatio},
		{"compressionThresholdDb", f.CompressionThresholdDB, &dst.CompressionThresholdDB, MinThresholdDB, MaxThresholdDB},
		{"stereoWidthFactor", f.StereoWidthFactor, &dst.StereoWidthFactor, MinStereoWidth, MaxStereoWidth},
		{"normalizationGainLinear", f.NormalizationGainLinear, &dst.NormalizationGainLinear, 0, MaxNormalization},
	}
	// Validate everything before touching dst.
	for _, fl := range fields {
		if fl.src == nil {
			continue
		}
		v := *fl.src
		if math.IsNaN(v) || v < fl.lo || v > fl.hi {
			return fmt.Errorf("%s must be in [%g,%g], got %g", fl.name, fl.lo, fl.hi, v)
		}
	}
	for _, fl := range fields {
		if fl.src != nil {
			*fl.dst = *fl.src
		}
	}
	return nil
}
