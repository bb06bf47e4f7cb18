package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/crysgarage/engine/analysis"
	"github.com/crysgarage/engine/internal/cliutil"
)

func main() {
	referencePath := flag.String("reference", "", "Reference audio path (usually the unmastered file)")
	candidatePath := flag.String("candidate", "", "Candidate audio path (usually the mastered file)")
	sampleRate := flag.Int("sample-rate", 0, "Comparison sample rate in Hz (0 = reference rate)")
	jsonOut := flag.Bool("json", false, "Print the comparison as JSON")
	flag.Parse()

	if *referencePath == "" || *candidatePath == "" {
		die("both -reference and -candidate are required")
	}

	ref, err := cliutil.ReadAudio(*referencePath)
	if err != nil {
		die("failed to read reference: %v", err)
	}
	cand, err := cliutil.ReadAudio(*candidatePath)
	if err != nil {
		die("failed to read candidate: %v", err)
	}
	sr := *sampleRate
	if sr <= 0 {
		sr = ref.SampleRate
	}
	if ref, err = cliutil.ResampleIfNeeded(ref, sr); err != nil {
		die("failed to resample reference: %v", err)
	}
	if cand, err = cliutil.ResampleIfNeeded(cand, sr); err != nil {
		die("failed to resample candidate: %v", err)
	}

	diff := analysis.Compare(ref, cand)
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(diff); err != nil {
			die("json encode failed: %v", err)
		}
		return
	}
	printDifference(os.Stdout, analysis.Analyze(ref), analysis.Analyze(cand), diff)
}

func printDifference(w io.Writer, before, after analysis.Measurements, d analysis.Difference) {
	fmt.Fprintf(w, "Compared frames:  %d @ %d Hz\n", d.ComparedFrame, d.SampleRate)
	fmt.Fprintf(w, "Level change:     %+.2f dB\n", d.LevelChangeDB)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Measurement         Reference  Candidate      Delta\n")
	fmt.Fprintf(w, "────────────────────────────────────────────────────\n")
	row := func(name string, a, b float64) {
		fmt.Fprintf(w, "%-18s %10.1f %10.1f %+10.1f\n", name, a, b, b-a)
	}
	row("Loudness dB", before.LoudnessDB, after.LoudnessDB)
	row("Peak dB", before.PeakDB, after.PeakDB)
	row("RMS dB", before.RMSDB, after.RMSDB)
	row("Dynamic range dB", before.DynamicRangeDB, after.DynamicRangeDB)
	row("Balance %", before.FrequencyBalancePct, after.FrequencyBalancePct)
	row("Stereo width %", before.StereoWidthPct, after.StereoWidthPct)
	fmt.Fprintf(w, "────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Time RMSE:        %.6f\n", d.TimeRMSE)
	fmt.Fprintf(w, "Envelope RMSE:    %.2f dB\n", d.EnvelopeRMSEDB)
	fmt.Fprintf(w, "Spectral RMSE:    %.2f dB\n", d.SpectralRMSEDB)
	fmt.Fprintf(w, "Score:            %.4f  (0 unchanged, 1 unrelated)\n", d.Score)
	fmt.Fprintf(w, "Similarity:       %.2f%%\n", d.Similarity*100.0)
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
