package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/crysgarage/engine/config"
	"github.com/crysgarage/engine/internal/cliutil"
	"github.com/crysgarage/engine/internal/logging"
	"github.com/crysgarage/engine/mastering"
	"github.com/crysgarage/engine/preset"
)

func main() {
	configPath := flag.String("config", "", "Configuration JSON file (optional)")
	output := flag.String("output", "", "Output WAV path (single input only)")
	outDir := flag.String("out-dir", "", "Directory for mastered WAVs (default: next to each input)")
	presetPath := flag.String("preset", "", "Preset override JSON applied on top of derived parameters")
	savePreset := flag.String("save-preset", "", "Write the derived parameters as preset JSON (single input only)")
	workers := flag.String("workers", "", "Concurrent runs: integer >= 1 or 'auto' (default from config)")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	jsonOut := flag.Bool("json", false, "Print results as JSON")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: crys-master [flags] input...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	inputs := flag.Args()
	if len(inputs) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if len(inputs) > 1 && (*output != "" || *savePreset != "") {
		die("-output and -save-preset take a single input, got %d", len(inputs))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		die("config: %v", err)
	}
	if *workers != "" {
		n, err := cliutil.ParseWorkers(*workers)
		if err != nil {
			die("invalid -workers: %v", err)
		}
		cfg.Workers = n
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		die("logger: %v", err)
	}

	opts := []mastering.Option{
		mastering.WithLogger(logger),
		mastering.WithLimits(cfg.Limits()),
	}
	if *presetPath != "" {
		f, err := preset.LoadJSON(*presetPath)
		if err != nil {
			die("Error loading preset %q: %v", *presetPath, err)
		}
		opts = append(opts, mastering.WithOverrides(f))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := mastering.NewPool(mastering.New(opts...), cfg.Workers, len(inputs))
	pool.Start(ctx)
	defer pool.Stop()

	outs := make([]<-chan mastering.Outcome, len(inputs))
	for i, in := range inputs {
		asset, err := readAsset(in)
		if err != nil {
			die("%v", err)
		}
		if outs[i], err = pool.Submit(ctx, asset); err != nil {
			die("submit %s: %v", in, err)
		}
	}

	failed := 0
	var results []*mastering.Result
	for i, in := range inputs {
		o := <-outs[i]
		if o.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", in, o.Err)
			failed++
			continue
		}
		dst := *output
		if dst == "" {
			dst = outputPath(in, *outDir)
		}
		if err := os.WriteFile(dst, o.Result.MasteredWAV, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "%s: write %s: %v\n", in, dst, err)
			failed++
			continue
		}
		if *savePreset != "" {
			if err := preset.WriteJSON(*savePreset, o.Result.Parameters); err != nil {
				fmt.Fprintf(os.Stderr, "%s: save preset: %v\n", in, err)
				failed++
			}
		}
		if !*jsonOut {
			printResult(os.Stdout, in, dst, o.Result)
		}
		results = append(results, o.Result)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			die("json encode failed: %v", err)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func readAsset(path string) (mastering.Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return mastering.Asset{}, fmt.Errorf("read %s: %w", path, err)
	}
	return mastering.Asset{Name: filepath.Base(path), Data: data}, nil
}

// outputPath names the mastered file "<stem>_mastered.wav", in dir when set
// and next to the input otherwise.
func outputPath(input, dir string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, stem+"_mastered.wav")
}

func printResult(w io.Writer, input, output string, res *mastering.Result) {
	fmt.Fprintf(w, "%s -> %s (%d Hz, %d ch, %.2fs, %s)\n",
		input, output, res.Source.SampleRate, res.Source.Channels, res.Source.Duration.Seconds(), res.Source.Format)
	if res.Simulated {
		fmt.Fprintf(w, "  render failed, simulated output: %s\n", res.RenderError)
	}
	fmt.Fprintf(w, "  %-20s %10s %10s\n", "Measurement", "Before", "After")
	fmt.Fprintf(w, "  ──────────────────────────────────────────\n")
	row := func(name string, before, after float64, unit string) {
		fmt.Fprintf(w, "  %-20s %7.1f %-4s %7.1f %-4s\n", name, before, unit, after, unit)
	}
	row("Loudness", res.Before.LoudnessDB, res.After.LoudnessDB, "dB")
	row("Peak", res.Before.PeakDB, res.After.PeakDB, "dB")
	row("RMS", res.Before.RMSDB, res.After.RMSDB, "dB")
	row("Dynamic range", res.Before.DynamicRangeDB, res.After.DynamicRangeDB, "dB")
	row("Frequency balance", res.Before.FrequencyBalancePct, res.After.FrequencyBalancePct, "%")
	row("Stereo width", res.Before.StereoWidthPct, res.After.StereoWidthPct, "%")
	row("Integrated", res.BeforeReport.Loudness.IntegratedLUFS, res.AfterReport.Loudness.IntegratedLUFS, "LUFS")
	p := res.Parameters
	fmt.Fprintf(w, "  boost ×%.2f  ratio %.1f:1 @ %.0f dB  width ×%.2f  norm ×%.2f\n",
		p.VolumeBoostLinear, p.CompressionRatio, p.CompressionThresholdDB, p.StereoWidthFactor, p.NormalizationGainLinear)
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
