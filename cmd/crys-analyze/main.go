package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/crysgarage/engine/config"
	"github.com/crysgarage/engine/internal/logging"
	"github.com/crysgarage/engine/mastering"
)

func main() {
	configPath := flag.String("config", "", "Configuration JSON file (optional)")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	jsonOut := flag.Bool("json", false, "Print analyses as JSON")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: crys-analyze [flags] input...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		die("config: %v", err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		die("logger: %v", err)
	}
	p := mastering.New(mastering.WithLogger(logger), mastering.WithLimits(cfg.Limits()))

	failed := 0
	var analyses []*mastering.Analysis
	for _, in := range flag.Args() {
		data, err := os.ReadFile(in)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", in, err)
			failed++
			continue
		}
		a, err := p.Analyze(context.Background(), mastering.Asset{Name: filepath.Base(in), Data: data})
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", in, err)
			failed++
			continue
		}
		if !*jsonOut {
			printAnalysis(os.Stdout, in, a)
		}
		analyses = append(analyses, a)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(analyses); err != nil {
			die("json encode failed: %v", err)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func printAnalysis(w io.Writer, input string, a *mastering.Analysis) {
	m := a.Measurements
	l := a.Report.Loudness
	s := a.Report.Spectrum
	fmt.Fprintf(w, "%s (%s, %d Hz, %d ch, %.2fs)\n", input, a.Source.Format, a.Source.SampleRate, a.Source.Channels, a.Source.Duration.Seconds())
	fmt.Fprintf(w, "  Loudness:          %6.1f dB\n", m.LoudnessDB)
	fmt.Fprintf(w, "  Peak:              %6.1f dB\n", m.PeakDB)
	fmt.Fprintf(w, "  RMS:               %6.1f dB\n", m.RMSDB)
	fmt.Fprintf(w, "  Dynamic range:     %6.1f dB\n", m.DynamicRangeDB)
	fmt.Fprintf(w, "  Frequency balance: %6.1f %%\n", m.FrequencyBalancePct)
	fmt.Fprintf(w, "  Stereo width:      %6.1f %%\n", m.StereoWidthPct)
	fmt.Fprintf(w, "  Integrated:        %6.1f LUFS (short-term %.1f, momentary %.1f)\n", l.IntegratedLUFS, l.ShortTermLUFS, l.MomentaryLUFS)
	fmt.Fprintf(w, "  Sample peak:       %6.1f dBFS\n", l.SamplePeakDBFS)
	fmt.Fprintf(w, "  Bands:             low %.1f%%  mid %.1f%%  high %.1f%%  tilt %+.1f dB\n", s.LowPct, s.MidPct, s.HighPct, s.TiltDB)
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
