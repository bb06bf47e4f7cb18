// Package mastering runs the full decode, analyze, derive, render and
// re-analyze sequence for one audio asset.
//
// A Pipeline holds no per-run state and is safe for concurrent use. Render
// failures never surface as errors from Run; they produce a simulated Result
// flagged with Simulated.
package mastering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/crysgarage/engine/analysis"
	"github.com/crysgarage/engine/dsp"
	"github.com/crysgarage/engine/internal/codec"
	"github.com/crysgarage/engine/preset"
	"github.com/crysgarage/engine/render"
)

// Asset is an encoded audio file supplied by the caller. Data is never
// modified.
type Asset struct {
	Name string
	MIME string
	Data []byte
}

// Renderer processes a buffer through the mastering chain.
type Renderer interface {
	Render(ctx context.Context, in *dsp.Buffer, p preset.Parameters) (*dsp.Buffer, error)
}

// Limits bound the work a single run may do. Zero fields are unlimited.
type Limits struct {
	MaxInputBytes int64
	MaxDuration   time.Duration
	RenderTimeout time.Duration
}

// DefaultLimits returns the limits used when WithLimits is not given.
func DefaultLimits() Limits {
	return Limits{
		MaxInputBytes: 512 << 20,
		MaxDuration:   30 * time.Minute,
		RenderTimeout: 5 * time.Minute,
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for run events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithRenderer replaces the default render.Engine.
func WithRenderer(r Renderer) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.renderer = r
		}
	}
}

// WithLimits sets resource limits.
func WithLimits(l Limits) Option {
	return func(p *Pipeline) { p.limits = l }
}

// WithOverrides applies a preset file on top of every derived parameter set.
func WithOverrides(f *preset.File) Option {
	return func(p *Pipeline) { p.overrides = f }
}

// Pipeline is the mastering orchestrator.
type Pipeline struct {
	log       logrus.FieldLogger
	renderer  Renderer
	limits    Limits
	overrides *preset.File
}

// New returns a Pipeline with the default render engine and limits.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		log:      defaultLogger(),
		renderer: render.Engine{},
		limits:   DefaultLimits(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func defaultLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

// SourceInfo describes the decoded asset.
type SourceInfo struct {
	Name       string        `json:"name"`
	MIME       string        `json:"mime,omitempty"`
	Format     codec.Format  `json:"format"`
	Bytes      int           `json:"bytes"`
	SampleRate int           `json:"sampleRate"`
	Channels   int           `json:"channels"`
	Frames     int           `json:"frames"`
	Duration   time.Duration `json:"duration"`
}

// Report carries the supplementary loudness and spectral figures for one
// buffer.
type Report struct {
	Loudness analysis.LoudnessReport `json:"loudness"`
	Spectrum analysis.SpectrumReport `json:"spectrum"`
}

// Result is the outcome of one successful run.
type Result struct {
	ID     string     `json:"id"`
	Source SourceInfo `json:"source"`

	Parameters preset.Parameters `json:"parameters"`
	Chain      []render.Stage    `json:"chain"`

	Before       analysis.Measurements `json:"originalAnalysis"`
	After        analysis.Measurements `json:"masteredAnalysis"`
	BeforeReport Report                `json:"originalReport"`
	AfterReport  Report                `json:"masteredReport"`
	Change       analysis.Difference   `json:"change"`

	Original    *dsp.Buffer `json:"-"`
	Mastered    *dsp.Buffer `json:"-"`
	OriginalWAV []byte      `json:"-"`
	MasteredWAV []byte      `json:"-"`

	Elapsed time.Duration `json:"elapsed"`

	// Simulated is set when rendering failed and the mastered buffer and
	// analysis come from the fallback path.
	Simulated   bool   `json:"simulated"`
	RenderError string `json:"renderError,omitempty"`
}

// Run masters one asset. It returns a *DecodeError for undecodable assets,
// ErrResourceExhausted for assets or renders above the limits and the
// context error when ctx ends first. Render failures yield a simulated
// Result instead of an error.
func (p *Pipeline) Run(ctx context.Context, asset Asset) (*Result, error) {
	start := time.Now()
	id := uuid.NewString()
	log := p.log.WithFields(logrus.Fields{"run_id": id, "asset": asset.Name})

	src, buf, err := p.decode(ctx, asset, log)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"format":      src.Format,
		"sample_rate": src.SampleRate,
		"channels":    src.Channels,
		"frames":      src.Frames,
	}).Debug("mastering run started")

	before := analysis.Analyze(buf)
	params := preset.Derive(before, preset.NormalizationGain(buf.AbsPeak()))
	if p.overrides != nil {
		if err := preset.ApplyFile(&params, p.overrides); err != nil {
			return nil, fmt.Errorf("apply preset overrides: %w", err)
		}
		params = params.Clamp()
	}

	res := &Result{
		ID:         id,
		Source:     src,
		Parameters: params,
		Chain:      render.Chain(params),
		Before:     before,
		Original:   buf,
	}

	mastered, renderErr := p.render(ctx, buf, params)
	switch {
	case renderErr == nil:
		res.Mastered = mastered
		res.After = analysis.Analyze(mastered)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(renderErr, ErrResourceExhausted):
		return nil, renderErr
	default:
		log.WithFields(logrus.Fields{
			"error":     renderErr.Error(),
			"simulated": true,
		}).Warn("render failed, returning simulated result")
		res.Simulated = true
		res.RenderError = renderErr.Error()
		res.Mastered = Simulate(buf, params)
		res.After = SimulatedMeasurements(res.Mastered)
	}

	if res.OriginalWAV, err = codec.EncodeWAV(res.Original); err != nil {
		return nil, fmt.Errorf("encode original: %w", err)
	}
	if res.MasteredWAV, err = codec.EncodeWAV(res.Mastered); err != nil {
		return nil, fmt.Errorf("encode mastered: %w", err)
	}

	res.BeforeReport = reportFor(res.Original, log)
	res.AfterReport = reportFor(res.Mastered, log)
	res.Change = analysis.Compare(res.Original, res.Mastered)
	res.Elapsed = time.Since(start)

	log.WithFields(logrus.Fields{
		"elapsed":   res.Elapsed,
		"simulated": res.Simulated,
	}).Debug("mastering run finished")
	return res, nil
}

// Analysis is the outcome of Pipeline.Analyze.
type Analysis struct {
	Source       SourceInfo            `json:"source"`
	Measurements analysis.Measurements `json:"measurements"`
	Report       Report                `json:"report"`
	// Parameters is the preset Run would derive for this asset.
	Parameters preset.Parameters `json:"parameters"`
}

// Analyze decodes and measures an asset without rendering it.
func (p *Pipeline) Analyze(ctx context.Context, asset Asset) (*Analysis, error) {
	log := p.log.WithField("asset", asset.Name)
	src, buf, err := p.decode(ctx, asset, log)
	if err != nil {
		return nil, err
	}
	m := analysis.Analyze(buf)
	return &Analysis{
		Source:       src,
		Measurements: m,
		Report:       reportFor(buf, log),
		Parameters:   preset.Derive(m, preset.NormalizationGain(buf.AbsPeak())),
	}, nil
}

func (p *Pipeline) decode(ctx context.Context, asset Asset, log logrus.FieldLogger) (SourceInfo, *dsp.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return SourceInfo{}, nil, err
	}
	if limit := p.limits.MaxInputBytes; limit > 0 && int64(len(asset.Data)) > limit {
		return SourceInfo{}, nil, fmt.Errorf("%w: asset is %d bytes, limit %d", ErrResourceExhausted, len(asset.Data), limit)
	}

	format := codec.Detect(asset.MIME, asset.Name, asset.Data)
	buf, err := codec.Decode(asset.Data, format)
	if err != nil {
		derr := &DecodeError{Asset: asset.Name, Format: format, Err: err}
		log.WithField("error", err.Error()).Info("asset could not be decoded")
		return SourceInfo{}, nil, derr
	}
	if limit := p.limits.MaxDuration; limit > 0 && buf.Duration() > limit {
		return SourceInfo{}, nil, fmt.Errorf("%w: asset is %s long, limit %s", ErrResourceExhausted, buf.Duration(), limit)
	}

	return SourceInfo{
		Name:       asset.Name,
		MIME:       asset.MIME,
		Format:     format,
		Bytes:      len(asset.Data),
		SampleRate: buf.SampleRate,
		Channels:   buf.NumChannels(),
		Frames:     buf.Frames(),
		Duration:   buf.Duration(),
	}, buf, nil
}

// render calls the renderer under the render timeout and checks the output
// shape. A timeout that belongs to the pipeline, not the caller, is reported
// as ErrResourceExhausted.
func (p *Pipeline) render(ctx context.Context, buf *dsp.Buffer, params preset.Parameters) (out *dsp.Buffer, err error) {
	rctx := ctx
	if p.limits.RenderTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, p.limits.RenderTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: renderer panic: %v", render.ErrRenderFailure, r)
		}
	}()

	out, err = p.renderer.Render(rctx, buf, params)
	if err != nil {
		if ctx.Err() == nil && errors.Is(rctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: render exceeded %s", ErrResourceExhausted, p.limits.RenderTimeout)
		}
		return nil, err
	}
	if out.Validate() != nil || out.SampleRate != buf.SampleRate ||
		out.NumChannels() != buf.NumChannels() || out.Frames() != buf.Frames() {
		return nil, fmt.Errorf("%w: renderer returned a buffer of a different shape", render.ErrRenderFailure)
	}
	return out, nil
}

func reportFor(b *dsp.Buffer, log logrus.FieldLogger) Report {
	spec, err := analysis.Spectrum(b)
	if err != nil {
		log.WithField("error", err.Error()).Debug("spectrum unavailable")
	}
	return Report{
		Loudness: analysis.Loudness(b),
		Spectrum: spec,
	}
}
