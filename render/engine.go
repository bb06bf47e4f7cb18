package render

import (
	"context"
	"errors"
	"fmt"

	"github.com/crysgarage/engine/dsp"
	"github.com/crysgarage/engine/preset"
)

// DefaultBlockSize is the number of frames processed between cancellation
// checks.
const DefaultBlockSize = 4096

// ErrRenderFailure marks a chain that could not be built or produced
// unusable output. Callers fall back to a simulated result.
var ErrRenderFailure = errors.New("render failure")

// Engine renders buffers through the mastering chain. The zero value is
// ready to use.
type Engine struct {
	BlockSize int
}

// Render processes a copy of in through Chain(p) and returns it. The input
// is never modified. A cancelled context aborts between blocks and returns
// ctx.Err(); every other error wraps ErrRenderFailure.
func (e Engine) Render(ctx context.Context, in *dsp.Buffer, p preset.Parameters) (*dsp.Buffer, error) {
	return e.RenderStages(ctx, in, Chain(p))
}

// RenderStages processes a copy of in through an explicit stage list.
func (e Engine) RenderStages(ctx context.Context, in *dsp.Buffer, stages []Stage) (*dsp.Buffer, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderFailure, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	numCh := in.NumChannels()
	procs := make([]Processor, 0, len(stages))
	for _, s := range stages {
		proc, err := s.Build(float64(in.SampleRate), numCh)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRenderFailure, err)
		}
		procs = append(procs, proc)
	}

	blockSize := e.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	out := in.Clone()
	frames := out.Frames()
	block := make([][]float64, numCh)
	for start := 0; start < frames; start += blockSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+blockSize, frames)
		for c := range block {
			block[c] = out.Channels[c][start:end]
		}
		for _, proc := range procs {
			proc.Process(block)
		}
	}

	if !out.Finite() {
		return nil, fmt.Errorf("%w: non-finite output samples", ErrRenderFailure)
	}
	return out, nil
}
