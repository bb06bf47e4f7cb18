package mastering

import (
	"errors"
	"fmt"

	"github.com/crysgarage/engine/internal/codec"
)

var (
	// ErrDecode matches every *DecodeError.
	ErrDecode = errors.New("decode error")
	// ErrResourceExhausted is returned for assets above the configured limits
	// and for renders that exceed the render timeout.
	ErrResourceExhausted = errors.New("resource exhausted")
)

// DecodeError reports an asset that could not be turned into samples. The
// run stops before analysis.
type DecodeError struct {
	Asset  string
	Format codec.Format
	Err    error
}

func (e *DecodeError) Error() string {
	name := e.Asset
	if name == "" {
		name = "asset"
	}
	return fmt.Sprintf("decode %s: %v", name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
