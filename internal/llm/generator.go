// Package llm is the boundary to the external suggestion generator.
package llm

import (
	"context"
	"errors"
)

// ErrUpstream marks a failed or timed-out generator call. Terminal for the turn.
var ErrUpstream = errors.New("upstream service error")

// Generator produces raw suggestion text for a prompt. One call per turn.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
	ModelName() string
}
