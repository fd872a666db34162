package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dexlens/indexer/internal/common"
)

// HookPoint identifies one of the six extension points around the pipeline
// stages.
type HookPoint int

const (
	PreDecode HookPoint = iota
	PostDecode
	PreTransform
	PostTransform
	PrePersist
	PostPersist
)

func (p HookPoint) String() string {
	switch p {
	case PreDecode:
		return "pre_decode"
	case PostDecode:
		return "post_decode"
	case PreTransform:
		return "pre_transform"
	case PostTransform:
		return "post_transform"
	case PrePersist:
		return "pre_persist"
	case PostPersist:
		return "post_persist"
	}
	return "unknown"
}

// HookFunc observes or mutates the in-flight BlockData.
type HookFunc func(ctx context.Context, data *common.BlockData) error

type hook struct {
	name string
	fn   HookFunc
}

// Hooks is an ordered, typed subscription table. Hooks are best-effort
// instrumentation and extension points: a hook returning an error is logged
// and ignored, never allowed to abort the pipeline. That contract lives
// here, in Run, not by caller convention.
type Hooks struct {
	handlers map[HookPoint][]hook
	logger   zerolog.Logger
}

func NewHooks(logger zerolog.Logger) *Hooks {
	return &Hooks{
		handlers: make(map[HookPoint][]hook),
		logger:   logger,
	}
}

// Register appends a handler at a hook point; handlers run in registration
// order.
func (h *Hooks) Register(point HookPoint, name string, fn HookFunc) {
	h.handlers[point] = append(h.handlers[point], hook{name: name, fn: fn})
}

// Run invokes every handler registered at the point. Handler errors are
// logged and swallowed.
func (h *Hooks) Run(ctx context.Context, point HookPoint, data *common.BlockData) {
	for _, handler := range h.handlers[point] {
		if err := handler.fn(ctx, data); err != nil {
			h.logger.Warn().
				Err(err).
				Str("hook", handler.name).
				Str("point", point.String()).
				Uint64("block", data.BlockNumber).
				Msg("hook failed, continuing")
		}
	}
}
