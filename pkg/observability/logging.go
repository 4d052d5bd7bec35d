package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/strand/pkg/domain"
)

// LoggingHooks returns hooks that log every lifecycle event at debug level,
// and failures at error level.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeStart: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_start",
				domain.KeyThreadID, e.ThreadID,
				domain.KeyStep, e.Step,
				domain.KeyNode, e.Node,
				domain.KeyTaskID, e.TaskID,
			)
		},
		OnNodeEnd: func(ctx context.Context, e *domain.NodeEvent) {
			if e.Err != nil {
				logger.ErrorContext(ctx, "node_error",
					domain.KeyThreadID, e.ThreadID,
					domain.KeyStep, e.Step,
					domain.KeyNode, e.Node,
					"duration", e.Duration,
					"err", e.Err,
				)
				return
			}
			logger.DebugContext(ctx, "node_end",
				domain.KeyThreadID, e.ThreadID,
				domain.KeyStep, e.Step,
				domain.KeyNode, e.Node,
				"duration", e.Duration,
			)
		},
		OnSuperstep: func(ctx context.Context, e *domain.SuperstepEvent) {
			logger.DebugContext(ctx, "superstep",
				domain.KeyThreadID, e.ThreadID,
				domain.KeyStep, e.Step,
				"tasks", e.Tasks,
				"duration", e.Duration,
			)
		},
		OnCheckpoint: func(ctx context.Context, e *domain.CheckpointEvent) {
			if e.Err != nil {
				logger.ErrorContext(ctx, "checkpoint_error", domain.KeyThreadID, e.ThreadID, domain.KeyStep, e.Step, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "checkpoint",
				domain.KeyThreadID, e.ThreadID,
				domain.KeyStep, e.Step,
				"checkpoint_id", e.CheckpointID,
				"source", e.Source,
			)
		},
	}
}

// Combine merges hooks in order.
func Combine(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range hooks {
		out = out.Merge(h)
	}
	return out
}
