package runtime

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/aretw0/strand/internal/channels"
	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/schema"
)

// GetState returns the latest checkpoint of a thread.
func (e *Engine) GetState(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	return e.sessions.Latest(ctx, threadID)
}

// GetStateHistory iterates a thread's checkpoints, newest first.
func (e *Engine) GetStateHistory(ctx context.Context, threadID string) iter.Seq2[*domain.Checkpoint, error] {
	return e.sessions.History(ctx, threadID)
}

// UpdateState merges an external update into a thread as if node asNode had
// written it. The update goes through the reducers and produces a new checkpoint.
// With asNode set, the pending frontier is recomputed from that node's transitions;
// otherwise the previous frontier is carried over.
func (e *Engine) UpdateState(ctx context.Context, threadID string, update domain.Update, asNode string) (*domain.Checkpoint, error) {
	var out *domain.Checkpoint
	err := e.sessions.WithLock(ctx, threadID, func(ctx context.Context) error {
		latest, err := e.store.Latest(ctx, threadID)
		if err != nil {
			if errors.Is(err, domain.ErrThreadNotFound) {
				return fmt.Errorf("cannot update state of thread %q: %w", threadID, err)
			}
			return err
		}

		writer := &domain.Node{ID: domain.Start}
		if asNode != "" {
			n, ok := e.graph.Node(asNode)
			if !ok {
				return &domain.ConfigurationError{Node: asNode, Reason: "state update attributed to an unregistered node"}
			}
			writer = n
		}

		step := latest.Step + 1
		set := channels.New(e.graph.Schema(), step, latest.State)
		if err := set.Apply(writer, update); err != nil {
			return err
		}
		// Apply rejected undeclared fields, so only type mismatches remain.
		if err := schema.ValidateUpdate(e.graph.Schema(), update); err != nil {
			return fmt.Errorf("invalid state update: %w", err)
		}
		state, _, err := set.Commit()
		if err != nil {
			return err
		}

		var tasks []domain.Task
		if asNode != "" {
			tasks, err = e.route(ctx, step, state, []string{asNode})
			if err != nil {
				return err
			}
		} else {
			tasks = renumber(step+1, latest.Position().Tasks)
		}

		r := &run{e: e, threadID: threadID, parentID: latest.ID}
		cp := e.checkpoint(r, step, state, tasks, domain.SourceUpdate, []domain.Write{
			{Node: writer.ID, TaskID: domain.TaskID(step, writer.ID, 0), Update: update.Clone()},
		})
		if err := e.persist(ctx, cp); err != nil {
			return err
		}
		e.logger.Info("state updated", domain.KeyThreadID, threadID, domain.KeyStep, step, domain.KeyNode, writer.ID, "next", cp.Next)
		out = cp
		return nil
	})
	return out, err
}
