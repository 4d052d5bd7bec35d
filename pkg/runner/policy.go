package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/strand/pkg/domain"
)

// ApprovalPolicy decides whether a suspended run should be resumed.
type ApprovalPolicy func(ctx context.Context, res *domain.RunResult) (bool, error)

// AutoApprove resumes every suspension.
func AutoApprove() ApprovalPolicy {
	return func(context.Context, *domain.RunResult) (bool, error) {
		return true, nil
	}
}

// DenyAll leaves every suspended run suspended.
func DenyAll() ApprovalPolicy {
	return func(context.Context, *domain.RunResult) (bool, error) {
		return false, nil
	}
}

// ConfirmationPolicy asks the user through the handler before resuming.
func ConfirmationPolicy(handler EventHandler) ApprovalPolicy {
	return func(ctx context.Context, res *domain.RunResult) (bool, error) {
		msg := fmt.Sprintf("Thread %q suspended at step %d. Next: %s\nContinue? [y/N]",
			res.ThreadID, res.Step, strings.Join(res.Next, ", "))
		if err := handler.SystemOutput(ctx, msg); err != nil {
			return false, err
		}
		input, err := handler.Input(ctx)
		if err != nil {
			return false, err
		}
		input = strings.TrimSpace(strings.ToLower(input))
		return input == "y" || input == "yes", nil
	}
}

// MaxResumes allows at most n approvals from next, then denies.
func MaxResumes(n int, next ApprovalPolicy) ApprovalPolicy {
	count := 0
	return func(ctx context.Context, res *domain.RunResult) (bool, error) {
		if count >= n {
			return false, nil
		}
		ok, err := next(ctx, res)
		if ok && err == nil {
			count++
		}
		return ok, err
	}
}
