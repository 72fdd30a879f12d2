package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/checkpoint"
	"github.com/roach88/chronicle/internal/domain"
	"github.com/roach88/chronicle/internal/lifecycle"
	"github.com/roach88/chronicle/internal/store"
	"github.com/roach88/chronicle/internal/store/memory"
	"github.com/roach88/chronicle/internal/testutil"
	"github.com/roach88/chronicle/internal/workflow"
)

// clockBase is the first timestamp a scenario run observes. Each audit
// transition advances the clock by one minute.
var clockBase = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	Pass bool

	// Trail is the full audit trail after all steps, oldest first.
	Trail []domain.Transition

	// PortCalls is the number of outbound port invocations.
	PortCalls int

	// Errors contains step and assertion failure messages. Empty if Pass.
	Errors []string
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Harness executes one scenario against fresh services.
type Harness struct {
	repo        *memory.Store
	port        *ScriptedPort
	lifecycles  *lifecycle.Service
	workflows   *workflow.Service
	checkpoints *checkpoint.Service
	refs        map[string]domain.Ref
	logger      *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory repository with a stepping
// test clock and sequence id generators, so reruns produce identical trails.
// Step failures that the scenario did not expect are recorded as result
// errors; infrastructure failures (unreadable args, unknown refs) abort the
// run with an error.
func Run(scenario *Scenario) (*Result, error) {
	repo := memory.New(lifecycle.ReferenceRules()...)
	defer repo.Close()

	clock := testutil.NewClock(clockBase, time.Minute)
	rec := audit.NewRecorder(clock.Now, testutil.NewSequenceGenerator("tr"))
	entityIDs := testutil.NewSequenceGenerator("ent")
	port := NewScriptedPort(scenario.Port.FailNext)

	h := &Harness{
		repo:        repo,
		port:        port,
		lifecycles:  lifecycle.New(repo, rec, entityIDs),
		workflows:   workflow.New(repo, rec, port, entityIDs),
		checkpoints: checkpoint.New(repo, rec, entityIDs),
		refs:        make(map[string]domain.Ref),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()
	result := &Result{Pass: true}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, err
		}
	}

	trail, err := repo.ListTransitions(ctx, store.TransitionFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}
	result.Trail = trail
	result.PortCalls = port.Calls()

	for _, msg := range evaluateAssertions(ctx, h, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step and validates its outcome against the expect
// clause. A nil expect clause means the step must succeed.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	actor := domain.Actor{ID: step.Actor.ID, Kind: domain.ActorKind(step.Actor.Kind)}

	opErr, err := h.invoke(ctx, step, actor)
	if err != nil {
		return fmt.Errorf("steps[%d] %s: %w", index, step.Op, err)
	}

	expected := ""
	if step.Expect != nil {
		expected = step.Expect.Error
	}
	actual := ""
	if opErr != nil {
		actual = string(domain.CodeOf(opErr))
	}
	if expected != actual {
		if opErr != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s(%s): expected error %q, got %q: %v",
				index, step.Op, step.Ref, expected, actual, opErr))
		} else {
			result.AddError(fmt.Sprintf("steps[%d] %s(%s): expected error %q, succeeded",
				index, step.Op, step.Ref, expected))
		}
	}

	h.logger.Info("step completed",
		"step", index,
		"op", step.Op,
		"ref", step.Ref,
		"error", actual,
	)
	return nil
}

// invoke dispatches a step to the owning service. The first return value is
// the operation's outcome (validated against expect); the second reports
// harness-level failures that abort the run.
func (h *Harness) invoke(ctx context.Context, step Step, actor domain.Actor) (error, error) {
	switch step.Op {
	case "create_event":
		ev, err := h.lifecycles.CreateEvent(ctx, lifecycle.CreateEventParams{
			Title:    stringArg(step.Args, "title"),
			StartsAt: stringArg(step.Args, "startsAt"),
			EndsAt:   stringArg(step.Args, "endsAt"),
			Actor:    actor,
		})
		if err == nil {
			h.refs[step.Ref] = domain.Ref{Type: domain.TypeEvent, ID: ev.ID}
		}
		return err, nil

	case "update_schedule":
		ref, err := h.resolve(step.Ref)
		if err != nil {
			return nil, err
		}
		_, opErr := h.lifecycles.UpdateEventSchedule(ctx, lifecycle.UpdateEventScheduleParams{
			EventID:  ref.ID,
			StartsAt: stringArg(step.Args, "startsAt"),
			EndsAt:   stringArg(step.Args, "endsAt"),
			Actor:    actor,
		})
		return opErr, nil

	case "delete_event":
		ref, err := h.resolve(step.Ref)
		if err != nil {
			return nil, err
		}
		return h.lifecycles.DeleteEvent(ctx, ref.ID, actor, time.Time{}), nil

	case "create_draft":
		d, err := h.lifecycles.CreateDraft(ctx, lifecycle.CreateDraftParams{
			Subject: stringArg(step.Args, "subject"),
			Body:    stringArg(step.Args, "body"),
			Actor:   actor,
		})
		if err == nil {
			h.refs[step.Ref] = domain.Ref{Type: domain.TypeDraft, ID: d.ID}
		}
		return err, nil

	case "request_sync":
		ref, err := h.resolve(step.Ref)
		if err != nil {
			return nil, err
		}
		_, opErr := h.workflows.RequestEventSync(ctx, workflow.RequestEventSyncParams{
			EventID: ref.ID,
			Actor:   actor,
		})
		return opErr, nil

	case "approve_sync":
		ref, err := h.resolve(step.Ref)
		if err != nil {
			return nil, err
		}
		_, opErr := h.workflows.ApproveEventSync(ctx, workflow.ApproveEventSyncParams{
			EventID:  ref.ID,
			Approved: boolArg(step.Args, "approved"),
			Actor:    actor,
		})
		return opErr, nil

	case "request_execution":
		ref, err := h.resolve(step.Ref)
		if err != nil {
			return nil, err
		}
		_, opErr := h.workflows.RequestDraftExecution(ctx, workflow.RequestDraftExecutionParams{
			DraftID: ref.ID,
			Actor:   actor,
		})
		return opErr, nil

	case "approve_execution":
		ref, err := h.resolve(step.Ref)
		if err != nil {
			return nil, err
		}
		_, opErr := h.workflows.ApproveDraftExecution(ctx, workflow.ApproveDraftExecutionParams{
			DraftID:  ref.ID,
			Approved: boolArg(step.Args, "approved"),
			Actor:    actor,
		})
		return opErr, nil

	case "checkpoint_create":
		refs, err := h.resolveRefList(step.Args)
		if err != nil {
			return nil, err
		}
		trail, err := h.repo.ListTransitions(ctx, store.TransitionFilter{})
		if err != nil {
			return nil, fmt.Errorf("read audit cursor: %w", err)
		}
		cp, opErr := h.checkpoints.Create(ctx, checkpoint.CreateParams{
			Name:         stringArg(step.Args, "name"),
			SnapshotRefs: refs,
			AuditCursor:  int64(len(trail)),
			Actor:        actor,
		})
		if opErr == nil {
			h.refs[step.Ref] = domain.Ref{Type: domain.TypeCheckpoint, ID: cp.ID}
		}
		return opErr, nil

	case "checkpoint_keep":
		ref, err := h.resolve(step.Ref)
		if err != nil {
			return nil, err
		}
		_, opErr := h.checkpoints.Keep(ctx, ref.ID, actor, time.Time{})
		return opErr, nil

	case "checkpoint_recover":
		ref, err := h.resolve(step.Ref)
		if err != nil {
			return nil, err
		}
		_, opErr := h.checkpoints.Recover(ctx, ref.ID, actor, time.Time{})
		return opErr, nil
	}

	return nil, fmt.Errorf("unknown op %q", step.Op)
}

// resolve maps a symbolic ref to the entity it was bound to at creation.
func (h *Harness) resolve(name string) (domain.Ref, error) {
	ref, ok := h.refs[name]
	if !ok {
		return domain.Ref{}, fmt.Errorf("unknown ref %q (was its creation step expected to fail?)", name)
	}
	return ref, nil
}

// resolveRefList resolves the "refs" arg into entity refs.
func (h *Harness) resolveRefList(args map[string]any) ([]domain.Ref, error) {
	raw, ok := args["refs"]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("refs arg must be a list, got %T", raw)
	}
	refs := make([]domain.Ref, 0, len(list))
	for _, item := range list {
		name, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("refs entries must be strings, got %T", item)
		}
		ref, err := h.resolve(name)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return s
}

func boolArg(args map[string]any, key string) bool {
	if args == nil {
		return false
	}
	b, _ := args[key].(bool)
	return b
}
