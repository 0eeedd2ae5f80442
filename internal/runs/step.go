package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/haasonsaas/warden/internal/commitgate"
	"github.com/haasonsaas/warden/internal/observability"
	"github.com/haasonsaas/warden/internal/policy"
	"github.com/haasonsaas/warden/internal/sandbox"
	"github.com/haasonsaas/warden/internal/tools"
	"github.com/haasonsaas/warden/pkg/models"
)

var (
	// ErrPolicyDenied means the policy engine rejected the call outright.
	ErrPolicyDenied = errors.New("call denied by policy")

	// ErrConfirmRequired means the call needs explicit approval before it
	// may execute. The caller decides how to obtain it.
	ErrConfirmRequired = errors.New("call requires confirmation")

	// ErrBudgetExhausted mirrors policy.ErrBudgetExhausted for callers that
	// only import this package.
	ErrBudgetExhausted = policy.ErrBudgetExhausted

	// ErrMessageBlocked means the commit gate refused the outbound message.
	ErrMessageBlocked = errors.New("message blocked by commit gate")
)

// StepResult reports one executed tool step.
type StepResult struct {
	Result   *models.ToolResult
	Decision policy.Decision

	// Sandboxed reports whether the call ran in a separate worker process.
	Sandboxed bool

	// MemoryUsedMB is the worker's reported heap use; zero for in-process
	// execution.
	MemoryUsedMB float64
}

// Executor runs one tool step through the full safety chain: resolve the
// tool, validate arguments, consult policy and budget, execute (sandboxed or
// in-process), and record the outcome on the run's collector.
type Executor struct {
	registry *tools.Registry
	engine   *policy.Engine
	invoker  *sandbox.Invoker
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// NewExecutor wires an executor. invoker may be nil when sandboxing is
// disabled; sandbox-flagged tools then fail rather than silently degrade.
func NewExecutor(
	registry *tools.Registry,
	engine *policy.Engine,
	invoker *sandbox.Invoker,
	logger *observability.Logger,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
) *Executor {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Executor{
		registry: registry,
		engine:   engine,
		invoker:  invoker,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
	}
}

// ExecuteStep runs one tool invocation end to end. Policy refusals come back
// as ErrPolicyDenied or ErrConfirmRequired with the decision still populated
// in the result; the collector records a call only when execution actually
// starts.
func (e *Executor) ExecuteStep(
	ctx context.Context,
	inv models.Invocation,
	profile string,
	budget *policy.BudgetState,
	collector *Collector,
) (res *StepResult, err error) {
	ctx, span := e.startSpan(ctx, inv)
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	def, err := e.registry.Resolve(inv.Tool)
	if err != nil {
		return nil, err
	}

	subject := inv.Tool
	if inv.Command != "" {
		if _, err := e.registry.ResolveCommand(inv.Tool, inv.Command); err != nil {
			return nil, err
		}
		subject = inv.Command
	}

	if err := e.registry.ValidateArgs(inv.Tool, inv.Command, inv.Args); err != nil {
		return nil, err
	}

	pctx := policy.Context{
		TenantID: inv.TenantID,
		AgentID:  inv.AgentID,
		Tool:     subject,
		Args:     inv.Args,
		Profile:  profile,
	}
	decision := e.engine.Decide(pctx)
	if e.metrics != nil {
		e.metrics.PolicyDecisionCounter.WithLabelValues(string(decision), profile).Inc()
	}

	res = &StepResult{Decision: decision}
	switch decision {
	case policy.DecisionDeny:
		return res, fmt.Errorf("%w: %s", ErrPolicyDenied, subject)
	case policy.DecisionConfirm:
		return res, fmt.Errorf("%w: %s", ErrConfirmRequired, subject)
	}

	if !e.engine.CheckBudget(pctx, budget) {
		return res, ErrBudgetExhausted
	}

	if collector != nil {
		collector.AddToolCall()
	}

	start := time.Now()
	if e.registry.ShouldSandbox(inv.Tool) {
		res.Sandboxed = true
		res.Result, res.MemoryUsedMB, err = e.executeSandboxed(ctx, def, inv)
	} else {
		res.Result, err = e.executeInProcess(ctx, def, inv)
	}
	elapsed := time.Since(start)

	status := "success"
	if err != nil || (res.Result != nil && res.Result.IsError) {
		status = "error"
		if collector != nil {
			collector.AddToolFailure()
		}
	}
	if e.metrics != nil {
		e.metrics.ToolExecutionCounter.WithLabelValues(inv.Tool, status).Inc()
		e.metrics.ToolExecutionDuration.WithLabelValues(inv.Tool).Observe(elapsed.Seconds())
	}

	e.logger.Info(ctx, "tool step finished",
		"tool", inv.Tool,
		"command", inv.Command,
		"status", status,
		"sandboxed", res.Sandboxed,
		"duration_ms", elapsed.Milliseconds(),
	)

	if err != nil {
		return res, err
	}
	return res, nil
}

func (e *Executor) executeInProcess(ctx context.Context, def *models.ToolDefinition, inv models.Invocation) (*models.ToolResult, error) {
	handler := def.Handler
	if inv.Command != "" {
		if cmd := def.FindCommand(inv.Command); cmd != nil && cmd.Handler != nil {
			handler = cmd.Handler
		}
	}
	if handler == nil {
		return nil, fmt.Errorf("tool %s has no handler", inv.Tool)
	}
	return handler(ctx, inv)
}

func (e *Executor) executeSandboxed(ctx context.Context, def *models.ToolDefinition, inv models.Invocation) (*models.ToolResult, float64, error) {
	if e.invoker == nil {
		return nil, 0, fmt.Errorf("tool %s requires sandboxing but no invoker is configured", inv.Tool)
	}
	req := sandbox.Request{
		Handler: HandlerID(inv.Tool, inv.Command),
		Ctx:     inv,
		Args:    inv.Args,
	}
	resp, err := e.invoker.Invoke(ctx, req, e.registry.GetSandboxConfig(inv.Tool))
	if e.metrics != nil {
		e.metrics.SandboxInvocationCounter.WithLabelValues(inv.Tool, sandboxOutcome(err)).Inc()
		if resp != nil && resp.MemoryUsedMB > 0 {
			e.metrics.SandboxMemoryUsed.WithLabelValues(inv.Tool).Observe(resp.MemoryUsedMB)
		}
	}
	if err != nil {
		return nil, 0, err
	}
	return resp.Result, resp.MemoryUsedMB, nil
}

func sandboxOutcome(err error) string {
	var execErr *sandbox.ExecError
	switch {
	case err == nil:
		return "result"
	case errors.Is(err, sandbox.ErrTimeout):
		return "timeout"
	case errors.Is(err, sandbox.ErrCrash):
		return "crash"
	case errors.As(err, &execErr):
		return "error"
	default:
		return "crash"
	}
}

// HandlerID names a tool handler for sandbox dispatch. The worker process
// resolves the same identifier against its own registry; handler code is
// never shipped over the wire.
func HandlerID(tool, command string) string {
	if command == "" {
		return tool
	}
	return tool + "." + command
}

// CommitMessage runs an outbound message through the commit gate. On allow
// it advances the turn state in place; on refusal the state is untouched and
// ErrMessageBlocked wraps the reason.
func (e *Executor) CommitMessage(ctx context.Context, state *commitgate.State, proposed string, opts ...commitgate.Option) (commitgate.Decision, error) {
	d := commitgate.Decide(*state, proposed, opts...)
	if e.metrics != nil {
		outcome := "allow"
		if !d.Allow {
			outcome = string(d.Reason)
		}
		e.metrics.CommitGateCounter.WithLabelValues(outcome).Inc()
	}
	if !d.Allow {
		e.logger.Info(ctx, "outbound message blocked",
			"reason", string(d.Reason),
			"similarity", d.Similarity,
		)
		return d, fmt.Errorf("%w: %s", ErrMessageBlocked, d.Reason)
	}
	state.Committed = true
	state.Hash = d.Hash
	state.Normalized = d.Normalized
	return d, nil
}

func (e *Executor) startSpan(ctx context.Context, inv models.Invocation) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, noop.Span{}
	}
	return e.tracer.Start(ctx, "tool.execute",
		attribute.String("tool.name", inv.Tool),
		attribute.String("tool.command", inv.Command),
	)
}
