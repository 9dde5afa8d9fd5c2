package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// StageStatus classifies the outcome of one pipeline stage.
//
// # Description
//
// Every stage ends in exactly one of four states. The shell runbook this
// tool replaces expressed these implicitly through `set -e` and ad-hoc
// warnings; here they are first-class data aggregated into a RunReport.
type StageStatus int

const (
	// StatusApplied means the stage probed the host and executed at least
	// one mutating action.
	StatusApplied StageStatus = iota

	// StatusSkipped means the stage's precondition was already satisfied
	// and no action was taken (idempotent-by-skip stages).
	StatusSkipped

	// StatusWarning means the stage failed or partially failed, but its
	// failure policy downgrades the error to a diagnostic.
	StatusWarning

	// StatusFailed means the stage failed and its failure policy is fatal.
	// The pipeline stops after a failed stage.
	StatusFailed
)

// String returns the lowercase status name used in reports.
func (s StageStatus) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusSkipped:
		return "skipped"
	case StatusWarning:
		return "warning"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailurePolicy controls how a stage error propagates.
//
// # Description
//
// The provisioning workflow has three severity classes for stage failures:
//
//   - FailFatal: abort the run (package install, datastore, venv build,
//     proxy validation). Partial host state requires operator inspection.
//   - FailWarn: downgrade to a warning and continue (schema migration).
//   - FailReport: record the failure in the report but treat the run as
//     successful (post-hoc health verification).
type FailurePolicy int

const (
	FailFatal FailurePolicy = iota
	FailWarn
	FailReport
)

// PlannedAction is one mutation a stage intends to perform.
type PlannedAction struct {
	// Summary is a short imperative description, e.g. "create database backend_super_db".
	Summary string `json:"summary"`
}

// StagePlan is the output of a stage's probe phase.
//
// # Description
//
// A plan with no actions means the stage's desired state already holds and
// Apply will be skipped; Reason carries the skip explanation shown to the
// operator. Stages compute plans without mutating anything, so `hyperprov
// plan` can print every plan against a live host safely.
type StagePlan struct {
	// Actions to perform, in order. Empty means skip.
	Actions []PlannedAction

	// Reason explains why the stage is skipped. Ignored when Actions is
	// non-empty.
	Reason string

	// Warnings surfaced during probing (e.g. "no GPU tooling found").
	Warnings []string
}

// Skip reports whether the plan contains no actions.
func (p *StagePlan) Skip() bool { return len(p.Actions) == 0 }

// AddAction appends a planned action described by a format string.
func (p *StagePlan) AddAction(format string, args ...interface{}) {
	p.Actions = append(p.Actions, PlannedAction{Summary: fmt.Sprintf(format, args...)})
}

// AddWarning appends a probe-time warning.
func (p *StagePlan) AddWarning(format string, args ...interface{}) {
	p.Warnings = append(p.Warnings, fmt.Sprintf(format, args...))
}

// StageOutcome carries non-fatal information produced while applying a plan.
type StageOutcome struct {
	// Warnings raised during apply that do not fail the stage.
	Warnings []string

	// Notes are purely informational findings (e.g. detected hardware).
	Notes []string
}

// Stage is one unit of the provisioning pipeline.
//
// # Description
//
// Stages separate probing from mutation: Plan inspects current host state
// and returns the actions needed to converge on the stage's desired state;
// Apply executes exactly those actions. Stages must be safe to re-run —
// either by skipping when the desired state already holds, or by
// regenerating their artifact to a canonical form on every run.
//
// # Thread Safety
//
// Stages are driven from a single goroutine; implementations do not need
// to be concurrency-safe.
type Stage interface {
	// Name identifies the stage in logs and reports.
	Name() string

	// Plan probes current state and returns the actions required.
	Plan(ctx context.Context) (*StagePlan, error)

	// Apply executes the planned actions. It is only called when the plan
	// contains at least one action.
	Apply(ctx context.Context, plan *StagePlan) (*StageOutcome, error)
}

// PipelineConfig configures pipeline execution behavior.
type PipelineConfig struct {
	// StageTimeout is the default per-stage timeout. Package installation
	// and venv builds override this at registration. Default: 5 minutes.
	StageTimeout time.Duration

	// Logger is called for stage lifecycle events. Default: log.Printf.
	Logger func(format string, args ...interface{})

	// OnStageStart is called before each stage's Apply runs.
	OnStageStart func(name string, plan *StagePlan)

	// OnStageComplete is called after each stage resolves, whatever the status.
	OnStageComplete func(result StageResult)
}

// DefaultPipelineConfig returns the timeouts and logging used by the CLI.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		StageTimeout: 5 * time.Minute,
		Logger:       log.Printf,
	}
}

// registration binds a stage to its failure policy and timeout override.
type registration struct {
	stage   Stage
	policy  FailurePolicy
	timeout time.Duration
}

// Pipeline runs registered stages sequentially and aggregates a RunReport.
//
// # Description
//
// Pipeline is the structured replacement for the deploy script's top-level
// command sequence. Unlike a saga there is no compensation: every stage is
// idempotent by skip or by overwrite, so recovery from a fatal error is
// "fix the host, re-run the pipeline" — completed stages short-circuit on
// the next run.
//
// # Thread Safety
//
// Pipeline is NOT safe for concurrent use. The workflow assumes it is the
// sole writer to the host during its execution window.
type Pipeline struct {
	config PipelineConfig
	regs   []registration
	mu     sync.Mutex
}

// NewPipeline creates an empty pipeline with the given configuration.
func NewPipeline(config PipelineConfig) *Pipeline {
	if config.StageTimeout <= 0 {
		config.StageTimeout = 5 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = log.Printf
	}
	return &Pipeline{config: config}
}

// AddStage registers a stage with the default timeout.
func (p *Pipeline) AddStage(stage Stage, policy FailurePolicy) {
	p.AddStageWithTimeout(stage, policy, 0)
}

// AddStageWithTimeout registers a stage with a per-stage timeout override.
func (p *Pipeline) AddStageWithTimeout(stage Stage, policy FailurePolicy, timeout time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regs = append(p.regs, registration{stage: stage, policy: policy, timeout: timeout})
}

// StageCount returns the number of registered stages.
func (p *Pipeline) StageCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.regs)
}

// Execute runs every stage in registration order.
//
// # Description
//
// For each stage: Plan, then Apply when the plan has actions. A plan or
// apply error resolves per the stage's failure policy. Execution stops at
// the first StatusFailed stage; warning and report-only failures continue.
// The returned report is always complete up to the point execution stopped.
//
// # Inputs
//
//   - ctx: Context for cancellation. Cancellation fails the current stage.
//
// # Outputs
//
//   - *RunReport: Per-stage results plus overall success. Never nil.
func (p *Pipeline) Execute(ctx context.Context) *RunReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := NewRunReport()
	for _, reg := range p.regs {
		result := p.runStage(ctx, reg)
		report.Append(result)
		if p.config.OnStageComplete != nil {
			p.config.OnStageComplete(result)
		}
		if result.Status == StatusFailed {
			break
		}
	}
	report.Finish()
	return report
}

// PlanAll probes every stage without applying anything.
//
// # Description
//
// Used by `hyperprov plan`. A stage whose probe fails contributes a failed
// result; later stages are still planned, since planning has no side
// effects and the operator wants the full picture.
func (p *Pipeline) PlanAll(ctx context.Context) *RunReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := NewRunReport()
	for _, reg := range p.regs {
		start := time.Now()
		result := StageResult{Stage: reg.stage.Name()}
		plan, err := reg.stage.Plan(ctx)
		result.Duration = time.Since(start)
		if err != nil {
			result.Status = resolveStatus(reg.policy)
			result.Error = err.Error()
		} else {
			result.Warnings = plan.Warnings
			if plan.Skip() {
				result.Status = StatusSkipped
				result.Detail = plan.Reason
			} else {
				result.Status = StatusApplied // would apply
				for _, a := range plan.Actions {
					result.Actions = append(result.Actions, a.Summary)
				}
			}
		}
		report.Append(result)
	}
	report.Finish()
	return report
}

// runStage executes one stage with its timeout and resolves the result.
func (p *Pipeline) runStage(ctx context.Context, reg registration) StageResult {
	name := reg.stage.Name()
	timeout := reg.timeout
	if timeout <= 0 {
		timeout = p.config.StageTimeout
	}
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result := StageResult{Stage: name}

	plan, err := reg.stage.Plan(stageCtx)
	if err != nil {
		p.config.Logger("Stage %s: probe failed: %v", name, err)
		return p.resolve(result, reg.policy, fmt.Errorf("probe: %w", err), start)
	}
	result.Warnings = append(result.Warnings, plan.Warnings...)

	if plan.Skip() {
		p.config.Logger("Stage %s: skipped (%s)", name, plan.Reason)
		result.Status = StatusSkipped
		result.Detail = plan.Reason
		result.Duration = time.Since(start)
		return result
	}

	if p.config.OnStageStart != nil {
		p.config.OnStageStart(name, plan)
	}
	p.config.Logger("Stage %s: applying %d action(s)", name, len(plan.Actions))

	// Apply runs in its own goroutine so a wedged external command cannot
	// outlive the stage timeout.
	type applyReturn struct {
		outcome *StageOutcome
		err     error
	}
	done := make(chan applyReturn, 1)
	go func() {
		outcome, applyErr := reg.stage.Apply(stageCtx, plan)
		done <- applyReturn{outcome: outcome, err: applyErr}
	}()

	select {
	case ret := <-done:
		result.Duration = time.Since(start)
		if ret.outcome != nil {
			result.Warnings = append(result.Warnings, ret.outcome.Warnings...)
			result.Notes = append(result.Notes, ret.outcome.Notes...)
		}
		if ret.err != nil {
			p.config.Logger("Stage %s: failed after %v: %v", name, result.Duration, ret.err)
			return p.resolve(result, reg.policy, ret.err, start)
		}
		for _, a := range plan.Actions {
			result.Actions = append(result.Actions, a.Summary)
		}
		result.Status = StatusApplied
		p.config.Logger("Stage %s: applied in %v", name, result.Duration)
		return result

	case <-stageCtx.Done():
		result.Duration = time.Since(start)
		return p.resolve(result, reg.policy,
			fmt.Errorf("stage timed out after %v", timeout), start)
	}
}

// resolve maps a stage error onto the stage's failure policy.
func (p *Pipeline) resolve(result StageResult, policy FailurePolicy, err error, start time.Time) StageResult {
	result.Error = err.Error()
	result.Status = resolveStatus(policy)
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	return result
}

func resolveStatus(policy FailurePolicy) StageStatus {
	switch policy {
	case FailWarn, FailReport:
		return StatusWarning
	default:
		return StatusFailed
	}
}
