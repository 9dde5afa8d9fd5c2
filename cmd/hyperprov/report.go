// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/superia/hyperprov/pkg/ux"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess = 0 // Run reached its summary (warnings allowed)
	CLIExitFatal   = 1 // A fatal stage aborted the run
	CLIExitUsage   = 2 // Bad invocation or unloadable configuration
)

// StageResult is the resolved outcome of one stage.
type StageResult struct {
	Stage    string        `json:"stage"`
	Status   StageStatus   `json:"-"`
	Actions  []string      `json:"actions,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Notes    []string      `json:"notes,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"-"`
}

// MarshalJSON renders the status name and millisecond duration.
func (r StageResult) MarshalJSON() ([]byte, error) {
	type alias StageResult // drops the MarshalJSON method
	return json.Marshal(struct {
		alias
		Status     string `json:"status"`
		DurationMs int64  `json:"duration_ms"`
	}{
		alias:      alias(r),
		Status:     r.Status.String(),
		DurationMs: r.Duration.Milliseconds(),
	})
}

// RunReport aggregates stage results for one pipeline run.
//
// # Description
//
// The report is the structured replacement for the deploy script's colored
// terminal trace: every stage outcome, warning, and error in one place,
// renderable as text for operators or JSON for automation.
type RunReport struct {
	APIVersion string        `json:"api_version"`
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	DurationMs int64         `json:"duration_ms"`
	Stages     []StageResult `json:"stages"`
	Success    bool          `json:"success"`

	finished time.Time
}

// NewRunReport creates an empty report stamped with a fresh run ID.
func NewRunReport() *RunReport {
	return &RunReport{
		APIVersion: "1.0",
		RunID:      uuid.NewString(),
		StartedAt:  time.Now(),
	}
}

// Append records a stage result.
func (r *RunReport) Append(result StageResult) {
	r.Stages = append(r.Stages, result)
}

// Finish stamps the duration and computes overall success.
//
// A run succeeds unless some stage ended StatusFailed: skipped stages,
// migration warnings, and health-probe failures all still exit 0, matching
// the runbook's behavior of always reaching its summary.
func (r *RunReport) Finish() {
	r.finished = time.Now()
	r.DurationMs = r.finished.Sub(r.StartedAt).Milliseconds()
	r.Success = true
	for _, s := range r.Stages {
		if s.Status == StatusFailed {
			r.Success = false
		}
	}
}

// ExitCode maps overall success onto the process exit code.
func (r *RunReport) ExitCode() int {
	if r.Success {
		return CLIExitSuccess
	}
	return CLIExitFatal
}

// Counts returns the number of stages per status.
func (r *RunReport) Counts() (applied, skipped, warned, failed int) {
	for _, s := range r.Stages {
		switch s.Status {
		case StatusApplied:
			applied++
		case StatusSkipped:
			skipped++
		case StatusWarning:
			warned++
		case StatusFailed:
			failed++
		}
	}
	return
}

// WriteJSON renders the report as indented JSON.
func (r *RunReport) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// WriteText renders the operator-facing summary block.
func (r *RunReport) WriteText(w io.Writer) {
	fmt.Fprintf(w, "\n%s\n", ux.Banner("Provisioning Summary"))
	for _, s := range r.Stages {
		line := fmt.Sprintf("%-28s %s", s.Stage, s.Status)
		switch s.Status {
		case StatusApplied:
			fmt.Fprintln(w, ux.OK(line))
		case StatusSkipped:
			fmt.Fprintln(w, ux.Dim(line+"  ("+s.Detail+")"))
		case StatusWarning:
			fmt.Fprintln(w, ux.Warn(line))
		case StatusFailed:
			fmt.Fprintln(w, ux.Fail(line))
		}
		for _, warning := range s.Warnings {
			fmt.Fprintln(w, ux.Warn("    "+warning))
		}
		for _, note := range s.Notes {
			fmt.Fprintln(w, ux.Dim("    "+note))
		}
		if s.Error != "" {
			fmt.Fprintln(w, ux.Fail("    "+s.Error))
		}
	}

	applied, skipped, warned, failed := r.Counts()
	fmt.Fprintf(w, "\nRun %s: %d applied, %d skipped, %d warnings, %d failed (%.1fs)\n",
		r.RunID, applied, skipped, warned, failed,
		float64(r.DurationMs)/1000.0)
	if r.Success {
		fmt.Fprintln(w, ux.OK("Provisioning complete."))
	} else {
		fmt.Fprintln(w, ux.Fail("Provisioning aborted. Fix the failure above and re-run; completed stages will be skipped."))
	}
}
