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
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/superia/hyperprov/cmd/hyperprov/config"
)

// HealthHTTPClient abstracts the HTTP client for health probes.
type HealthHTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Verifier checks the deployed stack end to end.
//
// # Description
//
// Runs after activation: waits out a grace period for model warm-up, asks
// supervisord about each program, probes the health endpoint over HTTP,
// and inventories GPUs. Nothing here is fatal — the host is already
// provisioned, and a slow model load failing the whole run would force a
// pointless full re-deploy. Every finding lands in the report as a
// warning with a remediation hint instead.
type Verifier struct {
	cfg config.DeployConfig
	pm  ProcessManager

	// Client is overridable in tests. Default: 5 second timeout.
	Client HealthHTTPClient

	// Grace overrides the configured warm-up wait (tests set 0).
	Grace time.Duration

	// BaseURL overrides the probe target (tests point it at a httptest
	// server). Default http://127.0.0.1:<port>.
	BaseURL string
}

// NewVerifier creates the stage with production probing.
func NewVerifier(cfg config.DeployConfig, pm ProcessManager) *Verifier {
	return &Verifier{
		cfg:     cfg,
		pm:      pm,
		Client:  &http.Client{Timeout: 5 * time.Second},
		Grace:   time.Duration(cfg.Verify.GraceSeconds) * time.Second,
		BaseURL: fmt.Sprintf("http://127.0.0.1:%d", cfg.App.Port),
	}
}

// Name implements Stage.
func (v *Verifier) Name() string { return "verify" }

// Plan implements Stage. Verification always runs; it has no state to
// converge on.
func (v *Verifier) Plan(ctx context.Context) (*StagePlan, error) {
	plan := &StagePlan{}
	plan.AddAction("check supervisor program states")
	plan.AddAction("probe %s%s", v.BaseURL, v.cfg.Verify.HealthPath)
	plan.AddAction("inventory GPU devices")
	return plan, nil
}

// Apply implements Stage.
func (v *Verifier) Apply(ctx context.Context, plan *StagePlan) (*StageOutcome, error) {
	outcome := &StageOutcome{}

	if v.Grace > 0 {
		select {
		case <-time.After(v.Grace):
		case <-ctx.Done():
			return outcome, ctx.Err()
		}
	}

	v.checkPrograms(ctx, outcome)
	v.checkHealth(ctx, outcome)
	v.checkGPU(ctx, outcome)

	if len(outcome.Warnings) > 0 {
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("inspect service logs under %s", v.cfg.App.LogDir))
	}
	return outcome, nil
}

// checkPrograms asks supervisord for each program's state.
func (v *Verifier) checkPrograms(ctx context.Context, outcome *StageOutcome) {
	for _, program := range SupervisedPrograms(v.cfg.App.Name) {
		out, err := v.pm.Run(ctx, "supervisorctl", "status", program)
		if err != nil {
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("program %s: status query failed: %v", program, err))
			continue
		}
		if !strings.Contains(string(out), "RUNNING") {
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("program %s is not RUNNING: %s", program, strings.TrimSpace(string(out))))
		}
	}
}

// checkHealth probes the application health endpoint.
func (v *Verifier) checkHealth(ctx context.Context, outcome *StageOutcome) {
	url := v.BaseURL + v.cfg.Verify.HealthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("health probe: %v", err))
		return
	}
	resp, err := v.Client.Do(req)
	if err != nil {
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("health endpoint unreachable at %s: %v", url, err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("health endpoint returned %d, want 200", resp.StatusCode))
	}
}

// checkGPU inventories devices best-effort; absence is already covered by
// the preflight warning, so a failed query here stays quiet.
func (v *Verifier) checkGPU(ctx context.Context, outcome *StageOutcome) {
	out, err := v.pm.Run(ctx, "nvidia-smi",
		"--query-gpu=name,memory.total", "--format=csv,noheader")
	if err != nil {
		return
	}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			outcome.Notes = append(outcome.Notes, "gpu: "+line)
		}
	}
}

var _ Stage = (*Verifier)(nil)
