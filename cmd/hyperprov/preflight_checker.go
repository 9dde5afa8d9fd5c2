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
	"os"
	"path/filepath"
	"strings"

	"github.com/superia/hyperprov/cmd/hyperprov/config"
)

// PreflightChecker validates the execution context before anything mutates.
//
// # Description
//
// Three checks, two severities:
//
//   - Sentinel file must exist in the source directory (fatal): running
//     the provisioner from the wrong directory would mirror the wrong
//     tree into the install root.
//   - The OS must identify itself via os-release (fatal): the package
//     stage depends on a Debian-family package manager.
//   - GPU tooling (nvidia-smi) is probed best-effort (warning only):
//     GPU presence is an optimization signal, not a requirement.
type PreflightChecker struct {
	app config.AppConfig
	pm  ProcessManager

	// osReleasePath is overridable in tests. Default /etc/os-release.
	osReleasePath string
}

// NewPreflightChecker creates the stage with production paths.
func NewPreflightChecker(app config.AppConfig, pm ProcessManager) *PreflightChecker {
	return &PreflightChecker{app: app, pm: pm, osReleasePath: "/etc/os-release"}
}

// Name implements Stage.
func (c *PreflightChecker) Name() string { return "preflight" }

// Plan implements Stage. All validation happens here; a failed check is
// a probe error, which the pipeline treats as fatal for this stage.
func (c *PreflightChecker) Plan(ctx context.Context) (*StagePlan, error) {
	plan := &StagePlan{}

	sentinel := filepath.Join(c.app.SourceDir, c.app.Sentinel)
	if _, err := os.Stat(sentinel); err != nil {
		return nil, fmt.Errorf(
			"sentinel %s not found: run hyperprov from the project root (%s)",
			c.app.Sentinel, c.app.SourceDir)
	}

	osName, err := c.identifyOS()
	if err != nil {
		return nil, err
	}

	if _, err := c.pm.LookPath("nvidia-smi"); err != nil {
		plan.AddWarning("nvidia-smi not found: provisioning without GPU acceleration")
	}

	plan.AddAction("verify execution context (os: %s)", osName)
	return plan, nil
}

// Apply implements Stage. The checks already ran during planning; the
// apply phase exists so the report shows the stage as applied rather
// than skipped.
func (c *PreflightChecker) Apply(ctx context.Context, plan *StagePlan) (*StageOutcome, error) {
	return &StageOutcome{}, nil
}

// identifyOS reads the PRETTY_NAME from os-release.
func (c *PreflightChecker) identifyOS() (string, error) {
	data, err := os.ReadFile(c.osReleasePath)
	if err != nil {
		return "", fmt.Errorf("cannot identify operating system: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if value, ok := strings.CutPrefix(line, "PRETTY_NAME="); ok {
			return strings.Trim(value, `"`), nil
		}
	}
	return "unknown", nil
}

var _ Stage = (*PreflightChecker)(nil)
