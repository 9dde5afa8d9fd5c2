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

	"github.com/superia/hyperprov/cmd/hyperprov/config"
)

// VenvBuilder provisions the Python virtual environment and dependencies.
//
// # Description
//
// The virtualenv itself is idempotent by skip: creating over an existing
// environment is wasteful and can wedge a live interpreter. Dependency
// installation is idempotent by overwrite: pip resolves against
// requirements.txt on every run, so an updated requirements file is
// picked up without any extra bookkeeping. Pip failures are fatal — the
// application cannot start with a partial dependency set.
type VenvBuilder struct {
	app config.AppConfig
	pm  ProcessManager

	// python is the interpreter used to create the venv. Default python3.10.
	python string
}

// NewVenvBuilder creates the stage.
func NewVenvBuilder(app config.AppConfig, pm ProcessManager) *VenvBuilder {
	return &VenvBuilder{app: app, pm: pm, python: "python3.10"}
}

// Name implements Stage.
func (b *VenvBuilder) Name() string { return "python-venv" }

// venvDir returns the virtualenv root inside the install tree.
func (b *VenvBuilder) venvDir() string {
	return filepath.Join(b.app.InstallRoot, "venv")
}

// VenvBin returns the path of an executable inside the virtualenv.
func VenvBin(installRoot, name string) string {
	return filepath.Join(installRoot, "venv", "bin", name)
}

// Plan implements Stage. The requirements manifest is not probed here:
// on a never-deployed host it only appears once the sync stage has run,
// and planning must stay valid before the first deploy.
func (b *VenvBuilder) Plan(ctx context.Context) (*StagePlan, error) {
	plan := &StagePlan{}

	if _, err := os.Stat(filepath.Join(b.venvDir(), "bin", "python")); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("probe venv: %w", err)
		}
		plan.AddAction("create virtual environment at %s", b.venvDir())
	}

	plan.AddAction("upgrade pip and install requirements")
	return plan, nil
}

// Apply implements Stage.
func (b *VenvBuilder) Apply(ctx context.Context, plan *StagePlan) (*StageOutcome, error) {
	requirements := filepath.Join(b.app.InstallRoot, "requirements.txt")
	if _, err := os.Stat(requirements); err != nil {
		return nil, fmt.Errorf("requirements.txt not found in %s: artifact sync must run first", b.app.InstallRoot)
	}

	if _, err := os.Stat(filepath.Join(b.venvDir(), "bin", "python")); os.IsNotExist(err) {
		if _, err := b.pm.Run(ctx, b.python, "-m", "venv", b.venvDir()); err != nil {
			return nil, fmt.Errorf("create venv: %w", err)
		}
	}

	pip := VenvBin(b.app.InstallRoot, "pip")
	if _, err := b.pm.Run(ctx, pip, "install", "--upgrade", "pip"); err != nil {
		return nil, fmt.Errorf("upgrade pip: %w", err)
	}
	if _, err := b.pm.Run(ctx, pip, "install", "-r", requirements); err != nil {
		return nil, fmt.Errorf("install requirements: %w", err)
	}
	return &StageOutcome{}, nil
}

var _ Stage = (*VenvBuilder)(nil)
