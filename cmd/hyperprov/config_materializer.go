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

// ConfigMaterializer writes the environment file and supervisor config.
//
// # Description
//
// The two artifacts have opposite idempotency contracts:
//
//   - The environment file is written once and never rewritten. Operators
//     put real secrets in it after the first run; regenerating it would
//     destroy them. Idempotent by skip.
//   - The supervisor config is owned by this tool, not the operator. It is
//     regenerated to canonical form on every run so drift cannot
//     accumulate. Idempotent by overwrite.
type ConfigMaterializer struct {
	cfg config.DeployConfig

	// EnvPath and SupervisorConfPath are overridable in tests. Defaults:
	// <install_root>/.env and /etc/supervisor/conf.d/<name>.conf.
	EnvPath            string
	SupervisorConfPath string
}

// NewConfigMaterializer creates the stage with production paths.
func NewConfigMaterializer(cfg config.DeployConfig) *ConfigMaterializer {
	return &ConfigMaterializer{
		cfg:                cfg,
		EnvPath:            filepath.Join(cfg.App.InstallRoot, ".env"),
		SupervisorConfPath: filepath.Join("/etc/supervisor/conf.d", cfg.App.Name+".conf"),
	}
}

// Name implements Stage.
func (m *ConfigMaterializer) Name() string { return "app-config" }

// Plan implements Stage.
func (m *ConfigMaterializer) Plan(ctx context.Context) (*StagePlan, error) {
	plan := &StagePlan{}

	if _, err := os.Stat(m.EnvPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("probe %s: %w", m.EnvPath, err)
		}
		plan.AddAction("write environment file %s", m.EnvPath)
	} else {
		plan.AddWarning("environment file %s exists, preserving operator edits", m.EnvPath)
	}

	plan.AddAction("regenerate supervisor config %s", m.SupervisorConfPath)
	return plan, nil
}

// Apply implements Stage.
func (m *ConfigMaterializer) Apply(ctx context.Context, plan *StagePlan) (*StageOutcome, error) {
	if _, err := os.Stat(m.EnvPath); os.IsNotExist(err) {
		content, err := RenderEnvFile(m.cfg)
		if err != nil {
			return nil, err
		}
		// 0600: the file carries the database credential.
		if err := os.WriteFile(m.EnvPath, content, 0o600); err != nil {
			return nil, fmt.Errorf("write %s: %w", m.EnvPath, err)
		}
	}

	content, err := RenderSupervisorConf(m.cfg)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(m.SupervisorConfPath), 0o755); err != nil {
		return nil, fmt.Errorf("create supervisor conf dir: %w", err)
	}
	if err := os.WriteFile(m.SupervisorConfPath, content, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", m.SupervisorConfPath, err)
	}
	return &StageOutcome{}, nil
}

var _ Stage = (*ConfigMaterializer)(nil)
