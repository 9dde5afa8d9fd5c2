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

// SchemaMigrator runs database migrations when the project defines them.
//
// # Description
//
// Gated on alembic.ini in the install root: a project without migrations
// skips cleanly. The stage is registered with a warning failure policy —
// a migration failure leaves the schema where it was, the application may
// still serve with the prior schema, and the operator migrates by hand
// with `hyperprov migrate` after fixing the revision.
type SchemaMigrator struct {
	app config.AppConfig
	pm  ProcessManager
}

// NewSchemaMigrator creates the stage.
func NewSchemaMigrator(app config.AppConfig, pm ProcessManager) *SchemaMigrator {
	return &SchemaMigrator{app: app, pm: pm}
}

// Name implements Stage.
func (s *SchemaMigrator) Name() string { return "schema-migration" }

// Plan implements Stage.
func (s *SchemaMigrator) Plan(ctx context.Context) (*StagePlan, error) {
	plan := &StagePlan{}
	ini := filepath.Join(s.app.InstallRoot, "alembic.ini")
	if _, err := os.Stat(ini); err != nil {
		if os.IsNotExist(err) {
			plan.Reason = "no alembic.ini in install root, project has no migrations"
			return plan, nil
		}
		return nil, fmt.Errorf("probe %s: %w", ini, err)
	}
	plan.AddAction("run alembic upgrade head in %s", s.app.InstallRoot)
	return plan, nil
}

// Apply implements Stage. Alembic reads alembic.ini relative to the
// working directory, so the venv binary is invoked through sh -c with a
// cd prefix rather than teaching every ProcessManager about workdirs.
func (s *SchemaMigrator) Apply(ctx context.Context, plan *StagePlan) (*StageOutcome, error) {
	alembic := VenvBin(s.app.InstallRoot, "alembic")
	script := fmt.Sprintf("cd %s && %s upgrade head", s.app.InstallRoot, alembic)
	if _, err := s.pm.Run(ctx, "sh", "-c", script); err != nil {
		return nil, fmt.Errorf("alembic upgrade head: %w", err)
	}
	return &StageOutcome{}, nil
}

var _ Stage = (*SchemaMigrator)(nil)
