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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/superia/hyperprov/cmd/hyperprov/config"
)

// TestSchemaMigrator_Plan_NoAlembicSkips verifies a project without
// migrations skips cleanly.
func TestSchemaMigrator_Plan_NoAlembicSkips(t *testing.T) {
	app := config.AppConfig{InstallRoot: t.TempDir()}
	s := NewSchemaMigrator(app, &MockProcessManager{})

	plan, err := s.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if !plan.Skip() {
		t.Errorf("Plan() actions = %v, want skip", plan.Actions)
	}
	if plan.Reason == "" {
		t.Error("skip reason missing")
	}
}

// TestSchemaMigrator_Apply_RunsUpgradeHead verifies the venv alembic is
// invoked from the install root.
func TestSchemaMigrator_Apply_RunsUpgradeHead(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "alembic.ini"), []byte("[alembic]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pm := &MockProcessManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte{}, nil
		},
	}
	s := NewSchemaMigrator(config.AppConfig{InstallRoot: root}, pm)

	plan, err := s.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.Skip() {
		t.Fatal("Plan() skipped with alembic.ini present")
	}
	if _, err := s.Apply(context.Background(), plan); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	lines := pm.CommandLines()
	if len(lines) != 1 {
		t.Fatalf("commands = %v, want one", lines)
	}
	if !strings.Contains(lines[0], "cd "+root) ||
		!strings.Contains(lines[0], VenvBin(root, "alembic")+" upgrade head") {
		t.Errorf("command = %q", lines[0])
	}
}

// TestSchemaMigrator_WithPipeline_FailureIsWarning verifies the deploy
// registration downgrades a failed migration and the run still succeeds.
func TestSchemaMigrator_WithPipeline_FailureIsWarning(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "alembic.ini"), []byte("[alembic]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pm := &MockProcessManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, errors.New("Can't locate revision identified by 'abc123'")
		},
	}

	p := NewPipeline(quietConfig())
	p.AddStage(NewSchemaMigrator(config.AppConfig{InstallRoot: root}, pm), FailWarn)

	report := p.Execute(context.Background())
	if !report.Success {
		t.Fatal("migration failure aborted the run")
	}
	if report.Stages[0].Status != StatusWarning {
		t.Errorf("status = %v, want warning", report.Stages[0].Status)
	}
	if report.ExitCode() != CLIExitSuccess {
		t.Errorf("ExitCode() = %d, want success", report.ExitCode())
	}
}
