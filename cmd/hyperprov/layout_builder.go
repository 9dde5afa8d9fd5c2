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

// modelSubdirs are the per-model-family directories under models/. The
// application loads weights lazily from these paths at runtime.
var modelSubdirs = []string{"llm", "vision", "whisper", "tts", "yolo"}

// LayoutBuilder creates the on-disk directory skeleton for the install.
//
// # Description
//
// Creates the install root with its model, upload, scratch, and cache
// directories, plus the log directory, then hands ownership of both
// trees to the service user. Directory creation is idempotent by
// construction (MkdirAll); the chown runs every time so a tree created
// by an earlier root-owned run converges to the right owner.
type LayoutBuilder struct {
	app config.AppConfig
	pm  ProcessManager
}

// NewLayoutBuilder creates the stage.
func NewLayoutBuilder(app config.AppConfig, pm ProcessManager) *LayoutBuilder {
	return &LayoutBuilder{app: app, pm: pm}
}

// Name implements Stage.
func (b *LayoutBuilder) Name() string { return "directory-layout" }

// directories returns every directory the layout requires, install root
// first so MkdirAll ordering is irrelevant.
func (b *LayoutBuilder) directories() []string {
	dirs := []string{b.app.InstallRoot}
	for _, sub := range modelSubdirs {
		dirs = append(dirs, filepath.Join(b.app.InstallRoot, "models", sub))
	}
	dirs = append(dirs,
		filepath.Join(b.app.InstallRoot, "uploads"),
		filepath.Join(b.app.InstallRoot, "tmp"),
		filepath.Join(b.app.InstallRoot, ".cache"),
		b.app.LogDir,
	)
	return dirs
}

// Plan implements Stage: one action per missing directory, plus the
// ownership pass which always runs.
func (b *LayoutBuilder) Plan(ctx context.Context) (*StagePlan, error) {
	plan := &StagePlan{}
	var missing []string
	for _, dir := range b.directories() {
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return nil, fmt.Errorf("%s exists but is not a directory", dir)
			}
			continue
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w", dir, err)
		}
		missing = append(missing, dir)
	}
	for _, dir := range missing {
		plan.AddAction("create directory %s", dir)
	}
	plan.AddAction("set ownership of %s and %s to %s", b.app.InstallRoot, b.app.LogDir, b.app.User)
	return plan, nil
}

// Apply implements Stage.
func (b *LayoutBuilder) Apply(ctx context.Context, plan *StagePlan) (*StageOutcome, error) {
	for _, dir := range b.directories() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	owner := b.app.User + ":" + b.app.User
	for _, root := range []string{b.app.InstallRoot, b.app.LogDir} {
		if _, err := b.pm.Run(ctx, "chown", "-R", owner, root); err != nil {
			return nil, fmt.Errorf("chown %s: %w", root, err)
		}
	}
	return &StageOutcome{}, nil
}

var _ Stage = (*LayoutBuilder)(nil)
