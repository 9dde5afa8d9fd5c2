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
	"strings"

	"github.com/superia/hyperprov/cmd/hyperprov/config"
)

// syncExclusions are paths never copied into the install root: local
// build state, caches, VCS metadata, and the environment file (which is
// materialized separately and must not be clobbered by a source copy).
var syncExclusions = []string{
	"venv/",
	"__pycache__/",
	".git/",
	".pytest_cache/",
	".mypy_cache/",
	"node_modules/",
	".env",
}

// ArtifactSyncer mirrors the application source into the install root.
//
// # Description
//
// Runs rsync in archive mode without --delete: the copy is additive, so
// files created in the install root by the application (uploads, model
// weights, generated state) survive re-deployment. The stage always
// applies; rsync's own delta transfer makes a no-change run cheap.
type ArtifactSyncer struct {
	app config.AppConfig
	pm  ProcessManager
}

// NewArtifactSyncer creates the stage.
func NewArtifactSyncer(app config.AppConfig, pm ProcessManager) *ArtifactSyncer {
	return &ArtifactSyncer{app: app, pm: pm}
}

// Name implements Stage.
func (s *ArtifactSyncer) Name() string { return "artifact-sync" }

// Plan implements Stage. Sync is idempotent by overwrite, so there is no
// probe: the action is always planned and rsync decides what moves.
func (s *ArtifactSyncer) Plan(ctx context.Context) (*StagePlan, error) {
	plan := &StagePlan{}
	plan.AddAction("sync %s -> %s (additive, %d exclusions)",
		s.app.SourceDir, s.app.InstallRoot, len(syncExclusions))
	return plan, nil
}

// Apply implements Stage.
func (s *ArtifactSyncer) Apply(ctx context.Context, plan *StagePlan) (*StageOutcome, error) {
	args := []string{"-a"}
	for _, pattern := range syncExclusions {
		args = append(args, "--exclude", pattern)
	}
	// Trailing slash on the source copies contents, not the directory itself.
	src := strings.TrimSuffix(s.app.SourceDir, "/") + "/"
	args = append(args, src, s.app.InstallRoot)

	if _, err := s.pm.Run(ctx, "rsync", args...); err != nil {
		return nil, fmt.Errorf("rsync: %w", err)
	}
	return &StageOutcome{}, nil
}

var _ Stage = (*ArtifactSyncer)(nil)
