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
)

// SystemPackages is the fixed dependency set the application host needs:
// language runtime with headers, database server, cache server, reverse
// proxy, build toolchain, process supervisor, and certificate tooling.
var SystemPackages = []string{
	"python3.10",
	"python3.10-venv",
	"python3.10-dev",
	"python3-pip",
	"postgresql",
	"postgresql-contrib",
	"redis-server",
	"nginx",
	"build-essential",
	"supervisor",
	"certbot",
	"python3-certbot-nginx",
}

// PackageInstaller ensures the system package set is present.
//
// # Description
//
// Probes installation state per package via dpkg-query and installs only
// what is missing. Any package-manager failure is fatal: partial system
// setup is not a supported state, and the operator re-runs after fixing
// the environment.
type PackageInstaller struct {
	pm ProcessManager
}

// NewPackageInstaller creates the stage.
func NewPackageInstaller(pm ProcessManager) *PackageInstaller {
	return &PackageInstaller{pm: pm}
}

// Name implements Stage.
func (i *PackageInstaller) Name() string { return "system-packages" }

// Plan implements Stage: one install action per missing package.
func (i *PackageInstaller) Plan(ctx context.Context) (*StagePlan, error) {
	plan := &StagePlan{}
	var missing []string
	for _, pkg := range SystemPackages {
		installed, err := i.isInstalled(ctx, pkg)
		if err != nil {
			return nil, err
		}
		if !installed {
			missing = append(missing, pkg)
		}
	}
	if len(missing) == 0 {
		plan.Reason = "all system packages present"
		return plan, nil
	}
	plan.AddAction("refresh package index")
	plan.AddAction("install packages: %s", strings.Join(missing, " "))
	return plan, nil
}

// Apply implements Stage.
func (i *PackageInstaller) Apply(ctx context.Context, plan *StagePlan) (*StageOutcome, error) {
	if _, err := i.pm.Run(ctx, "apt-get", "update"); err != nil {
		return nil, fmt.Errorf("apt-get update: %w", err)
	}

	var missing []string
	for _, pkg := range SystemPackages {
		installed, err := i.isInstalled(ctx, pkg)
		if err != nil {
			return nil, err
		}
		if !installed {
			missing = append(missing, pkg)
		}
	}
	if len(missing) == 0 {
		return &StageOutcome{}, nil
	}

	args := append([]string{"install", "-y"}, missing...)
	if _, err := i.pm.Run(ctx, "apt-get", args...); err != nil {
		return nil, fmt.Errorf("apt-get install: %w", err)
	}
	return &StageOutcome{}, nil
}

// isInstalled probes dpkg state for one package. A non-zero dpkg-query
// exit means "not installed", not an error.
func (i *PackageInstaller) isInstalled(ctx context.Context, pkg string) (bool, error) {
	out, err := i.pm.Run(ctx, "dpkg-query", "-W", "-f=${Status}", pkg)
	if err != nil {
		return false, nil
	}
	return strings.Contains(string(out), "install ok installed"), nil
}

var _ Stage = (*PackageInstaller)(nil)
