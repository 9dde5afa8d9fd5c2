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
	"strings"
	"testing"
)

// dpkgMock simulates dpkg-query where the given packages are installed.
func dpkgMock(installed ...string) *MockProcessManager {
	set := make(map[string]bool, len(installed))
	for _, pkg := range installed {
		set[pkg] = true
	}
	return &MockProcessManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			switch name {
			case "dpkg-query":
				pkg := args[len(args)-1]
				if set[pkg] {
					return []byte("install ok installed"), nil
				}
				return nil, errors.New("no packages found matching " + pkg)
			case "apt-get":
				return []byte{}, nil
			}
			return nil, errors.New("unexpected command: " + name)
		},
	}
}

// TestPackageInstaller_Plan_AllPresent verifies a converged host skips.
func TestPackageInstaller_Plan_AllPresent(t *testing.T) {
	installer := NewPackageInstaller(dpkgMock(SystemPackages...))

	plan, err := installer.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if !plan.Skip() {
		t.Errorf("Plan() actions = %v, want skip", plan.Actions)
	}
}

// TestPackageInstaller_Plan_MissingPackages verifies only the gap is planned.
func TestPackageInstaller_Plan_MissingPackages(t *testing.T) {
	// Everything installed except nginx and supervisor.
	var present []string
	for _, pkg := range SystemPackages {
		if pkg != "nginx" && pkg != "supervisor" {
			present = append(present, pkg)
		}
	}
	installer := NewPackageInstaller(dpkgMock(present...))

	plan, err := installer.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.Skip() {
		t.Fatal("Plan() skipped with packages missing")
	}
	joined := plan.Actions[len(plan.Actions)-1].Summary
	if !strings.Contains(joined, "nginx") || !strings.Contains(joined, "supervisor") {
		t.Errorf("install action = %q, want nginx and supervisor", joined)
	}
	if strings.Contains(joined, "postgresql") {
		t.Errorf("install action %q includes an already-present package", joined)
	}
}

// TestPackageInstaller_Apply_InstallsOnlyMissing verifies the apt-get
// invocation targets the missing set.
func TestPackageInstaller_Apply_InstallsOnlyMissing(t *testing.T) {
	var present []string
	for _, pkg := range SystemPackages {
		if pkg != "redis-server" {
			present = append(present, pkg)
		}
	}
	pm := dpkgMock(present...)
	installer := NewPackageInstaller(pm)

	plan, err := installer.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if _, err := installer.Apply(context.Background(), plan); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	var install string
	for _, line := range pm.CommandLines() {
		if strings.HasPrefix(line, "apt-get install") {
			install = line
		}
	}
	if install != "apt-get install -y redis-server" {
		t.Errorf("install command = %q", install)
	}
}

// TestPackageInstaller_Apply_AptFailureFatal verifies package-manager
// errors surface.
func TestPackageInstaller_Apply_AptFailureFatal(t *testing.T) {
	pm := &MockProcessManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			if name == "apt-get" {
				return nil, errors.New("could not get lock /var/lib/dpkg/lock")
			}
			return nil, errors.New("not installed")
		},
	}
	installer := NewPackageInstaller(pm)

	plan, err := installer.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if _, err := installer.Apply(context.Background(), plan); err == nil {
		t.Fatal("Apply() swallowed an apt-get failure")
	}
}
