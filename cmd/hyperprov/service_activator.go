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

	"github.com/superia/hyperprov/cmd/hyperprov/config"
)

// SupervisedPrograms returns the supervisor program names for an app, in
// start order: API server, task worker, beat scheduler.
func SupervisedPrograms(appName string) []string {
	return []string{appName, appName + "-celery", appName + "-beat"}
}

// ServiceActivator loads the supervisor config and starts the programs.
//
// # Description
//
// reread/update makes supervisord pick up the regenerated config (new
// programs start, changed programs restart); the explicit starts after it
// converge programs an operator stopped by hand. `start` on a running
// program is a no-op inside supervisord, so the stage is idempotent by
// overwrite and always applies.
type ServiceActivator struct {
	app config.AppConfig
	pm  ProcessManager
}

// NewServiceActivator creates the stage.
func NewServiceActivator(app config.AppConfig, pm ProcessManager) *ServiceActivator {
	return &ServiceActivator{app: app, pm: pm}
}

// Name implements Stage.
func (a *ServiceActivator) Name() string { return "service-activation" }

// Plan implements Stage.
func (a *ServiceActivator) Plan(ctx context.Context) (*StagePlan, error) {
	plan := &StagePlan{}
	plan.AddAction("reload supervisor program definitions")
	for _, program := range SupervisedPrograms(a.app.Name) {
		plan.AddAction("ensure program %s is running", program)
	}
	return plan, nil
}

// Apply implements Stage.
func (a *ServiceActivator) Apply(ctx context.Context, plan *StagePlan) (*StageOutcome, error) {
	if _, err := a.pm.Run(ctx, "supervisorctl", "reread"); err != nil {
		return nil, fmt.Errorf("supervisorctl reread: %w", err)
	}
	if _, err := a.pm.Run(ctx, "supervisorctl", "update"); err != nil {
		return nil, fmt.Errorf("supervisorctl update: %w", err)
	}
	outcome := &StageOutcome{}
	for _, program := range SupervisedPrograms(a.app.Name) {
		if _, err := a.pm.Run(ctx, "supervisorctl", "start", program); err != nil {
			// "already started" comes back as an error from supervisorctl;
			// the verifier decides whether the program is actually up.
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("start %s: %v", program, err))
		}
	}
	return outcome, nil
}

var _ Stage = (*ServiceActivator)(nil)
