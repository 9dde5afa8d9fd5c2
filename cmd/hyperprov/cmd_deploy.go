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
	"time"

	"github.com/spf13/cobra"

	"github.com/superia/hyperprov/cmd/hyperprov/config"
	"github.com/superia/hyperprov/pkg/logging"
	"github.com/superia/hyperprov/pkg/ux"
)

// buildPipeline registers the eleven provisioning stages in dependency
// order with their failure policies.
//
// Long-running stages get generous timeout overrides: apt on a cold
// mirror and a torch-sized pip install both blow well past the default
// five minutes.
func buildPipeline(cfg config.DeployConfig, pm ProcessManager, pipelineCfg PipelineConfig) *Pipeline {
	p := NewPipeline(pipelineCfg)
	p.AddStage(NewPreflightChecker(cfg.App, pm), FailFatal)
	p.AddStageWithTimeout(NewPackageInstaller(pm), FailFatal, 20*time.Minute)
	p.AddStage(NewDatastoreProvisioner(cfg.Database, pm), FailFatal)
	p.AddStage(NewLayoutBuilder(cfg.App, pm), FailFatal)
	p.AddStageWithTimeout(NewArtifactSyncer(cfg.App, pm), FailFatal, 15*time.Minute)
	p.AddStageWithTimeout(NewVenvBuilder(cfg.App, pm), FailFatal, 30*time.Minute)
	p.AddStage(NewConfigMaterializer(cfg), FailFatal)
	p.AddStage(NewSchemaMigrator(cfg.App, pm), FailWarn)
	p.AddStage(NewServiceActivator(cfg.App, pm), FailFatal)
	p.AddStage(NewProxyConfigurator(cfg, pm), FailFatal)
	p.AddStage(NewVerifier(cfg, pm), FailReport)
	return p
}

// newDeployLogger builds the run logger with the on-host audit file.
func newDeployLogger(cfg config.DeployConfig) *logging.Logger {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.App.LogDir,
		Service: "hyperprov",
	})
}

// runDeploy is the handler for `hyperprov deploy`.
func runDeploy(cmd *cobra.Command, args []string) {
	cfg := config.Global
	if err := config.ResolveIntent(&cfg, nonInteractive); err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving deployment intent: %v\n", err)
		os.Exit(CLIExitUsage)
	}
	if skipTLS {
		cfg.Proxy.EnableTLS = false
	}

	logger := newDeployLogger(cfg)
	defer logger.Close()
	logger.Info("starting deploy",
		"app", cfg.App.Name,
		"install_root", cfg.App.InstallRoot,
		"domain", cfg.Proxy.Domain,
		"tls", cfg.Proxy.EnableTLS)

	pm := NewDefaultProcessManager()
	pipelineCfg := DefaultPipelineConfig()
	pipelineCfg.Logger = func(format string, args ...interface{}) {
		logger.Info(fmt.Sprintf(format, args...))
	}

	stageIndex := 0
	var total int
	if !jsonOutput {
		pipelineCfg.OnStageStart = func(name string, plan *StagePlan) {
			stageIndex++
			fmt.Println(ux.StageHeading(stageIndex, total, name))
			for _, action := range plan.Actions {
				fmt.Println(ux.Info(action.Summary))
			}
		}
		pipelineCfg.OnStageComplete = func(result StageResult) {
			// Skips never trigger OnStageStart, keep the counter honest.
			if result.Status == StatusSkipped {
				stageIndex++
			}
		}
	}

	pipeline := buildPipeline(cfg, pm, pipelineCfg)
	total = pipeline.StageCount()

	report := pipeline.Execute(context.Background())
	writeReport(report)
	os.Exit(report.ExitCode())
}

// runPlan is the handler for `hyperprov plan`: probe everything, mutate
// nothing.
func runPlan(cmd *cobra.Command, args []string) {
	cfg := config.Global
	if cfg.Proxy.Domain == "" {
		// Planning never prompts; assume the local-only shape.
		cfg.Proxy.Domain = config.LocalOnlyDomain
	}

	pipelineCfg := DefaultPipelineConfig()
	pipelineCfg.Logger = func(format string, args ...interface{}) {}

	pipeline := buildPipeline(cfg, NewDefaultProcessManager(), pipelineCfg)
	report := pipeline.PlanAll(context.Background())
	writeReport(report)
	os.Exit(report.ExitCode())
}

// writeReport renders the run report per the --json flag.
func writeReport(report *RunReport) {
	if jsonOutput {
		if err := report.WriteJSON(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		}
		return
	}
	report.WriteText(os.Stdout)
}
