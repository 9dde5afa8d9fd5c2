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
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/superia/hyperprov/cmd/hyperprov/config"
	"github.com/superia/hyperprov/pkg/ux"
)

// secretEnvKeys are the environment keys the operator must fill in before
// the deployment is production-complete. `hyperprov verify` reports any
// that are still empty.
var secretEnvKeys = []string{
	"SECRET_KEY",
	"JWT_SECRET_KEY",
	"PAYPAL_CLIENT_SECRET",
	"MERCADOPAGO_ACCESS_TOKEN",
	"YAPPY_SECRET_KEY",
	"OPENAI_API_KEY",
	"ANTHROPIC_API_KEY",
	"GROQ_API_KEY",
	"ELEVENLABS_API_KEY",
	"TWILIO_AUTH_TOKEN",
	"GOOGLE_CLIENT_SECRET",
	"MICROSOFT_CLIENT_SECRET",
	"GITHUB_CLIENT_SECRET",
	"B2_APPLICATION_KEY",
	"SMTP_PASSWORD",
}

// resolvePrograms maps an optional CLI argument onto supervisor program
// names. No argument means all three; "celery" and "beat" are accepted as
// shorthands for their prefixed names.
func resolvePrograms(appName string, args []string) ([]string, error) {
	all := SupervisedPrograms(appName)
	if len(args) == 0 {
		return all, nil
	}
	want := args[0]
	for _, program := range all {
		if program == want || program == appName+"-"+want {
			return []string{program}, nil
		}
	}
	return nil, fmt.Errorf("unknown program %q (have: %s)", want, strings.Join(all, ", "))
}

// supervisorDispatch runs one supervisorctl verb over the selected programs.
func supervisorDispatch(verb string, args []string) {
	programs, err := resolvePrograms(config.Global.App.Name, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, ux.Fail(err.Error()))
		os.Exit(CLIExitUsage)
	}

	pm := NewDefaultProcessManager()
	ctx := context.Background()
	failed := false
	for _, program := range programs {
		out, err := pm.Run(ctx, "supervisorctl", verb, program)
		if err != nil {
			fmt.Println(ux.Fail(fmt.Sprintf("%s %s: %v", verb, program, err)))
			failed = true
			continue
		}
		fmt.Println(ux.OK(strings.TrimSpace(string(out))))
	}
	if failed {
		os.Exit(CLIExitFatal)
	}
}

// runServicesStatus is the handler for `hyperprov services status`.
func runServicesStatus(cmd *cobra.Command, args []string) {
	programs, err := resolvePrograms(config.Global.App.Name, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, ux.Fail(err.Error()))
		os.Exit(CLIExitUsage)
	}

	pm := NewDefaultProcessManager()
	ctx := context.Background()
	for _, program := range programs {
		out, err := pm.Run(ctx, "supervisorctl", "status", program)
		line := strings.TrimSpace(string(out))
		switch {
		case err != nil:
			fmt.Println(ux.Fail(fmt.Sprintf("%s: %v", program, err)))
		case strings.Contains(line, "RUNNING"):
			fmt.Println(ux.OK(line))
		default:
			fmt.Println(ux.Warn(line))
		}
	}
}

// runServicesStart is the handler for `hyperprov services start`.
func runServicesStart(cmd *cobra.Command, args []string) {
	supervisorDispatch("start", args)
}

// runServicesStop is the handler for `hyperprov services stop`.
func runServicesStop(cmd *cobra.Command, args []string) {
	supervisorDispatch("stop", args)
}

// runServicesRestart is the handler for `hyperprov services restart`.
func runServicesRestart(cmd *cobra.Command, args []string) {
	supervisorDispatch("restart", args)
}

// runMigrate is the handler for `hyperprov migrate`. Unlike during a full
// deploy, an explicit migration run treats failure as fatal: the operator
// asked for exactly this and needs the non-zero exit.
func runMigrate(cmd *cobra.Command, args []string) {
	pipelineCfg := DefaultPipelineConfig()
	pipeline := NewPipeline(pipelineCfg)
	pipeline.AddStage(NewSchemaMigrator(config.Global.App, NewDefaultProcessManager()), FailFatal)

	report := pipeline.Execute(context.Background())
	writeReport(report)
	os.Exit(report.ExitCode())
}

// runVerify is the handler for `hyperprov verify`: the post-deploy checks
// plus an environment-file audit.
func runVerify(cmd *cobra.Command, args []string) {
	cfg := config.Global

	pipelineCfg := DefaultPipelineConfig()
	pipeline := NewPipeline(pipelineCfg)
	verifier := NewVerifier(cfg, NewDefaultProcessManager())
	verifier.Grace = 0 // no warm-up wait outside a fresh deploy
	pipeline.AddStage(verifier, FailReport)

	report := pipeline.Execute(context.Background())
	writeReport(report)

	auditEnvFile(filepath.Join(cfg.App.InstallRoot, ".env"))
	os.Exit(report.ExitCode())
}

// auditEnvFile lists the secret keys still empty in the environment file.
func auditEnvFile(path string) {
	env, err := godotenv.Read(path)
	if err != nil {
		fmt.Println(ux.Warn(fmt.Sprintf("environment audit skipped: %v", err)))
		return
	}

	var missing []string
	for _, key := range secretEnvKeys {
		if strings.TrimSpace(env[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		fmt.Println(ux.OK("environment file: all secret keys set"))
		return
	}
	fmt.Println(ux.Warn(fmt.Sprintf("environment file: %d secret key(s) still empty:", len(missing))))
	for _, key := range missing {
		fmt.Println(ux.Dim("  " + key))
	}
}
