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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath     string
	nonInteractive bool
	jsonOutput     bool
	skipTLS        bool // CLI override: never run certbot this run

	rootCmd = &cobra.Command{
		Use:   "hyperprov",
		Short: "A cli to provision and operate the backend-super application host",
		Long: `hyperprov converges a GPU host onto a complete backend-super
				deployment: system packages, PostgreSQL and Redis, the install
				tree, the Python environment, supervisor programs, and the
				nginx front door. Every stage probes before it mutates, so
				re-running after a failure is always safe.`,
	}

	// --- Provisioning ---
	deployCmd = &cobra.Command{
		Use:   "deploy",
		Short: "Provision this host end to end and start the application",
		Run:   runDeploy, // Defined in cmd_deploy.go
	}
	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Show what deploy would change, without touching anything",
		Run:   runPlan, // Defined in cmd_deploy.go
	}

	// --- Operations ---
	servicesCmd = &cobra.Command{
		Use:   "services",
		Short: "Manage the supervised application programs",
	}
	servicesStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show supervisor state of the application programs",
		Run:   runServicesStatus, // Defined in cmd_services.go
	}
	servicesStartCmd = &cobra.Command{
		Use:   "start [program]",
		Short: "Start all application programs, or one by name",
		Run:   runServicesStart, // Defined in cmd_services.go
	}
	servicesStopCmd = &cobra.Command{
		Use:   "stop [program]",
		Short: "Stop all application programs, or one by name",
		Run:   runServicesStop, // Defined in cmd_services.go
	}
	servicesRestartCmd = &cobra.Command{
		Use:   "restart [program]",
		Short: "Restart all application programs, or one by name",
		Run:   runServicesRestart, // Defined in cmd_services.go
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Run pending database migrations against the deployed app",
		Run:   runMigrate, // Defined in cmd_services.go
	}
	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Check services, health endpoint, and environment completeness",
		Run:   runVerify, // Defined in cmd_services.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a hyperprov.yaml (default: ./hyperprov.yaml, then /etc/hyperprov/hyperprov.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Emit the run report as JSON instead of the styled summary")

	rootCmd.AddCommand(deployCmd)
	deployCmd.Flags().BoolVar(&nonInteractive, "non-interactive", false,
		"Never prompt; unset intent falls back to a local-only deployment")
	deployCmd.Flags().BoolVar(&skipTLS, "skip-tls", false,
		"Skip certificate provisioning even if the config enables it")

	rootCmd.AddCommand(planCmd)

	rootCmd.AddCommand(servicesCmd)
	servicesCmd.AddCommand(servicesStatusCmd)
	servicesCmd.AddCommand(servicesStartCmd)
	servicesCmd.AddCommand(servicesStopCmd)
	servicesCmd.AddCommand(servicesRestartCmd)

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(verifyCmd)
}
