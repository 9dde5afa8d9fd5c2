// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// intentOutput receives one-time operator notices. Test hook.
var intentOutput io.Writer = os.Stderr

// ResolveIntent fills in the interactive parts of the configuration.
//
// # Description
//
// The old runbook paused mid-deploy to `read` a domain name and a TLS
// yes/no. ResolveIntent moves that to the front of the run: when the
// domain is unset and stdin is a terminal, it asks once via a form;
// otherwise it falls back to the local-only placeholder. After this
// returns, the pipeline never prompts.
//
// It also settles the database credential policy: with GeneratePassword
// set and no explicit password, a random credential is minted here so
// the datastore and configuration stages agree on one value.
//
// # Inputs
//
//   - cfg: Configuration to resolve in place.
//   - nonInteractive: Forbids prompting (CI). Unset fields take defaults.
//
// # Outputs
//
//   - error: Non-nil if the form fails or resolution is inconsistent.
func ResolveIntent(cfg *DeployConfig, nonInteractive bool) error {
	if cfg.Database.GeneratePassword && cfg.Database.Password == "" {
		pw, err := randomPassword()
		if err != nil {
			return fmt.Errorf("generate database password: %w", err)
		}
		cfg.Database.Password = pw
		// The one place the credential is shown; afterwards it lives only
		// in the environment file.
		fmt.Fprintf(intentOutput, "Generated database password for role %s: %s\n",
			cfg.Database.User, pw)
	}

	if cfg.Proxy.Domain != "" {
		return cfg.Validate()
	}

	if nonInteractive || !isTerminal() {
		cfg.Proxy.Domain = LocalOnlyDomain
		cfg.Proxy.EnableTLS = false
		return cfg.Validate()
	}

	domain := ""
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("External domain name").
				Description("Leave empty for a local-only deployment (no TLS).").
				Placeholder("api.example.com").
				Value(&domain),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("domain prompt: %w", err)
	}

	domain = strings.TrimSpace(domain)
	if domain == "" {
		cfg.Proxy.Domain = LocalOnlyDomain
		cfg.Proxy.EnableTLS = false
		return cfg.Validate()
	}
	cfg.Proxy.Domain = domain

	enableTLS := cfg.Proxy.EnableTLS
	email := cfg.Proxy.CertbotEmail
	tlsForm := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Provision a TLS certificate for %s?", domain)).
				Value(&enableTLS),
			huh.NewInput().
				Title("Certificate contact email").
				Description("Used for expiry notices. Ignored if TLS is declined.").
				Value(&email),
		),
	)
	if err := tlsForm.Run(); err != nil {
		return fmt.Errorf("TLS prompt: %w", err)
	}
	cfg.Proxy.EnableTLS = enableTLS
	if enableTLS {
		cfg.Proxy.CertbotEmail = strings.TrimSpace(email)
	}
	return cfg.Validate()
}

func isTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// randomPassword returns a 32-hex-char credential from crypto/rand.
func randomPassword() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
