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
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/superia/hyperprov/cmd/hyperprov/config"
)

// ProxyConfigurator installs the nginx virtual host and optional TLS.
//
// # Description
//
// The vhost is regenerated to canonical form every run; the distro's
// default site is removed so the application vhost is the only server
// block answering. Before any reload, `nginx -t` validates the full
// config — a bad vhost must never take down an nginx that is also
// serving other sites, so a validation failure is fatal and the reload
// never happens. Certificate issuance runs only for a real domain with
// TLS opted in; certbot edits the vhost in place, which is why issuance
// comes after the reload gate.
type ProxyConfigurator struct {
	cfg config.DeployConfig
	pm  ProcessManager

	// SitesAvailable and SitesEnabled are overridable in tests.
	SitesAvailable string
	SitesEnabled   string
}

// NewProxyConfigurator creates the stage with production paths.
func NewProxyConfigurator(cfg config.DeployConfig, pm ProcessManager) *ProxyConfigurator {
	return &ProxyConfigurator{
		cfg:            cfg,
		pm:             pm,
		SitesAvailable: "/etc/nginx/sites-available",
		SitesEnabled:   "/etc/nginx/sites-enabled",
	}
}

// Name implements Stage.
func (p *ProxyConfigurator) Name() string { return "reverse-proxy" }

func (p *ProxyConfigurator) vhostPath() string {
	return filepath.Join(p.SitesAvailable, p.cfg.App.Name)
}

func (p *ProxyConfigurator) enabledPath() string {
	return filepath.Join(p.SitesEnabled, p.cfg.App.Name)
}

func (p *ProxyConfigurator) defaultSitePath() string {
	return filepath.Join(p.SitesEnabled, "default")
}

// wantsTLS reports whether certificate issuance is in scope for this run.
func (p *ProxyConfigurator) wantsTLS() bool {
	return p.cfg.Proxy.EnableTLS && p.cfg.Proxy.Domain != config.LocalOnlyDomain
}

// Plan implements Stage.
func (p *ProxyConfigurator) Plan(ctx context.Context) (*StagePlan, error) {
	plan := &StagePlan{}

	rendered, err := RenderNginxVhost(p.cfg)
	if err != nil {
		return nil, err
	}
	current, err := os.ReadFile(p.vhostPath())
	if err != nil || !bytes.Equal(current, rendered) {
		plan.AddAction("write virtual host %s", p.vhostPath())
	}

	if _, err := os.Lstat(p.enabledPath()); err != nil {
		plan.AddAction("enable virtual host (symlink in %s)", p.SitesEnabled)
	}
	if _, err := os.Lstat(p.defaultSitePath()); err == nil {
		plan.AddAction("remove distro default site")
	}

	plan.AddAction("validate nginx configuration and reload")
	if p.wantsTLS() {
		plan.AddAction("provision TLS certificate for %s via certbot", p.cfg.Proxy.Domain)
	}
	return plan, nil
}

// Apply implements Stage.
func (p *ProxyConfigurator) Apply(ctx context.Context, plan *StagePlan) (*StageOutcome, error) {
	rendered, err := RenderNginxVhost(p.cfg)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(p.SitesAvailable, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", p.SitesAvailable, err)
	}
	if err := os.MkdirAll(p.SitesEnabled, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", p.SitesEnabled, err)
	}
	if err := os.WriteFile(p.vhostPath(), rendered, 0o644); err != nil {
		return nil, fmt.Errorf("write vhost: %w", err)
	}

	if _, err := os.Lstat(p.enabledPath()); os.IsNotExist(err) {
		if err := os.Symlink(p.vhostPath(), p.enabledPath()); err != nil {
			return nil, fmt.Errorf("enable vhost: %w", err)
		}
	}
	if _, err := os.Lstat(p.defaultSitePath()); err == nil {
		if err := os.Remove(p.defaultSitePath()); err != nil {
			return nil, fmt.Errorf("remove default site: %w", err)
		}
	}

	// Hard gate: never reload an nginx that rejects its own config.
	if _, err := p.pm.Run(ctx, "nginx", "-t"); err != nil {
		return nil, fmt.Errorf("nginx configuration invalid, reload aborted: %w", err)
	}
	if _, err := p.pm.Run(ctx, "systemctl", "reload", "nginx"); err != nil {
		return nil, fmt.Errorf("reload nginx: %w", err)
	}

	outcome := &StageOutcome{}
	if p.wantsTLS() {
		args := []string{
			"--nginx",
			"-d", p.cfg.Proxy.Domain,
			"--non-interactive",
			"--agree-tos",
			"-m", p.cfg.Proxy.CertbotEmail,
			"--redirect",
		}
		if _, err := p.pm.Run(ctx, "certbot", args...); err != nil {
			return nil, fmt.Errorf("certbot: %w", err)
		}
	} else if p.cfg.Proxy.Domain == config.LocalOnlyDomain {
		outcome.Warnings = append(outcome.Warnings,
			"serving plain HTTP on the local-only domain; set proxy.domain and enable_tls for production")
	}
	return outcome, nil
}

var _ Stage = (*ProxyConfigurator)(nil)
