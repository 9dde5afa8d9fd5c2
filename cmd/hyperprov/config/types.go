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
	"fmt"
	"os"
	"os/user"

	"github.com/go-playground/validator/v10"
)

// LocalOnlyDomain is the placeholder domain used when no external domain
// is supplied. It matches any host in the proxy config and disables TLS
// provisioning entirely.
const LocalOnlyDomain = "_"

// PlaceholderDBPassword is the deliberately insecure default database
// credential. It is written into the environment file and flagged with a
// warning on every run; operators are expected to rotate it. See the
// GeneratePassword option for the alternative policy.
const PlaceholderDBPassword = "change_me_in_production"

// DeployConfig is the fully resolved intent for one provisioning run.
//
// All interactive questions the old runbook asked mid-flight (domain,
// TLS opt-in) are resolved into this struct before the first stage runs,
// so the pipeline itself never blocks on a prompt.
type DeployConfig struct {
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Verify   VerifyConfig   `yaml:"verify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AppConfig describes the application being provisioned.
type AppConfig struct {
	// Name is the service identity: supervisor program prefix, nginx site
	// name, directory names.
	Name string `yaml:"name" validate:"required,hostname_rfc1123"`

	// InstallRoot is where the application tree is mirrored to.
	InstallRoot string `yaml:"install_root" validate:"required,startswith=/"`

	// SourceDir is the tree to deploy from. Defaults to the invocation
	// directory; preflight requires the sentinel file inside it.
	SourceDir string `yaml:"source_dir"`

	// Sentinel is the file whose presence marks the project root.
	Sentinel string `yaml:"sentinel" validate:"required"`

	// Port the application binds on localhost.
	Port int `yaml:"port" validate:"required,min=1,max=65535"`

	// Workers passed to the application server and task worker.
	Workers int `yaml:"workers" validate:"min=1,max=64"`

	// User owns the install root and runs the supervised processes.
	// Defaults to the invoking (sudo-aware) user.
	User string `yaml:"user" validate:"required"`

	// LogDir receives supervisor stdout/stderr logs and hyperprov's own
	// audit log.
	LogDir string `yaml:"log_dir" validate:"required"`
}

// DatabaseConfig describes the Postgres database and role to ensure.
type DatabaseConfig struct {
	Name string `yaml:"name" validate:"required"`
	User string `yaml:"user" validate:"required"`

	// Password for the application role. Empty selects the placeholder
	// credential unless GeneratePassword is set.
	Password string `yaml:"password"`

	// GeneratePassword replaces the placeholder contract with a random
	// credential minted during intent resolution and echoed once to the
	// operator on stderr.
	GeneratePassword bool `yaml:"generate_password"`

	// AdminDSN, when set, switches the existence probe from shelling out
	// to psql over sudo to a direct catalog query over the wire.
	AdminDSN string `yaml:"admin_dsn"`
}

// ProxyConfig describes the nginx virtual host.
type ProxyConfig struct {
	// Domain served by the virtual host. Empty means "ask" (interactive)
	// or LocalOnlyDomain (non-interactive).
	Domain string `yaml:"domain"`

	// EnableTLS provisions a certificate via certbot after activation.
	// Ignored for the local-only placeholder domain.
	EnableTLS bool `yaml:"enable_tls"`

	// CertbotEmail is the registration contact for certificate issuance.
	CertbotEmail string `yaml:"certbot_email" validate:"omitempty,email"`
}

// VerifyConfig tunes the post-activation verifier.
type VerifyConfig struct {
	// GraceSeconds to wait before probing, covering model warm-up.
	GraceSeconds int `yaml:"grace_seconds" validate:"min=0,max=600"`

	// HealthPath probed on localhost at the application port.
	HealthPath string `yaml:"health_path" validate:"required,startswith=/"`
}

// LoggingConfig configures hyperprov's own logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns the backend-super production defaults.
func DefaultConfig() DeployConfig {
	username := "root"
	if u := invokingUser(); u != "" {
		username = u
	}
	return DeployConfig{
		App: AppConfig{
			Name:        "backend-super",
			InstallRoot: "/opt/backend-super",
			Sentinel:    "main.py",
			Port:        8000,
			Workers:     4,
			User:        username,
			LogDir:      "/var/log/backend-super",
		},
		Database: DatabaseConfig{
			Name: "backend_super_db",
			User: "backend_super",
		},
		Proxy: ProxyConfig{},
		Verify: VerifyConfig{
			GraceSeconds: 10,
			HealthPath:   "/health",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// invokingUser resolves the real operator behind a sudo invocation, so
// created directories are owned by the human, not root.
func invokingUser() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		return sudoUser
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

// Validate checks struct tags and cross-field rules.
func (c *DeployConfig) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Proxy.EnableTLS && c.Proxy.Domain == LocalOnlyDomain {
		return fmt.Errorf("invalid configuration: TLS cannot be enabled for the local-only domain")
	}
	if c.Proxy.EnableTLS && c.Proxy.CertbotEmail == "" {
		return fmt.Errorf("invalid configuration: enable_tls requires certbot_email")
	}
	return nil
}

// ResolvedPassword returns the database password the run will use,
// honoring the placeholder contract when nothing was configured.
func (c *DatabaseConfig) ResolvedPassword() string {
	if c.Password != "" {
		return c.Password
	}
	return PlaceholderDBPassword
}
