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

	"github.com/jackc/pgx/v5"

	"github.com/superia/hyperprov/cmd/hyperprov/config"
)

// CatalogProber answers "does this database exist" against the server
// catalog.
//
// # Description
//
// Two implementations: CLICatalogProber shells out to psql as the
// postgres system user (peer auth, the runbook's approach), and
// PGXCatalogProber queries pg_database over the wire when an admin DSN
// is configured. Both are probes only — creation always goes through
// psql so role passwords never appear in process argv.
type CatalogProber interface {
	// DatabaseExists reports whether the named database is in pg_database.
	DatabaseExists(ctx context.Context, name string) (bool, error)
}

// CLICatalogProber probes via `sudo -u postgres psql`.
type CLICatalogProber struct {
	pm ProcessManager
}

// NewCLICatalogProber creates the psql-backed prober.
func NewCLICatalogProber(pm ProcessManager) *CLICatalogProber {
	return &CLICatalogProber{pm: pm}
}

// DatabaseExists implements CatalogProber.
func (p *CLICatalogProber) DatabaseExists(ctx context.Context, name string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM pg_database WHERE datname = '%s'", sqlEscape(name))
	out, err := p.pm.Run(ctx, "sudo", "-u", "postgres", "psql", "-tAc", query)
	if err != nil {
		return false, fmt.Errorf("catalog query: %w", err)
	}
	return strings.TrimSpace(string(out)) == "1", nil
}

// PGXCatalogProber probes via a direct connection to the admin DSN.
type PGXCatalogProber struct {
	dsn string

	// connect is overridable in tests.
	connect func(ctx context.Context, dsn string) (pgxQuerier, error)
}

// pgxQuerier is the slice of pgx.Conn the prober needs.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// NewPGXCatalogProber creates the wire-protocol prober.
func NewPGXCatalogProber(dsn string) *PGXCatalogProber {
	return &PGXCatalogProber{
		dsn: dsn,
		connect: func(ctx context.Context, dsn string) (pgxQuerier, error) {
			return pgx.Connect(ctx, dsn)
		},
	}
}

// DatabaseExists implements CatalogProber.
func (p *PGXCatalogProber) DatabaseExists(ctx context.Context, name string) (bool, error) {
	conn, err := p.connect(ctx, p.dsn)
	if err != nil {
		return false, fmt.Errorf("connect to admin DSN: %w", err)
	}
	defer conn.Close(ctx)

	var one int
	err = conn.QueryRow(ctx, "SELECT 1 FROM pg_database WHERE datname = $1", name).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("catalog query: %w", err)
	}
	return true, nil
}

// DatastoreProvisioner ensures the database, role, and cache server.
//
// # Description
//
// Database creation is idempotent by skip: the catalog is probed first
// and an existing database is never touched (re-running must not destroy
// state). The cache server is idempotent by overwrite: `systemctl enable
// --now` converges on "running" regardless of prior state, and a failed
// liveness probe is fatal — unlike GPU detection, the cache is a hard
// dependency.
type DatastoreProvisioner struct {
	db     config.DatabaseConfig
	pm     ProcessManager
	prober CatalogProber
}

// NewDatastoreProvisioner selects the prober from the configuration:
// an admin DSN switches probing to the wire protocol.
func NewDatastoreProvisioner(db config.DatabaseConfig, pm ProcessManager) *DatastoreProvisioner {
	var prober CatalogProber
	if db.AdminDSN != "" {
		prober = NewPGXCatalogProber(db.AdminDSN)
	} else {
		prober = NewCLICatalogProber(pm)
	}
	return &DatastoreProvisioner{db: db, pm: pm, prober: prober}
}

// Name implements Stage.
func (d *DatastoreProvisioner) Name() string { return "datastore" }

// Plan implements Stage.
func (d *DatastoreProvisioner) Plan(ctx context.Context) (*StagePlan, error) {
	plan := &StagePlan{}

	exists, err := d.prober.DatabaseExists(ctx, d.db.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		plan.AddWarning("database %s already exists, skipping creation", d.db.Name)
	} else {
		plan.AddAction("create database %s owned by role %s", d.db.Name, d.db.User)
		if d.db.ResolvedPassword() == config.PlaceholderDBPassword {
			plan.AddWarning("role %s will use the placeholder password: change it before going live", d.db.User)
		}
	}

	plan.AddAction("enable and start cache server (redis-server)")
	plan.AddAction("verify cache server liveness")
	return plan, nil
}

// Apply implements Stage.
func (d *DatastoreProvisioner) Apply(ctx context.Context, plan *StagePlan) (*StageOutcome, error) {
	outcome := &StageOutcome{}

	needsCreate := false
	for _, a := range plan.Actions {
		if strings.HasPrefix(a.Summary, "create database") {
			needsCreate = true
		}
	}
	if needsCreate {
		if err := d.createDatabase(ctx); err != nil {
			return nil, err
		}
	}

	if _, err := d.pm.Run(ctx, "systemctl", "enable", "--now", "redis-server"); err != nil {
		return nil, fmt.Errorf("start cache server: %w", err)
	}
	out, err := d.pm.Run(ctx, "redis-cli", "ping")
	if err != nil {
		return nil, fmt.Errorf("cache server liveness probe: %w", err)
	}
	if !strings.Contains(strings.ToUpper(string(out)), "PONG") {
		return nil, fmt.Errorf("cache server liveness probe: unexpected reply %q", strings.TrimSpace(string(out)))
	}
	return outcome, nil
}

// createDatabase feeds the DDL to psql over stdin so the role password
// never appears in process argv.
func (d *DatastoreProvisioner) createDatabase(ctx context.Context) error {
	ddl := fmt.Sprintf(
		"CREATE DATABASE %s;\n"+
			"CREATE USER %s WITH PASSWORD '%s';\n"+
			"GRANT ALL PRIVILEGES ON DATABASE %s TO %s;\n"+
			"ALTER DATABASE %s OWNER TO %s;\n",
		d.db.Name, d.db.User, sqlEscape(d.db.ResolvedPassword()),
		d.db.Name, d.db.User,
		d.db.Name, d.db.User)

	if _, err := d.pm.RunWithInput(ctx, "sudo", []byte(ddl), "-u", "postgres", "psql", "-v", "ON_ERROR_STOP=1"); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	return nil
}

// sqlEscape doubles single quotes for literal embedding. Identifiers come
// from validated config, not user input; this guards the password literal.
func sqlEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

var _ Stage = (*DatastoreProvisioner)(nil)
