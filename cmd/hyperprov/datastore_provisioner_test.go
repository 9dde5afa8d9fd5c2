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

	"github.com/superia/hyperprov/cmd/hyperprov/config"
)

// datastoreMock wires a mock where the database existence probe returns
// the given answer and redis behaves.
func datastoreMock(dbExists bool) *MockProcessManager {
	return &MockProcessManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			switch name {
			case "sudo": // psql catalog probe
				if dbExists {
					return []byte("1\n"), nil
				}
				return []byte("\n"), nil
			case "systemctl":
				return []byte{}, nil
			case "redis-cli":
				return []byte("PONG\n"), nil
			}
			return nil, errors.New("unexpected command: " + name)
		},
		RunWithInputFunc: func(ctx context.Context, name string, input []byte, args ...string) ([]byte, error) {
			return []byte{}, nil
		},
	}
}

func testDBConfig() config.DatabaseConfig {
	return config.DatabaseConfig{Name: "backend_super_db", User: "backend_super"}
}

// TestDatastoreProvisioner_Plan_FreshHost verifies creation is planned with
// the placeholder-password warning.
func TestDatastoreProvisioner_Plan_FreshHost(t *testing.T) {
	d := NewDatastoreProvisioner(testDBConfig(), datastoreMock(false))

	plan, err := d.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.Skip() {
		t.Fatal("Plan() skipped on a fresh host")
	}
	if !strings.Contains(plan.Actions[0].Summary, "create database backend_super_db") {
		t.Errorf("first action = %q", plan.Actions[0].Summary)
	}
	if len(plan.Warnings) != 1 || !strings.Contains(plan.Warnings[0], "placeholder password") {
		t.Errorf("warnings = %v, want placeholder-password warning", plan.Warnings)
	}
}

// TestDatastoreProvisioner_Plan_ExistingDatabase verifies a second run
// never plans destructive re-creation.
func TestDatastoreProvisioner_Plan_ExistingDatabase(t *testing.T) {
	d := NewDatastoreProvisioner(testDBConfig(), datastoreMock(true))

	plan, err := d.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	for _, a := range plan.Actions {
		if strings.Contains(a.Summary, "create database") {
			t.Errorf("re-run planned creation: %q", a.Summary)
		}
	}
	if len(plan.Warnings) == 0 || !strings.Contains(plan.Warnings[0], "already exists") {
		t.Errorf("warnings = %v, want already-exists notice", plan.Warnings)
	}
}

// TestDatastoreProvisioner_Apply_CreatesViaStdin verifies the DDL goes
// through stdin so the credential never lands in argv.
func TestDatastoreProvisioner_Apply_CreatesViaStdin(t *testing.T) {
	pm := datastoreMock(false)
	d := NewDatastoreProvisioner(testDBConfig(), pm)

	plan, err := d.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if _, err := d.Apply(context.Background(), plan); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	var ddl string
	for _, call := range pm.GetCalls() {
		if call.Method == "RunWithInput" {
			ddl = string(call.Input)
			for _, arg := range call.Args {
				if strings.Contains(arg, config.PlaceholderDBPassword) {
					t.Errorf("credential leaked into argv: %v", call.Args)
				}
			}
		}
	}
	for _, want := range []string{
		"CREATE DATABASE backend_super_db;",
		"CREATE USER backend_super WITH PASSWORD",
		"GRANT ALL PRIVILEGES ON DATABASE backend_super_db TO backend_super;",
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q:\n%s", want, ddl)
		}
	}
}

// TestDatastoreProvisioner_Apply_ExistingSkipsCreation verifies Apply on a
// converged catalog only touches the cache server.
func TestDatastoreProvisioner_Apply_ExistingSkipsCreation(t *testing.T) {
	pm := datastoreMock(true)
	d := NewDatastoreProvisioner(testDBConfig(), pm)

	plan, err := d.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if _, err := d.Apply(context.Background(), plan); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	for _, call := range pm.GetCalls() {
		if call.Method == "RunWithInput" {
			t.Errorf("Apply() ran DDL against an existing database")
		}
	}
}

// TestDatastoreProvisioner_Apply_RedisPingGate verifies a dead cache
// server fails the stage.
func TestDatastoreProvisioner_Apply_RedisPingGate(t *testing.T) {
	pm := datastoreMock(true)
	base := pm.RunFunc
	pm.RunFunc = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name == "redis-cli" {
			return []byte("ERR unknown\n"), nil
		}
		return base(ctx, name, args...)
	}
	d := NewDatastoreProvisioner(testDBConfig(), pm)

	plan, err := d.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if _, err := d.Apply(context.Background(), plan); err == nil {
		t.Fatal("Apply() accepted a cache server that does not answer PONG")
	}
}

// TestPGXCatalogProber_SelectedByDSN verifies the admin DSN switches the
// probe backend.
func TestPGXCatalogProber_SelectedByDSN(t *testing.T) {
	db := testDBConfig()
	db.AdminDSN = "postgres://postgres@localhost:5432/postgres"
	d := NewDatastoreProvisioner(db, &MockProcessManager{})

	if _, ok := d.prober.(*PGXCatalogProber); !ok {
		t.Errorf("prober = %T, want *PGXCatalogProber", d.prober)
	}

	d = NewDatastoreProvisioner(testDBConfig(), &MockProcessManager{})
	if _, ok := d.prober.(*CLICatalogProber); !ok {
		t.Errorf("prober = %T, want *CLICatalogProber", d.prober)
	}
}
