// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"bytes"
	"strings"
	"testing"
)

// TestDefaultConfig_IsValid verifies the shipped defaults pass validation.
func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Proxy.Domain = LocalOnlyDomain
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig() invalid: %v", err)
	}
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Proxy.Domain = LocalOnlyDomain
	cfg.App.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() accepted port 70000")
	}
}

func TestValidate_RejectsTLSOnLocalOnlyDomain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Proxy.Domain = LocalOnlyDomain
	cfg.Proxy.EnableTLS = true
	cfg.Proxy.CertbotEmail = "ops@example.com"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "local-only") {
		t.Fatalf("Validate() = %v, want local-only TLS rejection", err)
	}
}

func TestValidate_TLSRequiresEmail(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Proxy.Domain = "api.example.com"
	cfg.Proxy.EnableTLS = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() accepted TLS without certbot_email")
	}
}

func TestResolvedPassword_PlaceholderContract(t *testing.T) {
	db := DatabaseConfig{}
	if got := db.ResolvedPassword(); got != PlaceholderDBPassword {
		t.Errorf("ResolvedPassword() = %q, want placeholder", got)
	}
	db.Password = "s3cret"
	if got := db.ResolvedPassword(); got != "s3cret" {
		t.Errorf("ResolvedPassword() = %q, want configured value", got)
	}
}

// TestResolveIntent_NonInteractiveDefaults verifies CI runs never prompt
// and settle on the local-only placeholder.
func TestResolveIntent_NonInteractiveDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if err := ResolveIntent(&cfg, true); err != nil {
		t.Fatalf("ResolveIntent() error: %v", err)
	}
	if cfg.Proxy.Domain != LocalOnlyDomain {
		t.Errorf("Domain = %q, want %q", cfg.Proxy.Domain, LocalOnlyDomain)
	}
	if cfg.Proxy.EnableTLS {
		t.Error("EnableTLS = true for local-only deployment")
	}
}

// TestResolveIntent_ConfiguredDomainSkipsPrompt verifies a preconfigured
// domain is honored as-is.
func TestResolveIntent_ConfiguredDomainSkipsPrompt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Proxy.Domain = "api.example.com"
	if err := ResolveIntent(&cfg, true); err != nil {
		t.Fatalf("ResolveIntent() error: %v", err)
	}
	if cfg.Proxy.Domain != "api.example.com" {
		t.Errorf("Domain = %q", cfg.Proxy.Domain)
	}
}

// TestResolveIntent_GeneratedPassword verifies the generate_password
// policy mints a credential before any stage runs and echoes it once.
func TestResolveIntent_GeneratedPassword(t *testing.T) {
	var notices bytes.Buffer
	oldOut := intentOutput
	intentOutput = &notices
	t.Cleanup(func() { intentOutput = oldOut })

	cfg := DefaultConfig()
	cfg.Database.GeneratePassword = true
	if err := ResolveIntent(&cfg, true); err != nil {
		t.Fatalf("ResolveIntent() error: %v", err)
	}
	pw := cfg.Database.Password
	if len(pw) != 32 {
		t.Fatalf("generated password length = %d, want 32", len(pw))
	}
	if pw == PlaceholderDBPassword {
		t.Error("generated password equals placeholder")
	}
	if !strings.Contains(notices.String(), pw) {
		t.Error("generated password was not echoed to the operator")
	}

	// A configured password is never overwritten.
	cfg2 := DefaultConfig()
	cfg2.Database.GeneratePassword = true
	cfg2.Database.Password = "explicit"
	if err := ResolveIntent(&cfg2, true); err != nil {
		t.Fatalf("ResolveIntent() error: %v", err)
	}
	if cfg2.Database.Password != "explicit" {
		t.Errorf("Password = %q, want explicit value kept", cfg2.Database.Password)
	}
}
