// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and resolves the hyperprov deployment intent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPath is the canonical config location on a provisioned host.
const DefaultSystemPath = "/etc/hyperprov/hyperprov.yaml"

// localFileName is checked in the invocation directory before the system path.
const localFileName = "hyperprov.yaml"

var (
	// Global is the loaded configuration singleton.
	Global DeployConfig
	once   sync.Once
)

// Load ensures the config is loaded into the Global variable.
//
// Resolution order: explicit path (if non-empty), ./hyperprov.yaml,
// /etc/hyperprov/hyperprov.yaml. When none exists a commented default
// file is created at the local path so the operator has something to
// edit, mirroring first-run behavior of the rest of the tooling.
func Load(explicitPath string) error {
	var err error
	once.Do(func() {
		err = loadInternal(explicitPath)
	})
	return err
}

// Reset clears the singleton. Test hook only.
func Reset() {
	Global = DeployConfig{}
	once = sync.Once{}
}

func loadInternal(explicitPath string) error {
	path, err := resolvePath(explicitPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	Global = DefaultConfig()
	if err := yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if Global.App.SourceDir == "" {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			Global.App.SourceDir = cwd
		}
	}
	return Global.Validate()
}

func resolvePath(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicitPath, err)
		}
		return explicitPath, nil
	}
	if _, err := os.Stat(localFileName); err == nil {
		return localFileName, nil
	}
	if _, err := os.Stat(DefaultSystemPath); err == nil {
		return DefaultSystemPath, nil
	}
	// First run: materialize defaults locally.
	fmt.Printf("First run detected, creating default config at ./%s\n", localFileName)
	if err := createDefault(localFileName); err != nil {
		return "", err
	}
	return localFileName, nil
}

func createDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
