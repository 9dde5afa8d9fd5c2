// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// TestLogger_StderrSink verifies messages and attributes reach the text sink.
func TestLogger_StderrSink(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Stderr: &buf})

	logger.Info("stage applied", "stage", "datastore")

	out := buf.String()
	if !strings.Contains(out, "stage applied") || !strings.Contains(out, "stage=datastore") {
		t.Errorf("stderr sink output = %q", out)
	}
}

// TestLogger_LevelFiltering verifies debug is suppressed at info level.
func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Stderr: &buf})

	logger.Debug("noisy probe detail")
	if strings.Contains(buf.String(), "noisy probe detail") {
		t.Errorf("debug message emitted at info level: %q", buf.String())
	}
}

// TestLogger_FileSink verifies the JSON audit file is written.
func TestLogger_FileSink(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "testsvc", Stderr: &buf})

	logger.Info("venv created", "path", "/opt/backend-super/venv")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one log file, got %d (err=%v)", len(entries), err)
	}
	if !strings.HasPrefix(entries[0].Name(), "testsvc_") {
		t.Errorf("log file name = %q", entries[0].Name())
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("log file is not JSON: %v (%q)", err, data)
	}
	if record["msg"] != "venv created" {
		t.Errorf("msg = %v", record["msg"])
	}
}

// TestLogger_BadLogDir verifies file-sink failure degrades without panic.
func TestLogger_BadLogDir(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, LogDir: string([]byte{0}), Stderr: &buf})
	logger.Info("still works")
	if !strings.Contains(buf.String(), "still works") {
		t.Errorf("stderr sink lost after file-sink failure: %q", buf.String())
	}
}
