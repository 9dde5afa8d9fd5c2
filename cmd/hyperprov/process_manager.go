// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package main provides ProcessManager for abstracting external process execution.

Every external collaborator of the provisioning workflow — apt-get, psql,
redis-cli, rsync, python, supervisorctl, nginx, certbot, nvidia-smi,
systemctl — is invoked through this interface. Direct exec.Command calls
are not testable because they execute real processes; routing them through
ProcessManager lets unit tests capture invocations and simulate outcomes
without a disposable host.
*/
package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// ProcessManager handles external process operations.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
//
// # Context Handling
//
// All execution methods accept a context.Context; long package-manager
// runs are bounded by the owning stage's timeout.
type ProcessManager interface {
	// Run executes a command synchronously and returns its stdout.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - name: The executable name or path
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - []byte: Stdout output
	//   - error: Non-nil if the command fails; stderr is folded into the
	//     error message for diagnostics
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunWithInput executes a command with data piped to stdin.
	//
	// Used for SQL fed to psql and for config content written through
	// `tee` when elevated privileges are required.
	RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error)

	// LookPath reports whether an executable is resolvable, returning its
	// absolute path. Used by preflight and best-effort GPU detection.
	LookPath(name string) (string, error)
}

// DefaultProcessManager implements ProcessManager using os/exec.
type DefaultProcessManager struct{}

// NewDefaultProcessManager creates the production ProcessManager.
func NewDefaultProcessManager() *DefaultProcessManager {
	return &DefaultProcessManager{}
}

// Run executes a command synchronously and returns its output.
func (pm *DefaultProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// RunWithInput executes a command with data piped to stdin.
func (pm *DefaultProcessManager) RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// LookPath resolves an executable through the PATH.
func (pm *DefaultProcessManager) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockProcessManager is a test double for ProcessManager.
//
// Configure the mock by setting function fields before use. A nil
// function field panics when its method is called, so tests fail loudly
// on unexpected invocations.
//
// # Examples
//
//	mock := &MockProcessManager{
//	    RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
//	        if name == "redis-cli" {
//	            return []byte("PONG\n"), nil
//	        }
//	        return nil, fmt.Errorf("unexpected command: %s", name)
//	    },
//	}
type MockProcessManager struct {
	// RunFunc is called when Run is invoked
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunWithInputFunc is called when RunWithInput is invoked
	RunWithInputFunc func(ctx context.Context, name string, input []byte, args ...string) ([]byte, error)

	// LookPathFunc is called when LookPath is invoked. Nil defaults to
	// "found at /usr/bin/<name>" since most tests don't care.
	LookPathFunc func(name string) (string, error)

	// Calls records all method invocations for verification
	Calls []ProcessManagerCall

	mu sync.Mutex
}

// ProcessManagerCall records a single method invocation.
type ProcessManagerCall struct {
	Method string
	Name   string
	Args   []string
	Input  []byte
}

// Run delegates to RunFunc and records the call.
func (m *MockProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.record(ProcessManagerCall{Method: "Run", Name: name, Args: args})
	if m.RunFunc == nil {
		panic("MockProcessManager.RunFunc not set")
	}
	return m.RunFunc(ctx, name, args...)
}

// RunWithInput delegates to RunWithInputFunc and records the call.
func (m *MockProcessManager) RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error) {
	m.record(ProcessManagerCall{Method: "RunWithInput", Name: name, Args: args, Input: input})
	if m.RunWithInputFunc == nil {
		panic("MockProcessManager.RunWithInputFunc not set")
	}
	return m.RunWithInputFunc(ctx, name, input, args...)
}

// LookPath delegates to LookPathFunc and records the call.
func (m *MockProcessManager) LookPath(name string) (string, error) {
	m.record(ProcessManagerCall{Method: "LookPath", Name: name})
	if m.LookPathFunc == nil {
		return "/usr/bin/" + name, nil
	}
	return m.LookPathFunc(name)
}

func (m *MockProcessManager) record(call ProcessManagerCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// GetCalls returns a copy of all recorded calls.
func (m *MockProcessManager) GetCalls() []ProcessManagerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]ProcessManagerCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// CommandLines renders recorded calls as "name arg1 arg2" strings for
// compact assertions.
func (m *MockProcessManager) CommandLines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := make([]string, 0, len(m.Calls))
	for _, c := range m.Calls {
		if c.Method == "LookPath" {
			continue
		}
		lines = append(lines, strings.TrimSpace(c.Name+" "+strings.Join(c.Args, " ")))
	}
	return lines
}

// Compile-time interface compliance check.
var (
	_ ProcessManager = (*DefaultProcessManager)(nil)
	_ ProcessManager = (*MockProcessManager)(nil)
)
