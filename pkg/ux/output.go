// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the hyperprov CLI.
package ux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// hyperprov palette - server-room greens and amber warnings
var (
	ColorSuccess = lipgloss.Color("#4BD98A") // green for applied/healthy
	ColorWarning = lipgloss.Color("#F4D03F") // amber for degraded/best-effort
	ColorError   = lipgloss.Color("#E74C3C") // red for fatal
	ColorAccent  = lipgloss.Color("#5FA8D3") // steel blue for banners
	ColorMuted   = lipgloss.Color("#6C7A89") // slate for skipped/secondary
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Accent  lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Accent:  lipgloss.NewStyle().Foreground(ColorAccent),
}

// Status prefixes. The deploy runbook used colored [INFO]/[WARN]/[ERROR]
// echo prefixes; these are their styled equivalents.
const (
	prefixOK   = "  ok  "
	prefixWarn = " warn "
	prefixFail = " fail "
	prefixInfo = " info "
)

// OK styles a success line.
func OK(msg string) string {
	return Styles.Success.Render(prefixOK) + msg
}

// Warn styles a warning line.
func Warn(msg string) string {
	return Styles.Warning.Render(prefixWarn) + msg
}

// Fail styles a failure line.
func Fail(msg string) string {
	return Styles.Error.Render(prefixFail) + msg
}

// Info styles an informational line.
func Info(msg string) string {
	return Styles.Accent.Render(prefixInfo) + msg
}

// Dim styles a secondary line (skipped stages, hints).
func Dim(msg string) string {
	return Styles.Muted.Render(prefixInfo + msg)
}

// Banner renders a titled separator for section headings.
func Banner(title string) string {
	rule := strings.Repeat("─", 8)
	return Styles.Title.Render(fmt.Sprintf("%s %s %s", rule, title, rule))
}

// StageHeading renders the "[3/11] Datastore Provisioner" style line
// printed before each stage applies.
func StageHeading(index, total int, name string) string {
	return Styles.Title.Render(fmt.Sprintf("[%d/%d] ", index, total)) + name
}
