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
	"reflect"
	"testing"
)

// TestResolvePrograms verifies the CLI argument to program-name mapping.
func TestResolvePrograms(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{
			name: "no argument selects all",
			args: nil,
			want: []string{"backend-super", "backend-super-celery", "backend-super-beat"},
		},
		{
			name: "full program name",
			args: []string{"backend-super-celery"},
			want: []string{"backend-super-celery"},
		},
		{
			name: "shorthand suffix",
			args: []string{"beat"},
			want: []string{"backend-super-beat"},
		},
		{
			name: "app name alone",
			args: []string{"backend-super"},
			want: []string{"backend-super"},
		},
		{
			name:    "unknown program",
			args:    []string{"nginx"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePrograms("backend-super", tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("resolvePrograms() accepted %v", tt.args)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolvePrograms() error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("resolvePrograms() = %v, want %v", got, tt.want)
			}
		})
	}
}
