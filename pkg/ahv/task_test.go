/*
Copyright 2024 The hypervisor-builder Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

//go:build unit

package ahv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestClassifyPollResult covers the task outcome classification: success
// labels, explicit failure, indeterminate states, and poll windows that
// elapsed without completion.
func TestClassifyPollResult(t *testing.T) {
	c := NewClient("prism.example.com", "admin", "secret")

	tests := []struct {
		name   string
		result map[string]any
		want   bool
	}{
		{
			name: "succeeded uppercase",
			result: map[string]any{
				"completed_tasks_info": []any{
					map[string]any{"progress_status": "SUCCEEDED"},
				},
			},
			want: true,
		},
		{
			name: "succeeded mixed case",
			result: map[string]any{
				"completed_tasks_info": []any{
					map[string]any{"progress_status": "Succeeded"},
				},
			},
			want: true,
		},
		{
			name: "failed with detail",
			result: map[string]any{
				"completed_tasks_info": []any{
					map[string]any{
						"progress_status": "Failed",
						"meta_response":   map[string]any{"error_detail": "boom"},
					},
				},
			},
			want: false,
		},
		{
			name: "indeterminate status",
			result: map[string]any{
				"completed_tasks_info": []any{
					map[string]any{"progress_status": "Running"},
				},
			},
			want: false,
		},
		{
			name:   "window elapsed without completion",
			result: map[string]any{"timed_out": true},
			want:   false,
		},
		{
			name:   "nil result",
			result: nil,
			want:   false,
		},
		{
			// Only the first entry carrying a progress_status decides.
			name: "first entry wins over later failures",
			result: map[string]any{
				"completed_tasks_info": []any{
					map[string]any{"uuid": "no-progress-status"},
					map[string]any{"progress_status": "SUCCEEDED"},
					map[string]any{"progress_status": "Failed"},
				},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.classifyPollResult(tt.result))
		})
	}
}
