package core

import (
	"strings"
	"testing"
)

func TestFormatFields(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]any
		expected []string
	}{
		{
			name:     "empty fields",
			fields:   map[string]any{},
			expected: []string{},
		},
		{
			name: "string fields",
			fields: map[string]any{
				"thread_name": "main",
				"logger_name": "org.apache.ambari",
			},
			expected: []string{"thread_name: main", "logger_name: org.apache.ambari"},
		},
		{
			name: "mixed types",
			fields: map[string]any{
				"line_number": 42,
				"bundled":     true,
				"latency":     3.14,
			},
			expected: []string{"line_number: 42", "bundled: true", "latency: 3.14"},
		},
		{
			name: "long string truncation",
			fields: map[string]any{
				"stack": strings.Repeat("a", 150),
			},
			expected: []string{"stack: " + strings.Repeat("a", 97) + "..."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatFields(tt.fields)

			if len(tt.fields) == 0 {
				if result != "" {
					t.Errorf("Expected empty result for empty fields, got: %s", result)
				}
				return
			}

			if !strings.Contains(result, "Fields:") {
				t.Errorf("Expected result to contain 'Fields:', got: %s", result)
			}
			for _, expected := range tt.expected {
				if !strings.Contains(result, expected) {
					t.Errorf("Expected result to contain '%s', got: %s", expected, result)
				}
			}
		})
	}
}

func TestFormatFieldsSorted(t *testing.T) {
	result := FormatFields(map[string]any{"b": 1, "a": 2, "c": 3})
	ia, ib, ic := strings.Index(result, "a:"), strings.Index(result, "b:"), strings.Index(result, "c:")
	if !(ia < ib && ib < ic) {
		t.Errorf("Expected keys in sorted order, got: %s", result)
	}
}
