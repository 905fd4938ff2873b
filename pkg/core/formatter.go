package core

import (
	"fmt"
	"sort"
)

// FormatFields formats extra record fields into an indented, key-sorted block.
func FormatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := "\n  Fields:"
	for _, key := range keys {
		switch v := fields[key].(type) {
		case string:
			out += fmt.Sprintf("\n    %s: %s", key, truncate(v))
		case bool, int, int64, float64:
			out += fmt.Sprintf("\n    %s: %v", key, v)
		default:
			out += fmt.Sprintf("\n    %s: %s", key, truncate(fmt.Sprintf("%v", v)))
		}
	}
	return out
}

func truncate(s string) string {
	if len(s) > 100 {
		return s[:97] + "..."
	}
	return s
}
