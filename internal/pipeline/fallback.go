// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import "strings"

// FallbackTable maps an upper-cased, trimmed service name to the ref of a
// tuner service whose own EPG should be copied when nothing else matched.
type FallbackTable map[string]string

// NewFallbackTable normalizes the keys of entries.
func NewFallbackTable(entries map[string]string) FallbackTable {
	t := make(FallbackTable, len(entries))
	for name, ref := range entries {
		key := fallbackKey(name)
		ref = strings.TrimSpace(ref)
		if key == "" || ref == "" {
			continue
		}
		t[key] = ref
	}
	return t
}

// DefaultFallbackTable covers the main Polish terrestrial channels on Hot Bird 13E.
func DefaultFallbackTable() FallbackTable {
	return FallbackTable{
		"TVP 1 HD":  "1:0:19:3ABD:13F0:13E:820000:0:0:0:",
		"TVP 2 HD":  "1:0:19:3ABE:13F0:13E:820000:0:0:0:",
		"POLSAT HD": "1:0:19:332D:3390:71:820000:0:0:0:",
		"TVN HD":    "1:0:19:3DCD:640:13E:820000:0:0:0:",
	}
}

// Lookup returns the live ref for a service name.
func (t FallbackTable) Lookup(name string) (string, bool) {
	ref, ok := t[fallbackKey(name)]
	return ref, ok
}

func fallbackKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
