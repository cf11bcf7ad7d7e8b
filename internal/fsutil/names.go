// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsutil

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxEntityNameLen bounds entity names so derived paths stay portable.
const MaxEntityNameLen = 120

// ValidateEntityName reports whether name can be used as a bundle directory
// on every supported filesystem.
func ValidateEntityName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty name")
	case !utf8.ValidString(name):
		return fmt.Errorf("name is not valid UTF-8")
	case len(name) > MaxEntityNameLen:
		return fmt.Errorf("name longer than %d bytes", MaxEntityNameLen)
	case name == "." || name == "..":
		return fmt.Errorf("reserved name %q", name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("name %q must not start with a dot", name)
	case strings.TrimSpace(name) != name:
		return fmt.Errorf("name %q has leading or trailing whitespace", name)
	case strings.ContainsAny(name, `/\:*?"<>|`):
		return fmt.Errorf("name %q contains a path separator or reserved character", name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("name %q contains a control character", name)
		}
	}
	return nil
}
