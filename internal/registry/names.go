package registry

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Sandbox names follow the manager's own restrictions.
const maxNameLen = 253

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", errors.New("sandbox name is required")
	}
	if len(name) > maxNameLen {
		return "", fmt.Errorf("name %q is too long (max %d characters)", name, maxNameLen)
	}
	for _, r := range name {
		if isAllowedNameRune(r) {
			continue
		}
		return "", fmt.Errorf("name %q contains invalid character %q", name, r)
	}
	return name, nil
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsSpace(r) || unicode.IsControl(r) {
		return false
	}
	switch r {
	case '/', '=':
		return false
	default:
		return true
	}
}
