package scope

import (
	"fmt"
	"strings"
)

// Mode is the breadth of a scope, from one theme to the whole project.
type Mode string

const (
	ModeFocused  Mode = "theme-focused"
	ModeExpanded Mode = "theme-expanded"
	ModeProject  Mode = "project-wide"
)

// ModeValues returns the enum values for MCP tool definitions.
func ModeValues() []string {
	return []string{string(ModeFocused), string(ModeExpanded), string(ModeProject)}
}

// Rank orders modes by breadth. Unknown modes rank -1.
func (m Mode) Rank() int {
	switch m {
	case ModeFocused:
		return 0
	case ModeExpanded:
		return 1
	case ModeProject:
		return 2
	default:
		return -1
	}
}

// ParseMode normalizes s. The short forms "focused", "expanded" and
// "project" are accepted; empty means theme-focused.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "focused", string(ModeFocused):
		return ModeFocused, nil
	case "expanded", string(ModeExpanded):
		return ModeExpanded, nil
	case "project", string(ModeProject):
		return ModeProject, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of: %s", s, strings.Join(ModeValues(), ", "))
	}
}
