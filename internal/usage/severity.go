package usage

import (
	"fmt"
	"strings"
)

// Severity is the policy applied to one validation check.
type Severity string

const (
	SeverityOff     Severity = "off"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ParseSeverity accepts off, warning (or warn) and error, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "":
		return SeverityOff, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	}
	return "", fmt.Errorf("unknown severity %q: must be 'off', 'warning' or 'error'", s)
}

// Effective applies the global force override: a forced run never fails a
// check, it only warns.
func (s Severity) Effective(force bool) Severity {
	if force && s == SeverityError {
		return SeverityWarning
	}
	return s
}

// Enabled reports whether the check runs at all.
func (s Severity) Enabled() bool {
	return s == SeverityWarning || s == SeverityError
}
