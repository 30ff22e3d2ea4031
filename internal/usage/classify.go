// Package usage classifies the external commands a merged source body
// references as satisfied, ignorable, or failing.
package usage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMissingOrUnresolvedCommand is wrapped by every classification failure.
var ErrMissingOrUnresolvedCommand = errors.New("missing or unresolved command")

// CommandKind tells what kind of command a usage resolved to.
type CommandKind string

const (
	KindFunction CommandKind = "function"
	KindCmdlet   CommandKind = "cmdlet"
	KindAlias    CommandKind = "alias"
	KindUnknown  CommandKind = "unknown"
)

// CommandUsage is one external command referenced by a source body. Module
// is empty when no known module provides the command.
type CommandUsage struct {
	Command string
	Module  string
	Kind    CommandKind
}

// Input holds the name sets the classifier checks usages against.
type Input struct {
	Required        []string
	Approved        []string
	Closure         []string
	IgnoreModules   []string
	IgnoreCommands  []string
	BuiltinModules  []string
	BuiltinCommands []string
	// Force downgrades every failure to a warning.
	Force bool
	// Strict makes remaining failures fail the classification.
	Strict bool
}

// Status is the overall classification verdict.
type Status string

const (
	StatusPass    Status = "pass"
	StatusWarning Status = "warning"
	StatusFail    Status = "fail"
)

// Problem is the reason a CommandError was raised.
type Problem string

const (
	ProblemMissingModule     Problem = "missing-module"
	ProblemUnresolvedCommand Problem = "unresolved-command"
)

// CommandError describes one classification finding.
type CommandError struct {
	Problem  Problem
	Module   string
	Commands []string
}

func (e *CommandError) Error() string {
	switch e.Problem {
	case ProblemMissingModule:
		return fmt.Sprintf("module %q (commands: %s) is used but is not a required, approved or transitive dependency", e.Module, strings.Join(e.Commands, ", "))
	default:
		return fmt.Sprintf("command %q is not defined locally and no known module provides it", strings.Join(e.Commands, ", "))
	}
}

// Unwrap lets errors.Is match ErrMissingOrUnresolvedCommand.
func (e *CommandError) Unwrap() error {
	return ErrMissingOrUnresolvedCommand
}

// Report is the result of Classify.
type Report struct {
	Status Status
	// Failures are findings that fail the classification (Strict only).
	Failures []*CommandError
	// Warnings are findings that were downgraded.
	Warnings []*CommandError
	// Satisfied counts usages resolved by a built-in or allowed module.
	Satisfied int
}

// Err joins all failures, or returns nil when the report did not fail.
func (r Report) Err() error {
	if r.Status != StatusFail {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Classify checks every usage against in and aggregates the findings.
// The output is deterministic: findings are sorted by module, then command.
func Classify(usages []CommandUsage, in Input) Report {
	builtinModules := toSet(in.BuiltinModules)
	allowed := toSet(in.Required, in.Approved, in.Closure)
	ignoreModules := toSet(in.IgnoreModules)
	ignoreCommands := toSet(in.IgnoreCommands)
	builtinCommands := toSet(in.BuiltinCommands)

	var report Report
	byModule := make(map[string]*moduleUse)
	var moduleOrder []string
	unresolved := make(map[string]string)

	for _, u := range usages {
		if u.Module != "" {
			key := strings.ToLower(u.Module)
			if _, ok := builtinModules[key]; ok {
				report.Satisfied++
				continue
			}
			if _, ok := allowed[key]; ok {
				report.Satisfied++
				continue
			}
			m, ok := byModule[key]
			if !ok {
				m = &moduleUse{name: u.Module, commands: make(map[string]string)}
				byModule[key] = m
				moduleOrder = append(moduleOrder, key)
			}
			m.commands[strings.ToLower(u.Command)] = u.Command
			continue
		}

		cmd := strings.TrimSpace(u.Command)
		if strings.HasPrefix(cmd, "$") {
			continue
		}
		if _, ok := builtinCommands[strings.ToLower(cmd)]; ok {
			report.Satisfied++
			continue
		}
		unresolved[strings.ToLower(cmd)] = cmd
	}

	var failures, warnings []*CommandError

	sort.Strings(moduleOrder)
	for _, key := range moduleOrder {
		m := byModule[key]
		finding := &CommandError{Problem: ProblemMissingModule, Module: m.name, Commands: sortedValues(m.commands)}

		_, moduleIgnored := ignoreModules[key]
		if in.Force || moduleIgnored || allIgnored(m.commands, ignoreCommands) {
			warnings = append(warnings, finding)
			continue
		}
		failures = append(failures, finding)
	}

	for _, key := range sortedKeys(unresolved) {
		finding := &CommandError{Problem: ProblemUnresolvedCommand, Commands: []string{unresolved[key]}}
		if _, ok := ignoreCommands[key]; ok || in.Force {
			warnings = append(warnings, finding)
			continue
		}
		failures = append(failures, finding)
	}

	switch {
	case len(failures) > 0 && in.Strict:
		report.Status = StatusFail
		report.Failures = failures
		report.Warnings = warnings
	case len(failures) > 0 || len(warnings) > 0:
		report.Status = StatusWarning
		report.Warnings = append(failures, warnings...)
	default:
		report.Status = StatusPass
	}
	return report
}

type moduleUse struct {
	name     string
	commands map[string]string
}

func allIgnored(commands map[string]string, ignore map[string]struct{}) bool {
	if len(commands) == 0 {
		return false
	}
	for key := range commands {
		if _, ok := ignore[key]; !ok {
			return false
		}
	}
	return true
}

func toSet(lists ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" {
				set[strings.ToLower(s)] = struct{}{}
			}
		}
	}
	return set
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedValues(m map[string]string) []string {
	keys := sortedKeys(m)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}
