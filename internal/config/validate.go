// This file adds a lightweight linter/validator for Config values. It
// performs static checks over a decoded Config and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block
	// execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be
	// surfaced to users but may not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is a dotted path into
// the config (e.g. "driver", "batch_size"); Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a
// single error where convenient.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// knownDrivers are the engine kinds this binary links in.
var knownDrivers = map[string]struct{}{
	"mysql":    {},
	"postgres": {},
	"mssql":    {},
	"sqlite":   {},
}

// Validate performs static validation of a Config. It does not mutate the
// config; callers decide whether warnings are fatal.
func Validate(c Config) []Issue {
	var issues []Issue

	if strings.TrimSpace(c.Driver) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "driver",
			Message:  "driver must not be empty",
		})
	} else if _, ok := knownDrivers[c.Driver]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "driver",
			Message:  fmt.Sprintf("unknown driver %q; ensure a matching engine is registered", c.Driver),
		})
	}

	// Either a full DSN or enough parts to build one.
	if c.DSN == "" {
		switch c.Driver {
		case "sqlite":
			if c.Database == "" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     "dsn",
					Message:  "sqlite needs dsn or database (a file path)",
				})
			}
		default:
			if c.Host == "" || c.User == "" || c.Password == "" || c.Database == "" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     "dsn",
					Message:  "need either dsn, or host, user, password, and database",
				})
			}
		}
	}

	if c.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "batch_size",
			Message:  "batch_size must not be negative",
		})
	}
	if c.MaxParallelism < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "max_parallelism",
			Message:  "max_parallelism must not be negative",
		})
	}
	if c.MaxVarcharSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "max_varchar_size",
			Message:  "max_varchar_size must not be negative",
		})
	}

	if !c.Metadata() {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "add_record_metadata",
			Message:  "record metadata is disabled; activate-version bookkeeping expects the metadata columns",
		})
	}

	return issues
}
