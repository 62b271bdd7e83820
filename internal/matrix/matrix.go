// Package matrix models the declarative verification matrix and expands it
// into concrete job specifications.
package matrix

import (
	"fmt"
	"strings"
	"time"
)

// Axis is a named configuration dimension with an ordered list of values.
type Axis struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Step is one ordered unit of verification inside a job.
type Step struct {
	Name string `json:"name"`
	Run  string `json:"run"`
	// Shell overrides the default shell for this step (e.g. "bash", "sh").
	Shell string `json:"shell,omitempty"`
	// AllowFailure marks the step as non-halting: a failure is recorded in
	// the outcome but does not stop the job or fail it.
	AllowFailure bool              `json:"allow_failure,omitempty"`
	Timeout      time.Duration     `json:"-"`
	TimeoutMS    int64             `json:"timeout_ms,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
}

// AxisValue pins one axis to one of its values.
type AxisValue struct {
	Axis  string `json:"axis"`
	Value string `json:"value"`
}

// Family is a group of jobs expanded from a shared axis set and step list.
// A family with no axes expands to exactly one job.
type Family struct {
	Name  string `json:"name"`
	Axes  []Axis `json:"axes,omitempty"`
	Steps []Step `json:"steps"`
}

// JobSpec is one concrete combination of axis values plus its step sequence.
// Specs are immutable once expanded; identity is the family name plus the
// ordered axis-value tuple.
type JobSpec struct {
	Family string      `json:"family"`
	Axes   []AxisValue `json:"axes,omitempty"`
	Steps  []Step      `json:"steps"`
}

// ID returns the stable identity of the spec, e.g.
// "matrix(platform=linux,features=no_std)".
func (s JobSpec) ID() string {
	if len(s.Axes) == 0 {
		return s.Family
	}
	parts := make([]string, 0, len(s.Axes))
	for _, av := range s.Axes {
		parts = append(parts, fmt.Sprintf("%s=%s", av.Axis, av.Value))
	}
	return fmt.Sprintf("%s(%s)", s.Family, strings.Join(parts, ","))
}

// Value returns the value pinned for the named axis.
func (s JobSpec) Value(axis string) (string, bool) {
	for _, av := range s.Axes {
		if av.Axis == axis {
			return av.Value, true
		}
	}
	return "", false
}

// EnvName returns the environment variable carrying an axis value into step
// commands, e.g. "features" → "MATRIX_FEATURES".
func EnvName(axis string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, axis)
	return "MATRIX_" + mapped
}

// ConfigurationError reports a malformed axis or step declaration. It is
// fatal: no jobs run when expansion fails.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Message
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}
