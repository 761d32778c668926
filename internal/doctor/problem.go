package doctor

import (
	"context"
	"fmt"
	"strings"
)

// Severity orders problems from informational to catastrophic.
type Severity int

const (
	SeverityAll                Severity = 0
	SeverityAdvice             Severity = 3
	SeverityPotentiallySerious Severity = 4
	SeverityError              Severity = 10
	SeverityMeltdown           Severity = 255
)

func (s Severity) String() string {
	switch s {
	case SeverityAll:
		return "all"
	case SeverityAdvice:
		return "advice"
	case SeverityPotentiallySerious:
		return "potentially-serious"
	case SeverityError:
		return "error"
	case SeverityMeltdown:
		return "meltdown"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity maps a configuration name to a severity.
func ParseSeverity(name string) (Severity, error) {
	switch name {
	case "", "all":
		return SeverityAll, nil
	case "advice":
		return SeverityAdvice, nil
	case "potentially-serious":
		return SeverityPotentiallySerious, nil
	case "error":
		return SeverityError, nil
	case "meltdown":
		return SeverityMeltdown, nil
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// Problem is one detected issue. Implementations are immutable once
// constructed.
type Problem interface {
	Description() string
	Severity() Severity
	// Remediation returns manual-fix instructions, empty when there are
	// none documented.
	Remediation() string
}

// Fixable is implemented by problems doctor can repair itself.
type Fixable interface {
	Problem
	DryRunMessage() string
	StartMessage() string
	// Fix performs the repair and verifies the post-condition before
	// returning nil. It is called at most once per problem instance.
	Fix(ctx context.Context) error
}

// RemediationError reports a fix that was attempted but could not be
// verified.
type RemediationError struct {
	Message string
}

func (e *RemediationError) Error() string {
	return e.Message
}

// BaseProblem covers problems with static text and no fix.
type BaseProblem struct {
	description string
	remediation string
	severity    Severity
}

func NewProblem(description, remediation string, severity Severity) BaseProblem {
	return BaseProblem{description: description, remediation: remediation, severity: severity}
}

func (p BaseProblem) Description() string { return p.description }
func (p BaseProblem) Remediation() string { return p.remediation }
func (p BaseProblem) Severity() Severity  { return p.severity }

// Kind returns a problem's identity for the ignore list: the concrete
// type name without package path or pointer marker.
func Kind(v any) string {
	name := fmt.Sprintf("%T", v)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
