package doctor

import (
	"context"
	"fmt"

	"github.com/vireofs/vireo/internal/output"
	"github.com/vireofs/vireo/internal/style"
)

// Tracker receives detected problems. Checks report through it and never
// decide themselves whether a fix runs.
type Tracker interface {
	AddProblem(ctx context.Context, p Problem)
}

// ProblemFixer reports problems to the user and applies fixes, keeping
// count of the outcomes. The counters always satisfy
// NumFixed + NumFailedFixes + NumManualFixes + NumNoFixes +
// NumAdvisoryFixes == NumProblems.
type ProblemFixer struct {
	out    *output.Printer
	styles *style.Renderer

	dryRun      bool
	minSeverity Severity
	ignored     map[string]bool

	NumProblems      int
	NumFixed         int
	NumFailedFixes   int
	NumManualFixes   int
	NumNoFixes       int
	NumAdvisoryFixes int

	// ProblemKinds holds the kind of every counted problem;
	// IgnoredKinds the kinds dropped by the ignore list.
	ProblemKinds []string
	IgnoredKinds []string
}

// FixerOptions filter which problems a fixer acts on.
type FixerOptions struct {
	MinSeverity  Severity
	IgnoredKinds []string
}

// NewFixer returns a fixer that applies fixes.
func NewFixer(out *output.Printer, styles *style.Renderer, opts FixerOptions) *ProblemFixer {
	ignored := make(map[string]bool, len(opts.IgnoredKinds))
	for _, k := range opts.IgnoredKinds {
		ignored[k] = true
	}
	return &ProblemFixer{
		out:         out,
		styles:      styles,
		minSeverity: opts.MinSeverity,
		ignored:     ignored,
	}
}

// NewDryRunFixer returns a fixer that reports what it would fix without
// changing anything.
func NewDryRunFixer(out *output.Printer, styles *style.Renderer, opts FixerOptions) *ProblemFixer {
	f := NewFixer(out, styles, opts)
	f.dryRun = true
	return f
}

// DryRun reports whether this fixer applies fixes.
func (f *ProblemFixer) DryRun() bool {
	return f.dryRun
}

// AddProblem reports p and, for fixable problems on a live run, applies
// and verifies its fix. Fix errors are reported and counted, never
// returned.
func (f *ProblemFixer) AddProblem(ctx context.Context, p Problem) {
	kind := Kind(p)
	if p.Severity() < f.minSeverity {
		return
	}
	if f.ignored[kind] {
		f.IgnoredKinds = append(f.IgnoredKinds, kind)
		return
	}

	f.NumProblems++
	f.ProblemKinds = append(f.ProblemKinds, kind)
	f.out.Println(f.styles.Warning("- Found problem:"))
	f.out.Println(p.Description())

	fixable, ok := p.(Fixable)
	if !ok {
		switch {
		case p.Remediation() == "":
			f.NumNoFixes++
			f.out.Println("This problem has no documented fix; please report it.")
		case p.Severity() == SeverityAdvice:
			f.NumAdvisoryFixes++
			f.out.Println(p.Remediation())
		default:
			f.NumManualFixes++
			f.out.Println(p.Remediation())
		}
		return
	}

	if f.dryRun {
		f.out.Println(fixable.DryRunMessage())
		return
	}

	f.out.Printf("%s...", fixable.StartMessage())
	if err := fixable.Fix(ctx); err != nil {
		f.out.Println(f.styles.Error("error"))
		f.NumFailedFixes++
		f.out.Println(fmt.Sprintf("Failed to fix or verify fix for problem %s: %s: %s", kind, Kind(err), err.Error()))
		return
	}
	f.out.Println(f.styles.Success("fixed"))
	if p.Severity() == SeverityAdvice {
		f.NumAdvisoryFixes++
	} else {
		f.NumFixed++
	}
}
