package specification

import "fmt"

// pretty renders a Formula for diagnostics. It is best-effort: Thunks
// render as "<thunk>" (or "not(<thunk>)") since their body is not yet
// realized.
func pretty(f *Formula) string {
	if f == nil {
		return "<nil>"
	}
	switch f.Kind {
	case FormulaPure:
		return f.Pretty
	case FormulaThunk:
		if f.Negated {
			return "not(<thunk>)"
		}
		return "<thunk>"
	case FormulaAnd:
		return fmt.Sprintf("(%s and %s)", pretty(f.Left), pretty(f.Right))
	case FormulaOr:
		return fmt.Sprintf("(%s or %s)", pretty(f.Left), pretty(f.Right))
	case FormulaImplies:
		return fmt.Sprintf("(%s implies %s)", pretty(f.Left), pretty(f.Right))
	case FormulaNext:
		return fmt.Sprintf("next(%s)", pretty(f.Sub))
	case FormulaAlways:
		return fmt.Sprintf("always(%s)", pretty(f.Sub))
	case FormulaEventually:
		return fmt.Sprintf("eventually(%s)", pretty(f.Sub))
	}
	return "<formula>"
}

// Render renders a Violation into a human-readable explanation, used
// by the runner and CLI when reporting a PropertyViolation.
func Render(v *Violation) string {
	if v == nil {
		return "<no violation>"
	}
	switch v.Kind {
	case ViolationLeaf:
		return fmt.Sprintf("%s was false at %s", v.Condition, v.Time)
	case ViolationAnd:
		return fmt.Sprintf("both %s and %s failed", Render(v.Left), Render(v.Right))
	case ViolationOr:
		return fmt.Sprintf("neither %s nor %s held", Render(v.Left), Render(v.Right))
	case ViolationAlways:
		return fmt.Sprintf("always(...) broke at %s: %s", v.Time, Render(v.Sub))
	case ViolationEventually:
		switch v.EventuallyReason {
		case ReasonTimedOut:
			return fmt.Sprintf("eventually(...) timed out at %s (started %s)", v.Time, v.Start)
		default:
			return fmt.Sprintf("eventually(...) had not happened by the time the test ended (started %s)", v.Start)
		}
	}
	return "<unknown violation>"
}
