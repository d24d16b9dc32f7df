// Package specification implements the specification loader (C7) and
// the three-valued LTL monitor (C8): formulas are parsed once into
// negation-normal form, then stepped forward in time as BrowserStates
// arrive, each step producing True, False(violation), or a still-
// undecided Residual carrying enough state to keep stepping.
package specification

import "time"

// FormulaKind tags the syntactic AST node produced by the loader.
type FormulaKind int

const (
	FormulaPure FormulaKind = iota
	FormulaThunk
	FormulaAnd
	FormulaOr
	FormulaImplies
	FormulaNext
	FormulaAlways
	FormulaEventually
)

// Formula is the syntactic AST of §3, already in negation-normal form
// by the time the monitor sees it (pushed there by normalize, called
// from the loader's conversion pass and from Thunk evaluation).
type Formula struct {
	Kind FormulaKind

	// Pure
	PureValue bool
	Pretty    string

	// Thunk: deferred construction of a subformula, with a pending
	// negation to apply once it is finally realized.
	ThunkFn func() (*Formula, error)
	Negated bool

	// And / Or / Implies
	Left  *Formula
	Right *Formula

	// Next / Always / Eventually
	Sub   *Formula
	Bound *time.Duration
}

// ValueKind tags the three-valued lattice.
type ValueKind int

const (
	ValueTrue ValueKind = iota
	ValueFalse
	ValueResidual
)

// Value is the result of evaluating or stepping a Formula.
type Value struct {
	Kind      ValueKind
	Violation *Violation // set when Kind == ValueFalse
	Residual  *Residual  // set when Kind == ValueResidual
}

func valTrue() Value                { return Value{Kind: ValueTrue} }
func valFalse(v *Violation) Value   { return Value{Kind: ValueFalse, Violation: v} }
func valResidual(r *Residual) Value { return Value{Kind: ValueResidual, Residual: r} }

// ViolationKind tags why a formula evaluated to False.
type ViolationKind int

const (
	ViolationLeaf ViolationKind = iota
	ViolationAnd
	ViolationOr
	ViolationAlways
	ViolationEventually
)

// EventuallyReason distinguishes the two ways an Eventually can fail.
type EventuallyReason int

const (
	ReasonTimedOut EventuallyReason = iota
	ReasonTestEnded
)

// Violation carries the evidence for a False verdict.
type Violation struct {
	Kind ViolationKind
	Time time.Duration

	// Leaf
	Condition string

	// And / Or
	Left, Right *Violation

	// Always
	Sub *Violation

	// Eventually
	EventuallyReason EventuallyReason

	// Always / Eventually: the window the bound applied over.
	Start, End time.Duration
}

// ResidualKind tags the shape of a still-undecided node.
type ResidualKind int

const (
	ResidualAnd ResidualKind = iota
	ResidualOr
	ResidualImplies
	ResidualDerived
	ResidualAndAlways
	ResidualOrEventually
)

// DerivedKind distinguishes the three forms of temporal residual.
type DerivedKind int

const (
	DerivedOnce DerivedKind = iota
	DerivedAlways
	DerivedEventually
)

// LeaningKind is the default verdict a Derived node would report if the
// run ended right now, before it is otherwise decided.
type LeaningKind int

const (
	LeaningAssumeTrue LeaningKind = iota
	LeaningAssumeFalse
)

// Leaning pairs the default verdict with its violation payload, when
// the default is False.
type Leaning struct {
	Kind      LeaningKind
	Violation *Violation
}

// Derived holds a temporal node mid-evaluation.
type Derived struct {
	Kind    DerivedKind
	Start   time.Duration
	End     *time.Duration // nil when unbounded
	Sub     *Formula
	Leaning Leaning
}

// Residual is a still-undecided node. Left/Right are plain Values
// rather than a further layer of "decided Residual" variants: a
// concretely decided child is represented directly as Value{Kind:
// ValueTrue} or ValueFalse, which keeps the Go type simpler than a
// nested always-Residual representation without changing observable
// behavior.
type Residual struct {
	Kind ResidualKind

	// And / Or / AndAlways / OrEventually
	Left, Right Value

	// Implies: the original left formula, pretty-printed. Render does not
	// read it; it is carried along with the residual only.
	ImpliesLeftPretty string

	// Derived
	Derived *Derived
}

// evaluate computes the Value of formula at time, structurally.
func evaluate(f *Formula, now time.Duration) (Value, error) {
	switch f.Kind {
	case FormulaPure:
		if f.PureValue {
			return valTrue(), nil
		}
		return valFalse(&Violation{Kind: ViolationLeaf, Time: now, Condition: f.Pretty}), nil

	case FormulaThunk:
		sub, err := f.ThunkFn()
		if err != nil {
			return Value{}, err
		}
		normalized := normalize(sub, f.Negated)
		return evaluate(normalized, now)

	case FormulaAnd:
		l, err := evaluate(f.Left, now)
		if err != nil {
			return Value{}, err
		}
		r, err := evaluate(f.Right, now)
		if err != nil {
			return Value{}, err
		}
		return andCombine(l, r), nil

	case FormulaOr:
		l, err := evaluate(f.Left, now)
		if err != nil {
			return Value{}, err
		}
		r, err := evaluate(f.Right, now)
		if err != nil {
			return Value{}, err
		}
		return orCombine(l, r), nil

	case FormulaImplies:
		l, err := evaluate(f.Left, now)
		if err != nil {
			return Value{}, err
		}
		if l.Kind == ValueFalse {
			return valTrue(), nil
		}
		r, err := evaluate(f.Right, now)
		if err != nil {
			return Value{}, err
		}
		if l.Kind == ValueTrue {
			return r, nil
		}
		return valResidual(&Residual{
			Kind:              ResidualImplies,
			ImpliesLeftPretty: pretty(f.Left),
			Left:              l,
			Right:             r,
		}), nil

	case FormulaNext:
		return valResidual(&Residual{
			Kind: ResidualDerived,
			Derived: &Derived{
				Kind:    DerivedOnce,
				Start:   now,
				Sub:     f.Sub,
				Leaning: Leaning{Kind: LeaningAssumeTrue},
			},
		}), nil

	case FormulaAlways:
		end := endTime(now, f.Bound)
		return evaluateAlways(f.Sub, now, end, now)

	case FormulaEventually:
		end := endTime(now, f.Bound)
		return evaluateEventually(f.Sub, now, end, now)
	}
	return Value{}, nil
}

func endTime(birth time.Duration, bound *time.Duration) *time.Duration {
	if bound == nil {
		return nil
	}
	e := birth + *bound
	return &e
}

// evaluateAlways implements Always's three-way mapping, shared between
// its birth (evaluate) and every subsequent step of its Derived node.
func evaluateAlways(sub *Formula, start time.Duration, end *time.Duration, now time.Duration) (Value, error) {
	v, err := evaluate(sub, now)
	if err != nil {
		return Value{}, err
	}
	derivedSelf := &Derived{Kind: DerivedAlways, Start: start, End: end, Sub: sub, Leaning: Leaning{Kind: LeaningAssumeTrue}}
	switch v.Kind {
	case ValueTrue:
		return valResidual(&Residual{Kind: ResidualDerived, Derived: derivedSelf}), nil
	case ValueFalse:
		violation := &Violation{Kind: ViolationAlways, Time: now, Start: start, Sub: v.Violation}
		if end != nil {
			violation.End = *end
		}
		return valFalse(violation), nil
	default: // ValueResidual
		return valResidual(&Residual{
			Kind:  ResidualAndAlways,
			Left:  v,
			Right: valResidual(&Residual{Kind: ResidualDerived, Derived: derivedSelf}),
		}), nil
	}
}

// evaluateEventually implements Eventually's dual mapping.
func evaluateEventually(sub *Formula, start time.Duration, end *time.Duration, now time.Duration) (Value, error) {
	v, err := evaluate(sub, now)
	if err != nil {
		return Value{}, err
	}
	derivedSelf := &Derived{
		Kind: DerivedEventually, Start: start, End: end, Sub: sub,
		Leaning: Leaning{Kind: LeaningAssumeFalse, Violation: &Violation{Kind: ViolationEventually, Time: now, Start: start, EventuallyReason: ReasonTestEnded}},
	}
	switch v.Kind {
	case ValueTrue:
		return valTrue(), nil
	case ValueFalse:
		return valResidual(&Residual{Kind: ResidualDerived, Derived: derivedSelf}), nil
	default:
		return valResidual(&Residual{
			Kind:  ResidualOrEventually,
			Left:  v,
			Right: valResidual(&Residual{Kind: ResidualDerived, Derived: derivedSelf}),
		}), nil
	}
}

// andCombine is the structural And rule of §4.8: absorptive on True,
// False dominates, two falses accumulate into Violation::And.
func andCombine(l, r Value) Value {
	if l.Kind == ValueFalse && r.Kind == ValueFalse {
		return valFalse(&Violation{Kind: ViolationAnd, Left: l.Violation, Right: r.Violation})
	}
	if l.Kind == ValueTrue {
		return r
	}
	if r.Kind == ValueTrue {
		return l
	}
	if l.Kind == ValueFalse {
		return l
	}
	if r.Kind == ValueFalse {
		return r
	}
	return valResidual(&Residual{Kind: ResidualAnd, Left: l, Right: r})
}

// orCombine is Or's dual: absorptive on False, True dominates, two
// trues need no combined payload (True carries none).
func orCombine(l, r Value) Value {
	if l.Kind == ValueTrue || r.Kind == ValueTrue {
		return valTrue()
	}
	if l.Kind == ValueFalse && r.Kind == ValueFalse {
		return valFalse(&Violation{Kind: ViolationOr, Left: l.Violation, Right: r.Violation})
	}
	if l.Kind == ValueFalse {
		return r
	}
	if r.Kind == ValueFalse {
		return l
	}
	return valResidual(&Residual{Kind: ResidualOr, Left: l, Right: r})
}

// step re-evaluates a residual at a new time.
func step(v Value, now time.Duration) (Value, error) {
	if v.Kind != ValueResidual {
		return v, nil // decided values are stable under step
	}
	return stepResidual(v.Residual, now)
}

func stepResidual(r *Residual, now time.Duration) (Value, error) {
	switch r.Kind {
	case ResidualAnd:
		l, err := step(r.Left, now)
		if err != nil {
			return Value{}, err
		}
		rr, err := step(r.Right, now)
		if err != nil {
			return Value{}, err
		}
		return andCombine(l, rr), nil

	case ResidualOr:
		l, err := step(r.Left, now)
		if err != nil {
			return Value{}, err
		}
		rr, err := step(r.Right, now)
		if err != nil {
			return Value{}, err
		}
		return orCombine(l, rr), nil

	case ResidualImplies:
		l, err := step(r.Left, now)
		if err != nil {
			return Value{}, err
		}
		if l.Kind == ValueFalse {
			return valTrue(), nil
		}
		rr, err := step(r.Right, now)
		if err != nil {
			return Value{}, err
		}
		if l.Kind == ValueTrue {
			return rr, nil
		}
		return valResidual(&Residual{Kind: ResidualImplies, ImpliesLeftPretty: r.ImpliesLeftPretty, Left: l, Right: rr}), nil

	case ResidualDerived:
		return stepDerived(r.Derived, now)

	case ResidualAndAlways:
		l, err := step(r.Left, now)
		if err != nil {
			return Value{}, err
		}
		rr, err := step(r.Right, now)
		if err != nil {
			return Value{}, err
		}
		return andCombine(l, rr), nil

	case ResidualOrEventually:
		l, err := step(r.Left, now)
		if err != nil {
			return Value{}, err
		}
		rr, err := step(r.Right, now)
		if err != nil {
			return Value{}, err
		}
		return orCombine(l, rr), nil
	}
	return Value{}, nil
}

func stepDerived(d *Derived, now time.Duration) (Value, error) {
	switch d.Kind {
	case DerivedOnce:
		return evaluate(d.Sub, now)
	case DerivedAlways:
		if d.End != nil && now > *d.End {
			return valTrue(), nil
		}
		return evaluateAlways(d.Sub, d.Start, d.End, now)
	case DerivedEventually:
		if d.End != nil && now > *d.End {
			return valFalse(&Violation{Kind: ViolationEventually, Time: now, Start: d.Start, End: *d.End, EventuallyReason: ReasonTimedOut}), nil
		}
		return evaluateEventually(d.Sub, d.Start, d.End, now)
	}
	return Value{}, nil
}

// Stop collapses a still-residual property Value to a decided verdict
// at run shutdown, applying each pending temporal node's default
// leaning (Always assumes True, Eventually assumes False) and the
// structural combinator rules. Decided values pass through unchanged.
func Stop(v Value, now time.Duration) Value {
	return stopDefault(v, now)
}

// stopDefault collapses a residual to a decided verdict by applying
// each Derived node's Leaning and the structural combinator rules.
// Required for reporting at shutdown.
func stopDefault(v Value, now time.Duration) Value {
	if v.Kind != ValueResidual {
		return v
	}
	return stopResidual(v.Residual, now)
}

func stopResidual(r *Residual, now time.Duration) Value {
	switch r.Kind {
	case ResidualAnd, ResidualAndAlways:
		return andCombine(stopDefault(r.Left, now), stopDefault(r.Right, now))
	case ResidualOr, ResidualOrEventually:
		return orCombine(stopDefault(r.Left, now), stopDefault(r.Right, now))
	case ResidualImplies:
		l := stopDefault(r.Left, now)
		if l.Kind == ValueFalse {
			return valTrue()
		}
		rr := stopDefault(r.Right, now)
		if l.Kind == ValueTrue {
			return rr
		}
		// Both still nominally residual after stop: fall back to the
		// right side's leaning, since an unresolved implication with a
		// residual left side reports on its consequent.
		return rr
	case ResidualDerived:
		switch r.Derived.Leaning.Kind {
		case LeaningAssumeTrue:
			return valTrue()
		default:
			return valFalse(r.Derived.Leaning.Violation)
		}
	}
	return valTrue()
}

// normalize pushes negation inward to Pure leaves and Thunks, per the
// NNF rewrite rules of §4.7.
func normalize(f *Formula, negate bool) *Formula {
	if !negate {
		return f
	}
	switch f.Kind {
	case FormulaPure:
		return &Formula{Kind: FormulaPure, PureValue: !f.PureValue, Pretty: f.Pretty}
	case FormulaThunk:
		return &Formula{Kind: FormulaThunk, ThunkFn: f.ThunkFn, Negated: !f.Negated}
	case FormulaAnd:
		return &Formula{Kind: FormulaOr, Left: normalize(f.Left, true), Right: normalize(f.Right, true)}
	case FormulaOr:
		return &Formula{Kind: FormulaAnd, Left: normalize(f.Left, true), Right: normalize(f.Right, true)}
	case FormulaImplies:
		// Not(Implies(p, q)) = And(p, Not(q))
		return &Formula{Kind: FormulaAnd, Left: f.Left, Right: normalize(f.Right, true)}
	case FormulaNext:
		return &Formula{Kind: FormulaNext, Sub: normalize(f.Sub, true)}
	case FormulaAlways:
		return &Formula{Kind: FormulaEventually, Sub: normalize(f.Sub, true), Bound: f.Bound}
	case FormulaEventually:
		return &Formula{Kind: FormulaAlways, Sub: normalize(f.Sub, true), Bound: f.Bound}
	}
	return f
}
