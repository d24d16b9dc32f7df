// Source instrumentation (spec §4.1 / C2). The approach: parse with
// goja's JS parser (the same engine that drives the specification VM,
// §4.7) to get a real syntax tree and byte positions, then splice hook
// statements into the original source text at those positions. No
// general-purpose JS codegen library was available in the retrieval
// pack to round-trip a rewritten AST back to text, so rewriting happens
// at the text layer, anchored to parser-verified positions, rather than
// through a print-from-AST pass — see DESIGN.md.
package instrument

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"

	"github.com/hazyhaar/rambler/internal/coverage"
)

// Namespace is the fixed global object coverage hooks read and write.
const Namespace = "__rambler_coverage__"

const preludeTemplate = "window.%s = window.%s || { edges_previous: new Uint8Array(%d), edges_current: new Uint8Array(%d), previous: 0 };\n"

// Kind mirrors spec §4.1's source_kind ∈ {script, module, ambiguous}.
type Kind int

const (
	KindScript Kind = iota
	KindModule
	KindAmbiguous
)

// ParseError wraps a parser.ParseFile failure so callers can tell a
// recoverable instrumentation failure (forward original bytes) from a
// fatal one.
type ParseError struct{ Err error }

func (e *ParseError) Error() string { return "instrument: parse: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// Source instruments source_text, returning the rewritten text with an
// idempotent prelude prepended. On parse failure it returns a
// *ParseError; the caller must fall back to the original bytes
// unchanged, per §4.1's error-handling contract.
func Source(id SourceID, sourceText string, _ Kind) (string, error) {
	prog, err := parser.ParseFile(nil, "", sourceText, 0)
	if err != nil {
		return "", &ParseError{Err: err}
	}

	ins := &instrumenter{source: id}
	for _, s := range prog.Body {
		ins.walkStatement(s)
	}

	out, err := ins.apply(sourceText)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(preludeTemplate, Namespace, Namespace, coverage.Size, coverage.Size) + out, nil
}

type edit struct {
	pos  int
	text string
}

type instrumenter struct {
	source  SourceID
	counter int
	edits   []edit
}

// hookText renders the two-statement coverage hook for the next
// injection site in traversal order. BID is truncated to 32 bits: JS's
// bitwise operators coerce both operands to Int32 regardless, and the
// spec only requires the final edge index (mod 65536) to be stable —
// not that BID itself is the full 64-bit hash.
func (ins *instrumenter) hookText() string {
	bid := uint32(blockID(ins.source, ins.counter))
	ins.counter++
	return fmt.Sprintf(
		"%s.edges_current[(%d ^ %s.previous) %% %d] += 1; %s.previous = %d >> 1; ",
		Namespace, bid, Namespace, coverage.Size, Namespace, bid,
	)
}

func (ins *instrumenter) insert(pos int, text string) {
	ins.edits = append(ins.edits, edit{pos: pos, text: text})
}

func (ins *instrumenter) apply(src string) (string, error) {
	sort.SliceStable(ins.edits, func(i, j int) bool { return ins.edits[i].pos < ins.edits[j].pos })

	var b strings.Builder
	last := 0
	for _, e := range ins.edits {
		if e.pos < last || e.pos > len(src) {
			return "", fmt.Errorf("instrument: edit position out of range")
		}
		b.WriteString(src[last:e.pos])
		b.WriteString(e.text)
		last = e.pos
	}
	b.WriteString(src[last:])
	return b.String(), nil
}

func off(idx file.Idx) int { return int(idx) - 1 }

// insertBranchHook injects the hook just inside a block's opening brace,
// or — when the branch is a single non-block statement — wraps it in a
// synthesized block so the hook still fires before the statement runs.
func (ins *instrumenter) insertBranchHook(s ast.Statement) {
	if s == nil {
		return
	}
	hook := ins.hookText()
	if blk, ok := s.(*ast.BlockStatement); ok {
		ins.insert(off(blk.LeftBrace)+1, hook)
		return
	}
	ins.insert(off(s.Idx0()), "{ "+hook)
	ins.insert(off(s.Idx1()), " }")
}

func (ins *instrumenter) walkStatement(s ast.Statement) {
	switch st := s.(type) {
	case *ast.BlockStatement:
		for _, inner := range st.List {
			ins.walkStatement(inner)
		}
	case *ast.IfStatement:
		ins.walkExpr(st.Test)
		ins.insertBranchHook(st.Consequent)
		if st.Alternate != nil {
			ins.insertBranchHook(st.Alternate)
		} else {
			// Materialize an empty alternate so the false branch is
			// observable, per §4.1.
			ins.insert(off(st.Consequent.Idx1()), " else { "+ins.hookText()+"}")
		}
		ins.walkStatement(st.Consequent)
		if st.Alternate != nil {
			ins.walkStatement(st.Alternate)
		}
	case *ast.ForStatement:
		if st.Test != nil {
			ins.walkExpr(st.Test)
		}
		if st.Update != nil {
			ins.walkExpr(st.Update)
		}
		ins.insertBranchHook(st.Body)
		ins.walkStatement(st.Body)
	case *ast.ForInStatement:
		ins.walkExpr(st.Source)
		ins.insertBranchHook(st.Body)
		ins.walkStatement(st.Body)
	case *ast.ForOfStatement:
		ins.walkExpr(st.Source)
		ins.insertBranchHook(st.Body)
		ins.walkStatement(st.Body)
	case *ast.SwitchStatement:
		ins.walkExpr(st.Discriminant)
		for _, c := range st.Body {
			if len(c.Consequent) == 0 {
				continue // pure fallthrough case: nothing to cover
			}
			ins.insert(off(c.Consequent[0].Idx0()), ins.hookText())
			for _, inner := range c.Consequent {
				ins.walkStatement(inner)
			}
		}
	case *ast.ExpressionStatement:
		ins.walkExpr(st.Expression)
	case *ast.ReturnStatement:
		if st.Argument != nil {
			ins.walkExpr(st.Argument)
		}
	case *ast.VariableStatement:
		for _, decl := range st.List {
			if decl.Initializer != nil {
				ins.walkExpr(decl.Initializer)
			}
		}
	case *ast.LabelledStatement:
		ins.walkStatement(st.Statement)
	case *ast.FunctionDeclaration:
		if st.Function != nil && st.Function.Body != nil {
			ins.walkStatement(st.Function.Body)
		}
	}
}

// walkExpr finds ternaries and nested function bodies anywhere inside an
// expression tree. It does not attempt to cover every expression node
// goja's grammar defines — only the shapes through which a branch
// (ConditionalExpression or a nested function/arrow body) can appear.
func (ins *instrumenter) walkExpr(e ast.Expression) {
	switch ex := e.(type) {
	case *ast.ConditionalExpression:
		ins.walkExpr(ex.Test)
		ins.wrapIIFE(&ex.Consequent)
		ins.wrapIIFE(&ex.Alternate)
		ins.walkExpr(ex.Consequent)
		ins.walkExpr(ex.Alternate)
	case *ast.BinaryExpression:
		ins.walkExpr(ex.Left)
		ins.walkExpr(ex.Right)
	case *ast.AssignExpression:
		ins.walkExpr(ex.Left)
		ins.walkExpr(ex.Right)
	case *ast.SequenceExpression:
		for _, sub := range ex.Sequence {
			ins.walkExpr(sub)
		}
	case *ast.UnaryExpression:
		ins.walkExpr(ex.Operand)
	case *ast.ParenthesizedExpression:
		ins.walkExpr(ex.Expression)
	case *ast.CallExpression:
		ins.walkExpr(ex.Callee)
		for _, a := range ex.ArgumentList {
			ins.walkExpr(a)
		}
	case *ast.NewExpression:
		ins.walkExpr(ex.Callee)
		for _, a := range ex.ArgumentList {
			ins.walkExpr(a)
		}
	case *ast.FunctionLiteral:
		if ex.Body != nil {
			ins.walkStatement(ex.Body)
		}
	case *ast.ArrowFunctionLiteral:
		switch body := ex.Body.(type) {
		case *ast.BlockStatement:
			ins.walkStatement(body)
		case ast.Expression:
			ins.walkExpr(body)
		}
	}
}

// wrapIIFE wraps a ternary branch expression in an immediately-invoked
// arrow function that runs the hook then returns the original
// expression's value, preserving evaluation order and result.
func (ins *instrumenter) wrapIIFE(e *ast.Expression) {
	if e == nil || *e == nil {
		return
	}
	hook := ins.hookText()
	start, end := off((*e).Idx0()), off((*e).Idx1())
	ins.insert(start, "(() => { "+hook+"return (")
	ins.insert(end, "); })()")
}
