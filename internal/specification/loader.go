package specification

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// librarySource is the in-memory "rambler:formula" module every
// specification can import. It defines the Formula combinators as
// tagged plain objects (rather than ES classes) so the structural
// check the loader performs (reading __formula) stays a single
// property read instead of a full prototype-chain instanceof walk.
const librarySource = `
function pure(value, pretty) { return { __formula: 'pure', value: !!value, pretty: String(pretty) }; }
function thunk(fn) { return { __formula: 'thunk', fn: fn, negated: false }; }
function and(l, r) { return { __formula: 'and', left: l, right: r }; }
function or(l, r) { return { __formula: 'or', left: l, right: r }; }
function implies(l, r) { return { __formula: 'implies', left: l, right: r }; }
function next(f) { return { __formula: 'next', sub: f }; }
function always(f, boundMillis) { return { __formula: 'always', sub: f, bound: boundMillis }; }
function eventually(f, boundMillis) { return { __formula: 'eventually', sub: f, bound: boundMillis }; }

var __extractors = [];
function extract(fn) {
  var id = __extractors.length + 1;
  var current;
  function update(value, time) { current = value; }
  function get() { return current; }
  __extractors.push({ id: id, fn: fn, update: update });
  return { id: id, get: get, update: update };
}

module.exports = { pure: pure, thunk: thunk, and: and, or: or, implies: implies, next: next, always: always, eventually: eventually, extract: extract, __extractors: __extractors };
`

// Extractor is a registered (id, extractor function) pair, recorded at
// module load time, evaluated later inside the paused browser. update
// feeds the extractor's latest JSON-decoded result back into the VM so
// the Formula Thunks that reference it observe the fresh value on the
// next evaluate/step call.
type Extractor struct {
	ID         int64
	SourceCode string
	update     goja.Callable
}

// Loaded is the result of loading a specification module: every
// exported Formula-shaped binding, converted to the monitor's AST, plus
// every extractor the module registered as a side effect of loading.
// The runtime is kept alive for the worker goroutine's lifetime: goja
// Runtimes are not safe for concurrent or cross-goroutine use, so every
// call that touches Thunks or extractor updates must happen on the
// same goroutine that created it (the Worker's, per §5).
type Loaded struct {
	Formulas   map[string]*Formula
	Extractors []Extractor
	runtime    *goja.Runtime
}

// Load loads the specification module at path (a .ts/.js file per
// spec's `test <origin> [spec.ts]` CLI argument), resolving user
// imports from the filesystem and the library from the in-memory
// source above. Non-JS sources are expected to already be valid
// ECMAScript by the time they reach RunProgram — transpile.go handles
// the annotated-superset case the loader contract names.
func Load(path string) (*Loaded, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("specification: read %s: %w", path, err)
	}
	text, err := transpile(path, string(source))
	if err != nil {
		return nil, fmt.Errorf("specification: transpile %s: %w", path, err)
	}
	return loadSource(path, filepath.Dir(path), text)
}

// LoadDefaults loads the bundled default specification (defaults.go),
// the four ad-hoc page-health checks the driver always runs even
// without a user-supplied spec.ts.
func LoadDefaults() (*Loaded, error) {
	return loadSource("<defaults>", ".", defaultSpecSource)
}

func loadSource(path, importDir, text string) (*Loaded, error) {
	runtime := goja.New()

	var libraryExports *goja.Object
	registry := require.NewRegistry(require.WithGlobalFolders(importDir))
	registry.RegisterNativeModule("rambler:formula", func(rt *goja.Runtime, module *goja.Object) {
		libModule := rt.NewObject()
		module.Set("exports", libModule)
		prior := rt.Get("module")
		rt.Set("module", libModule)
		if _, err := rt.RunString(librarySource); err != nil {
			panic(err)
		}
		if prior != nil {
			rt.Set("module", prior)
		}
		libraryExports = libModule.Get("exports").ToObject(rt)
		module.Set("exports", libraryExports)
	})
	registry.Enable(runtime)

	program, err := goja.Compile(path, text, false)
	if err != nil {
		return nil, fmt.Errorf("specification: compile %s: %w", path, err)
	}

	moduleExports := runtime.NewObject()
	moduleObj := runtime.NewObject()
	moduleObj.Set("exports", moduleExports)
	runtime.Set("module", moduleObj)
	runtime.Set("exports", moduleExports)

	if _, err := runtime.RunProgram(program); err != nil {
		return nil, fmt.Errorf("specification: run %s: %w", path, err)
	}

	exportsObj := moduleObj.Get("exports").ToObject(runtime)

	loaded := &Loaded{Formulas: map[string]*Formula{}, runtime: runtime}
	for _, key := range exportsObj.Keys() {
		val := exportsObj.Get(key)
		if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
			continue
		}
		obj := val.ToObject(runtime)
		if obj == nil {
			continue
		}
		if tag := obj.Get("__formula"); tag != nil && !goja.IsUndefined(tag) {
			f, err := convert(runtime, obj)
			if err != nil {
				return nil, fmt.Errorf("specification: converting export %q: %w", key, err)
			}
			loaded.Formulas[key] = normalize(f, false)
		}
	}

	if libraryExports != nil {
		if extractorsVal := libraryExports.Get("__extractors"); extractorsVal != nil && !goja.IsUndefined(extractorsVal) {
			arr := extractorsVal.ToObject(runtime)
			length := int64(arr.Get("length").ToInteger())
			for i := int64(0); i < length; i++ {
				entry := arr.Get(fmt.Sprint(i)).ToObject(runtime)
				updateFn, _ := goja.AssertFunction(entry.Get("update"))
				loaded.Extractors = append(loaded.Extractors, Extractor{
					ID:         entry.Get("id").ToInteger(),
					SourceCode: entry.Get("fn").String(),
					update:     updateFn,
				})
			}
		}
	}

	return loaded, nil
}

// convert turns a tagged plain-object formula node into the monitor's
// syntactic Formula AST.
func convert(runtime *goja.Runtime, obj *goja.Object) (*Formula, error) {
	kind := obj.Get("__formula").String()
	switch kind {
	case "pure":
		return &Formula{Kind: FormulaPure, PureValue: obj.Get("value").ToBoolean(), Pretty: obj.Get("pretty").String()}, nil
	case "thunk":
		fn, ok := goja.AssertFunction(obj.Get("fn"))
		if !ok {
			return nil, fmt.Errorf("thunk without a callable fn")
		}
		return &Formula{Kind: FormulaThunk, ThunkFn: func() (*Formula, error) {
			res, err := fn(goja.Undefined())
			if err != nil {
				return nil, err
			}
			return convert(runtime, res.ToObject(runtime))
		}}, nil
	case "and", "or", "implies":
		left, err := convert(runtime, obj.Get("left").ToObject(runtime))
		if err != nil {
			return nil, err
		}
		right, err := convert(runtime, obj.Get("right").ToObject(runtime))
		if err != nil {
			return nil, err
		}
		fk := map[string]FormulaKind{"and": FormulaAnd, "or": FormulaOr, "implies": FormulaImplies}[kind]
		return &Formula{Kind: fk, Left: left, Right: right}, nil
	case "next":
		sub, err := convert(runtime, obj.Get("sub").ToObject(runtime))
		if err != nil {
			return nil, err
		}
		return &Formula{Kind: FormulaNext, Sub: sub}, nil
	case "always", "eventually":
		sub, err := convert(runtime, obj.Get("sub").ToObject(runtime))
		if err != nil {
			return nil, err
		}
		fk := FormulaAlways
		if kind == "eventually" {
			fk = FormulaEventually
		}
		f := &Formula{Kind: fk, Sub: sub}
		if b := obj.Get("bound"); b != nil && !goja.IsUndefined(b) && !goja.IsNull(b) {
			d := time.Duration(b.ToInteger()) * time.Millisecond
			f.Bound = &d
		}
		return f, nil
	}
	return nil, fmt.Errorf("unrecognized formula node %q", kind)
}
