package specification

import (
	"path/filepath"
	"regexp"
	"strings"
)

// transpile turns a type-annotated superset of JS into plain JS. Only a
// conservative subset of TypeScript syntax is stripped: parameter and
// return type annotations, `as` casts, and `interface`/`type` alias
// declarations. Anything more structural (generics on expressions,
// enums, decorators) is left to the author to avoid in specification
// modules; goja's own parse error on anything this pass misses still
// surfaces as a normal ParseErrors-style failure rather than silently
// mis-transpiling.
func transpile(path, source string) (string, error) {
	if strings.ToLower(filepath.Ext(path)) != ".ts" {
		return source, nil
	}

	out := source
	out = reInterfaceDecl.ReplaceAllString(out, "")
	out = reTypeAliasDecl.ReplaceAllString(out, "")
	out = reAsCast.ReplaceAllString(out, "")
	out = reParamType.ReplaceAllString(out, "$1$2")
	out = reReturnType.ReplaceAllString(out, "$1 {")
	return out, nil
}

var (
	reInterfaceDecl = regexp.MustCompile(`(?s)interface\s+\w+\s*\{[^}]*\}`)
	reTypeAliasDecl = regexp.MustCompile(`type\s+\w+\s*=\s*[^;]+;`)
	reAsCast        = regexp.MustCompile(`\s+as\s+[A-Za-z_][A-Za-z0-9_<>\[\]., ]*`)
	// `(name: Type)` -> `(name)`, conservatively limited to simple
	// identifier-shaped annotations.
	reParamType = regexp.MustCompile(`(\w+)\s*:\s*[A-Za-z_][A-Za-z0-9_<>\[\]., |]*(\s*[,)])`)
	// `): Type {` -> `) {`
	reReturnType = regexp.MustCompile(`(\))\s*:\s*[A-Za-z_][A-Za-z0-9_<>\[\]., |]*\s*\{`)
)
