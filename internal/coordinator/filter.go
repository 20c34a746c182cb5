package coordinator

import (
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/vmatresu/claimd/internal/backlog"
)

// Filter narrows which ready items a worker is willing to claim. Kind is an
// exact match; Expr is an optional CEL expression evaluated per item.
type Filter struct {
	Kind string
	Expr string
}

// celFilter wraps a compiled CEL program. When disabled, Eval always
// returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("title", cel.StringType),
		cel.Variable("priority", cel.IntType),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
		// Milliseconds since the item was added, for windowed filters
		cel.Variable("age_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against an item. When disabled,
// returns true. Evaluation errors exclude the item rather than failing the
// claim.
func (f celFilter) Eval(it *backlog.Item, nowMs int64) bool {
	if !f.enabled {
		return true
	}
	headers := it.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":       it.ID,
		"kind":     it.Kind,
		"title":    it.Title,
		"priority": int64(it.Priority),
		"headers":  headers,
		"age_ms":   nowMs - it.CreatedAtMs,
		"now_ms":   nowMs,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// matches applies the kind gate then the CEL program.
func (f Filter) matches(cf celFilter, it *backlog.Item, nowMs int64) bool {
	if f.Kind != "" && it.Kind != f.Kind {
		return false
	}
	return cf.Eval(it, nowMs)
}
