// Package nodefilter prunes rendered structure trees with CEL expressions.
// A filter is evaluated once per node against the node's name, kind, and
// position attributes; matched nodes are kept along with every ancestor so
// the output stays a well-formed subtree of the full document.
package nodefilter

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/j2kxml/j2kxml/pkg/isoxml"
)

// Pool caches compiled CEL filter programs keyed by expression text.
type Pool struct {
	mu       sync.RWMutex
	programs map[string]cel.Program
	env      *cel.Env
	envErr   error
	envOnce  sync.Once
}

// NewPool creates an empty program cache. The CEL environment is built
// lazily on first compile so a pool is cheap to hold when no filter is set.
func NewPool() *Pool {
	return &Pool{programs: make(map[string]cel.Program)}
}

func (p *Pool) environment() (*cel.Env, error) {
	p.envOnce.Do(func() {
		p.env, p.envErr = cel.NewEnv(
			cel.Variable("name", cel.StringType),
			cel.Variable("kind", cel.StringType),
			cel.Variable("code", cel.IntType),
			cel.Variable("offset", cel.IntType),
			cel.Variable("length", cel.IntType),
			cel.Variable("depth", cel.IntType),
		)
	})
	return p.env, p.envErr
}

// Compile retrieves or compiles a filter expression. The expression must
// evaluate to a boolean.
func (p *Pool) Compile(expr string) (cel.Program, error) {
	p.mu.RLock()
	if program, ok := p.programs[expr]; ok {
		p.mu.RUnlock()
		return program, nil
	}
	p.mu.RUnlock()

	env, err := p.environment()
	if err != nil {
		return nil, fmt.Errorf("creating filter environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compiling filter %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q evaluates to %s, want bool", expr, ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("building filter program: %w", err)
	}

	p.mu.Lock()
	p.programs[expr] = program
	p.mu.Unlock()
	return program, nil
}

// Apply returns a pruned copy of root keeping nodes the program matches
// plus their ancestors. The root element itself is always kept.
func Apply(program cel.Program, root *isoxml.Element) (*isoxml.Element, error) {
	out := &isoxml.Element{Name: root.Name, Attrs: root.Attrs, Text: root.Text}
	for _, c := range root.Children {
		kept, err := filterNode(program, c, 1)
		if err != nil {
			return nil, err
		}
		if kept != nil {
			out.Children = append(out.Children, kept)
		}
	}
	return out, nil
}

// filterNode returns nil when neither the node nor any descendant matches.
func filterNode(program cel.Program, e *isoxml.Element, depth int) (*isoxml.Element, error) {
	matched, err := evaluate(program, e, depth)
	if err != nil {
		return nil, err
	}
	var kept []*isoxml.Element
	for _, c := range e.Children {
		k, err := filterNode(program, c, depth+1)
		if err != nil {
			return nil, err
		}
		if k != nil {
			kept = append(kept, k)
		}
	}
	if !matched && kept == nil {
		return nil, nil
	}
	out := &isoxml.Element{Name: e.Name, Attrs: e.Attrs, Text: e.Text}
	if matched {
		// A matched node keeps its full subtree.
		out.Children = e.Children
	} else {
		out.Children = kept
	}
	return out, nil
}

func evaluate(program cel.Program, e *isoxml.Element, depth int) (bool, error) {
	val, _, err := program.Eval(map[string]any{
		"name":   e.Name,
		"kind":   nodeKind(e),
		"code":   nodeCode(e),
		"offset": attrInt(e, "offset"),
		"length": attrInt(e, "length"),
		"depth":  depth,
	})
	if err != nil {
		return false, fmt.Errorf("evaluating filter on %s: %w", e.Name, err)
	}
	b, ok := val.(types.Bool)
	if !ok {
		return false, fmt.Errorf("filter returned %T on %s, want bool", val, e.Name)
	}
	return bool(b), nil
}

// nodeKind classifies an element as "box", "marker", "codestream", or
// "field" from its rendered name.
func nodeKind(e *isoxml.Element) string {
	switch {
	case strings.HasSuffix(e.Name, "Box"):
		return "box"
	case e.Name == "codestream":
		return "codestream"
	case isoxml.IsMarkerElement(e.Name):
		return "marker"
	default:
		return "field"
	}
}

func nodeCode(e *isoxml.Element) int64 {
	v, ok := e.Attr("code")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 16, 64)
	if err != nil {
		return 0
	}
	return n
}

func attrInt(e *isoxml.Element, name string) int64 {
	v, ok := e.Attr(name)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
