package pulseshape

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Expr is a profile computed from a small arithmetic expression over the
// time variable t (nanoseconds since pulse start, result in volts).
// Supported: + - * /, parentheses, comparisons and the conditional operator,
// e.g. "t < 100 ? 3.3 : t < 200 ? 1.8 : 0".
type Expr struct {
	Source     string
	DurationNS int64

	root *exprNode
}

var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]+)?`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "CmpOp", Pattern: `<=|>=|==|!=|<|>`},
	{Name: "Punct", Pattern: `[-+*/()?:]`},
})

var exprParser = participle.MustBuild[exprNode](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

type exprNode struct {
	Cond *cmpNode  `parser:"@@"`
	Then *exprNode `parser:"( '?' @@"`
	Else *exprNode `parser:"':' @@ )?"`
}

type cmpNode struct {
	Left  *sumNode `parser:"@@"`
	Op    string   `parser:"( @CmpOp"`
	Right *sumNode `parser:"@@ )?"`
}

type sumNode struct {
	Left *termNode  `parser:"@@"`
	Rest []*sumTail `parser:"@@*"`
}

type sumTail struct {
	Op   string    `parser:"@('+' | '-')"`
	Term *termNode `parser:"@@"`
}

type termNode struct {
	Left *unaryNode  `parser:"@@"`
	Rest []*termTail `parser:"@@*"`
}

type termTail struct {
	Op    string     `parser:"@('*' | '/')"`
	Unary *unaryNode `parser:"@@"`
}

type unaryNode struct {
	Neg   *unaryNode   `parser:"'-' @@"`
	Value *primaryNode `parser:"| @@"`
}

type primaryNode struct {
	Number *float64  `parser:"@Number"`
	Var    *string   `parser:"| @Ident"`
	Sub    *exprNode `parser:"| '(' @@ ')'"`
}

// ParseExpr compiles an expression profile. The only free variable is t.
func ParseExpr(source string, durationNS int64) (*Expr, error) {
	if durationNS <= 0 {
		return nil, fmt.Errorf("pulseshape: expression duration %dns must be positive", durationNS)
	}
	root, err := exprParser.ParseString("", source)
	if err != nil {
		return nil, fmt.Errorf("pulseshape: parse %q: %w", source, err)
	}
	if err := root.check(); err != nil {
		return nil, fmt.Errorf("pulseshape: %q: %w", source, err)
	}
	return &Expr{Source: source, DurationNS: durationNS, root: root}, nil
}

func (e *Expr) Kind() string { return "expr" }

func (e *Expr) Duration() int64 { return e.DurationNS }

// At evaluates the expression at time t.
func (e *Expr) At(tNS int64) float64 {
	return e.root.eval(float64(tNS))
}

func (e *Expr) Samples(resolutionNS int64) ([]float64, error) {
	if err := checkResolution(resolutionNS); err != nil {
		return nil, err
	}
	n := int(e.DurationNS / resolutionNS)
	if n > MaxPoints {
		return nil, fmt.Errorf("%w: %d points at %dns", ErrTooLong, n, resolutionNS)
	}
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = e.At(int64(i) * resolutionNS)
		if err := checkVoltage(samples[i]); err != nil {
			return nil, fmt.Errorf("sample %d (t=%dns): %w", i, int64(i)*resolutionNS, err)
		}
	}
	return samples, nil
}

func (n *exprNode) check() error {
	if err := n.Cond.check(); err != nil {
		return err
	}
	if n.Then != nil {
		if err := n.Then.check(); err != nil {
			return err
		}
		if err := n.Else.check(); err != nil {
			return err
		}
	}
	return nil
}

func (n *exprNode) eval(t float64) float64 {
	if n.Then == nil {
		return n.Cond.eval(t)
	}
	if n.Cond.eval(t) != 0 {
		return n.Then.eval(t)
	}
	return n.Else.eval(t)
}

func (n *cmpNode) check() error {
	if err := n.Left.check(); err != nil {
		return err
	}
	if n.Op != "" {
		return n.Right.check()
	}
	return nil
}

func (n *cmpNode) eval(t float64) float64 {
	left := n.Left.eval(t)
	if n.Op == "" {
		return left
	}
	right := n.Right.eval(t)
	var ok bool
	switch n.Op {
	case "<":
		ok = left < right
	case ">":
		ok = left > right
	case "<=":
		ok = left <= right
	case ">=":
		ok = left >= right
	case "==":
		ok = left == right
	case "!=":
		ok = left != right
	}
	if ok {
		return 1
	}
	return 0
}

func (n *sumNode) check() error {
	if err := n.Left.check(); err != nil {
		return err
	}
	for _, tail := range n.Rest {
		if err := tail.Term.check(); err != nil {
			return err
		}
	}
	return nil
}

func (n *sumNode) eval(t float64) float64 {
	v := n.Left.eval(t)
	for _, tail := range n.Rest {
		if tail.Op == "+" {
			v += tail.Term.eval(t)
		} else {
			v -= tail.Term.eval(t)
		}
	}
	return v
}

func (n *termNode) check() error {
	if err := n.Left.check(); err != nil {
		return err
	}
	for _, tail := range n.Rest {
		if err := tail.Unary.check(); err != nil {
			return err
		}
	}
	return nil
}

func (n *termNode) eval(t float64) float64 {
	v := n.Left.eval(t)
	for _, tail := range n.Rest {
		if tail.Op == "*" {
			v *= tail.Unary.eval(t)
		} else {
			v /= tail.Unary.eval(t)
		}
	}
	return v
}

func (n *unaryNode) check() error {
	if n.Neg != nil {
		return n.Neg.check()
	}
	return n.Value.check()
}

func (n *unaryNode) eval(t float64) float64 {
	if n.Neg != nil {
		return -n.Neg.eval(t)
	}
	return n.Value.eval(t)
}

func (n *primaryNode) check() error {
	switch {
	case n.Number != nil:
		return nil
	case n.Var != nil:
		if *n.Var != "t" {
			return fmt.Errorf("unknown variable %q (only t is defined)", *n.Var)
		}
		return nil
	default:
		return n.Sub.check()
	}
}

func (n *primaryNode) eval(t float64) float64 {
	switch {
	case n.Number != nil:
		return *n.Number
	case n.Var != nil:
		return t
	default:
		return n.Sub.eval(t)
	}
}
