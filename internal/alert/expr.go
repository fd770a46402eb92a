package alert

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xtxerr/vigil/internal/errors"
)

// Op is a comparison operator in an alert expression.
type Op int

const (
	OpGT Op = iota
	OpLT
	OpGE
	OpLE
	OpEQ
	OpNE
)

// String returns the operator's source form.
func (o Op) String() string {
	switch o {
	case OpGT:
		return ">"
	case OpLT:
		return "<"
	case OpGE:
		return ">="
	case OpLE:
		return "<="
	case OpEQ:
		return "=="
	case OpNE:
		return "!="
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// comparison is a single `metric op threshold` predicate.
type comparison struct {
	metric    string
	op        Op
	threshold float64
}

func (c comparison) eval(value float64) bool {
	switch c.op {
	case OpGT:
		return value > c.threshold
	case OpLT:
		return value < c.threshold
	case OpGE:
		return value >= c.threshold
	case OpLE:
		return value <= c.threshold
	case OpEQ:
		return value == c.threshold
	case OpNE:
		return value != c.threshold
	default:
		return false
	}
}

// Expr is a compiled alert expression in disjunctive normal form:
// an OR across groups, an AND within each group. The grammar is
//
//	expr   = group { "or" group }
//	group  = comp  { "and" comp }
//	comp   = metric op number       op: > < >= <= == !=
//
// which matches left-to-right evaluation with `and` binding tighter
// than `or`. Expressions are compiled once at rule registration and
// evaluated against a value map on every sample.
type Expr struct {
	source  string
	groups  [][]comparison
	metrics []string
}

// Source returns the original expression text.
func (e *Expr) Source() string {
	return e.source
}

// Metrics returns the sorted set of metric names the expression references.
func (e *Expr) Metrics() []string {
	return e.metrics
}

// Eval substitutes values and evaluates the expression. It returns an
// error if any referenced metric is absent from the map; callers decide
// whether absence means "skip" (the evaluator does).
func (e *Expr) Eval(values map[string]float64) (bool, error) {
	for _, group := range e.groups {
		all := true
		for _, c := range group {
			value, ok := values[c.metric]
			if !ok {
				return false, fmt.Errorf("metric %q not present in sample", c.metric)
			}
			if !c.eval(value) {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

// Compile parses an expression into its evaluable form. The text is
// tokenized and parsed in one left-to-right pass; any leftover or
// malformed token fails compilation with ErrInvalidExpression.
func Compile(source string) (*Expr, error) {
	tokens, err := tokenize(source)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, errors.NewInvalidExpression(source, "empty expression")
	}

	p := &parser{source: source, tokens: tokens}
	groups, err := p.parse()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var metrics []string
	for _, group := range groups {
		for _, c := range group {
			if _, ok := seen[c.metric]; !ok {
				seen[c.metric] = struct{}{}
				metrics = append(metrics, c.metric)
			}
		}
	}
	sort.Strings(metrics)

	return &Expr{source: source, groups: groups, metrics: metrics}, nil
}

// =============================================================================
// Tokenizer
// =============================================================================

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokOp
	tokAnd
	tokOr
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(source string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(source) {
		ch := source[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++

		case ch == '>' || ch == '<' || ch == '=' || ch == '!':
			op := string(ch)
			if i+1 < len(source) && source[i+1] == '=' {
				op += "="
				i++
			}
			i++
			if op == "=" || op == "!" {
				return nil, errors.NewInvalidExpression(source, fmt.Sprintf("incomplete operator %q", op))
			}
			tokens = append(tokens, token{kind: tokOp, text: op})

		case ch >= '0' && ch <= '9' || ch == '-' || ch == '+' || ch == '.':
			j := i + 1
			for j < len(source) && (source[j] >= '0' && source[j] <= '9' || source[j] == '.' || source[j] == 'e' || source[j] == 'E' || source[j] == '-' || source[j] == '+') {
				// Sign characters are only valid right after an exponent.
				if (source[j] == '-' || source[j] == '+') && !(source[j-1] == 'e' || source[j-1] == 'E') {
					break
				}
				j++
			}
			tokens = append(tokens, token{kind: tokNumber, text: source[i:j]})
			i = j

		case isIdentStart(ch):
			j := i + 1
			for j < len(source) && isIdentPart(source[j]) {
				j++
			}
			word := source[i:j]
			switch strings.ToLower(word) {
			case "and":
				tokens = append(tokens, token{kind: tokAnd, text: word})
			case "or":
				tokens = append(tokens, token{kind: tokOr, text: word})
			default:
				tokens = append(tokens, token{kind: tokIdent, text: word})
			}
			i = j

		default:
			return nil, errors.NewInvalidExpression(source, fmt.Sprintf("unexpected character %q at position %d", ch, i))
		}
	}
	return tokens, nil
}

func isIdentStart(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || ch >= '0' && ch <= '9' || ch == '.' || ch == ':'
}

// =============================================================================
// Parser
// =============================================================================

type parser struct {
	source string
	tokens []token
	pos    int
}

func (p *parser) parse() ([][]comparison, error) {
	var groups [][]comparison

	group, err := p.parseGroup()
	if err != nil {
		return nil, err
	}
	groups = append(groups, group)

	for p.pos < len(p.tokens) {
		if p.tokens[p.pos].kind != tokOr {
			return nil, errors.NewInvalidExpression(p.source, fmt.Sprintf("expected 'or', got %q", p.tokens[p.pos].text))
		}
		p.pos++
		group, err := p.parseGroup()
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func (p *parser) parseGroup() ([]comparison, error) {
	var group []comparison

	c, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	group = append(group, c)

	for p.pos < len(p.tokens) && p.tokens[p.pos].kind == tokAnd {
		p.pos++
		c, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		group = append(group, c)
	}
	return group, nil
}

func (p *parser) parseComparison() (comparison, error) {
	if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != tokIdent {
		return comparison{}, errors.NewInvalidExpression(p.source, "expected metric name")
	}
	metric := p.tokens[p.pos].text
	p.pos++

	if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != tokOp {
		return comparison{}, errors.NewInvalidExpression(p.source, fmt.Sprintf("expected comparison operator after %q", metric))
	}
	var op Op
	switch p.tokens[p.pos].text {
	case ">":
		op = OpGT
	case "<":
		op = OpLT
	case ">=":
		op = OpGE
	case "<=":
		op = OpLE
	case "==":
		op = OpEQ
	case "!=":
		op = OpNE
	}
	p.pos++

	if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != tokNumber {
		return comparison{}, errors.NewInvalidExpression(p.source, fmt.Sprintf("expected number after %q %s", metric, op))
	}
	threshold, err := strconv.ParseFloat(p.tokens[p.pos].text, 64)
	if err != nil {
		return comparison{}, errors.NewInvalidExpression(p.source, fmt.Sprintf("bad number %q", p.tokens[p.pos].text))
	}
	p.pos++

	return comparison{metric: metric, op: op, threshold: threshold}, nil
}
