package runtime

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/quillflow/quillflow/pkg/domain"
)

// Edge condition evaluation.
//
// Conditions are small boolean expressions over the execution context:
//
//	answers.region == "eu" && exists(known_constraints)
//	!empty(questions_asked) || draft.word_count > 200
//
// Supported: dotted-path identifiers resolved against the context,
// string/number/bool literals, comparison operators (== != < <= > >=),
// boolean operators (&& || !), parentheses, and the built-ins
// exists(path) and empty(path). A missing path resolves to nil; nil
// compares unequal to everything except nil.
//
// Evaluation is pure: the same (expression, context) pair always yields
// the same result, which keeps edge routing deterministic.

// ConditionEvaluator parses and evaluates edge condition expressions.
type ConditionEvaluator struct{}

// NewConditionEvaluator returns a ready evaluator. It keeps no state;
// a single instance is safe for concurrent use.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{}
}

// Evaluate parses expr and evaluates it against snapshot. The empty
// expression is true. Non-boolean results are an error.
func (ce *ConditionEvaluator) Evaluate(expr string, snapshot domain.Context) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	p := &condParser{input: expr, ctx: snapshot}
	v, err := p.parseOr()
	if err != nil {
		return false, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return false, fmt.Errorf("condition %q: unexpected trailing input at offset %d", expr, p.pos)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q: result is %T, want bool", expr, v)
	}
	return b, nil
}

// condParser is a single-pass recursive descent parser that evaluates
// as it parses. Expressions are short, so there is no separate AST.
type condParser struct {
	input string
	pos   int
	ctx   domain.Context
}

func (p *condParser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.consumeOp("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lb, lok := left.(bool)
		rb, rok := right.(bool)
		if !lok || !rok {
			return nil, fmt.Errorf("'||' requires boolean operands")
		}
		left = lb || rb
	}
	return left, nil
}

func (p *condParser) parseAnd() (any, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.consumeOp("&&") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lb, lok := left.(bool)
		rb, rok := right.(bool)
		if !lok || !rok {
			return nil, fmt.Errorf("'&&' requires boolean operands")
		}
		left = lb && rb
	}
	return left, nil
}

func (p *condParser) parseUnary() (any, error) {
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '!' && !p.peekOp("!=") {
		p.pos++
		v, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("'!' requires a boolean operand")
		}
		return !b, nil
	}
	return p.parseComparison()
}

func (p *condParser) parseComparison() (any, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	for _, op := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if p.consumeOp(op) {
			right, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			return compare(op, left, right)
		}
	}
	return left, nil
}

func (p *condParser) parsePrimary() (any, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unexpected end of condition")
	}
	c := p.input[p.pos]
	switch {
	case c == '(':
		p.pos++
		v, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return nil, fmt.Errorf("missing ')' at offset %d", p.pos)
		}
		p.pos++
		return v, nil
	case c == '\'' || c == '"':
		return p.parseString(c)
	case c == '-' || unicode.IsDigit(rune(c)):
		return p.parseNumber()
	default:
		return p.parseIdentifier()
	}
}

func (p *condParser) parseString(quote byte) (any, error) {
	p.pos++
	start := p.pos
	for p.pos < len(p.input) && p.input[p.pos] != quote {
		p.pos++
	}
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unterminated string literal")
	}
	s := p.input[start:p.pos]
	p.pos++
	return s, nil
}

func (p *condParser) parseNumber() (any, error) {
	start := p.pos
	if p.input[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.input) && (unicode.IsDigit(rune(p.input[p.pos])) || p.input[p.pos] == '.') {
		p.pos++
	}
	n, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return n, nil
}

func (p *condParser) parseIdentifier() (any, error) {
	start := p.pos
	for p.pos < len(p.input) && isIdentChar(p.input[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return nil, fmt.Errorf("unexpected character %q at offset %d", p.input[p.pos], p.pos)
	}
	ident := p.input[start:p.pos]

	switch ident {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "nil", "null":
		return nil, nil
	}

	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '(' {
		return p.callBuiltin(ident)
	}

	v, _ := p.ctx.Lookup(ident)
	return normalize(v), nil
}

func (p *condParser) callBuiltin(name string) (any, error) {
	p.pos++ // consume '('
	arg, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != ')' {
		return nil, fmt.Errorf("%s(): missing ')'", name)
	}
	p.pos++

	switch name {
	case "exists":
		return arg != nil, nil
	case "empty":
		switch t := arg.(type) {
		case nil:
			return true, nil
		case string:
			return t == "", nil
		case []any:
			return len(t) == 0, nil
		case map[string]any:
			return len(t) == 0, nil
		default:
			return false, nil
		}
	default:
		return nil, fmt.Errorf("unknown function %q", name)
	}
}

func (p *condParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *condParser) peekOp(op string) bool {
	return strings.HasPrefix(p.input[p.pos:], op)
}

func (p *condParser) consumeOp(op string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.input[p.pos:], op) {
		p.pos += len(op)
		return true
	}
	return false
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '.' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}

// normalize widens integer context values so comparisons against
// number literals (always float64) behave as expected.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

func compare(op string, left, right any) (any, error) {
	left, right = normalize(left), normalize(right)

	switch op {
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	}

	lf, lok := left.(float64)
	rf, rok := right.(float64)
	if lok && rok {
		switch op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}

	ls, lsok := left.(string)
	rs, rsok := right.(string)
	if lsok && rsok {
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}

	return nil, fmt.Errorf("'%s' requires two numbers or two strings, got %T and %T", op, left, right)
}

func looseEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	return left == right
}
