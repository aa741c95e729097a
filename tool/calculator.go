package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Calculator evaluates arithmetic expressions: numbers, + - * /, ** or ^ for
// powers, unary signs and parentheses.
type Calculator struct{}

// NewCalculator creates the evaluate_expression tool.
func NewCalculator() *Calculator { return &Calculator{} }

func (c *Calculator) Name() string { return "evaluate_expression" }

func (c *Calculator) Description() string {
	return "Safe calculator: evaluates an arithmetic expression with + - * / and ** (power), parentheses and decimals."
}

func (c *Calculator) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Arithmetic expression, e.g. '(12 + 5) * 3'",
			},
		},
		"required": []string{"expression"},
	}
}

// Call accepts {"expression": "..."} or a bare expression and returns the
// result as a JSON number.
func (c *Calculator) Call(ctx context.Context, input string) (string, error) {
	expr := strings.TrimSpace(input)
	if strings.HasPrefix(expr, "{") {
		var args struct {
			Expression string `json:"expression"`
		}
		if err := json.Unmarshal([]byte(expr), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		expr = args.Expression
	}

	v, err := Evaluate(expr)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}

// Evaluate computes expr.
func Evaluate(expr string) (float64, error) {
	p := &exprParser{src: expr}
	p.next()
	v, err := p.parseExpr()
	if err != nil {
		return 0, fmt.Errorf("invalid expression: %w", err)
	}
	if p.tok.kind != tokEOF {
		return 0, fmt.Errorf("invalid expression: unexpected %q at %d", p.tok.text, p.tok.pos)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("invalid expression: result is not a finite number")
	}
	return v, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokOp
	tokLParen
	tokRParen
	tokBad
)

type token struct {
	kind tokKind
	text string
	num  float64
	pos  int
}

type exprParser struct {
	src string
	pos int
	tok token
}

func (p *exprParser) next() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
	start := p.pos
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: start}
		return
	}

	ch := p.src[p.pos]
	switch {
	case ch == '(':
		p.pos++
		p.tok = token{kind: tokLParen, text: "(", pos: start}
	case ch == ')':
		p.pos++
		p.tok = token{kind: tokRParen, text: ")", pos: start}
	case ch == '*' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '*':
		p.pos += 2
		p.tok = token{kind: tokOp, text: "**", pos: start}
	case strings.IndexByte("+-*/^", ch) >= 0:
		p.pos++
		p.tok = token{kind: tokOp, text: string(ch), pos: start}
	case ch == '.' || (ch >= '0' && ch <= '9'):
		p.scanNumber(start)
	default:
		p.tok = token{kind: tokBad, text: string(ch), pos: start}
	}
}

func (p *exprParser) scanNumber(start int) {
	digits := func() {
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
	}
	digits()
	if p.pos < len(p.src) && p.src[p.pos] == '.' {
		p.pos++
		digits()
	}
	if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
		save := p.pos
		p.pos++
		if p.pos < len(p.src) && (p.src[p.pos] == '+' || p.src[p.pos] == '-') {
			p.pos++
		}
		if p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			digits()
		} else {
			p.pos = save
		}
	}

	text := p.src[start:p.pos]
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.tok = token{kind: tokBad, text: text, pos: start}
		return
	}
	p.tok = token{kind: tokNum, text: text, num: v, pos: start}
}

// expr := term (("+" | "-") term)*
func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

// term := unary (("*" | "/") unary)*
func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/") {
		op := p.tok.text
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if op == "*" {
			left *= right
			continue
		}
		if right == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		left /= right
	}
	return left, nil
}

// unary := ("-" | "+") unary | power
func (p *exprParser) parseUnary() (float64, error) {
	if p.tok.kind == tokOp && (p.tok.text == "-" || p.tok.text == "+") {
		neg := p.tok.text == "-"
		p.next()
		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if neg {
			return -v, nil
		}
		return v, nil
	}
	return p.parsePower()
}

// power := primary (("**" | "^") unary)?
// The exponent binds right, so 2**3**2 is 2**9 and -2**2 is -4.
func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	if p.tok.kind == tokOp && (p.tok.text == "**" || p.tok.text == "^") {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if base == 0 && exp < 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

// primary := number | "(" expr ")"
func (p *exprParser) parsePrimary() (float64, error) {
	switch p.tok.kind {
	case tokNum:
		v := p.tok.num
		p.next()
		return v, nil
	case tokLParen:
		p.next()
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.tok.kind != tokRParen {
			return 0, fmt.Errorf("missing closing parenthesis at %d", p.tok.pos)
		}
		p.next()
		return v, nil
	case tokEOF:
		return 0, fmt.Errorf("unexpected end of expression")
	default:
		return 0, fmt.Errorf("unexpected %q at %d", p.tok.text, p.tok.pos)
	}
}
