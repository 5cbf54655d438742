package irtext

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/ir"
)

type line struct {
	num  int
	toks []Token
}

type cursor struct {
	p    *parser
	line line
	pos  int
}

func (c *cursor) peek() Token {
	if c.pos < len(c.line.toks) {
		return c.line.toks[c.pos]
	}
	return Token{Kind: TokenEOF}
}

func (c *cursor) next() Token {
	t := c.peek()
	if c.pos < len(c.line.toks) {
		c.pos++
	}
	return t
}

func (c *cursor) is(text string) bool {
	t := c.peek()
	return (t.Kind == TokenPunct || t.Kind == TokenIdent) && t.Text == text
}

func (c *cursor) accept(text string) bool {
	if c.is(text) {
		c.pos++
		return true
	}
	return false
}

func (c *cursor) errorf(format string, args ...interface{}) error {
	return c.p.errorf(c.line.num, format, args...)
}

func (c *cursor) expect(text string) error {
	if !c.accept(text) {
		return c.errorf("expected %q, found %s", text, c.peek())
	}
	return nil
}

func (c *cursor) expectKind(kind TokenKind) (Token, error) {
	t := c.next()
	if t.Kind != kind {
		return t, c.errorf("expected %s, found %s", kind, t)
	}
	return t, nil
}

func (c *cursor) done() error {
	if t := c.peek(); t.Kind != TokenEOF {
		return c.errorf("unexpected %s", t)
	}
	return nil
}

type funcBody struct {
	fn    *ir.Function
	lines []line
}

type parser struct {
	file    string
	prog    *ir.Program
	structs map[string]*ir.Type
	globals map[string]ir.Value
	bodies  []funcBody

	// per function
	fn       *ir.Function
	bld      *ir.Builder
	locals   map[string]ir.Value
	blocks   map[string]*ir.BasicBlock
	forwards map[string]*ir.Placeholder
}

func (p *parser) errorf(num int, format string, args ...interface{}) error {
	return errors.Input("IR_SYNTAX", fmt.Sprintf(format, args...), map[string]interface{}{
		"file": p.file,
		"line": num,
	})
}

// parseType reads a type: a base type followed by any number of pointer or
// function suffixes.
func (c *cursor) parseType() (*ir.Type, error) {
	t, err := c.parseBaseType()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case c.accept("*"):
			t = ir.PointerTo(t)
		case c.is("("):
			c.next()
			params, variadic, err := c.parseTypeList(")")
			if err != nil {
				return nil, err
			}
			t = ir.FunctionOf(t, params, variadic)
		default:
			return t, nil
		}
	}
}

func (c *cursor) parseTypeList(end string) ([]*ir.Type, bool, error) {
	var types []*ir.Type
	for !c.accept(end) {
		if len(types) > 0 {
			if err := c.expect(","); err != nil {
				return nil, false, err
			}
		}
		if c.accept("...") {
			return types, true, c.expect(end)
		}
		t, err := c.parseType()
		if err != nil {
			return nil, false, err
		}
		types = append(types, t)
	}
	return types, false, nil
}

func (c *cursor) parseBaseType() (*ir.Type, error) {
	t := c.next()
	switch t.Kind {
	case TokenIdent:
		switch t.Text {
		case "void":
			return ir.VoidType(), nil
		case "label":
			return ir.LabelType(), nil
		case "float":
			return ir.FloatType(ir.Float), nil
		case "double":
			return ir.FloatType(ir.Double), nil
		case "longdouble":
			return ir.FloatType(ir.LongDouble), nil
		}
		if strings.HasPrefix(t.Text, "i") {
			if bits, err := strconv.Atoi(t.Text[1:]); err == nil && bits > 0 {
				return ir.IntType(bits), nil
			}
		}
	case TokenLocal:
		if s, ok := c.p.structs[t.Text]; ok {
			return s, nil
		}
		return nil, c.errorf("unknown struct type %%%s", t.Text)
	case TokenPunct:
		switch t.Text {
		case "[":
			n, err := c.expectKind(TokenNumber)
			if err != nil {
				return nil, err
			}
			count, err := strconv.ParseInt(n.Text, 10, 64)
			if err != nil {
				return nil, c.errorf("bad array length %s", n.Text)
			}
			if err := c.expect("x"); err != nil {
				return nil, err
			}
			elem, err := c.parseType()
			if err != nil {
				return nil, err
			}
			return ir.ArrayOf(elem, count), c.expect("]")
		case "{":
			fields, _, err := c.parseTypeList("}")
			if err != nil {
				return nil, err
			}
			return ir.StructOf("", fields...), nil
		}
	}
	return nil, c.errorf("expected type, found %s", t)
}

// parseConstant converts a literal token into a constant of type t.
func (c *cursor) parseConstant(t *ir.Type, tok Token) (ir.Value, error) {
	if t.IsFloat() {
		v, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, c.errorf("bad float literal %s", tok.Text)
		}
		return ir.ConstFloat(t, v), nil
	}
	if !t.IsInt() && !t.IsPointer() {
		return nil, c.errorf("literal %s cannot have type %s", tok.Text, t)
	}
	if v, err := strconv.ParseInt(tok.Text, 10, 64); err == nil {
		return ir.ConstInt(t, v), nil
	}
	if v, err := strconv.ParseUint(tok.Text, 10, 64); err == nil {
		return ir.ConstUint(t, v), nil
	}
	return nil, c.errorf("bad integer literal %s", tok.Text)
}

// parseValue reads an untyped operand whose type is already known.
func (c *cursor) parseValue(t *ir.Type) (ir.Value, error) {
	tok := c.next()
	switch tok.Kind {
	case TokenNumber:
		return c.parseConstant(t, tok)
	case TokenIdent:
		if tok.Text == "NaN" && t.IsFloat() {
			return ir.ConstFloat(t, math.NaN()), nil
		}
	case TokenGlobal:
		if v, ok := c.p.globals[tok.Text]; ok {
			return v, nil
		}
		return nil, c.errorf("undefined global @%s", tok.Text)
	case TokenLocal:
		if c.p.locals == nil {
			break
		}
		if v, ok := c.p.locals[tok.Text]; ok {
			return v, nil
		}
		if ph, ok := c.p.forwards[tok.Text]; ok {
			return ph, nil
		}
		ph := ir.NewPlaceholder(t, tok.Text)
		c.p.forwards[tok.Text] = ph
		return ph, nil
	}
	return nil, c.errorf("expected value, found %s", tok)
}

func (c *cursor) parseTypedValue() (ir.Value, error) {
	t, err := c.parseType()
	if err != nil {
		return nil, err
	}
	return c.parseValue(t)
}

func (c *cursor) parseBlockRef() (*ir.BasicBlock, error) {
	if err := c.expect("label"); err != nil {
		return nil, err
	}
	tok, err := c.expectKind(TokenLocal)
	if err != nil {
		return nil, err
	}
	b, ok := c.p.blocks[tok.Text]
	if !ok {
		return nil, c.errorf("undefined block %%%s", tok.Text)
	}
	return b, nil
}

func (c *cursor) parseInt() (int64, error) {
	tok, err := c.expectKind(TokenNumber)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(tok.Text, 10, 64)
	if err != nil {
		return 0, c.errorf("bad integer %s", tok.Text)
	}
	return v, nil
}

// parseLinkage consumes the optional internal keyword.
func (c *cursor) parseLinkage() ir.Linkage {
	if c.accept("internal") {
		return ir.InternalLinkage
	}
	return ir.ExternalLinkage
}

// parseStruct reads "%S = type { ... }". The named type was registered
// earlier so that fields may refer to any struct.
func (c *cursor) parseStruct() error {
	name := c.next().Text
	if err := c.expect("="); err != nil {
		return err
	}
	if err := c.expect("type"); err != nil {
		return err
	}
	if err := c.expect("{"); err != nil {
		return err
	}
	fields, _, err := c.parseTypeList("}")
	if err != nil {
		return err
	}
	c.p.structs[name].Fields = fields
	return c.done()
}

func (c *cursor) parseGlobalDecl() (*ir.GlobalVariable, error) {
	name := c.next().Text
	if err := c.expect("="); err != nil {
		return nil, err
	}
	linkage := c.parseLinkage()
	isConst := false
	switch {
	case c.accept("constant"):
		isConst = true
	case c.accept("global"):
	default:
		return nil, c.errorf("expected global or constant, found %s", c.peek())
	}
	if _, dup := c.p.globals[name]; dup {
		return nil, c.errorf("redefinition of @%s", name)
	}
	t, err := c.parseType()
	if err != nil {
		return nil, err
	}
	g := c.p.prog.NewGlobal(name, t, linkage, isConst)
	c.p.globals[name] = g
	return g, nil
}

// parseGlobalInit reads the initializer left on the cursor after
// parseGlobalDecl.
func (c *cursor) parseGlobalInit(g *ir.GlobalVariable) error {
	tok := c.peek()
	switch {
	case tok.Kind == TokenEOF:
		return nil
	case tok.Kind == TokenString:
		c.next()
		g.SetStringInit(tok.Text)
	case tok.Kind == TokenGlobal:
		c.next()
		ref, ok := c.p.globals[tok.Text].(*ir.GlobalVariable)
		if !ok {
			return c.errorf("initializer @%s is not a global variable", tok.Text)
		}
		g.SetGlobalInit(ref)
	case c.accept("["):
		var vals []ir.Value
		for !c.accept("]") {
			if len(vals) > 0 {
				if err := c.expect(","); err != nil {
					return err
				}
			}
			v, err := c.parseTypedValue()
			if err != nil {
				return err
			}
			vals = append(vals, v)
		}
		g.SetListInit(vals...)
	default:
		v, err := c.parseValue(g.ValueType)
		if err != nil {
			return err
		}
		g.SetScalarInit(v)
	}
	return c.done()
}

// parseFunctionHeader reads a define or declare line and creates the
// function. It reports whether a body follows.
func (c *cursor) parseFunctionHeader() (*ir.Function, bool, error) {
	define := c.next().Text == "define"
	linkage := c.parseLinkage()
	inline := c.accept("inline")
	ret, err := c.parseType()
	if err != nil {
		return nil, false, err
	}
	nameTok, err := c.expectKind(TokenGlobal)
	if err != nil {
		return nil, false, err
	}
	if _, dup := c.p.globals[nameTok.Text]; dup {
		return nil, false, c.errorf("redefinition of @%s", nameTok.Text)
	}
	if err := c.expect("("); err != nil {
		return nil, false, err
	}
	var params []*ir.Type
	var names []string
	variadic := false
	for !c.accept(")") {
		if len(params) > 0 || variadic {
			if err := c.expect(","); err != nil {
				return nil, false, err
			}
		}
		if c.accept("...") {
			variadic = true
			continue
		}
		t, err := c.parseType()
		if err != nil {
			return nil, false, err
		}
		params = append(params, t)
		name := ""
		if c.peek().Kind == TokenLocal {
			name = c.next().Text
		}
		names = append(names, name)
	}
	if define {
		if err := c.expect("{"); err != nil {
			return nil, false, err
		}
	}
	if err := c.done(); err != nil {
		return nil, false, err
	}
	fn := c.p.prog.NewFunction(nameTok.Text, ir.FunctionOf(ret, params, variadic), linkage, names...)
	fn.Inline = inline
	c.p.globals[nameTok.Text] = fn
	return fn, define, nil
}
