// Package irtext reads the textual IR dump printed by ir.Program.String back
// into a program. A dump may start with a "; ancl-ir <version>" header; the
// version must satisfy SupportedVersions.
package irtext

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/ir"
)

const (
	// Version is the format version written by Format.
	Version = "1.0.0"
	// SupportedVersions is the constraint a header must satisfy.
	SupportedVersions = "^1.0.0"

	headerPrefix = "ancl-ir"
)

var supported = mustConstraint(SupportedVersions)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Format renders p with a version header.
func Format(p *ir.Program) string {
	return fmt.Sprintf("; %s %s\n\n%s", headerPrefix, Version, p)
}

// CheckVersion validates a header version against SupportedVersions.
func CheckVersion(v string) error {
	sv, err := semver.NewVersion(v)
	if err != nil {
		return errors.Input("BAD_IR_VERSION", fmt.Sprintf("invalid IR version %q", v), map[string]interface{}{"version": v})
	}
	if !supported.Check(sv) {
		return errors.Input("UNSUPPORTED_IR_VERSION",
			fmt.Sprintf("IR version %s does not satisfy %s", sv, SupportedVersions),
			map[string]interface{}{"version": v})
	}
	return nil
}

// ParseString parses src. The file name only appears in diagnostics.
func ParseString(file, src string) (*ir.Program, error) {
	return Parse(file, strings.NewReader(src))
}

// ParseBytes parses src. The file name only appears in diagnostics.
func ParseBytes(file string, src []byte) (*ir.Program, error) {
	return Parse(file, bytes.NewReader(src))
}

// Parse reads one program from r. Every defined function is verified before
// it is returned.
func Parse(file string, r io.Reader) (*ir.Program, error) {
	p := &parser{
		file:    file,
		prog:    ir.NewProgram(),
		structs: make(map[string]*ir.Type),
		globals: make(map[string]ir.Value),
	}

	lines, err := p.scan(r)
	if err != nil {
		return nil, err
	}

	// Named structs first so that any type may refer to them.
	for _, l := range lines {
		if isStructLine(l) {
			name := l.toks[0].Text
			if _, dup := p.structs[name]; dup {
				return nil, p.errorf(l.num, "redefinition of type %%%s", name)
			}
			p.structs[name] = p.prog.AddStruct(ir.StructOf(name))
		}
	}

	type pendingInit struct {
		g *ir.GlobalVariable
		c *cursor
	}
	var inits []pendingInit
	var fn *ir.Function
	var body []line
	for _, l := range lines {
		c := &cursor{p: p, line: l}
		if fn != nil {
			if len(l.toks) == 1 && l.toks[0].Text == "}" {
				p.bodies = append(p.bodies, funcBody{fn: fn, lines: body})
				fn, body = nil, nil
				continue
			}
			body = append(body, l)
			continue
		}
		first := l.toks[0]
		switch {
		case isStructLine(l):
			if err := c.parseStruct(); err != nil {
				return nil, err
			}
		case first.Kind == TokenGlobal:
			g, err := c.parseGlobalDecl()
			if err != nil {
				return nil, err
			}
			inits = append(inits, pendingInit{g: g, c: c})
		case first.Kind == TokenIdent && (first.Text == "define" || first.Text == "declare"):
			f, hasBody, err := c.parseFunctionHeader()
			if err != nil {
				return nil, err
			}
			if hasBody {
				fn = f
			}
		default:
			return nil, p.errorf(l.num, "unexpected %s at top level", first)
		}
	}
	if fn != nil {
		return nil, p.errorf(lines[len(lines)-1].num, "unterminated body of @%s", fn.Name())
	}

	for _, pi := range inits {
		if err := pi.c.parseGlobalInit(pi.g); err != nil {
			return nil, err
		}
	}
	for _, b := range p.bodies {
		if len(b.lines) == 0 {
			return nil, errors.Input("EMPTY_BODY", "function @"+b.fn.Name()+" has an empty body",
				map[string]interface{}{"file": file})
		}
		if err := p.parseBody(b.fn, b.lines); err != nil {
			return nil, err
		}
		if err := ir.Verify(b.fn); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}
	return p.prog, nil
}

func isStructLine(l line) bool {
	return len(l.toks) >= 3 && l.toks[0].Kind == TokenLocal &&
		l.toks[1].Text == "=" && l.toks[2].Kind == TokenIdent && l.toks[2].Text == "type"
}

// scan tokenizes every non-blank line and checks the version header.
func (p *parser) scan(r io.Reader) ([]line, error) {
	var lines []line
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	num := 0
	for sc.Scan() {
		num++
		text := sc.Text()
		trimmed := strings.TrimSpace(text)
		if strings.HasPrefix(trimmed, ";") {
			fields := strings.Fields(strings.TrimPrefix(trimmed, ";"))
			if len(fields) == 2 && fields[0] == headerPrefix {
				if len(lines) > 0 {
					return nil, p.errorf(num, "version header must precede all declarations")
				}
				if err := CheckVersion(fields[1]); err != nil {
					return nil, err
				}
			}
			continue
		}
		toks, err := scanLine(text)
		if err != nil {
			return nil, p.errorf(num, "%v", err)
		}
		if len(toks) == 0 {
			continue
		}
		lines = append(lines, line{num: num, toks: toks})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.IO(p.file, err)
	}
	return lines, nil
}
