package emit

import (
	"fmt"
	"strings"

	"github.com/orizon-lang/ancl/internal/mir"
)

// directive renders one data slot. Both syntaxes share the GAS data
// directives.
func directive(s mir.DataSlot) string {
	switch s.Kind {
	case mir.DataZero:
		return fmt.Sprintf(".zero %d", s.Value)
	case mir.DataByte:
		return fmt.Sprintf(".byte %d", s.Value)
	case mir.DataShort:
		return fmt.Sprintf(".short %d", s.Value)
	case mir.DataLong:
		return fmt.Sprintf(".long %d", s.Value)
	case mir.DataQuad:
		return fmt.Sprintf(".quad %d", s.Value)
	case mir.DataASCII:
		return fmt.Sprintf(".ascii \"%s\"", Escape(s.Bytes))
	case mir.DataASCIZ:
		return fmt.Sprintf(".asciz \"%s\"", Escape(s.Bytes))
	case mir.DataLabel:
		return ".quad " + s.Symbol
	}
	return fmt.Sprintf(".zero %d", s.Value)
}

// Escape quotes s for an .ascii or .asciz directive. Quotes, backslashes,
// newlines and tabs get their C escapes; other bytes outside printable ASCII
// are written as three digit octal escapes.
func Escape(s string) string {
	var b strings.Builder
	for k := 0; k < len(s); k++ {
		c := s[k]
		switch {
		case c == '"':
			b.WriteString(`\"`)
		case c == '\\':
			b.WriteString(`\\`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(&b, "\\%03o", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
