package irtext

import (
	"fmt"
	"strconv"
	"strings"
)

// TokenKind classifies a lexical token of the textual IR.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenIdent
	TokenLocal
	TokenGlobal
	TokenNumber
	TokenString
	TokenPunct
)

func (k TokenKind) String() string {
	switch k {
	case TokenEOF:
		return "end of line"
	case TokenIdent:
		return "identifier"
	case TokenLocal:
		return "local name"
	case TokenGlobal:
		return "global name"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenPunct:
		return "punctuation"
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Token is one lexeme. For locals and globals Text excludes the sigil; for
// strings it holds the unquoted contents.
type Token struct {
	Kind TokenKind
	Text string
	Col  int
}

func (t Token) String() string {
	switch t.Kind {
	case TokenEOF:
		return "end of line"
	case TokenLocal:
		return "%" + t.Text
	case TokenGlobal:
		return "@" + t.Text
	case TokenString:
		return strconv.Quote(t.Text)
	}
	return t.Text
}

func isNameChar(c byte) bool {
	return c == '_' || c == '.' || c == '-' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// scanLine splits one line into tokens. A ';' starts a comment.
func scanLine(line string) ([]Token, error) {
	var toks []Token
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == ';':
			return toks, nil
		case c == '%' || c == '@':
			start := i
			i++
			for i < len(line) && isNameChar(line[i]) {
				i++
			}
			if i == start+1 {
				return nil, fmt.Errorf("column %d: empty name after %q", start+1, c)
			}
			kind := TokenLocal
			if c == '@' {
				kind = TokenGlobal
			}
			toks = append(toks, Token{Kind: kind, Text: line[start+1 : i], Col: start + 1})
		case c == 'c' && i+1 < len(line) && line[i+1] == '"':
			start := i
			j := i + 2
			for j < len(line) && line[j] != '"' {
				if line[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(line) {
				return nil, fmt.Errorf("column %d: unterminated string", start+1)
			}
			s, err := strconv.Unquote(line[i+1 : j+1])
			if err != nil {
				return nil, fmt.Errorf("column %d: %v", start+1, err)
			}
			toks = append(toks, Token{Kind: TokenString, Text: s, Col: start + 1})
			i = j + 1
		case isDigit(c) || ((c == '-' || c == '+') && i+1 < len(line) && (isDigit(line[i+1]) || line[i+1] == 'I')):
			start := i
			i++
			for i < len(line) && (isNameChar(line[i]) || line[i] == '+') {
				if (line[i] == '-' || line[i] == '+') && line[i-1] != 'e' {
					break
				}
				i++
			}
			toks = append(toks, Token{Kind: TokenNumber, Text: line[start:i], Col: start + 1})
		case isNameChar(c):
			start := i
			for i < len(line) && isNameChar(line[i]) {
				i++
			}
			toks = append(toks, Token{Kind: TokenIdent, Text: line[start:i], Col: start + 1})
		case strings.HasPrefix(line[i:], "..."):
			toks = append(toks, Token{Kind: TokenPunct, Text: "...", Col: i + 1})
			i += 3
		case strings.IndexByte("=,[]{}()*:", c) >= 0:
			toks = append(toks, Token{Kind: TokenPunct, Text: string(c), Col: i + 1})
			i++
		default:
			return nil, fmt.Errorf("column %d: unexpected character %q", i+1, c)
		}
	}
	return toks, nil
}
