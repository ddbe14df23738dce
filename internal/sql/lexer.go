package sql

import (
	"strconv"
	"strings"

	"github.com/ensodb/enso/internal/ensoerr"
)

// Lexer turns a statement's source text into a stream of Tokens.
type Lexer struct {
	input []rune
	pos   int
}

func NewLexer(src string) *Lexer {
	return &Lexer{input: []rune(src)}
}

func (l *Lexer) peek() (rune, bool) {
	if l.pos >= len(l.input) {
		return 0, false
	}
	return l.input[l.pos], true
}

func (l *Lexer) advance() { l.pos++ }

func (l *Lexer) skipWhitespace() {
	for {
		c, ok := l.peek()
		if !ok || !isSpace(c) {
			return
		}
		l.advance()
	}
}

func isSpace(c rune) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
func isDigit(c rune) bool { return c >= '0' && c <= '9' }
func isAlpha(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func (l *Lexer) readIdent() string {
	start := l.pos
	for {
		c, ok := l.peek()
		if !ok || !(isAlpha(c) || isDigit(c)) {
			break
		}
		l.advance()
	}
	return string(l.input[start:l.pos])
}

func (l *Lexer) readNumber() Token {
	start := l.pos
	hasDot := false
	for {
		c, ok := l.peek()
		if !ok {
			break
		}
		if c == '.' {
			hasDot = true
		} else if !isDigit(c) {
			break
		}
		l.advance()
	}
	s := string(l.input[start:l.pos])
	if hasDot {
		f, _ := strconv.ParseFloat(s, 64)
		return Token{Kind: FLOAT, F: f}
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return Token{Kind: INT, I: n}
}

// readString consumes a single-quoted string literal; doubled quotes
// ('') escape a literal quote, in the style of standard SQL.
func (l *Lexer) readString() (Token, error) {
	l.advance() // opening '
	var sb strings.Builder
	for {
		c, ok := l.peek()
		if !ok {
			return Token{}, ensoerr.Parse("unterminated string literal")
		}
		if c == '\'' {
			l.advance()
			if next, ok := l.peek(); ok && next == '\'' {
				sb.WriteRune('\'')
				l.advance()
				continue
			}
			return Token{Kind: STRING, Text: sb.String()}, nil
		}
		sb.WriteRune(c)
		l.advance()
	}
}

// Next returns the next token in the stream, or an EOF token once the
// input is exhausted.
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespace()

	c, ok := l.peek()
	if !ok {
		return Token{Kind: EOF}, nil
	}

	switch {
	case c == '(':
		l.advance()
		return Token{Kind: LPAREN}, nil
	case c == ')':
		l.advance()
		return Token{Kind: RPAREN}, nil
	case c == ',':
		l.advance()
		return Token{Kind: COMMA}, nil
	case c == ';':
		l.advance()
		return Token{Kind: SEMICOLON}, nil
	case c == '*':
		l.advance()
		return Token{Kind: STAR}, nil
	case c == '=':
		l.advance()
		return Token{Kind: EQ}, nil
	case c == '\'':
		return l.readString()
	case isDigit(c):
		return l.readNumber(), nil
	case isAlpha(c):
		ident := l.readIdent()
		if kind, ok := keywords[strings.ToUpper(ident)]; ok {
			return Token{Kind: kind, Text: ident}, nil
		}
		return Token{Kind: IDENT, Text: ident}, nil
	default:
		return Token{}, ensoerr.Parse("unexpected character %q", c)
	}
}
