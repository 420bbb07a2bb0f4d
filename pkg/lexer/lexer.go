package lexer

import (
	"errors"
	"math"
	"strconv"
	"unicode"

	"github.com/xplshn/ganc/pkg/diag"
	"github.com/xplshn/ganc/pkg/token"
)

var punctuation = map[rune]token.Type{
	'(': token.LParen, ')': token.RParen,
	'{': token.LBrace, '}': token.RBrace,
	';': token.Semi, ',': token.Comma, '=': token.Eq,
	'+': token.Plus, '-': token.Minus, '*': token.Star, '/': token.Slash,
	'<': token.Lt,
}

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
	errs      []*diag.Diagnostic
}

func NewLexer(source []rune, fileIndex int) *Lexer {
	return &Lexer{source: source, fileIndex: fileIndex, line: 1, column: 1}
}

// Errors returns the lexical errors seen so far. Offending characters are
// skipped, so the token stream stays usable after an error.
func (l *Lexer) Errors() []*diag.Diagnostic { return l.errs }

func (l *Lexer) Next() token.Token {
	for {
		l.skipWhitespaceAndComments()
		startPos, startCol, startLine := l.pos, l.column, l.line

		if l.isAtEnd() {
			return l.makeToken(token.EOF, "", startPos, startCol, startLine)
		}

		ch := l.peek()
		if unicode.IsLetter(ch) || ch == '_' {
			l.advance()
			return l.identifierOrKeyword(startPos, startCol, startLine)
		}
		if unicode.IsDigit(ch) || (ch == '.' && unicode.IsDigit(l.peekNext())) {
			return l.numberLiteral(startPos, startCol, startLine)
		}

		l.advance()
		if tokType, ok := punctuation[ch]; ok {
			return l.makeToken(tokType, "", startPos, startCol, startLine)
		}

		tok := l.makeToken(token.EOF, string(ch), startPos, startCol, startLine)
		l.errorf(tok, "Unexpected character: '%c'", ch)
	}
}

// Tokenize lexes the whole source, always ending with an EOF token.
func (l *Lexer) Tokenize() []token.Token {
	var toks []token.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func (l *Lexer) errorf(tok token.Token, format string, args ...any) {
	l.errs = append(l.errs, diag.Newf(diag.Syntax, tok, format, args...))
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.advance()
		case '/':
			switch l.peekNext() {
			case '*':
				l.blockComment()
			case '/':
				l.lineComment()
			default:
				return
			}
		default:
			return
		}
	}
}

func (l *Lexer) blockComment() {
	startTok := l.makeToken(token.Comment, "", l.pos, l.column, l.line)
	startTok.Len = 2
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
	l.errorf(startTok, "Unterminated block comment")
}

func (l *Lexer) lineComment() {
	for !l.isAtEnd() && l.peek() != '\n' {
		l.advance()
	}
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.Ident, value, startPos, startCol, startLine)

	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		tok.Type = tokType
		tok.Value = ""
	}
	return tok
}

func (l *Lexer) numberLiteral(startPos, startCol, startLine int) token.Token {
	malformed := false
	for unicode.IsDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' {
		l.advance()
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		if !unicode.IsDigit(l.peek()) {
			l.errorf(l.makeToken(token.Number, "", startPos, startCol, startLine), "Malformed floating-point literal: exponent has no digits")
			malformed = true
		}
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}

	valueStr := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.Number, valueStr, startPos, startCol, startLine)
	if malformed {
		tok.Value = "0"
		return tok
	}
	v, err := strconv.ParseFloat(valueStr, 64)
	switch {
	case math.IsInf(v, 0):
		// Underflow parses to zero and is kept; overflow has no double.
		l.errorf(tok, "Number literal out of range: %s", valueStr)
		tok.Value = "0"
	case err != nil && !errors.Is(err, strconv.ErrRange):
		l.errorf(tok, "Invalid number literal: %s", valueStr)
		tok.Value = "0"
	}
	return tok
}
