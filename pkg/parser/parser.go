package parser

import (
	"errors"
	"strconv"

	"github.com/xplshn/ganc/pkg/ast"
	"github.com/xplshn/ganc/pkg/diag"
	"github.com/xplshn/ganc/pkg/lexer"
	"github.com/xplshn/ganc/pkg/token"
)

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
	errs     []*diag.Diagnostic
}

// bailout unwinds the parser to the nearest statement boundary.
type bailout struct{}

// NewParser creates and initializes a new Parser from a token stream
func NewParser(tokens []token.Token) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != token.EOF {
		tokens = append(tokens, token.Token{Type: token.EOF})
	}
	return &Parser{tokens: tokens, current: tokens[0]}
}

// ParseSource lexes and parses one source file. The returned error joins
// every lexical and syntax diagnostic; the program is still returned so that
// callers can inspect what was recovered.
func ParseSource(src string, fileIndex int) (*ast.Program, error) {
	l := lexer.NewLexer([]rune(src), fileIndex)
	toks := l.Tokenize()
	p := NewParser(toks)
	p.errs = append(p.errs, l.Errors()...)
	return p.Parse()
}

// Diagnostics returns the syntax errors recorded so far.
func (p *Parser) Diagnostics() []*diag.Diagnostic { return p.errs }

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.previous = p.current
		p.pos++
		p.current = p.tokens[p.pos]
	}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, message string) {
	if p.check(tokType) {
		p.advance()
		return
	}
	p.fail(p.current, "%s", message)
}

func (p *Parser) fail(tok token.Token, format string, args ...any) {
	p.errs = append(p.errs, diag.Newf(diag.Syntax, tok, format, args...))
	panic(bailout{})
}

// synchronize skips tokens until something that can start a statement.
func (p *Parser) synchronize(start int) {
	if p.pos == start {
		p.advance()
	}
	for !p.check(token.EOF) {
		if p.previous.Type == token.Semi && p.pos > start {
			return
		}
		switch p.current.Type {
		case token.Var, token.Return, token.If, token.For, token.Func, token.Foreign, token.RBrace, token.LBrace:
			return
		}
		p.advance()
	}
}

// Expression Parsing
func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Star, token.Slash:
		return 3
	case token.Plus, token.Minus:
		return 2
	case token.Lt:
		return 1
	default:
		return -1
	}
}

var binaryOps = map[token.Type]ast.BinaryOpKind{
	token.Plus:  ast.OpAdd,
	token.Minus: ast.OpSub,
	token.Star:  ast.OpMul,
	token.Slash: ast.OpDiv,
	token.Lt:    ast.OpLess,
}

func (p *Parser) parsePrimaryExpr() ast.Expr {
	tok := p.current
	if p.match(token.Number) {
		val, _ := strconv.ParseFloat(p.previous.Value, 64)
		return &ast.NumberLit{Tok: tok, Value: val}
	}
	if p.match(token.Ident) {
		ident := &ast.Ident{Tok: tok, Name: tok.Value}
		if p.match(token.LParen) {
			return p.parseCallArgs(tok, ident)
		}
		return ident
	}
	if p.match(token.LParen) {
		expr := p.parseExpr()
		p.expect(token.RParen, "Expected ')' after expression.")
		return expr
	}
	p.fail(tok, "Expected an expression, found '%s'.", tok.Type)
	return nil
}

func (p *Parser) parseCallArgs(tok token.Token, callee *ast.Ident) ast.Expr {
	var args []ast.Expr
	if !p.check(token.RParen) {
		for {
			args = append(args, p.parseExpr())
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "Expected ')' after function arguments.")
	return &ast.Call{Tok: tok, Callee: callee, Args: args}
}

func (p *Parser) parseBinaryExpr(minPrec int) ast.Expr {
	left := p.parsePrimaryExpr()
	for {
		prec := getBinaryOpPrecedence(p.current.Type)
		if prec < minPrec {
			break
		}
		opTok := p.current
		p.advance()
		right := p.parseBinaryExpr(prec + 1)
		left = &ast.BinaryOp{Tok: opTok, Op: binaryOps[opTok.Type], Lhs: left, Rhs: right}
	}
	return left
}

func (p *Parser) parseExpr() ast.Expr {
	return p.parseBinaryExpr(1)
}

// Statement and Declaration Parsing
func (p *Parser) parseBlockStmt() *ast.Block {
	tok := p.current
	p.expect(token.LBrace, "Expected '{' to start a block.")
	block := &ast.Block{Tok: tok}
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		if stmt := p.parseStmtRecover(); stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		}
	}
	p.expect(token.RBrace, "Expected '}' after block.")
	return block
}

// parseStmtRecover parses one statement, turning a syntax error into a nil
// statement after skipping to the next statement boundary.
func (p *Parser) parseStmtRecover() (stmt ast.Stmt) {
	start := p.pos
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			stmt = nil
			p.synchronize(start)
		}
	}()
	return p.parseStmt()
}

func (p *Parser) parseIf(tok token.Token) *ast.IfElse {
	p.expect(token.LParen, "Expected '(' after 'if'.")
	cond := p.parseExpr()
	p.expect(token.RParen, "Expected ')' after if condition.")
	node := &ast.IfElse{Tok: tok, Cond: cond, Then: p.parseBlockStmt()}
	if p.match(token.Else) {
		if p.check(token.If) {
			elseTok := p.current
			p.advance()
			node.Else = &ast.Block{Tok: elseTok, Stmts: []ast.Stmt{p.parseIf(elseTok)}}
		} else {
			node.Else = p.parseBlockStmt()
		}
	}
	return node
}

func (p *Parser) parseStmt() ast.Stmt {
	tok := p.current
	switch {
	case p.check(token.LBrace):
		return p.parseBlockStmt()
	case p.match(token.Var):
		p.expect(token.Ident, "Expected variable name after 'var'.")
		node := &ast.VarDecl{Tok: tok, Name: &ast.Ident{Tok: p.previous, Name: p.previous.Value}}
		if p.match(token.Eq) {
			node.Init = p.parseExpr()
		}
		p.expect(token.Semi, "Expected ';' after variable declaration.")
		return node
	case p.match(token.Return):
		node := &ast.Return{Tok: tok}
		if !p.check(token.Semi) {
			node.Value = p.parseExpr()
		}
		p.expect(token.Semi, "Expected ';' after return statement.")
		return node
	case p.match(token.If):
		return p.parseIf(tok)
	case p.match(token.For):
		p.expect(token.LParen, "Expected '(' after 'for'.")
		cond := p.parseExpr()
		p.expect(token.RParen, "Expected ')' after loop condition.")
		return &ast.ForLoop{Tok: tok, Cond: cond, Body: p.parseBlockStmt()}
	case p.match(token.Func):
		return p.parseFuncDecl(tok, false)
	case p.match(token.Foreign):
		return p.parseFuncDecl(tok, true)
	case p.check(token.Ident) && p.peek().Type == token.Eq:
		name := &ast.Ident{Tok: tok, Name: tok.Value}
		p.advance()
		eqTok := p.current
		p.advance()
		rhs := p.parseExpr()
		p.expect(token.Semi, "Expected ';' after assignment.")
		return &ast.Assign{Tok: eqTok, Name: name, Rhs: rhs}
	case p.match(token.Semi):
		return nil
	default:
		expr := p.parseExpr()
		p.expect(token.Semi, "Expected ';' after expression statement.")
		return &ast.ExprStmt{Expr: expr}
	}
}

func (p *Parser) parseFuncDecl(tok token.Token, foreign bool) *ast.FuncDecl {
	p.expect(token.Ident, "Expected function name.")
	node := &ast.FuncDecl{Tok: tok, Name: &ast.Ident{Tok: p.previous, Name: p.previous.Value}}
	p.expect(token.LParen, "Expected '(' after function name.")
	if !p.check(token.RParen) {
		for {
			p.expect(token.Ident, "Expected parameter name.")
			node.Params = append(node.Params, &ast.Ident{Tok: p.previous, Name: p.previous.Value})
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "Expected ')' after parameters.")

	if foreign {
		p.expect(token.Semi, "Expected ';' after foreign declaration.")
		return node
	}
	node.Body = p.parseBlockStmt()
	return node
}

// Parse consumes the whole token stream. Syntax errors do not stop parsing;
// they are joined into the returned error.
func (p *Parser) Parse() (*ast.Program, error) {
	prog := &ast.Program{}
	for !p.check(token.EOF) {
		if p.check(token.RBrace) {
			p.errs = append(p.errs, diag.Newf(diag.Syntax, p.current, "Unexpected '}' at top level."))
			p.advance()
			continue
		}
		if stmt := p.parseStmtRecover(); stmt != nil {
			prog.Stmts = append(prog.Stmts, stmt)
		}
	}
	return prog, p.err()
}

func (p *Parser) err() error {
	if len(p.errs) == 0 {
		return nil
	}
	errs := make([]error, len(p.errs))
	for i, d := range p.errs {
		errs[i] = d
	}
	return errors.Join(errs...)
}
