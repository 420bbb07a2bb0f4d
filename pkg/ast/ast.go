// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
package ast

import (
	"github.com/xplshn/ganc/pkg/token"
)

// Node is implemented by every expression and statement.
type Node interface {
	Pos() token.Token
}

// Expr is a closed set: NumberLit, Ident, BinaryOp and Call.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a closed set: ExprStmt, VarDecl, Assign, Block, IfElse, ForLoop,
// FuncDecl and Return.
type Stmt interface {
	Node
	stmtNode()
}

// BinaryOpKind defines the operator of a BinaryOp
type BinaryOpKind int

const (
	OpAdd BinaryOpKind = iota
	OpSub
	OpMul
	OpDiv
	OpLess
)

func (op BinaryOpKind) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpLess:
		return "<"
	}
	return "?"
}

// --- Expressions ---
type NumberLit struct {
	Tok   token.Token
	Value float64
}

type Ident struct {
	Tok  token.Token
	Name string
}

type BinaryOp struct {
	Tok      token.Token
	Op       BinaryOpKind
	Lhs, Rhs Expr
}

type Call struct {
	Tok    token.Token
	Callee *Ident
	Args   []Expr
}

// --- Statements ---
type ExprStmt struct {
	Expr Expr
}

// VarDecl declares a function-local variable. Init is nil when omitted.
type VarDecl struct {
	Tok  token.Token
	Name *Ident
	Init Expr
}

type Assign struct {
	Tok  token.Token
	Name *Ident
	Rhs  Expr
}

type Block struct {
	Tok   token.Token
	Stmts []Stmt
}

// IfElse has a nil Else when there is no else branch.
type IfElse struct {
	Tok  token.Token
	Cond Expr
	Then *Block
	Else *Block
}

// ForLoop is a condition-only loop, equivalent to a while loop.
type ForLoop struct {
	Tok  token.Token
	Cond Expr
	Body *Block
}

// FuncDecl with a nil Body is a foreign declaration.
type FuncDecl struct {
	Tok    token.Token
	Name   *Ident
	Params []*Ident
	Body   *Block
}

// Return has a nil Value when the value is omitted.
type Return struct {
	Tok   token.Token
	Value Expr
}

// Program is the ordered sequence of top-level statements of one file.
type Program struct {
	Stmts []Stmt
}

func (n *NumberLit) Pos() token.Token { return n.Tok }
func (n *Ident) Pos() token.Token     { return n.Tok }
func (n *BinaryOp) Pos() token.Token  { return n.Tok }
func (n *Call) Pos() token.Token      { return n.Tok }
func (n *ExprStmt) Pos() token.Token  { return n.Expr.Pos() }
func (n *VarDecl) Pos() token.Token   { return n.Tok }
func (n *Assign) Pos() token.Token    { return n.Tok }
func (n *Block) Pos() token.Token     { return n.Tok }
func (n *IfElse) Pos() token.Token    { return n.Tok }
func (n *ForLoop) Pos() token.Token   { return n.Tok }
func (n *FuncDecl) Pos() token.Token  { return n.Tok }
func (n *Return) Pos() token.Token    { return n.Tok }

func (*NumberLit) exprNode() {}
func (*Ident) exprNode()     {}
func (*BinaryOp) exprNode()  {}
func (*Call) exprNode()      {}

func (*ExprStmt) stmtNode() {}
func (*VarDecl) stmtNode()  {}
func (*Assign) stmtNode()   {}
func (*Block) stmtNode()    {}
func (*IfElse) stmtNode()   {}
func (*ForLoop) stmtNode()  {}
func (*FuncDecl) stmtNode() {}
func (*Return) stmtNode()   {}

// IsForeign reports whether the declaration has no body.
func (f *FuncDecl) IsForeign() bool { return f.Body == nil }

// --- Node Constructors ---
// The constructors leave the token zero, which is what hand-built trees in
// tests want; the parser fills Tok fields directly.

func Num(v float64) *NumberLit { return &NumberLit{Value: v} }

func Name(name string) *Ident { return &Ident{Name: name} }

func Bin(op BinaryOpKind, l, r Expr) *BinaryOp {
	return &BinaryOp{Op: op, Lhs: l, Rhs: r}
}

func CallOf(callee string, args ...Expr) *Call {
	return &Call{Callee: Name(callee), Args: args}
}

func Do(e Expr) *ExprStmt { return &ExprStmt{Expr: e} }

func Var(name string, init Expr) *VarDecl { return &VarDecl{Name: Name(name), Init: init} }

func Set(name string, rhs Expr) *Assign { return &Assign{Name: Name(name), Rhs: rhs} }

func Body(stmts ...Stmt) *Block { return &Block{Stmts: stmts} }

func If(cond Expr, then, els *Block) *IfElse { return &IfElse{Cond: cond, Then: then, Else: els} }

func For(cond Expr, body *Block) *ForLoop { return &ForLoop{Cond: cond, Body: body} }

func Ret(v Expr) *Return { return &Return{Value: v} }

func Func(name string, params []string, body *Block) *FuncDecl {
	fd := &FuncDecl{Name: Name(name), Body: body}
	for _, p := range params {
		fd.Params = append(fd.Params, Name(p))
	}
	return fd
}

func Foreign(name string, params ...string) *FuncDecl { return Func(name, params, nil) }

// Walk calls visit for every statement reachable from stmts, parents before
// children. Returning false from visit skips the children of that statement.
func Walk(stmts []Stmt, visit func(Stmt) bool) {
	for _, s := range stmts {
		if s == nil || !visit(s) {
			continue
		}
		switch d := s.(type) {
		case *Block:
			Walk(d.Stmts, visit)
		case *IfElse:
			if d.Then != nil {
				Walk(d.Then.Stmts, visit)
			}
			if d.Else != nil {
				Walk(d.Else.Stmts, visit)
			}
		case *ForLoop:
			if d.Body != nil {
				Walk(d.Body.Stmts, visit)
			}
		case *FuncDecl:
			if d.Body != nil {
				Walk(d.Body.Stmts, visit)
			}
		}
	}
}
