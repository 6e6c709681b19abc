package logic

// Expr is a node in a parsed host-form expression
type Expr interface {
	exprNode()
	Position() int
}

// LiteralExpr is a number or string literal
type LiteralExpr struct {
	Value Value
	Pos   int
}

// LookupExpr reads one export field from the record
type LookupExpr struct {
	Key        string // Key as written, escapes included
	ExportName string // Decoded export field name
	Pos        int
}

// UnaryExpr is a prefix minus
type UnaryExpr struct {
	Operator TokenType
	Operand  Expr
	Pos      int
}

// BinaryExpr covers comparison and arithmetic operators
type BinaryExpr struct {
	Operator TokenType
	Left     Expr
	Right    Expr
	Pos      int
}

// LogicalExpr covers the short-circuiting `and` / `or`
type LogicalExpr struct {
	Operator TokenType
	Left     Expr
	Right    Expr
	Pos      int
}

func (*LiteralExpr) exprNode() {}
func (*LookupExpr) exprNode()  {}
func (*UnaryExpr) exprNode()   {}
func (*BinaryExpr) exprNode()  {}
func (*LogicalExpr) exprNode() {}

func (e *LiteralExpr) Position() int { return e.Pos }
func (e *LookupExpr) Position() int  { return e.Pos }
func (e *UnaryExpr) Position() int   { return e.Pos }
func (e *BinaryExpr) Position() int  { return e.Pos }
func (e *LogicalExpr) Position() int { return e.Pos }
