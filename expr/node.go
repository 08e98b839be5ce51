// Package expr models the expression trees a query is built from.
//
// Trees are assembled with the constructors of this package, or parsed from
// text by the celexpr package, and walked by the compilers through the
// Visitor interface. Captured variables are bound explicitly as constant
// nodes with Value; there is no closure reflection.
package expr

import (
	"fmt"
	"strings"
)

// Parameter names of the two lambda scopes a query uses: the document of a
// filter or key selector, and the group of a result selector.
const (
	DocParam   = "x"
	GroupParam = "g"
	KeyMember  = "Key"
)

// Method names recognized by the compilers.
const (
	MethodContains          = "Contains"
	MethodStartsWith        = "StartsWith"
	MethodEndsWith          = "EndsWith"
	MethodSum               = "Sum"
	MethodMax               = "Max"
	MethodMin               = "Min"
	MethodAverage           = "Average"
	MethodCount             = "Count"
	MethodToDateTime        = "ToDateTime"
	MethodOrderBy           = "OrderBy"
	MethodOrderByDescending = "OrderByDescending"
)

// Node is an expression tree node.
type Node interface {
	Accept(Visitor) error
	String() string
}

// ParamNode is the lambda parameter a member access is rooted at.
type ParamNode struct {
	Name string
}

func (n *ParamNode) Accept(v Visitor) error { return v.VisitParam(n) }
func (n *ParamNode) String() string         { return n.Name }

// MemberNode accesses a property of its target.
type MemberNode struct {
	Target Node
	Name   string
}

func (n *MemberNode) Accept(v Visitor) error { return v.VisitMember(n) }
func (n *MemberNode) String() string         { return n.Target.String() + "." + n.Name }

// ConstNode is a literal value.
type ConstNode struct {
	Literal Literal
	err     error
}

func (n *ConstNode) Accept(v Visitor) error { return v.VisitConst(n) }

func (n *ConstNode) String() string {
	switch n.Literal.Kind {
	case KindNull:
		return "null"
	case KindString:
		return fmt.Sprintf("%q", n.Literal.Raw)
	default:
		return fmt.Sprintf("%v", n.Literal.Raw)
	}
}

// Err returns the classification error of an unsupported constant.
func (n *ConstNode) Err() error { return n.err }

// NowNode evaluates to the current time when visited.
type NowNode struct{}

func (n *NowNode) Accept(v Visitor) error { return v.VisitNow(n) }
func (n *NowNode) String() string         { return "now" }

// UnaryOp is a unary operator.
type UnaryOp int

const (
	OpNot UnaryOp = iota
)

func (o UnaryOp) String() string {
	if o == OpNot {
		return "!"
	}
	return fmt.Sprintf("unary(%d)", int(o))
}

// UnaryNode applies a unary operator.
type UnaryNode struct {
	Op      UnaryOp
	Operand Node
}

func (n *UnaryNode) Accept(v Visitor) error { return v.VisitUnary(n) }
func (n *UnaryNode) String() string         { return n.Op.String() + "(" + n.Operand.String() + ")" }

// BinaryOp is a binary operator.
type BinaryOp int

const (
	OpEq BinaryOp = iota
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
	OpAnd
	OpOr
)

var binaryOps = map[BinaryOp]string{
	OpEq:  "==",
	OpNe:  "!=",
	OpGt:  ">",
	OpGe:  ">=",
	OpLt:  "<",
	OpLe:  "<=",
	OpAnd: "&&",
	OpOr:  "||",
}

func (o BinaryOp) String() string {
	if s, ok := binaryOps[o]; ok {
		return s
	}
	return fmt.Sprintf("binary(%d)", int(o))
}

// Comparison reports whether the operator compares two operands.
func (o BinaryOp) Comparison() bool {
	return o >= OpEq && o <= OpLe
}

// Flip returns the operator to use when both operands swap sides.
func (o BinaryOp) Flip() BinaryOp {
	switch o {
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	default:
		return o
	}
}

// BinaryNode applies a binary operator.
type BinaryNode struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

func (n *BinaryNode) Accept(v Visitor) error { return v.VisitBinary(n) }

func (n *BinaryNode) String() string {
	return fmt.Sprintf("(%s %s %s)", n.Left, n.Op, n.Right)
}

// CallNode is a method call. Target is nil for calls without a receiver,
// such as aggregates over the group.
type CallNode struct {
	Method string
	Target Node
	Args   []Node
}

func (n *CallNode) Accept(v Visitor) error { return v.VisitCall(n) }

func (n *CallNode) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	call := n.Method + "(" + strings.Join(args, ", ") + ")"
	if n.Target != nil {
		return n.Target.String() + "." + call
	}
	return call
}

// NewMember is one named member of a constructed result shape.
type NewMember struct {
	Name  string
	Value Node
}

// NewNode constructs a result shape with ordered members.
type NewNode struct {
	Members []NewMember
}

func (n *NewNode) Accept(v Visitor) error { return v.VisitNew(n) }

func (n *NewNode) String() string {
	parts := make([]string, len(n.Members))
	for i, m := range n.Members {
		parts[i] = m.Name + ": " + m.Value.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
