package expr

import (
	"strings"
	"time"

	"github.com/reveald/esq"
)

// Visitor is implemented by every walker of an expression tree.
type Visitor interface {
	VisitParam(*ParamNode) error
	VisitMember(*MemberNode) error
	VisitConst(*ConstNode) error
	VisitNow(*NowNode) error
	VisitUnary(*UnaryNode) error
	VisitBinary(*BinaryNode) error
	VisitCall(*CallNode) error
	VisitNew(*NewNode) error
}

// Path is a chain of member accesses rooted at a lambda parameter.
type Path struct {
	Param   string
	Members []string
}

func (p Path) String() string {
	return strings.Join(append([]string{p.Param}, p.Members...), ".")
}

// IsKey reports whether the path reads the group key.
func (p Path) IsKey() bool {
	return p.Param == GroupParam && len(p.Members) > 0 && p.Members[0] == KeyMember
}

// KeyMembers returns the members read from the group key, if any.
func (p Path) KeyMembers() []string {
	if !p.IsKey() {
		return nil
	}
	return p.Members[1:]
}

// PathOf resolves a member chain down to its parameter.
func PathOf(n *MemberNode) (Path, error) {
	var members []string
	var cur Node = n
	for {
		switch t := cur.(type) {
		case *MemberNode:
			members = append(members, t.Name)
			cur = t.Target
		case *ParamNode:
			for i, j := 0, len(members)-1; i < j; i, j = i+1, j-1 {
				members[i], members[j] = members[j], members[i]
			}
			return Path{Param: t.Name, Members: members}, nil
		default:
			return Path{}, esq.Unsupported("member access %s on %s; bind captured values with expr.Value", n, cur)
		}
	}
}

// Base is the leaf-handling part of every compiler visitor.
//
// Member accesses rooted at a parameter are pushed onto Fields; constants
// and Now are pushed onto Values. Composite nodes are rejected: a compiler
// embeds Base and implements the shapes it supports.
type Base struct {
	Fields []Path
	Values []Literal
	Clock  func() time.Time
}

// NewBase returns a Base that evaluates Now with clock, or time.Now when nil.
func NewBase(clock func() time.Time) *Base {
	if clock == nil {
		clock = time.Now
	}
	return &Base{Clock: clock}
}

func (b *Base) VisitParam(n *ParamNode) error {
	return esq.Unsupported("bare parameter %s", n)
}

func (b *Base) VisitMember(n *MemberNode) error {
	p, err := PathOf(n)
	if err != nil {
		return err
	}
	b.Fields = append(b.Fields, p)
	return nil
}

func (b *Base) VisitConst(n *ConstNode) error {
	if n.err != nil {
		return esq.Unsupported("constant %v: %v", n.Literal.Raw, n.err)
	}
	b.Values = append(b.Values, n.Literal)
	return nil
}

func (b *Base) VisitNow(*NowNode) error {
	clock := b.Clock
	if clock == nil {
		clock = time.Now
	}
	b.Values = append(b.Values, Literal{Raw: clock(), Kind: KindTime})
	return nil
}

func (b *Base) VisitUnary(n *UnaryNode) error {
	return esq.Unsupported("expression %s", n)
}

func (b *Base) VisitBinary(n *BinaryNode) error {
	return esq.Unsupported("expression %s", n)
}

func (b *Base) VisitCall(n *CallNode) error {
	return esq.Unsupported("method %s", n.Method)
}

func (b *Base) VisitNew(n *NewNode) error {
	return esq.Unsupported("expression %s", n)
}

// PopField removes the most recent field reference.
func (b *Base) PopField() (Path, bool) {
	if len(b.Fields) == 0 {
		return Path{}, false
	}
	p := b.Fields[len(b.Fields)-1]
	b.Fields = b.Fields[:len(b.Fields)-1]
	return p, true
}

// PopValue removes the most recent value.
func (b *Base) PopValue() (Literal, bool) {
	if len(b.Values) == 0 {
		return Literal{}, false
	}
	v := b.Values[len(b.Values)-1]
	b.Values = b.Values[:len(b.Values)-1]
	return v, true
}

// Reset empties both stacks.
func (b *Base) Reset() {
	b.Fields = b.Fields[:0]
	b.Values = b.Values[:0]
}
