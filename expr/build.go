package expr

// Param returns a lambda parameter.
func Param(name string) *ParamNode {
	return &ParamNode{Name: name}
}

// Doc returns the document parameter.
func Doc() *ParamNode {
	return Param(DocParam)
}

// Member chains property accesses onto target.
func Member(target Node, names ...string) Node {
	n := target
	for _, name := range names {
		n = &MemberNode{Target: n, Name: name}
	}
	return n
}

// Field accesses a document property, following nested properties in order.
//
//	expr.Field("Customer", "Name") // x.Customer.Name
func Field(path ...string) Node {
	return Member(Doc(), path...)
}

// Key accesses the group key in a result selector. Without a path it is the
// whole key; with a path it names one member of a composite key.
//
//	expr.Key()           // g.Key
//	expr.Key("Category") // g.Key.Category
func Key(path ...string) Node {
	return Member(Member(Param(GroupParam), KeyMember), path...)
}

// Value binds a Go value as a constant.
func Value(v any) *ConstNode {
	lit, err := LiteralOf(v)
	return &ConstNode{Literal: lit, err: err}
}

// Now is the current time, evaluated when the query is compiled.
func Now() *NowNode {
	return &NowNode{}
}

// Not negates a predicate.
func Not(n Node) *UnaryNode {
	return &UnaryNode{Op: OpNot, Operand: n}
}

func binary(op BinaryOp, l, r Node) *BinaryNode {
	return &BinaryNode{Op: op, Left: l, Right: r}
}

func Eq(l, r Node) *BinaryNode { return binary(OpEq, l, r) }
func Ne(l, r Node) *BinaryNode { return binary(OpNe, l, r) }
func Gt(l, r Node) *BinaryNode { return binary(OpGt, l, r) }
func Ge(l, r Node) *BinaryNode { return binary(OpGe, l, r) }
func Lt(l, r Node) *BinaryNode { return binary(OpLt, l, r) }
func Le(l, r Node) *BinaryNode { return binary(OpLe, l, r) }

// And combines predicates left to right.
func And(first Node, rest ...Node) Node {
	n := first
	for _, r := range rest {
		n = binary(OpAnd, n, r)
	}
	return n
}

// Or combines two predicates. The predicate compiler rejects it; it exists
// so that parsed text can be represented faithfully and reported.
func Or(l, r Node) *BinaryNode { return binary(OpOr, l, r) }

// Call builds a method call.
func Call(method string, target Node, args ...Node) *CallNode {
	return &CallNode{Method: method, Target: target, Args: args}
}

func Contains(target, arg Node) *CallNode   { return Call(MethodContains, target, arg) }
func StartsWith(target, arg Node) *CallNode { return Call(MethodStartsWith, target, arg) }
func EndsWith(target, arg Node) *CallNode   { return Call(MethodEndsWith, target, arg) }

// In matches documents whose field equals any of values, a slice.
func In(field Node, values any) *CallNode {
	return Contains(Value(values), field)
}

func Sum(field Node) *CallNode     { return Call(MethodSum, nil, field) }
func Max(field Node) *CallNode     { return Call(MethodMax, nil, field) }
func Min(field Node) *CallNode     { return Call(MethodMin, nil, field) }
func Average(field Node) *CallNode { return Call(MethodAverage, nil, field) }

// Count counts the documents of a group, or the values of field when one is given.
func Count(field ...Node) *CallNode {
	return Call(MethodCount, nil, field...)
}

// ToDateTime reads the date bucket of a group as a time.
func ToDateTime(n Node) *CallNode {
	return Call(MethodToDateTime, nil, n)
}

// New constructs a result shape.
func New(members ...NewMember) *NewNode {
	return &NewNode{Members: members}
}

// As names a member of a result shape.
func As(name string, value Node) NewMember {
	return NewMember{Name: name, Value: value}
}
