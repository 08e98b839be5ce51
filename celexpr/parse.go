// Package celexpr parses CEL source into expression trees.
//
// It is the text front end of the query compiler: predicates, group keys
// and result shapes written as CEL are turned into expr nodes, so they can
// come from a command line or a configuration file.
//
//	x.amount > 100.0 && x.category in ["books", "games"]
//	x.name.startsWith("pro")
//	{"category": g.key, "total": sum(x.amount), "orders": count()}
//
// The document is x and the group of a result shape is g. A bare
// identifier that is not a bound variable names a document property, so
// amount > 100.0 is the same as x.amount > 100.0.
package celexpr

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/operators"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/reveald/esq"
	"github.com/reveald/esq/expr"
)

// Parser parses CEL source. The zero value is not usable; use NewParser.
type Parser struct {
	env       *cel.Env
	variables map[string]any
}

// Option configures a Parser.
type Option func(*Parser)

// WithVariable binds an identifier to a Go value, which is compiled as a
// constant wherever the identifier appears.
func WithVariable(name string, value any) Option {
	return func(p *Parser) {
		p.variables[name] = value
	}
}

// NewParser returns a parser for query expressions.
func NewParser(opts ...Option) (*Parser, error) {
	env, err := cel.NewEnv(
		cel.Variable(expr.DocParam, cel.DynType),
		cel.Variable(expr.GroupParam, cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	p := &Parser{env: env, variables: make(map[string]any)}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Parse parses one expression.
func (p *Parser) Parse(src string) (expr.Node, error) {
	ast, issues := p.env.Parse(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL parse error: %w", issues.Err())
	}
	parsed, err := cel.AstToParsedExpr(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to read CEL syntax tree: %w", err)
	}
	return p.visit(parsed.GetExpr())
}

// Parse parses one expression with a default parser.
func Parse(src string, opts ...Option) (expr.Node, error) {
	p, err := NewParser(opts...)
	if err != nil {
		return nil, err
	}
	return p.Parse(src)
}

func (p *Parser) visit(e *exprpb.Expr) (expr.Node, error) {
	switch e.ExprKind.(type) {
	case *exprpb.Expr_CallExpr:
		return p.visitCall(e)
	case *exprpb.Expr_ConstExpr:
		return visitConst(e.GetConstExpr())
	case *exprpb.Expr_IdentExpr:
		return p.visitIdent(e.GetIdentExpr().GetName()), nil
	case *exprpb.Expr_ListExpr:
		return visitList(e.GetListExpr())
	case *exprpb.Expr_SelectExpr:
		return p.visitSelect(e.GetSelectExpr())
	case *exprpb.Expr_StructExpr:
		return p.visitStruct(e.GetStructExpr())
	}
	return nil, esq.Unsupported("CEL expression %v", e)
}

func (p *Parser) visitIdent(name string) expr.Node {
	switch name {
	case expr.DocParam, expr.GroupParam:
		return expr.Param(name)
	}
	if v, ok := p.variables[name]; ok {
		return expr.Value(v)
	}
	return expr.Field(name)
}

func (p *Parser) visitSelect(sel *exprpb.Expr_Select) (expr.Node, error) {
	if sel.GetTestOnly() {
		return nil, esq.Unsupported("has(%s)", sel.GetField())
	}
	operand, err := p.visit(sel.GetOperand())
	if err != nil {
		return nil, err
	}
	return member(operand, sel.GetField()), nil
}

// member accesses a property. The group key is spelled key in CEL.
func member(operand expr.Node, field string) expr.Node {
	if param, ok := operand.(*expr.ParamNode); ok && param.Name == expr.GroupParam && strings.EqualFold(field, expr.KeyMember) {
		field = expr.KeyMember
	}
	return expr.Member(operand, field)
}

func visitConst(c *exprpb.Constant) (expr.Node, error) {
	v, err := constValue(c)
	if err != nil {
		return nil, err
	}
	return expr.Value(v), nil
}

func constValue(c *exprpb.Constant) (any, error) {
	switch c.ConstantKind.(type) {
	case *exprpb.Constant_BoolValue:
		return c.GetBoolValue(), nil
	case *exprpb.Constant_Int64Value:
		return c.GetInt64Value(), nil
	case *exprpb.Constant_Uint64Value:
		return c.GetUint64Value(), nil
	case *exprpb.Constant_DoubleValue:
		return c.GetDoubleValue(), nil
	case *exprpb.Constant_StringValue:
		return c.GetStringValue(), nil
	case *exprpb.Constant_NullValue:
		return nil, nil
	}
	return nil, esq.Unsupported("CEL constant %v", c)
}

// visitList builds a typed slice from a list of constants of one kind.
func visitList(l *exprpb.Expr_CreateList) (expr.Node, error) {
	elems := l.GetElements()
	if len(elems) == 0 {
		return expr.Value([]string{}), nil
	}

	values := make([]any, len(elems))
	for i, e := range elems {
		c := e.GetConstExpr()
		if c == nil {
			return nil, esq.Unsupported("list element %v; lists hold constants only", e)
		}
		v, err := constValue(c)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	switch values[0].(type) {
	case string:
		return typedList[string](values)
	case int64:
		return typedList[int64](values)
	case uint64:
		return typedList[uint64](values)
	case float64:
		return typedList[float64](values)
	case bool:
		return typedList[bool](values)
	}
	return nil, esq.Unsupported("list of %T", values[0])
}

func typedList[E any](values []any) (expr.Node, error) {
	out := make([]E, len(values))
	for i, v := range values {
		e, ok := v.(E)
		if !ok {
			return nil, esq.Unsupported("list mixing %T and %T", values[0], v)
		}
		out[i] = e
	}
	return expr.Value(out), nil
}

// visitStruct turns a map literal with string keys into a result shape.
func (p *Parser) visitStruct(s *exprpb.Expr_CreateStruct) (expr.Node, error) {
	if s.GetMessageName() != "" {
		return nil, esq.Unsupported("message construction %s", s.GetMessageName())
	}

	members := make([]expr.NewMember, 0, len(s.GetEntries()))
	for _, entry := range s.GetEntries() {
		key := entry.GetMapKey().GetConstExpr()
		if key == nil {
			return nil, esq.Unsupported("result member name %v; names are string constants", entry.GetMapKey())
		}
		name, ok := key.ConstantKind.(*exprpb.Constant_StringValue)
		if !ok {
			return nil, esq.Unsupported("result member name %v; names are string constants", key)
		}
		value, err := p.visit(entry.GetValue())
		if err != nil {
			return nil, err
		}
		members = append(members, expr.As(name.StringValue, value))
	}
	return expr.New(members...), nil
}

var binaryOperators = map[string]func(l, r expr.Node) *expr.BinaryNode{
	operators.Equals:        expr.Eq,
	operators.NotEquals:     expr.Ne,
	operators.Greater:       expr.Gt,
	operators.GreaterEquals: expr.Ge,
	operators.Less:          expr.Lt,
	operators.LessEquals:    expr.Le,
	operators.LogicalOr:     expr.Or,
}

// Receiver-style string functions of CEL and their query methods.
var memberFunctions = map[string]string{
	"contains":   expr.MethodContains,
	"startsWith": expr.MethodStartsWith,
	"endsWith":   expr.MethodEndsWith,
}

// Global functions and their query methods.
var globalFunctions = map[string]string{
	"sum":        expr.MethodSum,
	"max":        expr.MethodMax,
	"min":        expr.MethodMin,
	"avg":        expr.MethodAverage,
	"average":    expr.MethodAverage,
	"count":      expr.MethodCount,
	"toDateTime": expr.MethodToDateTime,
}

func (p *Parser) visitCall(e *exprpb.Expr) (expr.Node, error) {
	c := e.GetCallExpr()
	fun := c.GetFunction()

	if c.GetTarget() != nil {
		method, ok := memberFunctions[fun]
		if !ok {
			return nil, esq.Unsupported("method %s", fun)
		}
		target, err := p.visit(c.GetTarget())
		if err != nil {
			return nil, err
		}
		args, err := p.visitArgs(c.GetArgs())
		if err != nil {
			return nil, err
		}
		return expr.Call(method, target, args...), nil
	}

	args, err := p.visitArgs(c.GetArgs())
	if err != nil {
		return nil, err
	}

	switch fun {
	case operators.LogicalAnd:
		return expr.And(args[0], args[1]), nil
	case operators.LogicalNot:
		return expr.Not(args[0]), nil
	case operators.In:
		// "v in x.tags" tests a list property; "x.f in [..]" tests membership.
		return expr.Contains(args[1], args[0]), nil
	case operators.Index:
		key, ok := args[1].(*expr.ConstNode)
		if !ok {
			return nil, esq.Unsupported("index %s; use a string constant", args[1])
		}
		name, ok := key.Literal.Raw.(string)
		if !ok {
			return nil, esq.Unsupported("index %s; use a string constant", args[1])
		}
		return member(args[0], name), nil
	case "now":
		return expr.Now(), nil
	case "timestamp":
		return timestamp(args)
	}

	if op, ok := binaryOperators[fun]; ok {
		return op(args[0], args[1]), nil
	}
	if method, ok := globalFunctions[fun]; ok {
		return expr.Call(method, nil, args...), nil
	}
	return nil, esq.Unsupported("function %s", fun)
}

func (p *Parser) visitArgs(exprs []*exprpb.Expr) ([]expr.Node, error) {
	args := make([]expr.Node, len(exprs))
	for i, a := range exprs {
		n, err := p.visit(a)
		if err != nil {
			return nil, err
		}
		args[i] = n
	}
	return args, nil
}

func timestamp(args []expr.Node) (expr.Node, error) {
	if len(args) == 1 {
		if c, ok := args[0].(*expr.ConstNode); ok {
			if s, ok := c.Literal.Raw.(string); ok {
				t, err := time.Parse(time.RFC3339Nano, s)
				if err != nil {
					return nil, fmt.Errorf("timestamp(%q): %w", s, err)
				}
				return expr.Value(t), nil
			}
		}
	}
	return nil, esq.Unsupported("timestamp takes one RFC 3339 string")
}
