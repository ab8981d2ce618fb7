// Package pipeline builds aggregation pipelines for the document store as plain
// immutable values. Nothing here performs I/O; values are rendered to BSON only
// when a storage.Collection executes them.
package pipeline

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Expr is an aggregation expression. The set of implementations is closed so
// executors can switch over the concrete types.
type Expr interface {
	// Render returns the BSON value understood by the aggregation framework.
	Render() any
	isExpr()
}

// FieldRef references a document field by dotted path ("$path").
type FieldRef struct{ Path string }

// VarRef references a pipeline variable ("$$name"), e.g. a lookup binding.
type VarRef struct{ Name string }

// Literal is a constant value.
type Literal struct{ Value any }

type CompareOp string

const (
	OpEq  CompareOp = "$eq"
	OpNe  CompareOp = "$ne"
	OpLt  CompareOp = "$lt"
	OpLte CompareOp = "$lte"
	OpGt  CompareOp = "$gt"
	OpGte CompareOp = "$gte"
)

// Compare is a binary comparison.
type Compare struct {
	Op          CompareOp
	Left, Right Expr
}

type LogicalOp string

const (
	OpAnd LogicalOp = "$and"
	OpOr  LogicalOp = "$or"
)

// Logical is a variadic boolean connective.
type Logical struct {
	Op   LogicalOp
	Args []Expr
}

type NotExpr struct{ X Expr }

type CondExpr struct{ If, Then, Else Expr }

type ArithOp string

const (
	OpSum      ArithOp = "$sum"
	OpSubtract ArithOp = "$subtract"
	OpMultiply ArithOp = "$multiply"
)

// Arith is a variadic arithmetic operator. Subtract takes exactly two operands.
type Arith struct {
	Op   ArithOp
	Args []Expr
}

type SizeExpr struct{ X Expr }

// FilterExpr keeps the elements of Input equal to Value. The element variable
// is bound as "$$field".
type FilterExpr struct {
	Input Expr
	Value Expr
}

type MapExpr struct {
	Input Expr
	As    string
	In    Expr
}

type RegexExpr struct {
	Input   Expr
	Pattern string
	Options string
}

type InExpr struct{ X, Seq Expr }

type FirstExpr struct{ X Expr }

type IfNullExpr struct{ X, Fallback Expr }

type ToStringExpr struct{ X Expr }

type DateToStringExpr struct {
	Format   string
	X        Expr
	Timezone string
}

// FilterVar is the element variable name used by Filter.
const FilterVar = "field"

// RemoveVar is the system variable that drops a field from $addFields/$project.
const RemoveVar = "REMOVE"

func (FieldRef) isExpr()         {}
func (VarRef) isExpr()           {}
func (Literal) isExpr()          {}
func (Compare) isExpr()          {}
func (Logical) isExpr()          {}
func (NotExpr) isExpr()          {}
func (CondExpr) isExpr()         {}
func (Arith) isExpr()            {}
func (SizeExpr) isExpr()         {}
func (FilterExpr) isExpr()       {}
func (MapExpr) isExpr()          {}
func (RegexExpr) isExpr()        {}
func (InExpr) isExpr()           {}
func (FirstExpr) isExpr()        {}
func (IfNullExpr) isExpr()       {}
func (ToStringExpr) isExpr()     {}
func (DateToStringExpr) isExpr() {}

// Field references a document field. Paths are dotted and traverse arrays.
func Field(path string) FieldRef { return FieldRef{Path: path} }

// Var references a bound variable by name.
func Var(name string) VarRef { return VarRef{Name: name} }

// Lit wraps a constant.
func Lit(v any) Literal { return Literal{Value: v} }

// Remove is the "$$REMOVE" marker.
func Remove() VarRef { return VarRef{Name: RemoveVar} }

// E converts an operand to an Expr; anything that is not already an Expr
// becomes a Literal.
func E(v any) Expr {
	if x, ok := v.(Expr); ok {
		return x
	}
	return Lit(v)
}

func exprs(vs []any) []Expr {
	out := make([]Expr, 0, len(vs))
	for _, v := range vs {
		out = append(out, E(v))
	}
	return out
}

func Eq(a, b any) Compare  { return Compare{Op: OpEq, Left: E(a), Right: E(b)} }
func Ne(a, b any) Compare  { return Compare{Op: OpNe, Left: E(a), Right: E(b)} }
func Lt(a, b any) Compare  { return Compare{Op: OpLt, Left: E(a), Right: E(b)} }
func Lte(a, b any) Compare { return Compare{Op: OpLte, Left: E(a), Right: E(b)} }
func Gt(a, b any) Compare  { return Compare{Op: OpGt, Left: E(a), Right: E(b)} }
func Gte(a, b any) Compare { return Compare{Op: OpGte, Left: E(a), Right: E(b)} }

func And(args ...any) Logical { return Logical{Op: OpAnd, Args: exprs(args)} }
func Or(args ...any) Logical  { return Logical{Op: OpOr, Args: exprs(args)} }
func Not(x any) NotExpr       { return NotExpr{X: E(x)} }

// Cond is the ternary if/then/else.
func Cond(ifExpr, thenExpr, elseExpr any) CondExpr {
	return CondExpr{If: E(ifExpr), Then: E(thenExpr), Else: E(elseExpr)}
}

// Sum adds its operands. With a single operand that resolves to a sequence the
// elements of the sequence are summed.
func Sum(args ...any) Arith { return Arith{Op: OpSum, Args: exprs(args)} }

func Subtract(a, b any) Arith { return Arith{Op: OpSubtract, Args: []Expr{E(a), E(b)}} }

func Multiply(args ...any) Arith { return Arith{Op: OpMultiply, Args: exprs(args)} }

// Negate is Multiply(x, -1).
func Negate(x any) Arith { return Multiply(x, -1) }

func Size(x any) SizeExpr { return SizeExpr{X: E(x)} }

// Filter keeps the elements of input equal to value.
func Filter(input, value any) FilterExpr { return FilterExpr{Input: E(input), Value: E(value)} }

// Map evaluates in for every element of input, with the element bound as "$$as".
func Map(input any, as string, in any) MapExpr { return MapExpr{Input: E(input), As: as, In: E(in)} }

func RegexMatch(input any, pattern string) RegexExpr {
	return RegexExpr{Input: E(input), Pattern: pattern}
}

func In(x, seq any) InExpr { return InExpr{X: E(x), Seq: E(seq)} }

func First(x any) FirstExpr { return FirstExpr{X: E(x)} }

func IfNull(x, fallback any) IfNullExpr { return IfNullExpr{X: E(x), Fallback: E(fallback)} }

func ToString(x any) ToStringExpr { return ToStringExpr{X: E(x)} }

func DateToString(format string, x any, timezone string) DateToStringExpr {
	return DateToStringExpr{Format: format, X: E(x), Timezone: timezone}
}

func (f FieldRef) Render() any { return "$" + f.Path }

func (v VarRef) Render() any { return "$$" + v.Name }

func (l Literal) Render() any {
	if s, ok := l.Value.(string); ok && strings.HasPrefix(s, "$") {
		return bson.D{{Key: "$literal", Value: s}}
	}
	return l.Value
}

func (c Compare) Render() any {
	return bson.D{{Key: string(c.Op), Value: bson.A{c.Left.Render(), c.Right.Render()}}}
}

func (l Logical) Render() any {
	return bson.D{{Key: string(l.Op), Value: renderAll(l.Args)}}
}

func (n NotExpr) Render() any {
	return bson.D{{Key: "$not", Value: bson.A{n.X.Render()}}}
}

func (c CondExpr) Render() any {
	return bson.D{{Key: "$cond", Value: bson.D{
		{Key: "if", Value: c.If.Render()},
		{Key: "then", Value: c.Then.Render()},
		{Key: "else", Value: c.Else.Render()},
	}}}
}

func (a Arith) Render() any {
	// a lone $sum operand must stay unwrapped or a sequence would not be traversed
	if a.Op == OpSum && len(a.Args) == 1 {
		return bson.D{{Key: string(a.Op), Value: a.Args[0].Render()}}
	}
	return bson.D{{Key: string(a.Op), Value: renderAll(a.Args)}}
}

func (s SizeExpr) Render() any { return bson.D{{Key: "$size", Value: s.X.Render()}} }

func (f FilterExpr) Render() any {
	return bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: f.Input.Render()},
		{Key: "as", Value: FilterVar},
		{Key: "cond", Value: Eq(Var(FilterVar), f.Value).Render()},
	}}}
}

func (m MapExpr) Render() any {
	return bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: m.Input.Render()},
		{Key: "as", Value: m.As},
		{Key: "in", Value: m.In.Render()},
	}}}
}

func (r RegexExpr) Render() any {
	body := bson.D{
		{Key: "input", Value: r.Input.Render()},
		{Key: "regex", Value: r.Pattern},
	}
	if r.Options != "" {
		body = append(body, bson.E{Key: "options", Value: r.Options})
	}
	return bson.D{{Key: "$regexMatch", Value: body}}
}

func (i InExpr) Render() any {
	return bson.D{{Key: "$in", Value: bson.A{i.X.Render(), i.Seq.Render()}}}
}

func (f FirstExpr) Render() any { return bson.D{{Key: "$first", Value: f.X.Render()}} }

func (n IfNullExpr) Render() any {
	return bson.D{{Key: "$ifNull", Value: bson.A{n.X.Render(), n.Fallback.Render()}}}
}

func (t ToStringExpr) Render() any { return bson.D{{Key: "$toString", Value: t.X.Render()}} }

func (d DateToStringExpr) Render() any {
	body := bson.D{
		{Key: "format", Value: d.Format},
		{Key: "date", Value: d.X.Render()},
	}
	if d.Timezone != "" {
		body = append(body, bson.E{Key: "timezone", Value: d.Timezone})
	}
	return bson.D{{Key: "$dateToString", Value: body}}
}

func renderAll(args []Expr) bson.A {
	out := make(bson.A, 0, len(args))
	for _, a := range args {
		out = append(out, a.Render())
	}
	return out
}
