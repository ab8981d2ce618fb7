package pipeline

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type StageKind string

const (
	KindMatch     StageKind = "$match"
	KindLookup    StageKind = "$lookup"
	KindProject   StageKind = "$project"
	KindAddFields StageKind = "$addFields"
	KindUnset     StageKind = "$unset"
	KindGroup     StageKind = "$group"
	KindSort      StageKind = "$sort"
	KindSkip      StageKind = "$skip"
	KindLimit     StageKind = "$limit"
	KindCount     StageKind = "$count"
	KindFacet     StageKind = "$facet"
)

// Stage is one step of an aggregation pipeline.
type Stage interface {
	Kind() StageKind
	Render() bson.D
}

// Pipeline is an ordered list of stages.
type Pipeline []Stage

// Render converts the pipeline into the driver representation.
func (p Pipeline) Render() mongo.Pipeline {
	out := make(mongo.Pipeline, 0, len(p))
	for _, s := range p {
		out = append(out, s.Render())
	}
	return out
}

// Filters returns the stages that decide which documents p yields: every
// stage up to the last match, sorts excluded. A lookup or computed field that
// a later match reads therefore stays; trailing enrichment is dropped.
func (p Pipeline) Filters() Pipeline {
	last := -1
	for i, s := range p {
		if s.Kind() == KindMatch {
			last = i
		}
	}
	var out Pipeline
	for _, s := range p[:last+1] {
		if s.Kind() != KindSort {
			out = append(out, s)
		}
	}
	return out
}

// Computed is a named output expression.
type Computed struct {
	Name string
	Expr Expr
}

// Fields is an ordered set of computed fields.
type Fields []Computed

// Set names an output expression. Non-Expr values become literals.
func Set(name string, v any) Computed { return Computed{Name: name, Expr: E(v)} }

func (f Fields) render() bson.D {
	out := make(bson.D, 0, len(f))
	for _, c := range f {
		out = append(out, bson.E{Key: c.Name, Value: c.Expr.Render()})
	}
	return out
}

type MatchStage struct{ Expr Expr }

// Match keeps documents for which expr evaluates to true.
func Match(expr Expr) MatchStage { return MatchStage{Expr: expr} }

// MatchAll is Match(And(conds...)) with nil conditions dropped. With no
// conditions left every document matches.
func MatchAll(conds ...Expr) MatchStage {
	args := make([]any, 0, len(conds))
	for _, c := range conds {
		if c != nil {
			args = append(args, c)
		}
	}
	if len(args) == 0 {
		return Match(Lit(true))
	}
	if len(args) == 1 {
		return Match(args[0].(Expr))
	}
	return Match(And(args...))
}

func (MatchStage) Kind() StageKind { return KindMatch }

func (m MatchStage) Render() bson.D {
	return bson.D{{Key: string(KindMatch), Value: bson.D{{Key: "$expr", Value: m.Expr.Render()}}}}
}

// Binding binds a lookup variable to an expression evaluated on the local document.
type Binding struct {
	Name string
	Expr Expr
}

// LookupStage joins another collection through a correlated sub-pipeline.
// The local field is always bound as a variable of the same name, the joined
// documents are id-normalized before Conditions are applied, and with no
// Conditions the join is Eq(Field("id"), Var(LocalField)).
type LookupStage struct {
	From       string
	LocalField string
	Let        []Binding
	Conditions []Expr
	Pipeline   Pipeline
	As         string
}

type LookupOption func(*LookupStage)

// Let binds an additional variable for the sub-pipeline.
func Let(name string, v any) LookupOption {
	return func(l *LookupStage) { l.Let = append(l.Let, Binding{Name: name, Expr: E(v)}) }
}

// On replaces the default correlation condition.
func On(conds ...Expr) LookupOption {
	return func(l *LookupStage) { l.Conditions = append(l.Conditions, conds...) }
}

// Then appends stages to the sub-pipeline, after normalization and correlation.
func Then(stages ...Stage) LookupOption {
	return func(l *LookupStage) { l.Pipeline = append(l.Pipeline, stages...) }
}

// As names the output array field. It defaults to the joined collection name.
func As(name string) LookupOption {
	return func(l *LookupStage) { l.As = name }
}

// Lookup joins from on localField.
func Lookup(from, localField string, opts ...LookupOption) LookupStage {
	l := LookupStage{From: from, LocalField: localField, As: from}
	for _, opt := range opts {
		opt(&l)
	}
	return l
}

// Bindings returns every variable visible to the sub-pipeline, local field first.
func (l LookupStage) Bindings() []Binding {
	out := make([]Binding, 0, len(l.Let)+1)
	out = append(out, Binding{Name: l.LocalField, Expr: Field(l.LocalField)})
	return append(out, l.Let...)
}

// Correlation returns the effective join conditions.
func (l LookupStage) Correlation() []Expr {
	if len(l.Conditions) > 0 {
		return l.Conditions
	}
	return []Expr{Eq(Field("id"), Var(l.LocalField))}
}

// SubPipeline is the full pipeline run against the joined collection.
func (l LookupStage) SubPipeline() Pipeline {
	conds := l.Correlation()
	args := make([]any, 0, len(conds))
	for _, c := range conds {
		args = append(args, c)
	}
	sub := Pipeline{NormalizeID(), Match(And(args...))}
	return append(sub, l.Pipeline...)
}

func (LookupStage) Kind() StageKind { return KindLookup }

func (l LookupStage) Render() bson.D {
	let := bson.D{}
	for _, b := range l.Bindings() {
		let = append(let, bson.E{Key: b.Name, Value: b.Expr.Render()})
	}
	return bson.D{{Key: string(KindLookup), Value: bson.D{
		{Key: "from", Value: l.From},
		{Key: "let", Value: let},
		{Key: "pipeline", Value: l.SubPipeline().Render()},
		{Key: "as", Value: l.As},
	}}}
}

// ProjectStage keeps id, the Include fields and the Computed fields.
type ProjectStage struct {
	Include  []string
	Computed Fields
}

func Project(include []string, computed ...Computed) ProjectStage {
	return ProjectStage{Include: include, Computed: computed}
}

func (ProjectStage) Kind() StageKind { return KindProject }

func (p ProjectStage) Render() bson.D {
	body := bson.D{{Key: "id", Value: true}}
	for _, name := range p.Include {
		if name == "id" {
			continue
		}
		body = append(body, bson.E{Key: name, Value: true})
	}
	body = append(body, p.Computed.render()...)
	return bson.D{{Key: string(KindProject), Value: body}}
}

type AddFieldsStage struct{ Fields Fields }

func AddFields(fields ...Computed) AddFieldsStage { return AddFieldsStage{Fields: fields} }

func (AddFieldsStage) Kind() StageKind { return KindAddFields }

func (a AddFieldsStage) Render() bson.D {
	return bson.D{{Key: string(KindAddFields), Value: a.Fields.render()}}
}

// NormalizeID exposes the store identifier as a string "id" and drops "_id".
func NormalizeID() AddFieldsStage {
	return AddFields(
		Set("id", ToString(Field("_id"))),
		Set("_id", Remove()),
	)
}

type UnsetStage struct{ Names []string }

// DropFields removes fields from the output.
func DropFields(names ...string) UnsetStage { return UnsetStage{Names: names} }

func (UnsetStage) Kind() StageKind { return KindUnset }

func (u UnsetStage) Render() bson.D {
	names := make(bson.A, 0, len(u.Names))
	for _, n := range u.Names {
		names = append(names, n)
	}
	return bson.D{{Key: string(KindUnset), Value: names}}
}

type AccumulatorOp string

const (
	AccSum   AccumulatorOp = "$sum"
	AccFirst AccumulatorOp = "$first"
	AccPush  AccumulatorOp = "$push"
	AccMax   AccumulatorOp = "$max"
	AccMin   AccumulatorOp = "$min"
)

type Accumulator struct {
	Name string
	Op   AccumulatorOp
	Expr Expr
}

func Accumulate(name string, op AccumulatorOp, v any) Accumulator {
	return Accumulator{Name: name, Op: op, Expr: E(v)}
}

// GroupStage groups by Key; the key is exposed as "_id" in the output.
type GroupStage struct {
	Key          Expr
	Accumulators []Accumulator
}

func Group(key any, accs ...Accumulator) GroupStage {
	return GroupStage{Key: E(key), Accumulators: accs}
}

func (GroupStage) Kind() StageKind { return KindGroup }

func (g GroupStage) Render() bson.D {
	body := bson.D{{Key: "_id", Value: g.Key.Render()}}
	for _, a := range g.Accumulators {
		body = append(body, bson.E{Key: a.Name, Value: bson.D{{Key: string(a.Op), Value: a.Expr.Render()}}})
	}
	return bson.D{{Key: string(KindGroup), Value: body}}
}

type SortField struct {
	Field string
	Desc  bool
}

func Asc(field string) SortField  { return SortField{Field: field} }
func Desc(field string) SortField { return SortField{Field: field, Desc: true} }

type SortStage struct{ Fields []SortField }

func Sort(fields ...SortField) SortStage { return SortStage{Fields: fields} }

func (SortStage) Kind() StageKind { return KindSort }

func (s SortStage) Render() bson.D {
	body := make(bson.D, 0, len(s.Fields))
	for _, f := range s.Fields {
		dir := 1
		if f.Desc {
			dir = -1
		}
		body = append(body, bson.E{Key: f.Field, Value: dir})
	}
	return bson.D{{Key: string(KindSort), Value: body}}
}

type SkipStage struct{ N int64 }

func Skip(n int64) SkipStage { return SkipStage{N: n} }

func (SkipStage) Kind() StageKind { return KindSkip }

func (s SkipStage) Render() bson.D { return bson.D{{Key: string(KindSkip), Value: s.N}} }

type LimitStage struct{ N int64 }

func Limit(n int64) LimitStage { return LimitStage{N: n} }

func (LimitStage) Kind() StageKind { return KindLimit }

func (l LimitStage) Render() bson.D { return bson.D{{Key: string(KindLimit), Value: l.N}} }

// CountStage replaces the input with a single document {Field: n}.
type CountStage struct{ Field string }

func Count(field string) CountStage { return CountStage{Field: field} }

func (CountStage) Kind() StageKind { return KindCount }

func (c CountStage) Render() bson.D { return bson.D{{Key: string(KindCount), Value: c.Field}} }

type Branch struct {
	Name     string
	Pipeline Pipeline
}

func NewBranch(name string, stages ...Stage) Branch {
	return Branch{Name: name, Pipeline: stages}
}

// FacetStage runs every branch over the same input and emits one document with
// one array field per branch.
type FacetStage struct{ Branches []Branch }

func Facet(branches ...Branch) FacetStage { return FacetStage{Branches: branches} }

func (FacetStage) Kind() StageKind { return KindFacet }

func (f FacetStage) Render() bson.D {
	body := make(bson.D, 0, len(f.Branches))
	for _, b := range f.Branches {
		stages := b.Pipeline.Render()
		// an empty $facet branch is rejected by the server
		if len(stages) == 0 {
			stages = mongo.Pipeline{Match(Lit(true)).Render()}
		}
		body = append(body, bson.E{Key: b.Name, Value: stages})
	}
	return bson.D{{Key: string(KindFacet), Value: body}}
}
