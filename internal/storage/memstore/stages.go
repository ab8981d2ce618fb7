package memstore

import (
	"fmt"
	"sort"

	"github.com/navid-fn/tradedesk/internal/pipeline"
	"github.com/navid-fn/tradedesk/internal/storage"
)

// executor runs pipelines against a snapshot of the store. Callers hold the
// store lock for the whole run.
type executor struct {
	data map[string][]storage.Document
}

func (x executor) source(name string) []storage.Document {
	src := x.data[name]
	out := make([]storage.Document, len(src))
	for i, d := range src {
		out[i] = cloneDoc(d)
	}
	return out
}

func (x executor) run(p pipeline.Pipeline, docs []storage.Document, vs vars) ([]storage.Document, error) {
	var err error
	for _, st := range p {
		docs, err = x.stage(st, docs, vs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", st.Kind(), err)
		}
	}
	return docs, nil
}

func (x executor) stage(st pipeline.Stage, docs []storage.Document, vs vars) ([]storage.Document, error) {
	switch s := st.(type) {
	case pipeline.MatchStage:
		out := docs[:0:0]
		for _, d := range docs {
			ok, err := eval(s.Expr, d, vs)
			if err != nil {
				return nil, err
			}
			if truthy(ok) {
				out = append(out, d)
			}
		}
		return out, nil

	case pipeline.LookupStage:
		for _, d := range docs {
			inner := vs
			for _, b := range s.Bindings() {
				v, err := eval(b.Expr, d, vs)
				if err != nil {
					return nil, err
				}
				inner = inner.with(b.Name, v)
			}
			joined, err := x.run(s.SubPipeline(), x.source(s.From), inner)
			if err != nil {
				return nil, err
			}
			arr := make([]any, len(joined))
			for i, j := range joined {
				arr[i] = j
			}
			setPath(d, splitPath(s.As), arr)
		}
		return docs, nil

	case pipeline.ProjectStage:
		out := make([]storage.Document, 0, len(docs))
		for _, d := range docs {
			p := storage.Document{}
			if id, ok := d["id"]; ok {
				p["id"] = id
			}
			for _, name := range s.Include {
				if v, ok := lookupPath(d, splitPath(name)); ok {
					setPath(p, splitPath(name), v)
				}
			}
			for _, c := range s.Computed {
				v, err := eval(c.Expr, d, vs)
				if err != nil {
					return nil, err
				}
				setPath(p, splitPath(c.Name), v)
			}
			out = append(out, p)
		}
		return out, nil

	case pipeline.AddFieldsStage:
		for _, d := range docs {
			// every expression sees the document as it was before the stage
			before := cloneDoc(d)
			for _, c := range s.Fields {
				v, err := eval(c.Expr, before, vs)
				if err != nil {
					return nil, err
				}
				setPath(d, splitPath(c.Name), v)
			}
		}
		return docs, nil

	case pipeline.UnsetStage:
		for _, d := range docs {
			for _, name := range s.Names {
				deletePath(d, splitPath(name))
			}
		}
		return docs, nil

	case pipeline.GroupStage:
		return group(s, docs, vs)

	case pipeline.SortStage:
		sorted := append([]storage.Document(nil), docs...)
		sort.SliceStable(sorted, func(i, j int) bool {
			for _, f := range s.Fields {
				a, _ := lookupPath(sorted[i], splitPath(f.Field))
				b, _ := lookupPath(sorted[j], splitPath(f.Field))
				c := compare(a, b)
				if c == 0 {
					continue
				}
				if f.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
		return sorted, nil

	case pipeline.SkipStage:
		if s.N >= int64(len(docs)) {
			return nil, nil
		}
		return docs[s.N:], nil

	case pipeline.LimitStage:
		if s.N < int64(len(docs)) {
			return docs[:s.N], nil
		}
		return docs, nil

	case pipeline.CountStage:
		// an empty input produces no document at all
		if len(docs) == 0 {
			return nil, nil
		}
		return []storage.Document{{s.Field: int64(len(docs))}}, nil

	case pipeline.FacetStage:
		out := storage.Document{}
		for _, b := range s.Branches {
			input := make([]storage.Document, len(docs))
			for i, d := range docs {
				input[i] = cloneDoc(d)
			}
			res, err := x.run(b.Pipeline, input, vs)
			if err != nil {
				return nil, err
			}
			arr := make([]any, len(res))
			for i, r := range res {
				arr[i] = r
			}
			out[b.Name] = arr
		}
		return []storage.Document{out}, nil
	}
	return nil, fmt.Errorf("unsupported stage %T", st)
}

type groupBucket struct {
	key  any
	docs []storage.Document
}

func group(s pipeline.GroupStage, docs []storage.Document, vs vars) ([]storage.Document, error) {
	var buckets []*groupBucket
	for _, d := range docs {
		k, err := eval(s.Key, d, vs)
		if err != nil {
			return nil, err
		}
		var b *groupBucket
		for _, existing := range buckets {
			if equal(existing.key, k) {
				b = existing
				break
			}
		}
		if b == nil {
			b = &groupBucket{key: k}
			buckets = append(buckets, b)
		}
		b.docs = append(b.docs, d)
	}

	out := make([]storage.Document, 0, len(buckets))
	for _, b := range buckets {
		row := storage.Document{"_id": b.key}
		for _, a := range s.Accumulators {
			v, err := accumulate(a, b.docs, vs)
			if err != nil {
				return nil, err
			}
			row[a.Name] = v
		}
		out = append(out, row)
	}
	return out, nil
}

func accumulate(a pipeline.Accumulator, docs []storage.Document, vs vars) (any, error) {
	values := make([]any, 0, len(docs))
	for _, d := range docs {
		v, err := eval(a.Expr, d, vs)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	switch a.Op {
	case pipeline.AccSum:
		var n number
		for _, v := range values {
			n.add(v)
		}
		return n.value(), nil
	case pipeline.AccFirst:
		if len(values) == 0 {
			return nil, nil
		}
		return values[0], nil
	case pipeline.AccPush:
		return values, nil
	case pipeline.AccMax, pipeline.AccMin:
		var best any
		for _, v := range values {
			if v == nil {
				continue
			}
			c := compare(v, best)
			if best == nil || (a.Op == pipeline.AccMax && c > 0) || (a.Op == pipeline.AccMin && c < 0) {
				best = v
			}
		}
		return best, nil
	}
	return nil, fmt.Errorf("unsupported accumulator %s", a.Op)
}
