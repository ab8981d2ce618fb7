// Package storage is the only package that talks to the document store. It
// executes pipeline.Pipeline values, normalizes identifiers to a string "id",
// enforces per-collection field whitelists and reports failures as *Error.
package storage

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/navid-fn/tradedesk/internal/pipeline"
)

// Document is a generic stored record. Documents returned by a Collection carry
// a string "id" and never "_id".
type Document = bson.M

// UpdateOp is the update operator applied by Collection.Update.
type UpdateOp string

const (
	OpSet  UpdateOp = "$set"
	OpPush UpdateOp = "$push"
	OpPull UpdateOp = "$pull"
)

// Filter selects the target of Update and Delete.
type Filter struct {
	id  string
	raw bson.M
}

// ByID targets the document with the given string id.
func ByID(id string) Filter { return Filter{id: id} }

// Where targets documents with a raw store filter. An "id" key is translated to
// identifier equality.
func Where(raw bson.M) Filter {
	if id, ok := raw["id"].(string); ok && len(raw) == 1 {
		return ByID(id)
	}
	return Filter{raw: raw}
}

// ID returns the shorthand id and whether the filter is one.
func (f Filter) ID() (string, bool) { return f.id, f.raw == nil }

// Raw returns the raw filter, nil for the id shorthand.
func (f Filter) Raw() bson.M { return f.raw }

// toBSON returns the driver filter. ok is false when the id is not a valid
// identifier, in which case nothing can match.
func (f Filter) toBSON() (bson.M, bool) {
	if f.raw == nil {
		oid, err := primitive.ObjectIDFromHex(f.id)
		if err != nil {
			return nil, false
		}
		return bson.M{"_id": oid}, true
	}
	out := make(bson.M, len(f.raw))
	for k, v := range f.raw {
		if k != "id" {
			out[k] = v
			continue
		}
		s, _ := v.(string)
		oid, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return nil, false
		}
		out["_id"] = oid
	}
	return out, true
}

// ListQuery describes one paginated read.
//
// The total is counted over Pipeline cut after its last match stage, so a
// match may read fields that an earlier lookup or computed stage adds. A skip
// or limit placed after the last match is not reflected in the total.
type ListQuery struct {
	Pipeline pipeline.Pipeline
	Page     int
	PageSize int
	Sort     []pipeline.SortField
	// Reverse flips the fetched page after the read. Prefer a descending Sort.
	Reverse bool
}

// Window returns the skip and limit for the query; zero means not applied.
func (q ListQuery) Window() (skip, limit int64) {
	if q.PageSize <= 0 {
		return 0, 0
	}
	if q.Page > 1 {
		skip = int64(q.Page-1) * int64(q.PageSize)
	}
	return skip, int64(q.PageSize)
}

// DataPipeline is the page branch: the caller's stages, sort and window.
func (q ListQuery) DataPipeline() pipeline.Pipeline {
	out := append(pipeline.Pipeline{}, q.Pipeline...)
	if len(q.Sort) > 0 {
		out = append(out, pipeline.Sort(q.Sort...))
	}
	skip, limit := q.Window()
	if skip > 0 {
		out = append(out, pipeline.Skip(skip))
	}
	if limit > 0 {
		out = append(out, pipeline.Limit(limit))
	}
	return out
}

// CountPipeline is the count branch: the caller's stages through the last
// match, without sorts.
func (q ListQuery) CountPipeline() pipeline.Pipeline {
	return append(q.Pipeline.Filters(), pipeline.Count(totalCountField))
}

// Facet is the single stage list executed by List.
func (q ListQuery) Facet() pipeline.Pipeline {
	return pipeline.Pipeline{
		pipeline.NormalizeID(),
		pipeline.Facet(
			pipeline.NewBranch("data", q.DataPipeline()...),
			pipeline.NewBranch("info", q.CountPipeline()...),
		),
	}
}

const totalCountField = "totalCount"

// PaginatedResult is one page of a List call.
type PaginatedResult struct {
	Items      []Document `json:"items"`
	PageCount  int        `json:"page_count"`
	TotalCount int        `json:"total_count"`
}

// PageCount is ceil(total/pageSize), or 1 when the result is not paginated.
func PageCount(total, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

// NewPaginatedResult assembles a result and applies the reverse flag.
func NewPaginatedResult(items []Document, total int, q ListQuery) *PaginatedResult {
	if items == nil {
		items = []Document{}
	}
	if q.Reverse {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	return &PaginatedResult{Items: items, PageCount: PageCount(total, q.PageSize), TotalCount: total}
}

// Collection is the create/read/update/delete/list contract of one named
// collection. Every call is an independent round trip; implementations hold no
// per-call state.
type Collection interface {
	Name() string
	Create(ctx context.Context, data Document) (Document, error)
	// Get returns the first document of [NormalizeID, stages...] or nil.
	Get(ctx context.Context, stages ...pipeline.Stage) (Document, error)
	Update(ctx context.Context, filter Filter, patch Document, op UpdateOp) (Document, error)
	Delete(ctx context.Context, filter Filter) (Document, error)
	List(ctx context.Context, q ListQuery) (*PaginatedResult, error)
	Count(ctx context.Context, stages ...pipeline.Stage) (int, error)
}

// Provider resolves collections by name.
type Provider interface {
	Collection(name string) (Collection, error)
}
