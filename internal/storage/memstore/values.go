package memstore

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/navid-fn/tradedesk/internal/storage"
)

// removed is the value of $$REMOVE.
type removed struct{}

// canonical deep-copies v into the small set of types the executor works on:
// nil, bool, int64, float64, string, time.Time, primitive.ObjectID,
// storage.Document and []any.
func canonical(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case bool, string, int64, float64, primitive.ObjectID, removed:
		return t
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case float32:
		return float64(t)
	case time.Time:
		return t.UTC().Truncate(time.Millisecond)
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.M:
		return canonicalMap(t)
	case map[string]any:
		return canonicalMap(t)
	case primitive.D:
		out := make(storage.Document, len(t))
		for _, e := range t {
			out[e.Key] = canonical(e.Value)
		}
		return out
	case primitive.A:
		return canonicalSlice(t)
	case []any:
		return canonicalSlice(t)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = canonical(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

func canonicalMap(m map[string]any) storage.Document {
	out := make(storage.Document, len(m))
	for k, v := range m {
		out[k] = canonical(v)
	}
	return out
}

func canonicalSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = canonical(v)
	}
	return out
}

func cloneDoc(d storage.Document) storage.Document {
	return canonicalMap(d)
}

func splitPath(path string) []string { return strings.Split(path, ".") }

// lookupPath resolves a dotted path. Arrays are traversed: the result is the
// array of the values found in each element.
func lookupPath(v any, path []string) (any, bool) {
	if len(path) == 0 {
		return v, true
	}
	switch t := v.(type) {
	case storage.Document:
		next, ok := t[path[0]]
		if !ok {
			return nil, false
		}
		return lookupPath(next, path[1:])
	case []any:
		out := make([]any, 0, len(t))
		for _, el := range t {
			if r, ok := lookupPath(el, path); ok {
				out = append(out, r)
			}
		}
		return out, true
	}
	return nil, false
}

func setPath(d storage.Document, path []string, v any) {
	for len(path) > 1 {
		next, ok := d[path[0]].(storage.Document)
		if !ok {
			next = storage.Document{}
			d[path[0]] = next
		}
		d, path = next, path[1:]
	}
	if _, ok := v.(removed); ok {
		delete(d, path[0])
		return
	}
	d[path[0]] = v
}

func deletePath(d storage.Document, path []string) {
	for len(path) > 1 {
		next, ok := d[path[0]].(storage.Document)
		if !ok {
			return
		}
		d, path = next, path[1:]
	}
	delete(d, path[0])
}

// truthy follows aggregation semantics: false, null, missing and zero are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil, removed:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	}
	return true
}

// rank is the cross-type comparison order of the document store.
func rank(v any) int {
	switch v.(type) {
	case nil, removed:
		return 1
	case int64, float64:
		return 2
	case string:
		return 3
	case storage.Document:
		return 4
	case []any:
		return 5
	case primitive.ObjectID:
		return 7
	case bool:
		return 8
	case time.Time:
		return 9
	}
	return 10
}

func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(int64(ra), int64(rb))
	}
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmpInt(x, y)
		}
		return cmpFloat(float64(x), b.(float64))
	case float64:
		y, _ := toFloat(b)
		return cmpFloat(x, y)
	case string:
		return strings.Compare(x, b.(string))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case time.Time:
		return x.Compare(b.(time.Time))
	case primitive.ObjectID:
		y := b.(primitive.ObjectID)
		return bytes.Compare(x[:], y[:])
	case []any:
		y := b.([]any)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := compare(x[i], y[i]); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(x)), int64(len(y)))
	case storage.Document:
		return compareDocs(x, b.(storage.Document))
	}
	if reflect.DeepEqual(a, b) {
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func compareDocs(a, b storage.Document) int {
	keys := func(d storage.Document) []string {
		out := make([]string, 0, len(d))
		for k := range d {
			out = append(out, k)
		}
		sort.Strings(out)
		return out
	}
	ka, kb := keys(a), keys(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		if c := strings.Compare(ka[i], kb[i]); c != 0 {
			return c
		}
		if c := compare(a[ka[i]], b[kb[i]]); c != 0 {
			return c
		}
	}
	return cmpInt(int64(len(ka)), int64(len(kb)))
}

func equal(a, b any) bool { return compare(a, b) == 0 }

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// number accumulates int64 until a float operand shows up.
type number struct {
	i       int64
	f       float64
	isFloat bool
}

func (n *number) add(v any) {
	switch t := v.(type) {
	case int64:
		n.i += t
	case float64:
		n.f += t
		n.isFloat = true
	}
}

func (n number) value() any {
	if n.isFloat {
		return n.f + float64(n.i)
	}
	return n.i
}

func isNumber(v any) bool {
	_, ok := toFloat(v)
	return ok
}
