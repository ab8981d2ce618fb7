package memstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/navid-fn/tradedesk/internal/pipeline"
	"github.com/navid-fn/tradedesk/internal/storage"
)

type vars map[string]any

func (v vars) with(name string, value any) vars {
	out := make(vars, len(v)+1)
	for k, x := range v {
		out[k] = x
	}
	out[name] = value
	return out
}

func eval(e pipeline.Expr, doc storage.Document, vs vars) (any, error) {
	switch x := e.(type) {
	case pipeline.FieldRef:
		v, _ := lookupPath(doc, splitPath(x.Path))
		return v, nil

	case pipeline.VarRef:
		return resolveVar(x.Name, doc, vs)

	case pipeline.Literal:
		return canonical(x.Value), nil

	case pipeline.Compare:
		l, err := eval(x.Left, doc, vs)
		if err != nil {
			return nil, err
		}
		r, err := eval(x.Right, doc, vs)
		if err != nil {
			return nil, err
		}
		c := compare(l, r)
		switch x.Op {
		case pipeline.OpEq:
			return c == 0, nil
		case pipeline.OpNe:
			return c != 0, nil
		case pipeline.OpLt:
			return c < 0, nil
		case pipeline.OpLte:
			return c <= 0, nil
		case pipeline.OpGt:
			return c > 0, nil
		case pipeline.OpGte:
			return c >= 0, nil
		}
		return nil, fmt.Errorf("unsupported comparison %s", x.Op)

	case pipeline.Logical:
		for _, a := range x.Args {
			v, err := eval(a, doc, vs)
			if err != nil {
				return nil, err
			}
			if x.Op == pipeline.OpAnd && !truthy(v) {
				return false, nil
			}
			if x.Op == pipeline.OpOr && truthy(v) {
				return true, nil
			}
		}
		return x.Op == pipeline.OpAnd, nil

	case pipeline.NotExpr:
		v, err := eval(x.X, doc, vs)
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil

	case pipeline.CondExpr:
		c, err := eval(x.If, doc, vs)
		if err != nil {
			return nil, err
		}
		if truthy(c) {
			return eval(x.Then, doc, vs)
		}
		return eval(x.Else, doc, vs)

	case pipeline.Arith:
		return evalArith(x, doc, vs)

	case pipeline.SizeExpr:
		v, err := eval(x.X, doc, vs)
		if err != nil {
			return nil, err
		}
		arr, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("$size needs an array, got %T", v)
		}
		return int64(len(arr)), nil

	case pipeline.FilterExpr:
		in, err := eval(x.Input, doc, vs)
		if err != nil || in == nil {
			return nil, err
		}
		arr, ok := in.([]any)
		if !ok {
			return nil, fmt.Errorf("$filter needs an array, got %T", in)
		}
		out := make([]any, 0, len(arr))
		for _, el := range arr {
			keep, err := eval(pipeline.Eq(pipeline.Var(pipeline.FilterVar), x.Value), doc, vs.with(pipeline.FilterVar, el))
			if err != nil {
				return nil, err
			}
			if truthy(keep) {
				out = append(out, el)
			}
		}
		return out, nil

	case pipeline.MapExpr:
		in, err := eval(x.Input, doc, vs)
		if err != nil || in == nil {
			return nil, err
		}
		arr, ok := in.([]any)
		if !ok {
			return nil, fmt.Errorf("$map needs an array, got %T", in)
		}
		out := make([]any, 0, len(arr))
		for _, el := range arr {
			v, err := eval(x.In, doc, vs.with(x.As, el))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case pipeline.RegexExpr:
		in, err := eval(x.Input, doc, vs)
		if err != nil {
			return nil, err
		}
		if in == nil {
			return false, nil
		}
		s, ok := in.(string)
		if !ok {
			return nil, fmt.Errorf("$regexMatch needs a string, got %T", in)
		}
		pattern := x.Pattern
		if strings.Contains(x.Options, "i") {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		return re.MatchString(s), nil

	case pipeline.InExpr:
		v, err := eval(x.X, doc, vs)
		if err != nil {
			return nil, err
		}
		seq, err := eval(x.Seq, doc, vs)
		if err != nil {
			return nil, err
		}
		arr, ok := seq.([]any)
		if !ok {
			return nil, fmt.Errorf("$in needs an array, got %T", seq)
		}
		for _, el := range arr {
			if equal(el, v) {
				return true, nil
			}
		}
		return false, nil

	case pipeline.FirstExpr:
		v, err := eval(x.X, doc, vs)
		if err != nil {
			return nil, err
		}
		arr, ok := v.([]any)
		if !ok || len(arr) == 0 {
			return nil, nil
		}
		return arr[0], nil

	case pipeline.IfNullExpr:
		v, err := eval(x.X, doc, vs)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return eval(x.Fallback, doc, vs)
		}
		return v, nil

	case pipeline.ToStringExpr:
		v, err := eval(x.X, doc, vs)
		if err != nil {
			return nil, err
		}
		return toString(v), nil

	case pipeline.DateToStringExpr:
		v, err := eval(x.X, doc, vs)
		if err != nil || v == nil {
			return nil, err
		}
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("$dateToString needs a date, got %T", v)
		}
		if x.Timezone != "" {
			loc, err := time.LoadLocation(x.Timezone)
			if err != nil {
				return nil, err
			}
			t = t.In(loc)
		}
		return formatDate(x.Format, t), nil
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}

func resolveVar(name string, doc storage.Document, vs vars) (any, error) {
	head, rest, _ := strings.Cut(name, ".")
	var root any
	switch head {
	case pipeline.RemoveVar:
		return removed{}, nil
	case "ROOT", "CURRENT":
		root = doc
	default:
		v, ok := vs[head]
		if !ok {
			return nil, fmt.Errorf("use of undefined variable %q", head)
		}
		root = v
	}
	if rest == "" {
		return root, nil
	}
	v, _ := lookupPath(root, splitPath(rest))
	return v, nil
}

func evalArith(x pipeline.Arith, doc storage.Document, vs vars) (any, error) {
	args := make([]any, 0, len(x.Args))
	for _, a := range x.Args {
		v, err := eval(a, doc, vs)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	switch x.Op {
	case pipeline.OpSum:
		var n number
		if len(args) == 1 {
			if arr, ok := args[0].([]any); ok {
				for _, el := range arr {
					n.add(el)
				}
				return n.value(), nil
			}
		}
		// non-numeric operands, arrays included, are ignored
		for _, a := range args {
			n.add(a)
		}
		return n.value(), nil

	case pipeline.OpMultiply:
		product := number{i: 1}
		for _, a := range args {
			switch t := a.(type) {
			case nil:
				return nil, nil
			case int64:
				if product.isFloat {
					product.f *= float64(t)
				} else {
					product.i *= t
				}
			case float64:
				if !product.isFloat {
					product.f, product.i, product.isFloat = float64(product.i), 0, true
				}
				product.f *= t
			default:
				return nil, fmt.Errorf("$multiply only supports numbers, got %T", a)
			}
		}
		return product.value(), nil

	case pipeline.OpSubtract:
		if len(args) != 2 {
			return nil, fmt.Errorf("$subtract takes 2 operands, got %d", len(args))
		}
		a, b := args[0], args[1]
		if a == nil || b == nil {
			return nil, nil
		}
		if ta, ok := a.(time.Time); ok {
			switch tb := b.(type) {
			case time.Time:
				return ta.Sub(tb).Milliseconds(), nil
			case int64:
				return ta.Add(-time.Duration(tb) * time.Millisecond), nil
			}
		}
		ia, aInt := a.(int64)
		ib, bInt := b.(int64)
		if aInt && bInt {
			return ia - ib, nil
		}
		fa, okA := toFloat(a)
		fb, okB := toFloat(b)
		if !okA || !okB {
			return nil, fmt.Errorf("$subtract only supports numbers and dates, got %T and %T", a, b)
		}
		return fa - fb, nil
	}
	return nil, fmt.Errorf("unsupported arithmetic %s", x.Op)
}

func toString(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	case primitive.ObjectID:
		return t.Hex()
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format("2006-01-02T15:04:05.000Z")
	}
	return fmt.Sprint(v)
}

var dateTokens = strings.NewReplacer(
	"%Y", "2006",
	"%m", "01",
	"%d", "02",
	"%H", "15",
	"%M", "04",
	"%S", "05",
	"%L", "000",
	"%z", "-0700",
	"%%", "%",
)

func formatDate(format string, t time.Time) string {
	return t.Format(dateTokens.Replace(format))
}
