package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record exposes named fields to the in-memory evaluator.
type Record interface {
	Field(name string) (interface{}, bool)
}

// Match evaluates e against r with SQL semantics: a comparison involving a
// NULL field is unknown, and unknown never matches, even under NOT.
func Match(e Expr, r Record) (bool, error) {
	ok, known, err := eval(e, r)
	if err != nil {
		return false, err
	}
	return ok && known, nil
}

func eval(e Expr, r Record) (ok bool, known bool, err error) {
	switch n := e.(type) {
	case nil:
		return true, true, nil
	case Cond:
		return evalCond(n, r)
	case Negation:
		ok, known, err = eval(n.Expr, r)
		return !ok, known, err
	case Group:
		unknown := false
		for _, child := range n.Exprs {
			ok, known, err = eval(child, r)
			if err != nil {
				return false, false, err
			}
			if !known {
				unknown = true
				continue
			}
			if n.Or && ok {
				return true, true, nil
			}
			if !n.Or && !ok {
				return false, true, nil
			}
		}
		if unknown {
			return false, false, nil
		}
		return !n.Or, true, nil
	}
	return false, false, fmt.Errorf("unsupported expression %T", e)
}

func evalCond(c Cond, r Record) (bool, bool, error) {
	raw, ok := r.Field(c.Field)
	if !ok {
		return false, false, fmt.Errorf("unknown field %q", c.Field)
	}
	v := normalize(raw)
	if c.Op == OpIsNull {
		return v == nil, true, nil
	}
	if v == nil {
		return false, false, nil
	}

	switch c.Op {
	case OpContains, OpStartsWith, OpEndsWith:
		s, ok := v.(string)
		if !ok {
			return false, false, fmt.Errorf("field %q is not a string", c.Field)
		}
		needle, _ := c.Value.(string)
		if c.Fold {
			s, needle = strings.ToLower(s), strings.ToLower(needle)
		}
		switch c.Op {
		case OpContains:
			return strings.Contains(s, needle), true, nil
		case OpStartsWith:
			return strings.HasPrefix(s, needle), true, nil
		default:
			return strings.HasSuffix(s, needle), true, nil
		}
	case OpIn, OpNotIn:
		list, _ := c.Value.([]interface{})
		found := false
		for _, item := range list {
			cmp, err := compareTo(v, normalize(item), c.Fold)
			if err != nil {
				return false, false, fmt.Errorf("field %q: %w", c.Field, err)
			}
			if cmp == 0 {
				found = true
				break
			}
		}
		if c.Op == OpIn {
			return found, true, nil
		}
		return !found, true, nil
	}

	arg := normalize(c.Value)
	if arg == nil {
		return false, false, nil
	}
	cmp, err := compareTo(v, arg, c.Fold)
	if err != nil {
		return false, false, fmt.Errorf("field %q: %w", c.Field, err)
	}
	switch c.Op {
	case OpEq:
		return cmp == 0, true, nil
	case OpNe:
		return cmp != 0, true, nil
	case OpLt:
		return cmp < 0, true, nil
	case OpLte:
		return cmp <= 0, true, nil
	case OpGt:
		return cmp > 0, true, nil
	case OpGte:
		return cmp >= 0, true, nil
	}
	return false, false, fmt.Errorf("unknown operator %q", c.Op)
}

// normalize dereferences pointers and collapses named and sized kinds to
// string, int64, float64, bool, decimal.Decimal or time.Time.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return t
	case time.Time:
		return t
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case int64:
		return decimal.NewFromInt(t), true
	case float64:
		return decimal.NewFromFloat(t), true
	case string:
		d, err := decimal.NewFromString(t)
		return d, err == nil
	}
	return decimal.Zero, false
}

// compareTo orders a normalized field value against a normalized argument.
func compareTo(v, arg interface{}, fold bool) (int, error) {
	if arg == nil {
		return 0, fmt.Errorf("cannot compare with null")
	}
	switch a := v.(type) {
	case string:
		b, ok := arg.(string)
		if !ok {
			return 0, fmt.Errorf("cannot compare string with %T", arg)
		}
		if fold {
			a, b = strings.ToLower(a), strings.ToLower(b)
		}
		return strings.Compare(a, b), nil
	case bool:
		b, ok := arg.(bool)
		if !ok {
			return 0, fmt.Errorf("cannot compare bool with %T", arg)
		}
		if a == b {
			return 0, nil
		}
		if !a {
			return -1, nil
		}
		return 1, nil
	case decimal.Decimal:
		b, ok := toDecimal(arg)
		if !ok {
			return 0, fmt.Errorf("cannot compare decimal with %T", arg)
		}
		return a.Cmp(b), nil
	case int64:
		switch b := arg.(type) {
		case int64:
			return cmpOrdered(a, b), nil
		case float64:
			return cmpOrdered(float64(a), b), nil
		case decimal.Decimal:
			return decimal.NewFromInt(a).Cmp(b), nil
		}
		return 0, fmt.Errorf("cannot compare int with %T", arg)
	case float64:
		switch b := arg.(type) {
		case float64:
			return cmpOrdered(a, b), nil
		case int64:
			return cmpOrdered(a, float64(b)), nil
		}
		return 0, fmt.Errorf("cannot compare float with %T", arg)
	case time.Time:
		b, ok := arg.(time.Time)
		if !ok {
			return 0, fmt.Errorf("cannot compare time with %T", arg)
		}
		return a.Compare(b), nil
	}
	return 0, fmt.Errorf("unsupported field type %T", v)
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Filter returns the records of items matching e.
func Filter[T Record](items []T, e Expr) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, item := range items {
		ok, err := Match(e, item)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// Sort orders items in place. NULLs sort last in ascending order and first in
// descending order, the way postgres does.
func Sort[T Record](items []T, order []Order) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, o := range order {
			c := compareFields(items[i], items[j], o.Field)
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareFields(a, b Record, field string) int {
	av, _ := a.Field(field)
	bv, _ := b.Field(field)
	an, bn := normalize(av), normalize(bv)
	switch {
	case an == nil && bn == nil:
		return 0
	case an == nil:
		return 1
	case bn == nil:
		return -1
	}
	c, err := compareTo(an, bn, false)
	if err != nil {
		return 0
	}
	return c
}

// Window applies the offset and limit of p.
func Window[T any](items []T, p Page) []T {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Offset >= len(items) {
		return items[:0]
	}
	items = items[p.Offset:]
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}
