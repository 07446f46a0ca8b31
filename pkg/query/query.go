// Package query is the filter and pagination language shared by the SQL and
// in-memory stores. A nil Expr matches every record.
package query

import (
	"fmt"
	"strings"
)

// Op is a comparison operator.
type Op string

const (
	OpEq         Op = "eq"
	OpNe         Op = "ne"
	OpIn         Op = "in"
	OpNotIn      Op = "not_in"
	OpContains   Op = "contains"
	OpStartsWith Op = "starts_with"
	OpEndsWith   Op = "ends_with"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpIsNull     Op = "is_null"
)

// Expr is a node of a filter tree.
type Expr interface {
	expr()
}

// Cond compares a single field with a value.
type Cond struct {
	Field string
	Op    Op
	Value interface{}
	// Fold makes string comparisons case-insensitive.
	Fold bool
}

// Group joins child expressions with AND or OR.
type Group struct {
	Or    bool
	Exprs []Expr
}

// Negation inverts its child.
type Negation struct {
	Expr Expr
}

func (Cond) expr()     {}
func (Group) expr()    {}
func (Negation) expr() {}

func Eq(field string, v interface{}) Cond           { return Cond{Field: field, Op: OpEq, Value: v} }
func Ne(field string, v interface{}) Cond           { return Cond{Field: field, Op: OpNe, Value: v} }
func In(field string, vs ...interface{}) Cond       { return Cond{Field: field, Op: OpIn, Value: vs} }
func NotIn(field string, vs ...interface{}) Cond    { return Cond{Field: field, Op: OpNotIn, Value: vs} }
func Contains(field, s string) Cond                 { return Cond{Field: field, Op: OpContains, Value: s} }
func StartsWith(field, s string) Cond               { return Cond{Field: field, Op: OpStartsWith, Value: s} }
func EndsWith(field, s string) Cond                 { return Cond{Field: field, Op: OpEndsWith, Value: s} }
func Lt(field string, v interface{}) Cond           { return Cond{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v interface{}) Cond          { return Cond{Field: field, Op: OpLte, Value: v} }
func Gt(field string, v interface{}) Cond           { return Cond{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v interface{}) Cond          { return Cond{Field: field, Op: OpGte, Value: v} }
func IsNull(field string) Cond                      { return Cond{Field: field, Op: OpIsNull} }
func Between(field string, lo, hi interface{}) Expr { return And(Gte(field, lo), Lte(field, hi)) }

// Insensitive returns a case-insensitive copy of c.
func (c Cond) Insensitive() Cond {
	c.Fold = true
	return c
}

// And joins exprs, dropping nil entries.
func And(exprs ...Expr) Expr { return group(false, exprs) }

// Or joins exprs, dropping nil entries.
func Or(exprs ...Expr) Expr { return group(true, exprs) }

// Not negates e.
func Not(e Expr) Expr {
	if e == nil {
		return nil
	}
	return Negation{Expr: e}
}

func group(or bool, exprs []Expr) Expr {
	kept := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if e != nil {
			kept = append(kept, e)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return Group{Or: or, Exprs: kept}
}

// Order sorts by a single field.
type Order struct {
	Field string
	Desc  bool
}

func Asc(field string) Order  { return Order{Field: field} }
func Desc(field string) Order { return Order{Field: field, Desc: true} }

// Page bounds a findMany call.
type Page struct {
	Limit   int
	Offset  int
	OrderBy []Order
}

// PageOf builds a page-numbered window; page is zero based.
func PageOf(page, limit int, order ...Order) Page {
	if page < 0 {
		page = 0
	}
	return Page{Limit: limit, Offset: page * limit, OrderBy: order}
}

// WithDefaults fills an unset limit and ordering.
func (p Page) WithDefaults(limit int, order ...Order) Page {
	if p.Limit <= 0 {
		p.Limit = limit
	}
	if len(p.OrderBy) == 0 {
		p.OrderBy = order
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Validate checks every field in e and in the ordering against the allowed set.
func Validate(e Expr, p Page, allowed []string) error {
	set := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		set[f] = struct{}{}
	}
	for _, o := range p.OrderBy {
		if _, ok := set[o.Field]; !ok {
			return fmt.Errorf("unknown order field %q", o.Field)
		}
	}
	return walk(e, func(c Cond) error {
		if _, ok := set[c.Field]; !ok {
			return fmt.Errorf("unknown filter field %q", c.Field)
		}
		switch c.Op {
		case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpIsNull:
		case OpIn, OpNotIn:
			if _, ok := c.Value.([]interface{}); !ok {
				return fmt.Errorf("operator %s on %q needs a list", c.Op, c.Field)
			}
		case OpContains, OpStartsWith, OpEndsWith:
			if _, ok := c.Value.(string); !ok {
				return fmt.Errorf("operator %s on %q needs a string", c.Op, c.Field)
			}
		default:
			return fmt.Errorf("unknown operator %q", c.Op)
		}
		return nil
	})
}

func walk(e Expr, fn func(Cond) error) error {
	switch n := e.(type) {
	case nil:
		return nil
	case Cond:
		return fn(n)
	case Group:
		for _, child := range n.Exprs {
			if err := walk(child, fn); err != nil {
				return err
			}
		}
		return nil
	case Negation:
		return walk(n.Expr, fn)
	}
	return fmt.Errorf("unsupported expression %T", e)
}

// String renders e for logs.
func String(e Expr) string {
	switch n := e.(type) {
	case nil:
		return "true"
	case Cond:
		op := string(n.Op)
		if n.Fold {
			op += "_i"
		}
		return fmt.Sprintf("%s %s %v", n.Field, op, n.Value)
	case Group:
		parts := make([]string, len(n.Exprs))
		for i, child := range n.Exprs {
			parts[i] = String(child)
		}
		sep := " AND "
		if n.Or {
			sep = " OR "
		}
		return "(" + strings.Join(parts, sep) + ")"
	case Negation:
		return "NOT " + String(n.Expr)
	}
	return fmt.Sprintf("%v", e)
}
