// Package gormstore implements the store contracts on top of gorm and
// postgres. Filters from pkg/query are rendered into parameterised WHERE
// clauses over a fixed column whitelist per table.
package gormstore

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coinfolio-engine/pkg/apperr"
	"coinfolio-engine/pkg/query"
)

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// classify maps gorm errors onto apperr kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.Wrap(apperr.KindNotFound, op, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(apperr.KindConflict, op, err)
	}
	return apperr.Wrap(apperr.KindPersistence, op, err)
}

// scope applies filter, ordering and window to db.
func scope(db *gorm.DB, op string, filter query.Expr, page query.Page, columns []string) (*gorm.DB, error) {
	if err := query.Validate(filter, page, columns); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, op, err)
	}
	if filter != nil {
		sql, vars, err := render(filter)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInvalidArgument, op, err)
		}
		db = db.Where(sql, vars...)
	}
	for _, o := range page.OrderBy {
		db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Field}, Desc: o.Desc})
	}
	if page.Limit > 0 {
		db = db.Limit(page.Limit)
	}
	if page.Offset > 0 {
		db = db.Offset(page.Offset)
	}
	return db, nil
}

// render turns an expression tree into SQL with ? placeholders.
func render(e query.Expr) (string, []interface{}, error) {
	switch n := e.(type) {
	case query.Cond:
		return renderCond(n)
	case query.Negation:
		sql, vars, err := render(n.Expr)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", vars, nil
	case query.Group:
		parts := make([]string, 0, len(n.Exprs))
		var vars []interface{}
		for _, child := range n.Exprs {
			sql, childVars, err := render(child)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, "("+sql+")")
			vars = append(vars, childVars...)
		}
		sep := " AND "
		if n.Or {
			sep = " OR "
		}
		return strings.Join(parts, sep), vars, nil
	}
	return "", nil, fmt.Errorf("unsupported expression %T", e)
}

func renderCond(c query.Cond) (string, []interface{}, error) {
	col := quoteColumn(c.Field)
	if c.Fold {
		col = "LOWER(" + col + ")"
	}
	placeholder := "?"
	if c.Fold {
		placeholder = "LOWER(?)"
	}

	switch c.Op {
	case query.OpIsNull:
		return quoteColumn(c.Field) + " IS NULL", nil, nil
	case query.OpContains:
		return col + " LIKE " + placeholder, []interface{}{"%" + escapeLike(c.Value.(string)) + "%"}, nil
	case query.OpStartsWith:
		return col + " LIKE " + placeholder, []interface{}{escapeLike(c.Value.(string)) + "%"}, nil
	case query.OpEndsWith:
		return col + " LIKE " + placeholder, []interface{}{"%" + escapeLike(c.Value.(string))}, nil
	case query.OpIn, query.OpNotIn:
		list := c.Value.([]interface{})
		if len(list) == 0 {
			if c.Op == query.OpIn {
				return "1 = 0", nil, nil
			}
			return "1 = 1", nil, nil
		}
		marks := make([]string, len(list))
		vars := make([]interface{}, len(list))
		for i, v := range list {
			marks[i] = placeholder
			vars[i] = sqlValue(v)
		}
		keyword := " IN ("
		if c.Op == query.OpNotIn {
			keyword = " NOT IN ("
		}
		return col + keyword + strings.Join(marks, ", ") + ")", vars, nil
	}

	operators := map[query.Op]string{
		query.OpEq:  " = ",
		query.OpNe:  " <> ",
		query.OpLt:  " < ",
		query.OpLte: " <= ",
		query.OpGt:  " > ",
		query.OpGte: " >= ",
	}
	sqlOp, ok := operators[c.Op]
	if !ok {
		return "", nil, fmt.Errorf("unknown operator %q", c.Op)
	}
	return col + sqlOp + placeholder, []interface{}{sqlValue(c.Value)}, nil
}

func quoteColumn(name string) string {
	return `"` + name + `"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// sqlValue unwraps named string and integer types such as models.TradeSide.
func sqlValue(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Bool:
		return rv.Bool()
	}
	return v
}
