package query

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	name    string
	price   decimal.Decimal
	rank    *int
	active  bool
	created time.Time
}

func (r row) Field(name string) (interface{}, bool) {
	switch name {
	case "name":
		return r.name, true
	case "price":
		return r.price, true
	case "rank":
		return r.rank, true
	case "active":
		return r.active, true
	case "created_at":
		return r.created, true
	}
	return nil, false
}

func intp(i int) *int { return &i }

func sampleRows() []row {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []row{
		{name: "Bitcorn", price: decimal.NewFromInt(100), rank: intp(2), active: true, created: base},
		{name: "DogeMint", price: decimal.NewFromFloat(0.5), rank: intp(1), active: true, created: base.Add(time.Hour)},
		{name: "ghostcoin", price: decimal.NewFromInt(7), rank: nil, active: false, created: base.Add(2 * time.Hour)},
	}
}

func names(rows []row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.name
	}
	return out
}

func TestMatch(t *testing.T) {
	rows := sampleRows()

	tests := []struct {
		name string
		expr Expr
		want []string
	}{
		{"nil matches all", nil, []string{"Bitcorn", "DogeMint", "ghostcoin"}},
		{"eq bool", Eq("active", true), []string{"Bitcorn", "DogeMint"}},
		{"contains is case sensitive", Contains("name", "coin"), []string{"ghostcoin"}},
		{"contains insensitive", Contains("name", "COIN").Insensitive(), []string{"ghostcoin"}},
		{"starts with insensitive", StartsWith("name", "b").Insensitive(), []string{"Bitcorn"}},
		{"decimal range", Between("price", 1, "100"), []string{"Bitcorn", "ghostcoin"}},
		{"or", Or(Eq("name", "Bitcorn"), Lt("price", 1)), []string{"Bitcorn", "DogeMint"}},
		{"not", Not(Eq("active", true)), []string{"ghostcoin"}},
		{"in", In("name", "DogeMint", "ghostcoin"), []string{"DogeMint", "ghostcoin"}},
		{"null rank is unknown", Gt("rank", 0), []string{"Bitcorn", "DogeMint"}},
		{"null rank stays unknown under not", Not(Gt("rank", 1)), []string{"DogeMint"}},
		{"is null", IsNull("rank"), []string{"ghostcoin"}},
		{"time", Gt("created_at", time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC)), []string{"DogeMint", "ghostcoin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Filter(rows, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestMatchErrors(t *testing.T) {
	_, err := Match(Eq("missing", 1), sampleRows()[0])
	assert.Error(t, err)

	_, err = Match(Eq("price", true), sampleRows()[0])
	assert.Error(t, err)
}

func TestSortAndWindow(t *testing.T) {
	rows := sampleRows()

	Sort(rows, []Order{Asc("rank")})
	assert.Equal(t, []string{"DogeMint", "Bitcorn", "ghostcoin"}, names(rows))

	Sort(rows, []Order{Desc("price")})
	assert.Equal(t, []string{"Bitcorn", "ghostcoin", "DogeMint"}, names(rows))

	assert.Equal(t, []string{"ghostcoin"}, names(Window(rows, PageOf(1, 1))))
	assert.Empty(t, Window(rows, Page{Offset: 10}))
	assert.Len(t, Window(rows, Page{}), 3)
}

func TestAndOrCollapse(t *testing.T) {
	assert.Nil(t, And())
	assert.Nil(t, Or(nil, nil))
	assert.Equal(t, Eq("name", "x"), And(nil, Eq("name", "x")))
	assert.Nil(t, Not(nil))
}

func TestValidate(t *testing.T) {
	allowed := []string{"name", "price"}

	assert.NoError(t, Validate(And(Eq("name", "a"), Gt("price", 1)), Page{OrderBy: []Order{Asc("price")}}, allowed))
	assert.Error(t, Validate(Eq("owner", "a"), Page{}, allowed))
	assert.Error(t, Validate(nil, Page{OrderBy: []Order{Desc("owner")}}, allowed))
	assert.Error(t, Validate(Cond{Field: "name", Op: OpContains, Value: 3}, Page{}, allowed))
}

func TestPageDefaults(t *testing.T) {
	p := Page{}.WithDefaults(20, Asc("rank"))
	assert.Equal(t, 20, p.Limit)
	assert.Equal(t, []Order{Asc("rank")}, p.OrderBy)

	p = PageOf(2, 10).WithDefaults(20)
	assert.Equal(t, 10, p.Limit)
	assert.Equal(t, 20, p.Offset)
}
