package subgraph

import (
	"fmt"
	"strings"

	"poolstats/pkg/models"
)

// Schema describes where a subgraph keeps the fields we read.
// Sources differ in collection name and in how they name the transaction counter.
type Schema struct {
	Collection   string
	TxCountField string
}

// Predicate is a single comparison on a numeric field, rendered as `<field>_<op>: <value>`.
type Predicate struct {
	Field string
	Op    string
	Value int
}

func (p Predicate) String() string {
	return fmt.Sprintf("{%s_%s: %d}", p.Field, p.Op, p.Value)
}

// Query is the typed form of a paginated collection query.
type Query struct {
	Collection     string
	Fields         []string
	Skip           int
	First          int
	OrderBy        string
	OrderDirection string
	Where          *Predicate
}

// FilterPredicate returns the volume predicate for a tier, or nil for FilterNone.
func FilterPredicate(tier models.FilterTier) *Predicate {
	switch tier {
	case models.FilterLow:
		return &Predicate{Field: "volumeUSD", Op: "lt", Value: models.VolumeThreshold}
	case models.FilterHigh:
		return &Predicate{Field: "volumeUSD", Op: "gte", Value: models.VolumeThreshold}
	default:
		return nil
	}
}

// BuildQuery assembles the page query for a schema. Items are always ordered by id ascending
// so that skip/first pagination is stable across calls.
func BuildQuery(schema Schema, page int, tier models.FilterTier, pageSize int) Query {
	return Query{
		Collection: schema.Collection,
		Fields: []string{
			"id",
			"token0 { symbol }",
			"token1 { symbol }",
			schema.TxCountField,
			"volumeUSD",
			"token0Price",
			"token1Price",
		},
		Skip:           page * pageSize,
		First:          pageSize,
		OrderBy:        "id",
		OrderDirection: "asc",
		Where:          FilterPredicate(tier),
	}
}

// Arguments renders the collection arguments in a fixed order.
func (q Query) Arguments() string {
	args := []string{
		fmt.Sprintf("skip: %d", q.Skip),
		fmt.Sprintf("first: %d", q.First),
		fmt.Sprintf("orderBy: %s", q.OrderBy),
		fmt.Sprintf("orderDirection: %s", q.OrderDirection),
	}
	if q.Where != nil {
		args = append(args, "where: "+q.Where.String())
	}
	return strings.Join(args, ", ")
}

// String renders the GraphQL text sent upstream.
func (q Query) String() string {
	var b strings.Builder
	b.WriteString("{\n")
	fmt.Fprintf(&b, "  %s(%s) {\n", q.Collection, q.Arguments())
	for _, field := range q.Fields {
		b.WriteString("    ")
		b.WriteString(field)
		b.WriteString("\n")
	}
	b.WriteString("  }\n}")
	return b.String()
}
