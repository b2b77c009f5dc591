package relaypager

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm/clause"
)

// Operator is a comparison operator of a keyset predicate.
type Operator string

const (
	OperatorGT Operator = ">"
	OperatorLT Operator = "<"

	// operatorEq only pins the leading keys of a branch.
	operatorEq Operator = "="
)

type (
	// comparison is the condition "Column Operator Value".
	comparison struct {
		Column   string
		Operator Operator
		Value    any
	}

	// branch is a conjunction of comparisons.
	branch []comparison

	// keysetPredicate selects the rows strictly after an anchor row. It is kept
	// in disjunctive normal form: branches are joined by OR, the comparisons of
	// a branch by AND.
	//
	//	(k1 op1 c1) OR (k1 = c1 AND k2 op2 c2) OR (k1 = c1 AND k2 = c2 AND k3 op3 c3)
	keysetPredicate []branch
)

// newKeysetPredicate builds the predicate for anchor under orderings. Branch i
// pins every key before i with equality and compares key i with ">" for ASC or
// "<" for DESC. Columns are qualified with alias, values are looked up in anchor
// by OrderBy.Key. An empty anchor yields an empty predicate.
func newKeysetPredicate(orderings Orderings, anchor CursorRow, alias string) (keysetPredicate, error) {
	if len(anchor) == 0 || len(orderings) == 0 {
		return nil, nil
	}

	pinned := make(branch, 0, len(orderings))
	predicate := make(keysetPredicate, 0, len(orderings))

	for _, orderBy := range orderings {
		value, ok := anchor.Get(orderBy.Key())
		if !ok {
			return nil, fmt.Errorf("%w: missing value for column '%s'", ErrMalformedCursor, orderBy.Key())
		}

		column := orderBy.Qualified(alias)

		predicate = append(predicate, append(pinned.clone(), comparison{
			Column:   column,
			Operator: orderBy.Direction.ForOperator(),
			Value:    value,
		}))
		pinned = append(pinned, comparison{Column: column, Operator: operatorEq, Value: value})
	}

	return predicate, nil
}

func (c comparison) sql() string {
	return c.Column + " " + string(c.Operator) + " ?"
}

func (c comparison) expression() clause.Expression {
	return clause.Expr{SQL: c.sql(), Vars: []any{parseAnyValue(c.Value)}}
}

func (b branch) clone() branch {
	return append(make(branch, 0, len(b)+1), b...)
}

func (b branch) expression() clause.Expression {
	return joinExpressions(lo.Map(b, func(c comparison, _ int) clause.Expression {
		return c.expression()
	}), clause.And)
}

// Expression returns the predicate as a gorm condition, nil when it is empty.
func (p keysetPredicate) Expression() clause.Expression {
	branches := lo.FilterMap(p, func(b branch, _ int) (clause.Expression, bool) {
		exp := b.expression()
		return exp, exp != nil
	})

	return joinExpressions(branches, clause.Or)
}

// SQL renders the predicate with "?" placeholders, e.g.
//
//	((id < ?) OR (id = ? AND name < ?))
//
// An empty predicate renders as TRUE.
func (p keysetPredicate) SQL() (string, []driver.Value) {
	var values []driver.Value

	branches := lo.FilterMap(p, func(b branch, _ int) (string, bool) {
		if len(b) == 0 {
			return "", false
		}

		conditions := lo.Map(b, func(c comparison, _ int) string {
			values = append(values, parseAnyValue(c.Value))
			return c.sql()
		})

		return "(" + strings.Join(conditions, " AND ") + ")", true
	})

	if len(branches) == 0 {
		return "TRUE", nil
	}

	return "(" + strings.Join(branches, " OR ") + ")", values
}

// joinExpressions joins exprs with join. A single expression is returned
// unwrapped so single-key predicates render without extra parentheses.
func joinExpressions(exprs []clause.Expression, join func(...clause.Expression) clause.Expression) clause.Expression {
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	default:
		return join(exprs...)
	}
}

// parseAnyValue restores driver-friendly numbers from what a JSON cursor
// decodes into: json.Number becomes int64 or float64. Anything else, strings
// included, is returned as is.
func parseAnyValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}

	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}

	return n.String()
}
