package relaypager

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// Direction defines the sort direction for the requested dataset.
type Direction string

const (
	DirectionASC  Direction = "ASC"
	DirectionDESC Direction = "DESC"
)

func (o Direction) Valid() bool {
	return o == DirectionASC || o == DirectionDESC
}

// Flip returns the opposite direction.
func (o Direction) Flip() Direction {
	switch o {
	case DirectionASC:
		return DirectionDESC
	case DirectionDESC:
		return DirectionASC
	default:
		panic(fmt.Errorf("cannot flip direction '%s'", o))
	}
}

func (o Direction) ForOperator() Operator {
	switch o {
	case DirectionASC:
		return OperatorGT
	case DirectionDESC:
		return OperatorLT
	default:
		panic(fmt.Errorf("cannot map direction '%s' to operator", o))
	}
}

type (
	// Orderings is the sort order of a paginated query. Later entries break ties
	// of earlier ones, so the last entry must reference a unique column.
	Orderings []OrderBy
	OrderBy   struct {
		Column    string
		Direction Direction
	}

	ColumnAlias = string

	// ColumnMapping maps external column aliases to fully qualified column names.
	// Use it when bare column names could cause an "ambiguous column name" error.
	// Key is an external alias, value is an internal column name.
	ColumnMapping = map[ColumnAlias]string
)

var _availableColumnNameSymbols = append([]rune("_.'`\""), lo.AlphanumericCharset...)

// Key returns the column name without its table qualifier. Cursor rows and
// getters are keyed by it.
//
// Example: "o.created_at" -> "created_at".
func (o OrderBy) Key() string {
	return o.Column[strings.LastIndex(o.Column, ".")+1:]
}

// Qualified returns the column prefixed with alias, unless the column is
// already qualified or alias is empty.
func (o OrderBy) Qualified(alias string) string {
	if alias == "" || strings.Contains(o.Column, ".") {
		return o.Column
	}

	return alias + "." + o.Column
}

func (o OrderBy) validate() error {
	if !o.Direction.Valid() {
		return fmt.Errorf("invalid ordering direction '%s'", o.Direction)
	}

	if o.Column == "" {
		return fmt.Errorf("empty ordering column name")
	}

	// Guard against SQL injection by restricting allowed characters in column names.
	if !lo.Every(_availableColumnNameSymbols, []rune(o.Column)) {
		return fmt.Errorf("ordering column name contains forbidden symbols '%s'", o.Column)
	}

	return nil
}

// Flip returns a copy of the orderings with every direction inverted. The
// receiver is left untouched.
func (o Orderings) Flip() Orderings {
	return lo.Map(o, func(item OrderBy, _ int) OrderBy {
		return OrderBy{Column: item.Column, Direction: item.Direction.Flip()}
	})
}

// Last returns the terminal (tie-break) ordering.
func (o Orderings) Last() (OrderBy, bool) {
	if len(o) == 0 {
		return OrderBy{}, false
	}

	return o[len(o)-1], true
}

// ToSQLSlice converts Orderings to a slice of strings in the form
// "<order_column> <order_direction>" suitable for SQL query builders.
//
// Example: for Orderings: [{"a", "ASC"}, {"b", "DESC"}] and alias "t" returns
// ["t.a ASC", "t.b DESC"].
func (o Orderings) ToSQLSlice(alias string) []string {
	ret := make([]string, 0, len(o))
	for _, ordering := range o {
		ret = append(ret, fmt.Sprintf("%s %s", ordering.Qualified(alias), ordering.Direction))
	}

	return ret
}

// ToSQL converts Orderings to a single string
// "<order_column_1> <order_direction_1>, <order_column_2> <order_direction_2>"
// suitable for embedding into an SQL query.
//
// Usage:
//
//	query := fmt.Sprintf("SELECT * FROM table t ORDER BY %s", orderings.ToSQL("t"))
func (o Orderings) ToSQL(alias string) string {
	return strings.Join(o.ToSQLSlice(alias), ", ")
}

// Apply applies the ordering to a gorm query.
func (o Orderings) Apply(db *gorm.DB, alias string) *gorm.DB {
	if len(o) == 0 {
		return db
	}

	return db.Order(o.ToSQL(alias))
}

func (o Orderings) validate() error {
	seen := make(map[string]struct{}, len(o))

	var err error
	for _, ordering := range o {
		err = ordering.validate()
		if err != nil {
			return err
		}

		if _, ok := seen[ordering.Key()]; ok {
			return fmt.Errorf("duplicate ordering column '%s'", ordering.Key())
		}
		seen[ordering.Key()] = struct{}{}
	}

	return nil
}

// ParseSort builds Orderings from a list of strings in the format
// "column asc|desc". Column aliases are resolved via ColumnMapping.
// Returns ErrInvalidPagingArguments if an alias is not found in the mapping.
func ParseSort(sort []string, columnMapping ColumnMapping) (Orderings, error) {
	ret := make(Orderings, 0, len(sort))
	for _, s := range sort {
		orderBy, err := parseOrderBy(s, columnMapping)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPagingArguments, err)
		}

		ret = append(ret, orderBy)
	}

	return ret, nil
}

func parseOrderBy(s string, columnMapping ColumnMapping) (OrderBy, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return OrderBy{}, fmt.Errorf("invalid ordering string format '%s'", s)
	}

	alias, rawDirection := fields[0], fields[1]

	direction := Direction(strings.ToUpper(rawDirection))
	if !direction.Valid() {
		return OrderBy{}, fmt.Errorf("invalid ordering direction '%s'", rawDirection)
	}

	column, ok := columnMapping[alias]
	if !ok || column == "" {
		return OrderBy{}, fmt.Errorf(
			"invalid column alias '%s'. closest: '%s'",
			alias,
			closestAlias(alias, lo.Keys(columnMapping)),
		)
	}

	return OrderBy{Column: column, Direction: direction}, nil
}

// closestAlias picks the alias with the smallest edit distance to input, the
// lexicographically smallest one on ties.
func closestAlias(input ColumnAlias, aliases []ColumnAlias) ColumnAlias {
	distance := func(alias ColumnAlias) int {
		return levenshtein([]rune(alias), []rune(input))
	}

	return lo.MinBy(aliases, func(a, b ColumnAlias) bool {
		da, db := distance(a), distance(b)
		return da < db || (da == db && a < b)
	})
}
