package relaypager

import (
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// _likeEscaper escapes LIKE wildcards with '!', which needs no quoting in any
// supported dialect.
var _likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// SearchScope returns a gorm scope matching the normalized search string as a
// substring (LIKE) of any of columns. Case sensitivity follows the dialect. An empty search string or an
// empty column list leaves the query untouched. Columns containing forbidden
// symbols are ignored.
//
// Usage:
//
//	db.Model(&Person{}).Scopes(params.SearchScope("first_name", "last_name"))
func (p ListQueryParams) SearchScope(columns ...string) func(*gorm.DB) *gorm.DB {
	columns = lo.Filter(columns, func(column string, _ int) bool {
		return column != "" && lo.Every(_availableColumnNameSymbols, []rune(column))
	})

	return func(db *gorm.DB) *gorm.DB {
		if p.Search == "" || len(columns) == 0 {
			return db
		}

		pattern := "%" + _likeEscaper.Replace(p.Search) + "%"
		exprs := lo.Map(columns, func(column string, _ int) clause.Expression {
			return clause.Expr{SQL: column + " LIKE ? ESCAPE '!'", Vars: []any{pattern}}
		})

		if len(exprs) == 1 {
			return db.Where(exprs[0])
		}

		return db.Where(clause.Or(exprs...))
	}
}
