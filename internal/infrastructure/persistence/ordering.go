package persistence

import (
	"strings"

	"gorm.io/gorm/clause"
)

// sortColumns whitelists the columns a listing can be ordered by. Client
// input never reaches SQL text: unknown columns fall back to the default.
type sortColumns struct {
	allowed  map[string]struct{}
	fallback string
}

func newSortColumns(fallback string, columns ...string) sortColumns {
	s := sortColumns{allowed: make(map[string]struct{}, len(columns)+1), fallback: fallback}
	s.allowed[fallback] = struct{}{}
	for _, c := range columns {
		s.allowed[c] = struct{}{}
	}
	return s
}

// column returns field if it is allowed, else the fallback
func (s sortColumns) column(field string) string {
	field = strings.ToLower(strings.TrimSpace(field))
	if _, ok := s.allowed[field]; ok {
		return field
	}
	return s.fallback
}

// orderBy sorts by field in direction dir, descending unless dir is "asc".
// id breaks ties so pages do not overlap.
func (s sortColumns) orderBy(field, dir string) clause.OrderBy {
	col := s.column(field)
	desc := !strings.EqualFold(strings.TrimSpace(dir), "asc")
	order := clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: col}, Desc: desc}}}
	if col != "id" {
		order.Columns = append(order.Columns, clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc})
	}
	return order
}

var agreementSort = newSortColumns("created_at",
	"id", "updated_at", "title", "total_value", "status", "activated_at")
