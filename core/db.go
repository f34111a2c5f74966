package core

import "strings"

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// SanitizeOrdering drops orderings on fields that are not in `allowed` ({field: column})
// and maps the remaining ones to their column names.
func SanitizeOrdering(ordering []DBOrdering, allowed map[string]string) []DBOrdering {
	clean := make([]DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if col, ok := allowed[strings.ToLower(ord.Field)]; ok {
			clean = append(clean, DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	return clean
}

// OrderByClause joins orderings into an SQL ORDER BY expression, falling back to `dflt`.
func OrderByClause(ordering []DBOrdering, dflt string) string {
	if len(ordering) == 0 {
		return dflt
	}
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		parts = append(parts, ord.String())
	}
	return strings.Join(parts, ", ")
}
