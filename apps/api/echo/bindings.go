package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses `?ordering=a,-b`; a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// bind decodes the request body into `data`; malformed bodies are client errors.
func bind(ctx echo.Context, data interface{}, name string) error {
	if err := ctx.Bind(data); err != nil {
		if herr, ok := err.(*echo.HTTPError); ok {
			return herr
		}
		return errors.Wrapf(err, "binding to %s", name)
	}
	return nil
}
