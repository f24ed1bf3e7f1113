package echoapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/studyplanner/core"
)

const (
	selectParam = "select"
	orderParam  = "order"
	limitParam  = "limit"
	apiKeyParam = "apikey"
)

func badQuery(msg string) error {
	return &core.BackendError{Status: http.StatusBadRequest, Code: "bad_query", Message: msg}
}

// TableQuery is the query string of a table request:
// column filters (col=eq.value, col=is.null), order=col.asc,other.desc and limit=n.
type TableQuery struct {
	core.Query
}

func (tq *TableQuery) Bind(ctx echo.Context) error {
	for key, vals := range ctx.QueryParams() {
		if len(vals) == 0 {
			continue
		}
		val := vals[0]
		switch key {
		case selectParam, apiKeyParam:
			// every column is always returned
		case orderParam:
			if err := tq.bindOrder(val); err != nil {
				return err
			}
		case limitParam:
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				return badQuery("invalid limit: " + strconv.Quote(val))
			}
			tq.Limit = n
		default:
			if tq.Filter == nil {
				tq.Filter = make(core.Filter)
			}
			switch {
			case strings.HasPrefix(val, "eq."):
				tq.Filter[key] = strings.TrimPrefix(val, "eq.")
			case val == "is.null":
				tq.Filter[key] = nil
			default:
				return badQuery("unsupported filter on " + strconv.Quote(key) + ": " + strconv.Quote(val))
			}
		}
	}
	return nil
}

func (tq *TableQuery) bindOrder(val string) error {
	for _, term := range strings.Split(val, ",") {
		parts := strings.Split(strings.TrimSpace(term), ".")
		if parts[0] == "" {
			return badQuery("invalid order: " + strconv.Quote(val))
		}
		ord := core.DBOrdering{Field: parts[0], Ascending: true}
		for _, mod := range parts[1:] {
			switch mod {
			case "asc":
				ord.Ascending = true
			case "desc":
				ord.Ascending = false
			case "nullslast":
				// nulls always sort last
			default:
				return badQuery("invalid order: " + strconv.Quote(val))
			}
		}
		tq.Order = append(tq.Order, ord)
	}
	return nil
}

// Prefer is the parsed Prefer header of a write request.
type Prefer struct {
	Representation  bool
	MergeDuplicates bool
}

func (p *Prefer) Bind(ctx echo.Context) {
	for _, pref := range strings.Split(ctx.Request().Header.Get("Prefer"), ",") {
		switch strings.TrimSpace(pref) {
		case "return=representation":
			p.Representation = true
		case "resolution=merge-duplicates":
			p.MergeDuplicates = true
		}
	}
}
