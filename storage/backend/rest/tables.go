package rest

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	sgrest "github.com/sendgrid/rest"

	"github.com/trezcool/studyplanner/core"
)

const (
	preferRepresentation = "return=representation"
	preferMinimal        = "return=minimal"
	preferMerge          = "resolution=merge-duplicates," + preferRepresentation
)

// filterQuery renders filter as col=eq.value parameters.
func filterQuery(filter core.Filter) (map[string]string, error) {
	q := make(map[string]string, len(filter)+2)
	for col, v := range filter {
		if v == nil {
			q[col] = "is.null"
			continue
		}
		s, err := formatValue(v)
		if err != nil {
			return nil, errors.Wrapf(err, "formatting filter on %q", col)
		}
		q[col] = "eq." + s
	}
	return q, nil
}

func formatValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Client) tableRequest(ctx context.Context, req request) (request, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return req, err
	}
	req.token = token
	return req, nil
}

func (c *Client) Select(ctx context.Context, table string, q core.Query) ([]core.Row, error) {
	query, err := filterQuery(q.Filter)
	if err != nil {
		return nil, err
	}
	query["select"] = "*"
	if len(q.Order) > 0 {
		terms := make([]string, 0, len(q.Order))
		for _, ord := range q.Order {
			direction := "desc"
			if ord.Ascending {
				direction = "asc"
			}
			terms = append(terms, ord.Field+"."+direction)
		}
		query["order"] = strings.Join(terms, ",")
	}
	if q.Limit > 0 {
		query["limit"] = strconv.Itoa(q.Limit)
	}

	req, err := c.tableRequest(ctx, request{method: sgrest.Get, path: "/rest/v1/" + table, query: query})
	if err != nil {
		return nil, err
	}
	rows := make([]core.Row, 0)
	if err = c.do(ctx, req, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) Insert(ctx context.Context, table string, row core.Row) (core.Row, error) {
	return c.write(ctx, table, row, preferRepresentation)
}

// Upsert inserts row or merges it into the row sharing its id.
func (c *Client) Upsert(ctx context.Context, table string, row core.Row) (core.Row, error) {
	return c.write(ctx, table, row, preferMerge)
}

func (c *Client) write(ctx context.Context, table string, row core.Row, prefer string) (core.Row, error) {
	req, err := c.tableRequest(ctx, request{
		method: sgrest.Post,
		path:   "/rest/v1/" + table,
		body:   row,
		prefer: prefer,
	})
	if err != nil {
		return nil, err
	}
	var rows []core.Row
	if err = c.do(ctx, req, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &core.BackendError{Code: core.CodeNotFound, Message: "no row returned"}
	}
	return rows[0], nil
}

func (c *Client) Update(ctx context.Context, table string, filter core.Filter, partial core.Row) error {
	query, err := filterQuery(filter)
	if err != nil {
		return err
	}
	req, err := c.tableRequest(ctx, request{
		method: sgrest.Patch,
		path:   "/rest/v1/" + table,
		query:  query,
		body:   partial,
		prefer: preferMinimal,
	})
	if err != nil {
		return err
	}
	return c.do(ctx, req, nil)
}

func (c *Client) Delete(ctx context.Context, table string, filter core.Filter) error {
	query, err := filterQuery(filter)
	if err != nil {
		return err
	}
	req, err := c.tableRequest(ctx, request{
		method: sgrest.Delete,
		path:   "/rest/v1/" + table,
		query:  query,
		prefer: preferMinimal,
	})
	if err != nil {
		return err
	}
	return c.do(ctx, req, nil)
}
