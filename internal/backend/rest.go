package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"admissions-portal/portal-backend/internal/datasource"
)

// RESTSource is a datasource.Source over the backend's table REST interface
type RESTSource struct {
	client *Client
}

// NewRESTSource creates a REST-backed data source
func NewRESTSource(client *Client) *RESTSource {
	return &RESTSource{client: client}
}

func (s *RESTSource) Select(ctx context.Context, q datasource.Query) ([]datasource.Row, error) {
	params, err := SelectParams(q)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   "/rest/v1/" + q.Table,
		Query:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Table, err)
	}
	return decodeRows(resp)
}

func (s *RESTSource) Insert(ctx context.Context, table string, rows []datasource.Row) ([]datasource.Row, error) {
	resp, err := s.client.Do(ctx, &Request{
		Method:  http.MethodPost,
		Path:    "/rest/v1/" + table,
		Body:    rows,
		Headers: map[string]string{"Prefer": "return=representation"},
	})
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	return decodeRows(resp)
}

func (s *RESTSource) Update(ctx context.Context, table string, values datasource.Row, where datasource.Predicate) ([]datasource.Row, error) {
	if where == nil {
		return nil, fmt.Errorf("update %s: refusing to update without a filter", table)
	}
	params := url.Values{}
	if err := addFilter(params, where); err != nil {
		return nil, err
	}
	resp, err := s.client.Do(ctx, &Request{
		Method:  http.MethodPatch,
		Path:    "/rest/v1/" + table,
		Query:   params,
		Body:    values,
		Headers: map[string]string{"Prefer": "return=representation"},
	})
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	return decodeRows(resp)
}

func (s *RESTSource) Delete(ctx context.Context, table string, where datasource.Predicate) error {
	if where == nil {
		return fmt.Errorf("delete from %s: refusing to delete without a filter", table)
	}
	params := url.Values{}
	if err := addFilter(params, where); err != nil {
		return err
	}
	if _, err := s.client.Do(ctx, &Request{
		Method: http.MethodDelete,
		Path:   "/rest/v1/" + table,
		Query:  params,
	}); err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return nil
}

func decodeRows(resp *Response) ([]datasource.Row, error) {
	var rows []datasource.Row
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

// =====================================================
// Filter rendering
// =====================================================

// SelectParams renders a query in the REST interface's parameter syntax
func SelectParams(q datasource.Query) (url.Values, error) {
	params := url.Values{}
	if len(q.Columns) > 0 {
		params.Set("select", strings.Join(q.Columns, ","))
	} else {
		params.Set("select", "*")
	}
	if err := addFilter(params, q.Where); err != nil {
		return nil, err
	}
	if len(q.OrderBy) > 0 {
		parts := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			dir := "asc"
			if o.Descending {
				dir = "desc"
			}
			parts[i] = o.Field + "." + dir
		}
		params.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	return params, nil
}

// addFilter writes the predicate tree. A top-level comparison uses the column=op.value
// form; anything else becomes a logic tree under and=/or=.
func addFilter(params url.Values, p datasource.Predicate) error {
	switch v := p.(type) {
	case nil:
		return nil
	case datasource.Comparison:
		if v.Op == datasource.OpBetween {
			expr, err := treeExpr(v)
			if err != nil {
				return err
			}
			params.Add("and", strings.TrimPrefix(expr, "and"))
			return nil
		}
		op, err := opValue(v, false)
		if err != nil {
			return err
		}
		params.Add(v.Field, op)
		return nil
	case datasource.Junction:
		left, err := treeExpr(v.Left)
		if err != nil {
			return err
		}
		right, err := treeExpr(v.Right)
		if err != nil {
			return err
		}
		params.Add(logicName(v.Logic), "("+left+","+right+")")
		return nil
	}
	return fmt.Errorf("unsupported predicate %T", p)
}

// treeExpr renders a predicate nested inside a logic tree
func treeExpr(p datasource.Predicate) (string, error) {
	switch v := p.(type) {
	case datasource.Junction:
		left, err := treeExpr(v.Left)
		if err != nil {
			return "", err
		}
		right, err := treeExpr(v.Right)
		if err != nil {
			return "", err
		}
		return logicName(v.Logic) + "(" + left + "," + right + ")", nil
	case datasource.Comparison:
		if v.Op == datasource.OpBetween {
			bounds := datasource.Values(v.Value)
			if len(bounds) != 2 {
				return "", fmt.Errorf("between on %s needs two bounds, got %d", v.Field, len(bounds))
			}
			return fmt.Sprintf("and(%s.gte.%s,%s.lte.%s)",
				v.Field, quoteValue(bounds[0]), v.Field, quoteValue(bounds[1])), nil
		}
		op, err := opValue(v, true)
		if err != nil {
			return "", err
		}
		return v.Field + "." + op, nil
	}
	return "", fmt.Errorf("unsupported predicate %T", p)
}

func opValue(c datasource.Comparison, nested bool) (string, error) {
	val := func(v any) string {
		if nested {
			return quoteValue(v)
		}
		return datasource.Stringify(v)
	}
	switch c.Op {
	case datasource.OpEquals:
		return "eq." + val(c.Value), nil
	case datasource.OpNotEquals:
		return "neq." + val(c.Value), nil
	case datasource.OpGreaterThan:
		return "gt." + val(c.Value), nil
	case datasource.OpGreaterEq:
		return "gte." + val(c.Value), nil
	case datasource.OpLessThan:
		return "lt." + val(c.Value), nil
	case datasource.OpLessEq:
		return "lte." + val(c.Value), nil
	case datasource.OpContains:
		return "ilike." + val("*"+datasource.Stringify(c.Value)+"*"), nil
	case datasource.OpStartsWith:
		return "ilike." + val(datasource.Stringify(c.Value)+"*"), nil
	case datasource.OpEndsWith:
		return "ilike." + val("*"+datasource.Stringify(c.Value)), nil
	case datasource.OpIn:
		return "in." + listValue(c.Value), nil
	case datasource.OpNotIn:
		return "not.in." + listValue(c.Value), nil
	case datasource.OpIsNull:
		return "is.null", nil
	case datasource.OpIsNotNull:
		return "not.is.null", nil
	}
	return "", fmt.Errorf("unsupported operator %q", c.Op)
}

func listValue(v any) string {
	items := datasource.Values(v)
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = quoteValue(item)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// quoteValue double-quotes values containing the tree syntax's reserved characters
func quoteValue(v any) string {
	s := datasource.Stringify(v)
	if strings.ContainsAny(s, ",.:()\" ") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

func logicName(l datasource.Logic) string {
	if l == datasource.LogicOr {
		return "or"
	}
	return "and"
}
