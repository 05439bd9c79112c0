package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/bohemiyan/ugibdd"
)

// Select implements ugibdd.Table over the REST table API.
func (c *Client) Select(ctx context.Context, table string, q ugibdd.Query, dest any) error {
	query, err := filterQuery(q.Filters)
	if err != nil {
		return err
	}
	query.Set("select", "*")
	if len(q.Columns) > 0 {
		query.Set("select", strings.Join(q.Columns, ","))
	}
	if q.OrderBy != "" {
		dir := "asc"
		if q.Descending {
			dir = "desc"
		}
		query.Set("order", q.OrderBy+"."+dir)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	_, err = c.do(ctx, request{method: http.MethodGet, path: restPath + url.PathEscape(table), query: query, session: true}, dest)
	return err
}

func (c *Client) Insert(ctx context.Context, table string, row any) error {
	var stored []json.RawMessage
	_, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    restPath + url.PathEscape(table),
		body:    row,
		header:  http.Header{"Prefer": {"return=representation"}},
		session: true,
	}, &stored)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		return nil
	}
	if err := json.Unmarshal(stored[0], row); err != nil {
		return fmt.Errorf("failed to decode inserted row: %w", err)
	}
	return nil
}

func (c *Client) Update(ctx context.Context, table string, patch map[string]any, filters ...ugibdd.Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("%w: update without filters", ugibdd.ErrInvalidInput)
	}
	query, err := filterQuery(filters)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, request{
		method:  http.MethodPatch,
		path:    restPath + url.PathEscape(table),
		query:   query,
		body:    patch,
		header:  http.Header{"Prefer": {"return=minimal"}},
		session: true,
	}, nil)
	return err
}

func (c *Client) Delete(ctx context.Context, table string, filters ...ugibdd.Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("%w: delete without filters", ugibdd.ErrInvalidInput)
	}
	query, err := filterQuery(filters)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, request{method: http.MethodDelete, path: restPath + url.PathEscape(table), query: query, session: true}, nil)
	return err
}

func (c *Client) Count(ctx context.Context, table string, filters ...ugibdd.Filter) (int64, error) {
	query, err := filterQuery(filters)
	if err != nil {
		return 0, err
	}
	query.Set("select", "*")
	header, err := c.do(ctx, request{
		method:  http.MethodHead,
		path:    restPath + url.PathEscape(table),
		query:   query,
		header:  http.Header{"Prefer": {"count=exact"}},
		session: true,
	}, nil)
	if err != nil {
		return 0, err
	}
	return parseContentRange(header.Get("Content-Range"))
}

// parseContentRange reads the total of "0-9/42" or "*/42".
func parseContentRange(v string) (int64, error) {
	i := strings.LastIndex(v, "/")
	if i < 0 {
		return 0, fmt.Errorf("missing count in content range %q", v)
	}
	n, err := strconv.ParseInt(v[i+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid count in content range %q: %w", v, err)
	}
	return n, nil
}

func filterQuery(filters []ugibdd.Filter) (url.Values, error) {
	query := url.Values{}
	for _, f := range filters {
		v, err := filterValue(f)
		if err != nil {
			return nil, err
		}
		query.Add(f.Column, v)
	}
	return query, nil
}

func filterValue(f ugibdd.Filter) (string, error) {
	switch f.Op {
	case ugibdd.OpEq, ugibdd.OpNeq, ugibdd.OpGt, ugibdd.OpGte, ugibdd.OpLt, ugibdd.OpLte:
		return string(f.Op) + "." + scalar(f.Value), nil
	case ugibdd.OpIs:
		return "is." + scalar(f.Value), nil
	case ugibdd.OpIn:
		values, ok := f.Value.([]any)
		if !ok {
			return "", fmt.Errorf("%w: %s needs a list", ugibdd.ErrInvalidInput, f.Column)
		}
		items := make([]string, len(values))
		for i, v := range values {
			items[i] = quoteListItem(scalar(v))
		}
		return "in.(" + strings.Join(items, ",") + ")", nil
	}
	return "", fmt.Errorf("%w: unsupported operator %q", ugibdd.ErrInvalidInput, f.Op)
}

// scalar renders a filter value the way the table API expects it.
func scalar(v any) string {
	if v == nil {
		return "null"
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "null"
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	}
	if t, ok := rv.Interface().(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(rv.Interface())
}

func quoteListItem(s string) string {
	if strings.ContainsAny(s, `,()" `) {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}
