package web

// handlers_common.go holds request decoding shared by the handlers.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/dynatable/internal/core"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// decodeJSON reads a JSON body into v. Numbers decode as json.Number so integer
// values keep their precision. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return core.NewValidationError("invalid request body: %v", err)
	}
	return nil
}

// columnList accepts either [{"name": "email", "type": "TEXT"}] or
// {"email": "TEXT"}. The object form keeps the key order of the document.
type columnList []core.ColumnDef

func (c *columnList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = nil
		return nil
	}

	switch b[0] {
	case '[':
		var defs []core.ColumnDef
		if err := json.Unmarshal(b, &defs); err != nil {
			return err
		}
		*c = defs
		return nil
	case '{':
		defs, err := decodeColumnObject(b)
		if err != nil {
			return err
		}
		*c = defs
		return nil
	default:
		return errors.New("fields must be a list or an object")
	}
}

func decodeColumnObject(b []byte) ([]core.ColumnDef, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var defs []core.ColumnDef
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var typ string
		if err := dec.Decode(&typ); err != nil {
			return nil, fmt.Errorf("type of field %q: %w", name, err)
		}
		defs = append(defs, core.ColumnDef{Name: name, Type: typ})
	}
	return defs, nil
}

// recordID parses an id sent as a JSON number or numeric string.
func recordID(n json.Number) (int64, error) {
	if n == "" {
		return 0, core.NewValidationError("table name and id are required")
	}
	id, err := n.Int64()
	if err != nil {
		return 0, core.NewValidationError("id must be an integer, got %q", n.String())
	}
	return id, nil
}

// parseIntParam parses an integer query parameter, falling back to def when absent.
// Range checks belong to the record engine.
func parseIntParam(r *http.Request, name string, def int) (int, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return def, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, core.NewValidationError("%s must be an integer, got %q", name, val)
	}
	return i, nil
}

// parseQuerySpec reads the get-records query parameters:
// filters (JSON object), search, page, limit, order_by and order_direction.
func parseQuerySpec(r *http.Request) (core.QuerySpec, error) {
	q := r.URL.Query()
	spec := core.DefaultQuerySpec()

	if raw := q.Get("filters"); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var filters map[string]any
		if err := dec.Decode(&filters); err != nil {
			return spec, core.NewValidationError("invalid request body: filters must be a JSON object: %v", err)
		}
		spec.Filters = filters
	}
	spec.Search = q.Get("search")

	var err error
	if spec.Page, err = parseIntParam(r, "page", spec.Page); err != nil {
		return spec, err
	}
	if spec.Limit, err = parseIntParam(r, "limit", spec.Limit); err != nil {
		return spec, err
	}
	if by := q.Get("order_by"); by != "" {
		spec.SortBy = by
	}
	if dir := q.Get("order_direction"); dir != "" {
		spec.SortDir = dir
	}
	return spec, nil
}
