// Package listing turns the list responses of the back-office REST API into a
// single canonical page type.
//
// The backend answers list endpoints either with a bare JSON array or with a
// {data, meta} envelope whose metadata keys vary between endpoints. Everything
// past this package only sees Page.
package listing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// DefaultLimit is used when a local page request does not carry a limit.
const DefaultLimit = 10

// Page is one page of a list result.
type Page[T any] struct {
	Items      []T  `json:"items"`
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// ShapeError reports a response that matched no known list shape. The page
// returned alongside it is still valid (empty, single page).
type ShapeError struct {
	Reason string
	Err    error
}

func (e *ShapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("listing: unrecognized response shape (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("listing: unrecognized response shape (%s)", e.Reason)
}

func (e *ShapeError) Unwrap() error { return e.Err }

// Empty returns a page with no items and no further pages.
func Empty[T any]() Page[T] {
	return Page[T]{Items: []T{}, Page: 1, TotalPages: 1}
}

// Single wraps a complete list as its only page.
func Single[T any](items []T) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: len(items), Page: 1, Limit: len(items), TotalPages: 1}
}

// Decode normalizes a raw list response. The returned page is always usable;
// a non-nil error is a *ShapeError meant for diagnostics only.
func Decode[T any](raw json.RawMessage) (Page[T], error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Empty[T](), &ShapeError{Reason: "empty body"}
	}
	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Empty[T](), &ShapeError{Reason: "array items", Err: err}
		}
		return Single(items), nil
	case '{':
		return decodeEnvelope[T](trimmed)
	default:
		return Empty[T](), &ShapeError{Reason: "not a list"}
	}
}

// Normalize is Decode without the diagnostic error.
func Normalize[T any](raw json.RawMessage) Page[T] {
	page, _ := Decode[T](raw)
	return page
}

type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta *meta           `json:"meta"`
	meta
}

type meta struct {
	Total      optInt  `json:"total"`
	Page       optInt  `json:"page"`
	Limit      optInt  `json:"limit"`
	PageSize   optInt  `json:"pageSize"`
	PerPage    optInt  `json:"perPage"`
	TotalPages optInt  `json:"totalPages"`
	HasNext    optBool `json:"hasNext"`
	HasPrev    optBool `json:"hasPrev"`
}

func decodeEnvelope[T any](raw []byte) (Page[T], error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Empty[T](), &ShapeError{Reason: "envelope", Err: err}
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Empty[T](), &ShapeError{Reason: "missing data"}
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return Empty[T](), &ShapeError{Reason: "data items", Err: err}
	}
	if items == nil {
		items = []T{}
	}
	m := env.meta
	if env.Meta != nil {
		m = *env.Meta
	}
	return buildPage(items, m), nil
}

func buildPage[T any](items []T, m meta) Page[T] {
	n := len(items)
	page := m.Page.or(1)
	if page < 1 {
		page = 1
	}
	limit := m.Limit.or(m.PageSize.or(m.PerPage.or(0)))
	if limit <= 0 {
		limit = n
	}
	total := m.Total.or(-1)
	if total < 0 {
		total = (page-1)*limit + n
	}
	totalPages := m.TotalPages.or(0)
	if totalPages <= 0 {
		if total > 0 && limit > 0 {
			totalPages = int(math.Ceil(float64(total) / float64(limit)))
		} else {
			totalPages = page
		}
	}
	hasNext := page < totalPages
	if m.HasNext.set {
		hasNext = m.HasNext.v
	}
	hasPrev := page > 1
	if m.HasPrev.set {
		hasPrev = m.HasPrev.v
	}
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    hasNext,
		HasPrev:    hasPrev,
	}
}

// Paginate slices an already complete list into the requested page.
func Paginate[T any](items []T, page, limit int) Page[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if page <= 0 {
		page = 1
	}
	total := len(items)
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	if totalPages < 1 {
		totalPages = 1
	}
	start, end := total, total
	if page <= totalPages {
		start = (page - 1) * limit
		end = min(start+limit, total)
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return Page[T]{
		Items:      out,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// optInt tolerates numbers, numeric strings and garbage; garbage reads as unset.
type optInt struct {
	set bool
	v   int
}

func (o *optInt) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	if s == "" || s == "null" {
		return nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		o.set, o.v = true, v
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		o.set, o.v = true, int(f)
	}
	return nil
}

func (o optInt) or(fallback int) int {
	if o.set {
		return o.v
	}
	return fallback
}

type optBool struct {
	set bool
	v   bool
}

func (o *optBool) UnmarshalJSON(b []byte) error {
	switch string(bytes.Trim(bytes.TrimSpace(b), `"`)) {
	case "true":
		o.set, o.v = true, true
	case "false":
		o.set, o.v = true, false
	}
	return nil
}

// DecodeOne reads a single record that may or may not be wrapped in a
// {data: ...} envelope.
func DecodeOne[T any](raw json.RawMessage) (T, error) {
	var zero T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return zero, &ShapeError{Reason: "empty body"}
	}
	if trimmed[0] == '{' {
		var wrapped struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err == nil {
			inner := bytes.TrimSpace(wrapped.Data)
			if len(inner) > 0 && inner[0] == '{' {
				trimmed = inner
			}
		}
	}
	var out T
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return zero, &ShapeError{Reason: "record", Err: err}
	}
	return out, nil
}
