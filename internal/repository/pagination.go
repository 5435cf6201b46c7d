package repository

import (
	"context"
	"encoding/base64"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// ParseDirection accepts asc/desc in any case; anything else falls back to Asc.
func ParseDirection(s string) Direction {
	if strings.EqualFold(s, "desc") {
		return Desc
	}
	return Asc
}

// OffsetOptions selects one numbered page.
type OffsetOptions struct {
	Page      int
	PageSize  int
	OrderBy   string
	Direction Direction
	Filter    Filter
}

// Page is one page of an offset listing.
type Page[T any] struct {
	Items       []*T `json:"items"`
	Total       int  `json:"total"`
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// CursorOptions selects the page after Cursor. An empty Cursor starts from the beginning.
type CursorOptions struct {
	Cursor    string
	Size      int
	OrderBy   string
	Direction Direction
	Filter    Filter
}

// CursorPage is one page of a cursor listing.
type CursorPage[T any] struct {
	Items      []*T   `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// normalizeSize defaults an unset size and rejects sizes above MaxPageSize.
func normalizeSize(size int) (int, error) {
	if size <= 0 {
		return DefaultPageSize, nil
	}
	if size > MaxPageSize {
		return 0, fmt.Errorf("page size %d exceeds maximum of %d: %w", size, MaxPageSize, domain.ErrInvalidInput)
	}
	return size, nil
}

func (r *Repository[T]) ordering(orderBy string, dir Direction) (string, []string, error) {
	if orderBy == "" {
		orderBy = "created_at"
	}
	if !r.schema.sortable(orderBy) {
		return "", nil, fmt.Errorf("cannot order %s by %q: %w", r.schema.Entity, orderBy, domain.ErrInvalidInput)
	}
	if dir != Desc {
		dir = Asc
	}
	clauses := []string{orderBy + " " + string(dir)}
	if orderBy != "id" {
		clauses = append(clauses, "id "+string(dir))
	}
	return orderBy, clauses, nil
}

// FindWithPagination returns one numbered page of live records.
func (r *Repository[T]) FindWithPagination(ctx context.Context, opts OffsetOptions) (*Page[T], error) {
	return r.findPage(ctx, opts, nil)
}

func (r *Repository[T]) findPage(ctx context.Context, opts OffsetOptions, scope Filter) (page *Page[T], err error) {
	defer r.observe("find_page", time.Now(), &err)

	size, err := normalizeSize(opts.PageSize)
	if err != nil {
		return nil, err
	}
	num := opts.Page
	if num < 1 {
		num = 1
	}
	_, order, err := r.ordering(opts.OrderBy, opts.Direction)
	if err != nil {
		return nil, err
	}

	filter := and(opts.Filter, scope)
	total, err := r.count(ctx, filter)
	if err != nil {
		return nil, err
	}
	totalPages := (total + size - 1) / size

	items := []*T{}
	if num <= totalPages {
		q := r.selectQuery(filter).
			OrderBy(order...).
			Limit(uint64(size)).
			Offset(uint64((num - 1) * size))
		found, err := r.query(ctx, q)
		if err != nil {
			return nil, err
		}
		items = append(items, found...)
	}

	return &Page[T]{
		Items:       items,
		Total:       total,
		Page:        num,
		PageSize:    size,
		TotalPages:  totalPages,
		HasNext:     num < totalPages,
		HasPrevious: num > 1,
	}, nil
}

// FindWithCursorPagination returns the page following opts.Cursor. Ordering is strict on
// the order column, so rows sharing the boundary value with the last item of the previous
// page are skipped.
func (r *Repository[T]) FindWithCursorPagination(ctx context.Context, opts CursorOptions) (*CursorPage[T], error) {
	return r.findCursorPage(ctx, opts, nil)
}

func (r *Repository[T]) findCursorPage(ctx context.Context, opts CursorOptions, scope Filter) (page *CursorPage[T], err error) {
	defer r.observe("find_cursor_page", time.Now(), &err)

	size, err := normalizeSize(opts.Size)
	if err != nil {
		return nil, err
	}
	orderBy, order, err := r.ordering(opts.OrderBy, opts.Direction)
	if err != nil {
		return nil, err
	}

	filter := and(opts.Filter, scope)
	if opts.Cursor != "" {
		field, value, err := DecodeCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		if field != orderBy {
			return nil, fmt.Errorf("cursor is for %q, not %q: %w", field, orderBy, domain.ErrInvalidCursor)
		}
		if opts.Direction == Desc {
			filter = and(filter, sq.Lt{orderBy: value})
		} else {
			filter = and(filter, sq.Gt{orderBy: value})
		}
	}

	recs, err := r.query(ctx, r.selectQuery(filter).OrderBy(order...).Limit(uint64(size+1)))
	if err != nil {
		return nil, err
	}

	page = &CursorPage[T]{Items: recs}
	if page.Items == nil {
		page.Items = []*T{}
	}
	if len(recs) > size {
		page.Items = recs[:size]
		page.HasMore = true
		value, err := r.cursorValue(page.Items[size-1], orderBy)
		if err != nil {
			return nil, err
		}
		page.NextCursor = EncodeCursor(orderBy, value)
	}
	return page, nil
}

// cursorValue renders rec's value for column the way it is embedded in a cursor.
func (r *Repository[T]) cursorValue(rec *T, column string) (string, error) {
	ptrs := r.schema.pointers(rec)
	for i, col := range r.schema.columns() {
		if col == column {
			return formatValue(ptrs[i])
		}
	}
	return "", fmt.Errorf("unknown column %q: %w", column, domain.ErrInvalidInput)
}

func formatValue(ptr any) (string, error) {
	v := reflect.ValueOf(ptr)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "", fmt.Errorf("cannot page on a null value: %w", domain.ErrInvalidInput)
		}
		v = v.Elem()
	}
	if t, ok := v.Interface().(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano), nil
	}
	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	}
	return "", fmt.Errorf("unsupported cursor type %s: %w", v.Type(), domain.ErrInvalidInput)
}

// EncodeCursor builds an opaque cursor from a field name and its value.
func EncodeCursor(field, value string) string {
	return base64.StdEncoding.EncodeToString([]byte(field + ":" + value))
}

// DecodeCursor is the inverse of EncodeCursor.
func DecodeCursor(cursor string) (field, value string, err error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", fmt.Errorf("malformed cursor: %w", domain.ErrInvalidCursor)
	}
	field, value, ok := strings.Cut(string(raw), ":")
	if !ok || field == "" {
		return "", "", fmt.Errorf("malformed cursor: %w", domain.ErrInvalidCursor)
	}
	return field, value, nil
}

func and(filters ...Filter) Filter {
	var out sq.And
	for _, f := range filters {
		if f != nil {
			out = append(out, f)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}
