// Package query turns request query strings into filter, sort, field
// selection and pagination directives. It has no side effects and knows
// nothing about storage; repositories resolve field names and apply them.
package query

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/hugh/schoolhub/internal/apperr"
)

const (
	DefaultPage  = 1
	DefaultLimit = 100
	MaxLimit     = 1000
	// MaxPage keeps (page-1)*limit within an int.
	MaxPage = math.MaxInt / MaxLimit
)

// Reserved query keys that never become filters.
var reserved = map[string]bool{
	"page":   true,
	"sort":   true,
	"limit":  true,
	"fields": true,
}

type Operator string

const (
	OpEq  Operator = "="
	OpIn  Operator = "IN"
	OpGte Operator = ">="
	OpGt  Operator = ">"
	OpLte Operator = "<="
	OpLt  Operator = "<"
)

// Longer suffixes first so "_gte" is not read as "_gt".
var comparators = []struct {
	suffix string
	op     Operator
}{
	{"_gte", OpGte},
	{"_lte", OpLte},
	{"_gt", OpGt},
	{"_lt", OpLt},
}

type Filter struct {
	Field  string
	Op     Operator
	Values []string
}

type Sort struct {
	Field string
	Desc  bool
}

type Features struct {
	Filters []Filter
	Sorts   []Sort
	Fields  []string
	Page    int
	Limit   int
}

// DefaultSort orders newest first.
var DefaultSort = []Sort{{Field: "created_at", Desc: true}}

func (f Features) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Parse builds features from query values. Output is deterministic: filters
// follow the sorted order of their query keys.
func Parse(values url.Values) (Features, error) {
	f := Features{
		Page:  positiveInt(values.Get("page"), DefaultPage),
		Limit: positiveInt(values.Get("limit"), DefaultLimit),
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Page > MaxPage {
		return Features{}, apperr.Validation(fmt.Sprintf("Page must not exceed %d", MaxPage))
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if reserved[key] || key == "" {
			continue
		}
		vals := values[key]
		if len(vals) == 0 {
			continue
		}

		field, op := splitComparator(key)
		if field == "" {
			return Features{}, apperr.Validation(fmt.Sprintf("Invalid filter %q", key))
		}
		field = ToSnake(field)

		switch {
		case op != OpEq:
			// each bound applies, e.g. date_gte=a&date_gte=b
			for _, v := range vals {
				f.Filters = append(f.Filters, Filter{Field: field, Op: op, Values: []string{v}})
			}
		case len(vals) > 1:
			f.Filters = append(f.Filters, Filter{Field: field, Op: OpIn, Values: vals})
		default:
			f.Filters = append(f.Filters, Filter{Field: field, Op: OpEq, Values: vals})
		}
	}

	sorts, err := parseSort(values.Get("sort"))
	if err != nil {
		return Features{}, err
	}
	f.Sorts = sorts

	f.Fields = splitList(values.Get("fields"))
	for i, name := range f.Fields {
		f.Fields[i] = ToSnake(name)
	}

	return f, nil
}

func splitComparator(key string) (string, Operator) {
	for _, c := range comparators {
		if strings.HasSuffix(key, c.suffix) {
			return strings.TrimSuffix(key, c.suffix), c.op
		}
	}
	return key, OpEq
}

func parseSort(raw string) ([]Sort, error) {
	parts := splitList(raw)
	if len(parts) == 0 {
		return append([]Sort(nil), DefaultSort...), nil
	}

	sorts := make([]Sort, 0, len(parts))
	for _, part := range parts {
		field, dir, _ := strings.Cut(part, ":")
		field = strings.TrimSpace(field)
		if field == "" {
			return nil, apperr.Validation(fmt.Sprintf("Invalid sort %q", part))
		}
		s := Sort{Field: ToSnake(field)}
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "", "asc":
		case "desc":
			s.Desc = true
		default:
			return nil, apperr.Validation(fmt.Sprintf("Invalid sort direction %q for %s", dir, field))
		}
		sorts = append(sorts, s)
	}
	return sorts, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func positiveInt(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// ToSnake converts camelCase names to snake_case. Names that are already
// snake_case are returned unchanged.
func ToSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
