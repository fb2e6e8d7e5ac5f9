// Package frame converts raw inventory records into a dense numeric matrix.
package frame

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/okian/radworker/internal/domain/model"
)

// idKeys are record keys that identify a row; they are never features.
var idKeys = []string{"id", "fqdn"}

// Frame is a row-major numeric matrix with named columns.
type Frame struct {
	Columns []string
	Rows    [][]float64
	// IDs holds the identifier of each row, "" when the record had none.
	IDs []string
	// Mapping maps a categorical column to its string-to-code table.
	Mapping map[string]map[string]float64
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Normalize builds a frame from batch. With a feature list, columns follow
// its order and each name is resolved as a dotted path into the record.
// Without one, every scalar leaf seen in any record becomes a column,
// sorted by name; a key holding an object in any record is replaced by its
// leaves.
//
// Numbers are taken as is, booleans become 0/1, strings are coded by first
// appearance per column, arrays become their length and missing values 0.
func Normalize(batch *model.Batch, features []string) (*Frame, error) {
	if batch == nil {
		return nil, ErrNilBatch
	}

	columns := features
	if len(columns) == 0 {
		columns = discover(batch.Results)
	}

	f := &Frame{
		Columns: append([]string(nil), columns...),
		Rows:    make([][]float64, 0, len(batch.Results)),
		IDs:     make([]string, 0, len(batch.Results)),
		Mapping: make(map[string]map[string]float64),
	}

	for i, rec := range batch.Results {
		row := make([]float64, len(columns))
		for j, col := range columns {
			v, err := f.convert(col, lookup(rec, col))
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			row[j] = v
		}
		f.Rows = append(f.Rows, row)
		f.IDs = append(f.IDs, recordID(rec))
	}
	return f, nil
}

func (f *Frame) convert(col string, v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return f.code(col, x.String()), nil
		}
		return n, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		return f.code(col, x), nil
	case []any:
		return float64(len(x)), nil
	default:
		return 0, fmt.Errorf("%w: column %q has %T", ErrUnsupportedValue, col, v)
	}
}

// code returns the categorical code of s in col, assigning the next one on
// first sight.
func (f *Frame) code(col, s string) float64 {
	m, ok := f.Mapping[col]
	if !ok {
		m = make(map[string]float64)
		f.Mapping[col] = m
	}
	c, ok := m[s]
	if !ok {
		c = float64(len(m))
		m[s] = c
	}
	return c
}

// lookup resolves a dotted path. A literal key containing dots wins over
// descending into nested objects.
func lookup(rec model.Record, path string) any {
	if v, ok := rec[path]; ok {
		return v
	}
	var cur any = map[string]any(rec)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		if cur, ok = obj[part]; !ok {
			return nil
		}
	}
	return cur
}

func discover(records []model.Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		flatten("", rec, seen)
	}
	for _, k := range idKeys {
		delete(seen, k)
	}
	// A key that is a scalar or null in one record and an object in another
	// keeps only its nested leaves.
	for k := range seen {
		for i := strings.LastIndexByte(k, '.'); i > 0; i = strings.LastIndexByte(k[:i], '.') {
			delete(seen, k[:i])
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func flatten(prefix string, obj map[string]any, seen map[string]struct{}) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, seen)
			continue
		}
		seen[key] = struct{}{}
	}
}

func recordID(rec model.Record) string {
	for _, k := range idKeys {
		if s, ok := rec[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
