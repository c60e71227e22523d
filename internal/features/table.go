package features

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

// Identity holds the per-row fields that are never model inputs.
type Identity struct {
	CustomerID   int64      `json:"customer_id"`
	CustomerCode string     `json:"customer_code,omitempty"`
	Location     string     `json:"location,omitempty"`
	SignupDate   time.Time  `json:"signup_date"`
	ChurnDate    *time.Time `json:"churn_date,omitempty"`
	ChurnReason  *string    `json:"churn_reason,omitempty"`
}

// Table is a column-named numeric feature table with one row per customer.
// Missing values are NaN until a caller fills them.
type Table struct {
	columns []string
	index   map[string]int
	ids     []Identity
	values  [][]float64
}

// NewTable creates an empty table with the given numeric columns.
func NewTable(columns []string) *Table {
	t := &Table{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range t.columns {
		t.index[c] = i
	}
	return t
}

// AppendRow adds a row; values must follow Columns() order.
func (t *Table) AppendRow(id Identity, values []float64) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("row for customer %d has %d values, table has %d columns", id.CustomerID, len(values), len(t.columns))
	}
	t.ids = append(t.ids, id)
	t.values = append(t.values, append([]float64(nil), values...))
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.values) }

// Columns returns a copy of the numeric column names in order.
func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

// Has reports whether col is a numeric column of the table.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Identity returns the identity fields of row i.
func (t *Table) Identity(i int) Identity { return t.ids[i] }

// CustomerIDs returns the customer id of every row.
func (t *Table) CustomerIDs() []int64 {
	out := make([]int64, len(t.ids))
	for i, id := range t.ids {
		out[i] = id.CustomerID
	}
	return out
}

// Value returns the value of col in row i. ok is false if the column does not exist.
func (t *Table) Value(i int, col string) (float64, bool) {
	j, ok := t.index[col]
	if !ok {
		return 0, false
	}
	return t.values[i][j], true
}

// Column returns a copy of one column, or nil if it does not exist.
func (t *Table) Column(col string) []float64 {
	j, ok := t.index[col]
	if !ok {
		return nil
	}
	out := make([]float64, len(t.values))
	for i, row := range t.values {
		out[i] = row[j]
	}
	return out
}

// Matrix returns the requested columns row-major, keeping NaN for missing
// values and for columns the table does not have.
func (t *Table) Matrix(cols []string) [][]float64 {
	pos := make([]int, len(cols))
	for k, c := range cols {
		if j, ok := t.index[c]; ok {
			pos[k] = j
		} else {
			pos[k] = -1
		}
	}
	out := make([][]float64, len(t.values))
	for i, row := range t.values {
		r := make([]float64, len(cols))
		for k, j := range pos {
			if j < 0 {
				r[k] = math.NaN()
				continue
			}
			r[k] = row[j]
		}
		out[i] = r
	}
	return out
}

// Select is Matrix with every NaN replaced by fill.
func (t *Table) Select(cols []string, fill float64) [][]float64 {
	m := t.Matrix(cols)
	for _, row := range m {
		for k, v := range row {
			if math.IsNaN(v) {
				row[k] = fill
			}
		}
	}
	return m
}

// FilterCustomers keeps the rows whose customer id is in ids, preserving order.
func (t *Table) FilterCustomers(ids []int64) *Table {
	keep := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	out := NewTable(t.columns)
	for i, id := range t.ids {
		if _, ok := keep[id.CustomerID]; ok {
			out.ids = append(out.ids, id)
			out.values = append(out.values, append([]float64(nil), t.values[i]...))
		}
	}
	return out
}

// TableFromRecords builds a table from caller-supplied feature records, such
// as a prediction request body. Numeric and boolean values become columns
// (sorted by name); identity keys fill Identity; other strings are ignored.
// A column missing from a record is NaN for that row.
func TableFromRecords(records []map[string]any) (*Table, error) {
	colSet := make(map[string]struct{})
	for _, rec := range records {
		for k, v := range rec {
			if isIdentityKey(k) {
				continue
			}
			if _, ok := toFloat64(v); ok || v == nil {
				colSet[k] = struct{}{}
			}
		}
	}
	cols := make([]string, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	t := NewTable(cols)
	for i, rec := range records {
		id := Identity{CustomerID: int64(i)}
		if v, ok := rec[ColCustomerID]; ok {
			f, okF := toFloat64(v)
			if !okF {
				return nil, fmt.Errorf("record %d: customer_id must be numeric, got %T", i, v)
			}
			id.CustomerID = int64(f)
		}
		if s, ok := rec[ColCustomerCode].(string); ok {
			id.CustomerCode = s
		}
		if s, ok := rec[ColLocation].(string); ok {
			id.Location = s
		}
		if s, ok := rec[ColSignupDate].(string); ok {
			if d, err := parseDate(s); err == nil {
				id.SignupDate = d
			}
		}
		if s, ok := rec[ColChurnDate].(string); ok {
			if d, err := parseDate(s); err == nil {
				id.ChurnDate = &d
			}
		}
		if s, ok := rec[ColChurnReason].(string); ok {
			id.ChurnReason = &s
		}

		row := make([]float64, len(cols))
		for j, c := range cols {
			v, ok := rec[c]
			if !ok || v == nil {
				row[j] = math.NaN()
				continue
			}
			f, okF := toFloat64(v)
			if !okF {
				row[j] = math.NaN()
				continue
			}
			row[j] = f
		}
		if err := t.AppendRow(id, row); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func isIdentityKey(k string) bool {
	switch k {
	case ColCustomerID, ColCustomerCode, ColLocation, ColSignupDate, ColChurnDate, ColChurnReason:
		return true
	}
	return false
}

func parseDate(s string) (time.Time, error) {
	if d, err := time.Parse(utils.DateLayout, s); err == nil {
		return d, nil
	}
	return time.Parse(time.RFC3339, s)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
