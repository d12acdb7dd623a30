package model

import "encoding/json"

// Record is one institution row keyed by normalized column name.
type Record map[string]Value

// Get returns the value for col, or Absent when the record has no such key.
func (r Record) Get(col string) Value {
	if r == nil {
		return Absent()
	}
	v, ok := r[col]
	if !ok {
		return Absent()
	}
	return v
}

// Text returns the raw text of col ("" when missing).
func (r Record) Text(col string) string {
	return r.Get(col).String()
}

// Clone returns a shallow copy. Values are immutable so this is a full copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is a fully materialized raw dataset.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Record `json:"rows"`
}

// HasColumn reports whether the source table carried col.
func (t *Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// NewTable builds a table from a header row and string cells. Header names are
// normalized and output column names get RawColumnPrefix. Duplicate names keep
// their first occurrence; short rows are padded with Empty values.
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{}
	index := make([]int, 0, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := NormalizeColumn(h)
		if IsOutputColumn(name) {
			name = RawColumnPrefix + name
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		t.Columns = append(t.Columns, name)
		index = append(index, i)
	}

	for _, cells := range rows {
		if isBlankRow(cells) {
			continue
		}
		rec := make(Record, len(t.Columns))
		for j, col := range t.Columns {
			i := index[j]
			if i < len(cells) {
				rec[col] = ParseCell(cells[i])
			} else {
				rec[col] = Empty()
			}
		}
		t.Rows = append(t.Rows, rec)
	}
	return t
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if ParseCell(c).Kind() != KindEmpty {
			return false
		}
	}
	return true
}

// MarshalJSON renders the record as a plain object.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]Value(r))
}
