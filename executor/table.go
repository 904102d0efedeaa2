package executor

import "strings"

// Table is an untyped result set.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Record returns row i as a Record.
func (t *Table) Record(i int) Record {
	return NewRecord(t.Columns, t.Rows[i])
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// clone copies t under a new name. Row slices are copied; values are shared.
func (t *Table) clone(name string) *Table {
	c := &Table{
		Name:    name,
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]any, len(t.Rows)),
	}
	for i, row := range t.Rows {
		c.Rows[i] = append([]any(nil), row...)
	}
	return c
}

// TableSet is an ordered collection of named tables.
type TableSet struct {
	Tables []*Table
}

// Add appends t.
func (s *TableSet) Add(t *Table) { s.Tables = append(s.Tables, t) }

// Len returns the number of tables.
func (s *TableSet) Len() int { return len(s.Tables) }

// Table looks up a table by name, ignoring case.
func (s *TableSet) Table(name string) (*Table, bool) {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return nil, false
}

// mergeFirst appends a copy of fetched's first table, renamed to name, to
// existing. An empty fetch leaves existing unchanged.
func mergeFirst(existing *TableSet, fetched TableSet, name string) *TableSet {
	if existing == nil {
		existing = &TableSet{}
	}
	if fetched.Len() == 0 {
		return existing
	}
	existing.Add(fetched.Tables[0].clone(name))
	return existing
}
