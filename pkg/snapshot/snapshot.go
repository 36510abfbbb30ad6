// Package snapshot captures the content of a table as a multiset of rows.
//
// Row identity is value based: the row ids of the table are dropped and two rows are the same iff
// they hold the same values in the captured columns. This makes snapshots of tables built in
// different ways comparable, e.g., an incrementally maintained view and a from-scratch
// recomputation of the same query.
package snapshot

import (
	"fmt"
	"slices"
	"strings"

	"github.com/l7mp/dtable/pkg/table"
)

// Error is returned when a row cannot be captured.
type Error struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(message string, cause error) error {
	return &Error{Message: message, Cause: cause}
}

// Snapshot is a multiset of rows.
type Snapshot struct {
	rows   map[string]Row // key -> row
	counts map[string]int // key -> multiplicity
}

// New creates an empty snapshot.
func New() *Snapshot {
	return &Snapshot{
		rows:   map[string]Row{},
		counts: map[string]int{},
	}
}

// Take captures the live rows of a table. When columns is empty every column is captured.
func Take(t table.Table, columns ...string) (*Snapshot, error) {
	cols := t.Columns()
	if len(columns) > 0 {
		cols = make([]table.Column, 0, len(columns))
		for _, name := range columns {
			c, err := t.Column(name)
			if err != nil {
				return nil, err
			}
			cols = append(cols, c)
		}
	}

	s := New()
	for _, row := range t.Rows() {
		r := make(Row, len(cols))
		for _, c := range cols {
			r[c.Name()] = c.Any(row)
		}
		if err := s.Add(r, 1); err != nil {
			return nil, newError(fmt.Sprintf("table %q row %d", t.Name(), row), err)
		}
	}
	return s, nil
}

// FromRows creates a snapshot holding each row once.
func FromRows(rows ...Row) (*Snapshot, error) {
	s := New()
	for i, r := range rows {
		if err := s.Add(r, 1); err != nil {
			return nil, newError(fmt.Sprintf("failed to add row at index %d", i), err)
		}
	}
	return s, nil
}

// Add adds a row with the given multiplicity in place. A multiplicity dropping to zero removes the
// row.
func (s *Snapshot) Add(row Row, count int) error {
	if count == 0 {
		return nil
	}

	key, err := Key(row)
	if err != nil {
		return err
	}

	if _, ok := s.counts[key]; !ok {
		s.rows[key] = copyRow(row)
	}
	s.counts[key] += count

	if s.counts[key] == 0 {
		delete(s.counts, key)
		delete(s.rows, key)
	}
	return nil
}

// Copy returns a copy of the snapshot.
func (s *Snapshot) Copy() *Snapshot {
	ret := &Snapshot{
		rows:   make(map[string]Row, len(s.rows)),
		counts: make(map[string]int, len(s.counts)),
	}
	for key, row := range s.rows {
		ret.rows[key] = copyRow(row)
		ret.counts[key] = s.counts[key]
	}
	return ret
}

// Subtract returns s - other. Multiplicities may become negative.
func (s *Snapshot) Subtract(other *Snapshot) *Snapshot {
	ret := s.Copy()
	for key, count := range other.counts {
		if _, ok := ret.counts[key]; !ok {
			ret.rows[key] = copyRow(other.rows[key])
		}
		ret.counts[key] -= count
		if ret.counts[key] == 0 {
			delete(ret.counts, key)
			delete(ret.rows, key)
		}
	}
	return ret
}

// Diff returns the rows present in other but not in s (added) and the rows present in s but not in
// other (removed), with multiplicities.
func (s *Snapshot) Diff(other *Snapshot) (added, removed *Snapshot) {
	delta := other.Subtract(s)
	added, removed = New(), New()
	for key, count := range delta.counts {
		if count > 0 {
			added.rows[key], added.counts[key] = delta.rows[key], count
		} else {
			removed.rows[key], removed.counts[key] = delta.rows[key], -count
		}
	}
	return added, removed
}

// Equal reports whether two snapshots hold the same rows with the same multiplicities.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if len(s.counts) != len(other.counts) {
		return false
	}
	for key, count := range s.counts {
		if other.counts[key] != count {
			return false
		}
	}
	return true
}

// IsZero reports whether the snapshot is empty.
func (s *Snapshot) IsZero() bool { return len(s.counts) == 0 }

// Size returns the number of rows counting positive multiplicities.
func (s *Snapshot) Size() int {
	total := 0
	for _, count := range s.counts {
		if count > 0 {
			total += count
		}
	}
	return total
}

// Multiplicity returns the multiplicity of a row.
func (s *Snapshot) Multiplicity(row Row) (int, error) {
	key, err := Key(row)
	if err != nil {
		return 0, err
	}
	return s.counts[key], nil
}

// Contains reports whether a row is present with positive multiplicity.
func (s *Snapshot) Contains(row Row) (bool, error) {
	n, err := s.Multiplicity(row)
	return n > 0, err
}

// Entry is a row with its multiplicity.
type Entry struct {
	Row          Row
	Multiplicity int
}

// Entries returns the rows ordered by their canonical key.
func (s *Snapshot) Entries() []Entry {
	keys := make([]string, 0, len(s.counts))
	for key := range s.counts {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	ret := make([]Entry, 0, len(keys))
	for _, key := range keys {
		ret = append(ret, Entry{Row: copyRow(s.rows[key]), Multiplicity: s.counts[key]})
	}
	return ret
}

// String returns a deterministic representation for debugging.
func (s *Snapshot) String() string {
	if s.IsZero() {
		return "∅"
	}

	keys := make([]string, 0, len(s.counts))
	for key := range s.counts {
		keys = append(keys, fmt.Sprintf("%s×%d", key, s.counts[key]))
	}
	slices.Sort(keys)
	return "{" + strings.Join(keys, ", ") + "}"
}
