package kinetics

import (
	"fmt"

	"github.com/inodb/kinwin/internal/genome"
)

// RowReader is implemented by sources of kinetics rows.
// Next returns nil, nil when there are no more rows.
type RowReader interface {
	Next() (*Row, error)
}

// MapTable is the row-indexed backend: every record held in one map.
type MapTable struct {
	records map[genome.Key]Record
}

// NewMapTable creates an empty table.
func NewMapTable() *MapTable {
	return &MapTable{records: make(map[genome.Key]Record)}
}

// LoadMapTable reads every row from r into a new table. Later rows replace
// earlier rows with the same key.
func LoadMapTable(r RowReader) (*MapTable, error) {
	t := NewMapTable()
	for {
		row, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("read kinetics row: %w", err)
		}
		if row == nil {
			return t, nil
		}
		t.Add(row.Key, row.Record)
	}
}

// Add stores rec under k.
func (t *MapTable) Add(k genome.Key, rec Record) {
	t.records[k] = rec
}

// Len returns the number of stored records.
func (t *MapTable) Len() int {
	return len(t.records)
}

// Lookup returns the record at k, or the zero Record. It never fails.
func (t *MapTable) Lookup(k genome.Key) (Record, error) {
	return t.records[k], nil
}
