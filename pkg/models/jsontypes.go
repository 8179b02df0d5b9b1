package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONColumns stores a table's column list in a single JSON database column.
type JSONColumns []ColumnInfo

// Scan implements sql.Scanner for JSONColumns.
func (j *JSONColumns) Scan(src any) error {
	if src == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("JSONColumns: unsupported type %T", src)
	}

	if len(data) == 0 {
		*j = nil
		return nil
	}

	return json.Unmarshal(data, j)
}

// Value implements driver.Valuer for JSONColumns.
func (j JSONColumns) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// JSONCells stores one row's cell values in a single JSON database column.
type JSONCells Row

// Scan implements sql.Scanner for JSONCells.
func (j *JSONCells) Scan(src any) error {
	if src == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("JSONCells: unsupported type %T", src)
	}

	if len(data) == 0 {
		*j = nil
		return nil
	}

	return json.Unmarshal(data, j)
}

// Value implements driver.Valuer for JSONCells.
func (j JSONCells) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}
