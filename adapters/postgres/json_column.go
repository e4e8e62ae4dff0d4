package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// jsonColumn stores raw JSON in a JSONB (Postgres) or TEXT (SQLite) column.
// It is written as a string so lib/pq does not send it as bytea.
type jsonColumn []byte

// Value implements driver.Valuer interface
func (j jsonColumn) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner interface
func (j *jsonColumn) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = jsonColumn(v)
	default:
		return fmt.Errorf("cannot scan %T into a JSON column", value)
	}
	return nil
}

func marshalColumn(v any) (jsonColumn, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonColumn(b), nil
}

func (j jsonColumn) decode(out any) error {
	if len(j) == 0 || string(j) == "null" {
		return nil
	}
	return json.Unmarshal(j, out)
}
