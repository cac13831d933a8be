package database

import (
	"database/sql/driver"
	"fmt"
)

// RawJSON keeps a json document exactly as stored, for data whose shape is only known
// when it is read (imported settings).
type RawJSON string

func (j RawJSON) Value() (driver.Value, error) {
	if j == "" {
		return nil, nil
	}
	return string(j), nil
}

func (j *RawJSON) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = ""
	case []byte:
		*j = RawJSON(v)
	case string:
		*j = RawJSON(v)
	default:
		return fmt.Errorf("scan RawJSON: unsupported type %T", value)
	}
	return nil
}
