package hlt

import (
	"database/sql/driver"

	"github.com/pkg/errors"
)

// Value implements driver.Valuer,
// so a Ref can be passed directly as a SQL query argument.
func (r Ref) Value() (driver.Value, error) {
	return r[:], nil
}

// Scan implements sql.Scanner.
func (r *Ref) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.Errorf("cannot scan %T into a Ref", src)
	}
	if len(b) != len(r) {
		return errors.Errorf("scanning %d bytes into a Ref", len(b))
	}
	copy(r[:], b)
	return nil
}
