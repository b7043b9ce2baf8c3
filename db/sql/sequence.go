package sql

import (
	"database/sql"
	"fmt"

	"github.com/acronis/perfkit/entitydb/db"
)

// scanInt64 reads a single, possibly null integer
func scanInt64(row db.Row) (int64, error) {
	var value sql.NullInt64
	if err := row.Scan(&value); err != nil {
		return 0, err
	}

	if !value.Valid {
		return 0, fmt.Errorf("db: generated value is null")
	}

	return value.Int64, nil
}
