package sql

import (
	"fmt"
	"strconv"

	"github.com/gocraft/dbr/v2"

	"github.com/acronis/perfkit/entitydb/db"
)

// DialectOf returns the capability shim for a dialect without connecting
func DialectOf(name db.DialectName) (db.Dialect, error) {
	switch name {
	case db.SQLITE, db.SQLITE3:
		return &sqliteDialect{}, nil
	case db.POSTGRES:
		return &pgDialect{}, nil
	case db.MYSQL:
		return &mysqlDialect{}, nil
	case db.MSSQL:
		return &msDialect{}, nil
	default:
		return nil, fmt.Errorf("db: unsupported dialect '%v'", name)
	}
}

// interpolate embeds values as literals encoded by the dbr dialect
func interpolate(query string, values []interface{}, d dbr.Dialect) (string, error) {
	if len(values) == 0 {
		return query, nil
	}

	var text, err = dbr.InterpolateForDialect(query, values, d)
	if err != nil {
		return "", fmt.Errorf("db: cannot interpolate %d values into '%s': %v", len(values), query, err)
	}

	return text, nil
}

func limitTail(n int) (string, string) {
	return "", " limit " + strconv.Itoa(n)
}
