package sql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/acronis/perfkit/entitydb/db"
)

/*
This file contains the logging decorators of the physical connection:
- Query logging: logs every statement together with its bound values
- Row result logging: logs the content of returned rows (limited to maxRowsToPrint rows)
- Performance measurements: the optional duration of every operation
*/

const maxRowsToPrint = 10

func logRow(logger db.Logger, logTime bool, since time.Time, dest ...interface{}) {
	if logger == nil {
		return
	}

	var values = db.DumpRecursive(dest, " ")
	if logTime {
		var dur = time.Since(since)
		logger.Log("Row: %s -- %s", values, fmt.Sprintf("read duration: %v", dur))
	} else {
		logger.Log("Row: %s", values)
	}
}

func logQuery(logger db.Logger, logTime bool, since time.Time, query string, args ...interface{}) {
	if logger == nil {
		return
	}

	if logTime {
		var dur = time.Since(since)
		if len(args) > 0 {
			logger.Log("%s -- %s, %s", query, db.DumpRecursive(args, " "), fmt.Sprintf("duration: %v", dur))
		} else {
			logger.Log("%s -- %s", query, fmt.Sprintf("duration: %v", dur))
		}
	} else {
		if len(args) > 0 {
			logger.Log("%s -- %s", query, db.DumpRecursive(args, " "))
		} else {
			logger.Log("%s", query)
		}
	}
}

func logTxOperation(logger db.Logger, logTime bool, since time.Time, operation string) {
	if logger == nil {
		return
	}

	if logTime {
		var dur = time.Since(since)
		logger.Log("%s -- %s", operation, fmt.Sprintf("duration: %v", dur))
	} else {
		logger.Log("%s", operation)
	}
}

// wrappedRow is a struct for storing and logging DB *sql.Row results
type wrappedRow struct {
	row    *sql.Row
	cancel context.CancelFunc

	logTime        bool
	readRowsLogger db.Logger
}

// Scan copies the columns in the current row into the values pointed at by dest.
// Logs the scanned values if readRowsLogger is configured.
func (r *wrappedRow) Scan(dest ...any) error {
	defer r.cancel()

	var since = time.Now()
	var err = r.row.Scan(dest...)

	if r.readRowsLogger != nil && err == nil {
		logRow(r.readRowsLogger, r.logTime, since, dest...)
	}

	return err
}

// wrappedRows is a struct for storing and logging DB *sql.Rows results
type wrappedRows struct {
	rows   *sql.Rows
	cancel context.CancelFunc

	logTime        bool
	readRowsLogger db.Logger
	printed        int
}

// Next advances the cursor to the next row, returning false if no more rows
func (r *wrappedRows) Next() bool {
	return r.rows.Next()
}

// Err returns any error that was encountered during iteration
func (r *wrappedRows) Err() error {
	return r.rows.Err()
}

// Scan copies the columns in the current row into the values pointed at by dest.
// Logs the scanned values if readRowsLogger is configured, up to maxRowsToPrint rows.
func (r *wrappedRows) Scan(dest ...interface{}) error {
	var since = time.Now()
	var err = r.rows.Scan(dest...)

	if r.readRowsLogger != nil {
		if r.printed > maxRowsToPrint {
			return err
		} else if r.printed == maxRowsToPrint {
			r.readRowsLogger.Log("... truncated ...")
			r.printed++
			return err
		}

		logRow(r.readRowsLogger, r.logTime, since, dest...)
		r.printed++
	}

	return err
}

// Close closes the rows iterator and releases the statement deadline
func (r *wrappedRows) Close() error {
	defer r.cancel()
	return r.rows.Close()
}
