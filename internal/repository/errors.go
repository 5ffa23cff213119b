package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel/trace"
)

// ErrDuplicate is returned when an insert violates a unique key.
var ErrDuplicate = errors.New("duplicate record")

const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func recordError(span trace.Span, status *string, err error) {
	*status = "error"
	span.RecordError(err)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
