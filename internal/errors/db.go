package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reDetailKey pulls the column list out of "Key (name)=(Vail) already exists.".
var reDetailKey = regexp.MustCompile(`Key \(([^)]+)\)=`)

// tableNouns names the tables in caller-facing messages.
var tableNouns = map[string]string{
	"locations":           "location",
	"location_elevations": "elevation band",
	"jobs":                "job",
	"admin_events":        "admin event",
}

// MapDBError translates driver errors into AppErrors. Errors it does not recognize are
// returned unchanged.
func MapDBError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "database operation timed out")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "database operation canceled")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "not found")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	noun := tableNoun(pgErr.TableName)
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		e := Wrap(pgErr, ErrCodeConflict, noun+" already exists")
		e.Field = conflictField(pgErr)
		return e
	case pgerrcode.ForeignKeyViolation:
		return Wrap(pgErr, ErrCodeForeignKey, noun+" references a missing or in-use record")
	case pgerrcode.NotNullViolation:
		e := Wrap(pgErr, ErrCodeValidation, noun+" is missing a required value")
		e.Field = pgErr.ColumnName
		return e
	case pgerrcode.CheckViolation:
		e := Wrap(pgErr, ErrCodeValidation, noun+" has an out of range value")
		e.Field = pgErr.ColumnName
		return e
	default:
		return Wrap(pgErr, ErrCodeInternal, "database error")
	}
}

func tableNoun(table string) string {
	table = strings.ToLower(strings.TrimSpace(table))
	if noun, ok := tableNouns[table]; ok {
		return noun
	}
	if table == "" {
		return "record"
	}
	return strings.ReplaceAll(table, "_", " ")
}

// conflictField prefers the column the server reports, then the key in the detail text.
// Multi-column keys yield "".
func conflictField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	m := reDetailKey.FindStringSubmatch(pgErr.Detail)
	if len(m) != 2 || strings.Contains(m[1], ",") {
		return ""
	}
	return strings.TrimSpace(m[1])
}
