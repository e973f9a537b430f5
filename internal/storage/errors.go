package storage

import (
	"errors"
	"fmt"
)

// Code is a machine-readable failure code carried by *Error.
type Code string

// Failure codes
const (
	CodeQueryFailed   Code = "DB_QUERY_FAILED"
	CodeInsertFailed  Code = "DB_INSERT_FAILED"
	CodeUpdateFailed  Code = "DB_UPDATE_FAILED"
	CodeDeleteFailed  Code = "DB_DELETE_FAILED"
	CodeDatabaseError Code = "DATABASE_ERROR"
)

// Error is a database failure surfaced by a repository. Its message names only
// the operation and the code; the driver error (which may quote columns or SQL)
// is kept in Err for logging and errors.As.
type Error struct {
	Op   string
	Code Code
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap builds an *Error for op. A nil err returns nil so call sites can wrap
// unconditionally.
func Wrap(op string, code Code, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Code: code, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
