package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Kind labels the class of a store failure. It is reported to API callers
// as the error type of a failed save.
type Kind string

// Store failure kinds.
const (
	KindConstraintViolation  Kind = "ConstraintViolation"
	KindDataException        Kind = "DataException"
	KindConnectionFailure    Kind = "ConnectionFailure"
	KindQueryFailure         Kind = "QueryFailure"
	KindUnsupportedOperation Kind = "UnsupportedOperation"
	KindStoreError           Kind = "StoreError"
)

// Error wraps a driver error with the operation that produced it and its kind.
// Error() returns the driver's message unchanged.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, classifying unwrapped driver errors on the fly.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return classify(err)
}

// wrap attaches op and a kind to err. Nil stays nil and an *Error passes through.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Kind: classify(err), Err: err}
}

func classify(err error) Kind {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqKind(pqErr)
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqliteKind(sqErr)
	}
	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.As(err, &netErr):
		return KindConnectionFailure
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindConnectionFailure
	}
	return KindStoreError
}

// pqKind maps a PostgreSQL SQLSTATE class to a kind.
func pqKind(e *pq.Error) Kind {
	switch e.Code.Class() {
	case "22":
		return KindDataException
	case "23":
		return KindConstraintViolation
	case "08", "53", "57":
		return KindConnectionFailure
	case "42":
		return KindQueryFailure
	}
	return KindStoreError
}

func sqliteKind(e sqlite3.Error) Kind {
	switch e.Code {
	case sqlite3.ErrConstraint:
		return KindConstraintViolation
	case sqlite3.ErrMismatch, sqlite3.ErrRange, sqlite3.ErrTooBig:
		return KindDataException
	case sqlite3.ErrError:
		// Statements are fixed, so SQLITE_ERROR comes from a vector function
		// rejecting its input.
		return KindDataException
	case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrNotADB:
		return KindConnectionFailure
	}
	return KindStoreError
}
