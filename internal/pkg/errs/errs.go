// Package errs wraps cockroachdb/errors and defines the error taxonomy shared
// by every domain package. Domain sentinels are marked with exactly one kind
// so HTTP handlers can map failures without knowing every sentinel.
package errs

import (
	"fmt"
	"strings"

	cr "github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = cr.New("not found")
	ErrConflict      = cr.New("conflict")
	ErrValidation    = cr.New("validation error")
	ErrUpstream      = cr.New("upstream failure")
	ErrInconsistency = cr.New("inconsistency")
	ErrForbidden     = cr.New("forbidden")
	ErrUnauthorized  = cr.New("unauthorized")
)

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return cr.Wrapf(err, format, args...)
}

func New(msg string) error {
	return cr.New(msg)
}

func Newf(format string, args ...any) error {
	return cr.Newf(format, args...)
}

// Mark makes err match markErr, and markErr's kind when it is a sentinel
// declared with Kind.
func Mark(err error, markErr error) error {
	if err == nil {
		return markErr
	}
	if k, ok := markErr.(*kindError); ok {
		err = cr.Mark(err, k.kind)
	}
	return cr.Mark(err, markErr)
}

// kindError is a sentinel that belongs to one taxonomy kind. Two sentinels of
// the same kind stay distinct as long as their messages differ.
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

// Kind declares a new sentinel that also matches the given taxonomy kind.
func Kind(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}

func CombineErrors(err, other error) error {
	return cr.CombineErrors(err, other)
}

func Is(err, target error) bool {
	return cr.Is(err, target)
}

// KindOf returns the taxonomy kind err belongs to, or nil for generic failures.
func KindOf(err error) error {
	for _, k := range []error{ErrNotFound, ErrConflict, ErrValidation, ErrUpstream, ErrInconsistency, ErrForbidden, ErrUnauthorized} {
		if cr.Is(err, k) {
			return k
		}
	}
	return nil
}

func IsRecordNotFound(err error) bool {
	return cr.Is(err, gorm.ErrRecordNotFound)
}

// IsUniqueViolation recognises duplicate-key failures from postgres and sqlite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if cr.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if cr.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "unique failed")
}

func ExtractStackLines(err error, maxLines int) []string {
	if err == nil {
		return nil
	}
	s := fmt.Sprintf("%+v", err)
	lines := strings.Split(s, "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}
