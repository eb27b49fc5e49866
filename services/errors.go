package services

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error kinds returned by ChatService. Check them with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("conversation not found")
	ErrUnauthorized       = errors.New("user is not a participant of the conversation")
	ErrConcurrency        = errors.New("transaction aborted by concurrent update")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError lists the rejected fields and the rule each one broke.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, rule string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: rule}}
}

// classifyStorageError maps driver failures onto the service error kinds.
// Errors that already carry a kind pass through unchanged.
func classifyStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrUnauthorized, ErrConcurrency, ErrStorageUnavailable} {
		if errors.Is(err, kind) {
			return err
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "55P03":
			return fmt.Errorf("%s: %w: %w", op, ErrConcurrency, err)
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "53300", pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
			return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
		}
	}

	var netErr net.Error
	var connectErr *pgconn.ConnectError
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.As(err, &netErr) || errors.As(err, &connectErr) {
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}

	// SQLite reports lock contention only through its message text.
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%s: %w: %w", op, ErrConcurrency, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
