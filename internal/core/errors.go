package core

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers at the boundary.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindForbidden
	KindNotFound
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindPersistence:
		return "persistence"
	default:
		return "internal"
	}
}

var (
	// ErrForbidden is returned when the caller is not an administrator.
	ErrForbidden = errors.New("caller is not an administrator")

	// ErrNotFound is returned when a listing, image or job does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned by repositories when an insert hits a
	// unique natural key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidEncoding is returned when an image payload is not valid base64.
	ErrInvalidEncoding = errors.New("invalid base64 encoding")

	// ErrPayloadTooLarge is returned when a decoded image exceeds the size ceiling.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrEmptyDocument is returned when a CSV document has no data rows.
	ErrEmptyDocument = errors.New("csv document must contain a header and at least one row")
)

// ValidationError reports the first rule a candidate listing violated.
type ValidationError struct {
	Field   string // field or column name
	Value   string // offending value, may be empty
	Message string // human-readable reason
	Line    int    // CSV line number, 0 outside imports
	Err     error  // detail sentinel, may be nil
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// MissingColumnsError is returned when a CSV header lacks required columns.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Columns, ", ")
}

// PersistenceError wraps a storage failure. Its detail is never shown to callers.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// persistErr wraps err unless it is already classified.
func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindInternal {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}

	var ve *ValidationError
	var mc *MissingColumnsError
	var pe *PersistenceError

	switch {
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.As(err, &ve), errors.As(err, &mc),
		errors.Is(err, ErrEmptyDocument),
		errors.Is(err, ErrInvalidEncoding),
		errors.Is(err, ErrPayloadTooLarge):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &pe):
		return KindPersistence
	default:
		return KindInternal
	}
}
