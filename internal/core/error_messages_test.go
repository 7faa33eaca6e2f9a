package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "nil error returns empty", err: nil, wantCode: ""},
		{name: "forbidden", err: ErrForbidden, wantCode: "AUTH001"},
		{name: "wrapped forbidden", err: fmt.Errorf("import: %w", ErrForbidden), wantCode: "AUTH001"},
		{name: "blank title", err: &ValidationError{Field: "title", Message: "title is required"}, wantCode: "VAL001"},
		{name: "bad price", err: &ValidationError{Field: "price", Message: "bad"}, wantCode: "VAL002"},
		{name: "blank city", err: &ValidationError{Field: "cityName", Message: "bad"}, wantCode: "VAL003"},
		{name: "blank source", err: &ValidationError{Field: "sourceName", Message: "bad"}, wantCode: "VAL004"},
		{name: "bad rooms", err: &ValidationError{Field: "rooms", Message: "bad"}, wantCode: "VAL005"},
		{name: "bad publication date", err: &ValidationError{Field: "publicationDate", Message: "bad"}, wantCode: "VAL006"},
		{name: "unknown field", err: &ValidationError{Field: "url", Message: "bad"}, wantCode: "VAL000"},
		{
			name:     "invalid image encoding",
			err:      &ValidationError{Field: "images[0]", Message: "bad", Err: ErrInvalidEncoding},
			wantCode: "IMG001",
		},
		{
			name:     "image too large",
			err:      &ValidationError{Field: "images[1]", Message: "bad", Err: ErrPayloadTooLarge},
			wantCode: "IMG002",
		},
		{name: "empty document", err: ErrEmptyDocument, wantCode: "CSV001"},
		{name: "missing columns", err: &MissingColumnsError{Columns: []string{"price"}}, wantCode: "CSV002"},
		{name: "csv syntax", err: &ValidationError{Field: "csv", Line: 4, Message: "bare quote"}, wantCode: "CSV003"},
		{name: "not found", err: ErrNotFound, wantCode: "NF001"},
		{name: "too many imports", err: ErrTooManyImports, wantCode: "ING001"},
		{name: "scraping disabled", err: ErrScrapingDisabled, wantCode: "ING002"},
		{
			name:     "connection refused",
			err:      &PersistenceError{Op: "insert listing", Err: errors.New("dial tcp: connection refused")},
			wantCode: "DB001",
		},
		{
			name:     "case insensitive matching",
			err:      &PersistenceError{Op: "insert listing", Err: errors.New("CONNECTION RESET by peer")},
			wantCode: "DB001",
		},
		{
			name:     "storage timeout",
			err:      &PersistenceError{Op: "insert listing", Err: errors.New("i/o timeout")},
			wantCode: "DB002",
		},
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: "DB002"},
		{
			name:     "other storage failure",
			err:      &PersistenceError{Op: "insert listing", Err: errors.New("violates foreign key constraint")},
			wantCode: "DB003",
		},
		{name: "unknown error returns default", err: errors.New("some random internal error"), wantCode: "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestMapError_ValidationMessageNamesField(t *testing.T) {
	err := &ValidationError{Field: "price", Line: 3, Message: "price must not be negative"}

	got := MapError(err)
	want := "line 3: price: price must not be negative"
	if got.Message != want {
		t.Errorf("MapError() message = %q, want %q", got.Message, want)
	}
}

func TestMapError_PersistenceHidesDetail(t *testing.T) {
	err := &PersistenceError{Op: "insert listing", Err: errors.New(`relation "listings" does not exist`)}

	got := MapError(err)
	if got.Message != persistenceDefault.Message {
		t.Errorf("MapError() message = %q, want %q", got.Message, persistenceDefault.Message)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error is not user facing", err: nil, want: false},
		{name: "known error is user facing", err: ErrNotFound, want: true},
		{name: "unknown error is not user facing", err: errors.New("random internal error xyz"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "validation", err: &ValidationError{Field: "title"}, want: KindValidation},
		{name: "missing columns", err: &MissingColumnsError{}, want: KindValidation},
		{name: "empty document", err: ErrEmptyDocument, want: KindValidation},
		{name: "bare image sentinel", err: ErrPayloadTooLarge, want: KindValidation},
		{name: "forbidden", err: ErrForbidden, want: KindForbidden},
		{name: "not found", err: ErrNotFound, want: KindNotFound},
		{name: "persistence", err: &PersistenceError{Op: "x", Err: errors.New("boom")}, want: KindPersistence},
		{name: "unknown", err: errors.New("boom"), want: KindInternal},
		{name: "nil", err: nil, want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPersistErr(t *testing.T) {
	if persistErr("op", nil) != nil {
		t.Error("persistErr(nil) should be nil")
	}

	// Already-classified errors pass through unchanged
	if got := persistErr("op", ErrForbidden); got != ErrForbidden {
		t.Errorf("persistErr(ErrForbidden) = %v", got)
	}

	raw := errors.New("boom")
	got := persistErr("insert city", raw)
	var pe *PersistenceError
	if !errors.As(got, &pe) || pe.Op != "insert city" || !errors.Is(got, raw) {
		t.Errorf("persistErr(raw) = %#v", got)
	}
}
