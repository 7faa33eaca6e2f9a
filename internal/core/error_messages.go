package core

// error_messages.go maps errors to caller-facing messages with support codes.
//
// # Error Codes Reference
//
//	AUTH001 - Caller is not an administrator
//	VAL000  - Other invalid request field
//	VAL001  - Title is blank
//	VAL002  - Price is blank, malformed or negative
//	VAL003  - City name is blank
//	VAL004  - Source name is blank
//	VAL005  - Rooms is not a non-negative whole number
//	VAL006  - Publication date is not ISO-8601
//	IMG001  - Image is not valid base64
//	IMG002  - Image exceeds the size ceiling
//	CSV001  - Document has no data rows
//	CSV002  - Header lacks required columns
//	CSV003  - Document is not parseable CSV
//	NF001   - Listing, image or job not found
//	ING001  - No ingest slot available
//	ING002  - Scraping is not configured
//	DB001   - Database unreachable
//	DB002   - Database operation timed out
//	DB003   - Any other storage failure
//	ERR000  - Unexpected error; check logs for the technical cause
//
// Validation messages repeat the violated rule verbatim so the caller sees
// which field failed. Storage messages never include technical detail.

import (
	"context"
	"errors"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var fieldCodes = map[string]string{
	"title":           "VAL001",
	"price":           "VAL002",
	"cityName":        "VAL003",
	"sourceName":      "VAL004",
	"rooms":           "VAL005",
	"publicationDate": "VAL006",
}

// errorPattern matches technical storage errors by substring.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// persistencePatterns are checked in order; the first match wins.
var persistencePatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB002",
		},
	},
}

var persistenceDefault = UserMessage{
	Message: "The listing could not be saved",
	Action:  "Nothing was stored. Please try again or contact support",
	Code:    "DB003",
}

// defaultMessage is returned when nothing else matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a caller-facing message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var mc *MissingColumnsError
	var ve *ValidationError

	switch {
	case errors.Is(err, ErrForbidden):
		return UserMessage{
			Message: "Administrator rights are required",
			Action:  "Sign in with an administrator account",
			Code:    "AUTH001",
		}
	case errors.As(err, &mc):
		return UserMessage{
			Message: mc.Error(),
			Action:  "Add the missing columns to the header row",
			Code:    "CSV002",
		}
	case errors.Is(err, ErrEmptyDocument):
		return UserMessage{
			Message: "The CSV document has no data rows",
			Action:  "Upload a header row followed by at least one listing",
			Code:    "CSV001",
		}
	case errors.Is(err, ErrPayloadTooLarge):
		return UserMessage{Message: messageOf(err), Action: "Upload a smaller image", Code: "IMG002"}
	case errors.Is(err, ErrInvalidEncoding):
		return UserMessage{Message: messageOf(err), Action: "Send images as base64 strings", Code: "IMG001"}
	case errors.As(err, &ve):
		if ve.Field == "csv" {
			return UserMessage{
				Message: ve.Error(),
				Action:  "Save the file as comma-separated values with double-quote quoting",
				Code:    "CSV003",
			}
		}
		code, ok := fieldCodes[ve.Field]
		if !ok {
			code = "VAL000"
		}
		return UserMessage{Message: ve.Error(), Action: "Correct the field and resubmit", Code: code}
	case errors.Is(err, ErrNotFound):
		return UserMessage{Message: "The requested item was not found", Action: "Check the identifier", Code: "NF001"}
	case errors.Is(err, ErrTooManyImports):
		return UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "ING001",
		}
	case errors.Is(err, ErrScrapingDisabled):
		return UserMessage{Message: "Scraping is not configured", Action: "Contact an operator", Code: "ING002"}
	case errors.Is(err, context.DeadlineExceeded):
		return persistencePatterns[2].msg
	}

	if KindOf(err) == KindPersistence {
		lower := strings.ToLower(err.Error())
		for _, ep := range persistencePatterns {
			if strings.Contains(lower, ep.pattern) {
				return ep.msg
			}
		}
		return persistenceDefault
	}

	return defaultMessage
}

// messageOf prefers the ValidationError text, which names the field.
func messageOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return err.Error()
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
