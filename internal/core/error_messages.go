package core

// error_messages.go maps technical errors to user-facing messages with a
// code that callers can quote to an operator.
//
// # Error Codes Reference
//
// Directory errors:
//
//	DIR001   - No record matches the name, code or key
//
// Validation errors:
//
//	VAL001   - External ID is not a digit string of at least 15 characters
//	VAL002   - Name is empty once canonicalized
//	VAL003   - Unknown field selector in a single-field edit
//
// Store errors:
//
//	STORE001 - Durable store unreachable or failed
//	STORE002 - Store busy or locked by another writer
//
// Bulk errors:
//
//	BULK001  - Too many bulk imports running
//
// Import errors:
//
//	CSV001   - No header row with id and name columns
//
// Backup errors:
//
//	BACKUP001 - Snapshot backups are not configured
//
// Request errors:
//
//	RATE001  - Rate limit exceeded
//	AUTH001  - API key missing on a privileged route
//	AUTH002  - API key not recognised
//	REQ001   - Malformed request body or parameters
//
// Fallback:
//
//	ERR000   - Anything else; the technical error is in the server log
//
// # Matching
//
// Sentinel errors are matched with errors.Is first. Store failures are then
// refined by message pattern (locked vs unavailable). Remaining errors are
// matched case-insensitively with strings.Contains; the first pattern wins.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

var (
	msgNotFound = UserMessage{
		Message: "No matching record",
		Action:  "Check the name or code and try again",
		Code:    "DIR001",
	}
	msgInvalidID = UserMessage{
		Message: "Invalid ID",
		Action:  fmt.Sprintf("Use the numeric ID of at least %d digits", MinExternalIDLength),
		Code:    "VAL001",
	}
	msgInvalidName = UserMessage{
		Message: "Name is empty",
		Action:  "Provide a name with at least one letter or digit",
		Code:    "VAL002",
	}
	msgStoreBusy = UserMessage{
		Message: "The directory is busy",
		Action:  "Please try again in a moment",
		Code:    "STORE002",
	}
	msgStoreUnavailable = UserMessage{
		Message: "The directory store is unavailable",
		Action:  "Please try again later; the previous state is unchanged",
		Code:    "STORE001",
	}
	msgCSVHeader = UserMessage{
		Message: "The CSV file has no header row",
		Action:  "Add a header with id, name and code columns",
		Code:    "CSV001",
	}
	msgTooManyBulk = UserMessage{
		Message: "Another bulk import is already running",
		Action:  "Wait for it to finish and try again",
		Code:    "BULK001",
	}
)

// sentinelMessages is consulted in order with errors.Is.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrNotFound, msgNotFound},
	{ErrInvalidIdentifier, msgInvalidID},
	{ErrInvalidName, msgInvalidName},
	{ErrTooManyBulkImports, msgTooManyBulk},
	{ErrCSVHeaderNotFound, msgCSVHeader},
}

// storeBusyPatterns refine a store failure into STORE002.
var storeBusyPatterns = []string{"database is locked", "sqlite_busy", "deadlock", "too many connections"}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request could not be understood",
			Action:  "Check the request body and parameters",
			Code:    "REQ001",
		},
	},
	{
		pattern: "unknown field",
		msg: UserMessage{
			Message: "Unknown field",
			Action:  "Use one of: id, name, code",
			Code:    "VAL003",
		},
	},
	{
		pattern: "backups are not configured",
		msg: UserMessage{
			Message: "Backups are not configured",
			Action:  "Set BACKUP_S3_BUCKET to enable snapshots",
			Code:    "BACKUP001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
	{
		pattern: "missing api key",
		msg: UserMessage{
			Message: "This action requires an API key",
			Action:  "Send the X-API-Key header",
			Code:    "AUTH001",
		},
	},
	{
		pattern: "invalid api key",
		msg: UserMessage{
			Message: "API key not recognised",
			Action:  "Check the key with the directory operator",
			Code:    "AUTH002",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "The request body is too large",
			Action:  "Split the bulk input into smaller parts",
			Code:    "REQ001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact the directory operator",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the zero UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())

	if errors.Is(err, ErrStoreUnavailable) {
		for _, p := range storeBusyPatterns {
			if strings.Contains(errStr, p) {
				return msgStoreBusy
			}
		}
		return msgStoreUnavailable
	}

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
