package core

// # Run Error Codes Reference
//
// Row problems are reported through Code values attached to each Outcome.
// Errors that abort a whole run (database outages, unreadable files, a busy
// run gate) are mapped here to operator-facing messages with a support code.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: The directory rejected a duplicate user
//	DB004 - Connection refused: Unable to connect to the directory database
//	DB005 - Connection reset: Directory connection was interrupted
//	DB006 - Timeout: Directory operation timed out
//	DB007 - Deadlock: Directory was busy with conflicting operations
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the configured size limit
//	FILE002 - Invalid CSV: File is not a valid delimited text file
//	FILE003 - Encoding error: File cannot be decoded with the chosen encoding
//	FILE004 - No file: No file was provided
//	FILE005 - Empty file: The file has no header row
//	FILE006 - Bad header: The header has empty, duplicate or unknown columns
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Run cancelled: The run was cancelled before it finished
//	RUN002 - System busy: Another upload run is in progress
//	RUN003 - Run timeout: The run exceeded its deadline
//	RUN004 - Engine misuse: A row plan was committed out of order
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//
// Patterns are matched case-insensitively using strings.Contains. The first
// matching pattern wins, so more specific patterns come first.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Errors
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "The directory rejected a duplicate user",
			Action:  "Check the file for repeated usernames or ids",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the directory database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Directory connection was interrupted",
			Action:  "Re-run the upload; committed rows are reported in the summary",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Directory was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// =========================================================================
	// Run Errors
	// Listed before the generic timeout pattern.
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The run was cancelled",
			Action:  "Rows processed before cancellation stay committed",
			Code:    "RUN001",
		},
	},
	{
		pattern: "run in progress",
		msg: UserMessage{
			Message: "Another upload run is in progress",
			Action:  "Please wait for it to finish and try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The run exceeded its deadline",
			Action:  "Split the file into smaller chunks",
			Code:    "RUN003",
		},
	},
	{
		pattern: "engine contract violation",
		msg: UserMessage{
			Message: "A row was committed out of order",
			Action:  "Contact support with the run id",
			Code:    "RUN004",
		},
	},
	{
		pattern: "upload run not found",
		msg: UserMessage{
			Message: "No upload run with that id was recorded",
			Action:  "Check the run id or list recent runs",
			Code:    "RUN005",
		},
	},
	{
		pattern: "invalid policy",
		msg: UserMessage{
			Message: "The upload options are not valid",
			Action:  "Check the mode, update mode and password options",
			Code:    "RUN006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Directory operation timed out",
			Action:  "Try again later",
			Code:    "DB006",
		},
	},

	// =========================================================================
	// File Errors
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the configured size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid delimited text file",
			Action:  "Check the delimiter and quoting",
			Code:    "FILE002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File cannot be decoded with the chosen encoding",
			Action:  "Save the file as UTF-8 or pick the matching encoding",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file has no header row",
			Action:  "Please upload a CSV file with a header and data rows",
			Code:    "FILE005",
		},
	},
	{
		pattern: "invalid header",
		msg: UserMessage{
			Message: "The header row is not valid",
			Action:  "Remove empty, duplicate or unknown column names",
			Code:    "FILE006",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a run-level error to a user-friendly message. If no
// pattern matches, a generic fallback message with code ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError wraps a run-level error with its user-facing message.
type UserError struct {
	UserMessage
	Err error
}

// NewUserError maps err and wraps it. Returns nil for a nil error.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{UserMessage: MapError(err), Err: err}
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Unwrap() error { return e.Err }
