package core

// error_messages.go maps technical errors to user-friendly messages with
// codes for support reference. Patterns are matched case-insensitively
// using strings.Contains; the first matching pattern wins, so more
// specific patterns come before general ones.

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

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Catalog connectivity (CAT001-CAT004)
	{
		pattern: "catalog not ready",
		msg: UserMessage{
			Message: "The catalog service is not ready for syncing",
			Action:  "Run a connection check and review which stage failed",
			Code:    "CAT001",
		},
	},
	{
		pattern: "unreachable",
		msg: UserMessage{
			Message: "The catalog server could not be reached",
			Action:  "Check the catalog URL and your network connection",
			Code:    "CAT002",
		},
	},
	{
		pattern: "authentication failed",
		msg: UserMessage{
			Message: "The catalog rejected the configured access token",
			Action:  "Verify the token is current and has not been revoked",
			Code:    "CAT003",
		},
	},
	{
		pattern: "lacks permission",
		msg: UserMessage{
			Message: "The token cannot read the target collection",
			Action:  "Grant the token read access to the collection",
			Code:    "CAT004",
		},
	},
	{
		pattern: "does not exist in the remote catalog",
		msg: UserMessage{
			Message: "A record id was not found in the catalog",
			Action:  "Check that the id column matches catalog ids exactly",
			Code:    "CAT005",
		},
	},

	// Import errors (IMP001-IMP003)
	{
		pattern: "header row and at least one data row",
		msg: UserMessage{
			Message: "The uploaded file has no header or data rows",
			Action:  "Upload a CSV with a header row and at least one data row",
			Code:    "IMP001",
		},
	},
	{
		pattern: "import not found",
		msg: UserMessage{
			Message: "Import session not found",
			Action:  "The import may have expired. Please upload the file again",
			Code:    "IMP002",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller chunks",
			Code:    "IMP003",
		},
	},

	// Sync run errors (RUN001-RUN004)
	{
		pattern: "sync run not found",
		msg: UserMessage{
			Message: "Sync run not found",
			Action:  "The run may have expired. Check the run history",
			Code:    "RUN001",
		},
	},
	{
		pattern: "too many concurrent sync runs",
		msg: UserMessage{
			Message: "Another sync run is already in progress",
			Action:  "Wait for the current run to finish and try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The operation was cancelled",
			Action:  "Please try again",
			Code:    "RUN003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The operation timed out",
			Action:  "Try again, or raise the run timeout for large batches",
			Code:    "RUN004",
		},
	},

	// Rate limiting (RATE001)
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
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

// IsUserFacing reports whether an error matches a known pattern and
// should be shown to users rather than the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
