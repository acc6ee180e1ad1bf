package core

// error_messages.go turns technical errors into short user-facing messages with a
// code for support reference. HTTP error bodies and failure notifications use it.
//
// # Error Codes Reference
//
// # Identifier Errors (IDN001-IDN099)
//
//	IDN001 - Invalid name: A table or column name is not allowed
//	         Action: Use letters, digits and underscores, starting with a letter or underscore
//	         Patterns: "invalid identifier"
//
//	IDN002 - Invalid column type: A column type declaration is not allowed
//	         Action: Use a plain SQL type such as TEXT, INTEGER or VARCHAR(255)
//	         Patterns: "invalid column type"
//
//	IDN003 - Internal table: The name belongs to one of the service's own tables
//	         Action: Choose a different table name
//	         Patterns: "reserved for internal use"
//
// # Schema Errors (SCH001-SCH099)
//
//	SCH001 - Already exists: The table or column already exists
//	         Action: Choose a different name
//	         Patterns: "already exists", "duplicate column name"
//
//	SCH002 - Table not found: The table does not exist
//	         Action: Verify the table name or create the table first
//	         Patterns: "table not found", "does not exist", "no such table"
//
//	SCH003 - Reserved column: The id column is created automatically
//	         Action: Remove id from the column list
//	         Patterns: "managed by the store", "assigned by the store"
//
// # Database Errors (DB000-DB099)
//
//	DB001 - Duplicate key: A record with this key already exists
//	        Patterns: "duplicate key"
//
//	DB002 - Unique constraint: This value must be unique but already exists
//	        Patterns: "unique constraint", "violates unique"
//
//	DB004 - Connection refused: Unable to connect to database
//	        Patterns: "connection refused"
//
//	DB005 - Connection reset: Database connection was interrupted
//	        Patterns: "connection reset"
//
//	DB006 - Timeout: Operation timed out
//	        Patterns: "timeout"
//
//	DB007 - Deadlock / busy: Database was busy with conflicting operations
//	        Patterns: "deadlock", "database is locked"
//
//	DB000 - Database error: Any other store failure (fallback for ErrDatabase)
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid input: Generic validation failure (fallback for ErrValidation)
//	VAL002 - Unknown columns: CSV columns not present in the table ("columns not in table")
//	VAL003 - Duplicate values: Unique fields repeat in the file or the table ("duplicate values")
//	VAL004 - Invalid CSV: The file could not be parsed ("invalid csv")
//	VAL005 - Empty file: No header or no data rows ("empty file")
//	VAL006 - Duplicate columns: A column is listed twice ("duplicate columns")
//	VAL007 - No columns: A table needs at least one column ("needs at least one column")
//	VAL008 - Bad paging or sorting parameters ("page must be", "limit must be", "sort direction")
//	VAL009 - Unsupported value ("only scalar values", "invalid number")
//	VAL010 - Missing field: A required request field is absent ("is required", "are required")
//	VAL011 - Bad request body: The body is not valid JSON ("invalid request body")
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Internal import error: The import crashed ("import panicked")
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - System busy: Too many imports in progress ("too many concurrent import jobs")
//	UPL002 - File too large ("file too large")
//	UPL003 - No file provided ("no file provided")
//	UPL004 - Request cancelled ("context canceled")
//	UPL005 - Request timeout ("context deadline exceeded")
//	UPL006 - Shutting down ("dispatcher closed")
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests ("rate limit")
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: check application logs for the original error.
//
// # Pattern Matching
//
// Patterns are matched case-insensitively with strings.Contains; the first match
// wins, so specific patterns precede general ones. When nothing matches, the error
// kind (see Kind) picks the category fallback before ERR000 is used.

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

var (
	msgInvalidIdentifier = UserMessage{
		Message: "Invalid table or column name",
		Action:  "Use letters, digits and underscores, starting with a letter or underscore",
		Code:    "IDN001",
	}
	msgInvalidType = UserMessage{
		Message: "Invalid column type",
		Action:  "Use a plain SQL type such as TEXT, INTEGER or VARCHAR(255)",
		Code:    "IDN002",
	}
	msgAlreadyExists = UserMessage{
		Message: "The table or column already exists",
		Action:  "Choose a different name",
		Code:    "SCH001",
	}
	msgTableNotFound = UserMessage{
		Message: "Table not found",
		Action:  "Verify the table name or create the table first",
		Code:    "SCH002",
	}
	msgReservedColumn = UserMessage{
		Message: "The id column is created automatically",
		Action:  "Remove id from the submitted columns",
		Code:    "SCH003",
	}
	msgUniqueViolation = UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Check for duplicate entries",
		Code:    "DB002",
	}
	msgMissingField = UserMessage{
		Message: "A required field is missing",
		Action:  "Provide every field the endpoint requires",
		Code:    "VAL010",
	}
	msgDeadlock = UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}
)

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
//
// To add a new error pattern:
//  1. Choose the appropriate category and code range
//  2. Add the pattern in the correct position (specific before general)
//  3. Update the code reference at the top of this file
var errorPatterns = []errorPattern{
	// =========================================================================
	// Identifier Errors (IDN001-IDN003)
	// =========================================================================
	{pattern: "invalid column type", msg: msgInvalidType},
	{
		pattern: "reserved for internal use",
		msg: UserMessage{
			Message: "This table belongs to the service and cannot be used",
			Action:  "Choose a different table name",
			Code:    "IDN003",
		},
	},
	{pattern: "invalid identifier", msg: msgInvalidIdentifier},

	// =========================================================================
	// Validation Errors (VAL002-VAL009)
	// Checked before schema patterns: "duplicate columns in header" must not read
	// as a duplicate column in the table.
	// =========================================================================
	{
		pattern: "columns not in table",
		msg: UserMessage{
			Message: "The file has columns that are not in the table",
			Action:  "Remove the listed columns or add them to the table first",
			Code:    "VAL002",
		},
	},
	{
		pattern: "duplicate values",
		msg: UserMessage{
			Message: "Duplicate values found in unique fields",
			Action:  "Remove the listed values from the file",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is comma-separated with a header and consistent columns",
			Code:    "VAL004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file has no data",
			Action:  "Upload a CSV with a header row and at least one data row",
			Code:    "VAL005",
		},
	},
	{
		pattern: "duplicate columns",
		msg: UserMessage{
			Message: "A column is listed more than once",
			Action:  "List each column once",
			Code:    "VAL006",
		},
	},
	{
		pattern: "needs at least one column",
		msg: UserMessage{
			Message: "A table needs at least one column",
			Action:  "Add a column definition",
			Code:    "VAL007",
		},
	},
	{
		pattern: "page must be",
		msg: UserMessage{
			Message: "Invalid paging or sorting parameters",
			Action:  "Use page and limit of at least 1 and order_direction asc or desc",
			Code:    "VAL008",
		},
	},
	{
		pattern: "limit must be",
		msg: UserMessage{
			Message: "Invalid paging or sorting parameters",
			Action:  "Use page and limit of at least 1 and order_direction asc or desc",
			Code:    "VAL008",
		},
	},
	{
		pattern: "sort direction",
		msg: UserMessage{
			Message: "Invalid paging or sorting parameters",
			Action:  "Use page and limit of at least 1 and order_direction asc or desc",
			Code:    "VAL008",
		},
	},
	{
		pattern: "only scalar values",
		msg: UserMessage{
			Message: "Unsupported field value",
			Action:  "Send strings, numbers, booleans or null",
			Code:    "VAL009",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Unsupported field value",
			Action:  "Send strings, numbers, booleans or null",
			Code:    "VAL009",
		},
	},
	{pattern: "is required", msg: msgMissingField},
	{pattern: "are required", msg: msgMissingField},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The request body is not valid JSON",
			Action:  "Send a JSON object with the documented fields",
			Code:    "VAL011",
		},
	},

	// =========================================================================
	// Schema Errors (SCH001-SCH003)
	// =========================================================================
	{pattern: "managed by the store", msg: msgReservedColumn},
	{pattern: "assigned by the store", msg: msgReservedColumn},
	{pattern: "already exists", msg: msgAlreadyExists},
	{pattern: "duplicate column name", msg: msgAlreadyExists},
	{pattern: "table not found", msg: msgTableNotFound},
	{pattern: "no such table", msg: msgTableNotFound},
	{pattern: "does not exist", msg: msgTableNotFound},

	// =========================================================================
	// Database Errors (DB001-DB007)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Check for duplicate entries",
			Code:    "DB001",
		},
	},
	{pattern: "unique constraint", msg: msgUniqueViolation},
	{pattern: "violates unique", msg: msgUniqueViolation},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{pattern: "deadlock", msg: msgDeadlock},
	{pattern: "database is locked", msg: msgDeadlock},

	// =========================================================================
	// Import Errors (IMP001)
	// =========================================================================
	{
		pattern: "import panicked",
		msg: UserMessage{
			Message: "The import stopped because of an internal error",
			Action:  "Please try again or contact support",
			Code:    "IMP001",
		},
	},

	// =========================================================================
	// Upload Errors (UPL001-UPL006)
	// =========================================================================
	{
		pattern: "too many concurrent import jobs",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "UPL001",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "UPL002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Attach a CSV file in the file field",
			Code:    "UPL003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL005",
		},
	},
	{
		pattern: "dispatcher closed",
		msg: UserMessage{
			Message: "The server is shutting down",
			Action:  "Please try again shortly",
			Code:    "UPL006",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// kindMessages are the per-category fallbacks used when no pattern matches.
var kindMessages = map[ErrorKind]UserMessage{
	KindInvalidIdentifier: msgInvalidIdentifier,
	KindValidation: {
		Message: "The request is not valid",
		Action:  "Check the submitted data",
		Code:    "VAL001",
	},
	KindSchemaConflict: msgAlreadyExists,
	KindTableNotFound:  msgTableNotFound,
	KindDatabase: {
		Message: "A database error occurred",
		Action:  "Please try again or contact support",
		Code:    "DB000",
	},
	KindBusy: {
		Message: "System is busy",
		Action:  "Please wait a moment and try again",
		Code:    "UPL001",
	},
}

// defaultMessage is returned when nothing matches (ERR000). Support staff should
// check application logs for the original error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	msg := MapError(fmt.Errorf("insert: %w", err)) // err is a pg unique violation
//	// msg.Code == "DB001"
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

	if msg, ok := kindMessages[Kind(err)]; ok {
		return msg
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

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
