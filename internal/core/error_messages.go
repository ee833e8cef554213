package core

// # Error Codes Reference
//
// User-facing messages carry a code that users can quote to support staff.
//
// Import errors, matched by error kind:
//
//	STORE001 - The policy database could not be opened
//	           Action: Check STORE_PATH and that its directory is writable
//	SCHEMA001 - A policy table could not be created
//	           Action: Check database permissions and free space
//	FILE002  - The file is not valid CSV (malformed quoting)
//	           Action: Re-export the file as comma-separated values
//	SRC001   - The uploaded file could not be read
//	           Action: Upload the file again
//	UPL002   - Another import is running
//	           Action: Wait a moment and try again
//
// Pattern fallbacks, matched case-insensitively with strings.Contains in
// list order:
//
//	DB004 connection refused, DB005 connection reset, DB006 timeout,
//	FILE001 request body too large / file too large, FILE003 unsupported
//	source encoding, FILE004 no file provided, TBL001 no such table /
//	does not exist, UPL004 context canceled, UPL005 context deadline
//	exceeded, RATE001 rate limit
//
// ERR000 is the fallback; check the logs for the technical error.

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
)

// UserMessage is the client-safe description of an error.
type UserMessage struct {
	Message string // what went wrong, in plain words
	Action  string // what the user can do next
	Code    string // stable code to quote in support requests
}

var (
	msgStoreOpen = UserMessage{
		Message: "The policy database could not be opened",
		Action:  "Check the store path and that its directory is writable",
		Code:    "STORE001",
	}
	msgSchema = UserMessage{
		Message: "A policy table could not be created",
		Action:  "Check database permissions and free space",
		Code:    "SCHEMA001",
	}
	msgInvalidCSV = UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Re-export the file as comma-separated values",
		Code:    "FILE002",
	}
	msgSourceRead = UserMessage{
		Message: "The uploaded file could not be read",
		Action:  "Upload the file again",
		Code:    "SRC001",
	}
	msgBusy = UserMessage{
		Message: "Another import is in progress",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}
)

var (
	msgCanceled = UserMessage{
		Message: "The request was cancelled",
		Action:  "Send it again",
		Code:    "UPL004",
	}
	msgDeadline = UserMessage{
		Message: "The request took too long",
		Action:  "Try again, or upload a smaller file",
		Code:    "UPL005",
	}
)

// kindMessages maps error kinds to messages; checked in order with errors.Is.
var kindMessages = []struct {
	kind error
	msg  UserMessage
}{
	{ErrStoreOpen, msgStoreOpen},
	{ErrSchema, msgSchema},
	{ErrSourceRead, msgSourceRead},
	{ErrTooManyImports, msgBusy},
}

type errorPattern struct {
	substrings []string
	msg        UserMessage
}

// errorPatterns is the fallback for errors without a known kind. First match
// wins, so specific patterns come first.
var errorPatterns = []errorPattern{
	{[]string{"connection refused"}, UserMessage{
		Message: "The policy database is not reachable",
		Action:  "Try again in a few moments",
		Code:    "DB004",
	}},
	{[]string{"connection reset"}, UserMessage{
		Message: "The connection to the policy database dropped",
		Action:  "Try again",
		Code:    "DB005",
	}},
	{[]string{"request body too large", "file too large"}, UserMessage{
		Message: "The file is larger than the upload limit",
		Action:  "Split the policies into several smaller files",
		Code:    "FILE001",
	}},
	{[]string{"unsupported source encoding"}, UserMessage{
		Message: "The configured file encoding is not supported",
		Action:  "Use utf-8, windows-1252 or iso-8859-1",
		Code:    "FILE003",
	}},
	{[]string{"no file provided"}, UserMessage{
		Message: "No CSV file was attached",
		Action:  `Choose a file and send it in the "file" field`,
		Code:    "FILE004",
	}},
	{[]string{"no such table", "does not exist"}, UserMessage{
		Message: "No policies have been imported into this table yet",
		Action:  "Upload a CSV file first, or check the table name",
		Code:    "TBL001",
	}},
	{[]string{"context canceled"}, msgCanceled},
	{[]string{"context deadline exceeded"}, msgDeadline},
	{[]string{"timeout"}, UserMessage{
		Message: "The policy database did not answer in time",
		Action:  "Try again later",
		Code:    "DB006",
	}},
	{[]string{"rate limit"}, UserMessage{
		Message: "Too many requests from this address",
		Action:  "Wait a minute before trying again",
		Code:    "RATE001",
	}},
}

func (p errorPattern) matches(errStr string) bool {
	for _, sub := range p.substrings {
		if strings.Contains(errStr, sub) {
			return true
		}
	}
	return false
}

var defaultMessage = UserMessage{
	Message: "Something went wrong while handling the request",
	Action:  "Try again; if it keeps failing, report the code ERR000",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Import
// error kinds are matched first, then text patterns. A nil error maps to the
// zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	// An interrupted stream is reported by its cause, not as a read failure.
	var parseErr *csv.ParseError
	if errors.Is(err, ErrSourceRead) {
		switch {
		case errors.Is(err, context.Canceled):
			return msgCanceled
		case errors.Is(err, context.DeadlineExceeded):
			return msgDeadline
		case errors.As(err, &parseErr):
			return msgInvalidCSV
		}
	}
	for _, km := range kindMessages {
		if errors.Is(err, km.kind) {
			return km.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if ep.matches(errStr) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action" for display.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != defaultMessage.Code
}
