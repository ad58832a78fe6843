// Package apperr defines the error kinds shared by the adapters, the tool
// registry and the surfaces that report failures to users.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code classifies an Error.
type Code string

const (
	CodeInvalidInput  Code = "invalid_input"
	CodeNotFound      Code = "not_found"
	CodeRequestFailed Code = "request_failed"
	CodeUpstreamAgent Code = "upstream_agent_failure"
	CodeBusy          Code = "busy"
)

// Error is a typed error that can be surfaced to users without further wrapping.
type Error struct {
	Code    Code
	Message string
	// Status is the remote HTTP status for request failures, 0 otherwise.
	Status int
	// Fields names the offending inputs for invalid_input errors.
	Fields []string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidInput reports arguments that failed validation. Every offending
// field is named in the message.
func InvalidInput(fields []string, detail string) *Error {
	msg := "invalid input"
	if len(fields) > 0 {
		msg += " (" + strings.Join(fields, ", ") + ")"
	}
	if detail != "" {
		msg += ": " + detail
	}
	return &Error{Code: CodeInvalidInput, Message: msg, Fields: fields}
}

// NotFound reports that the remote system has no such resource.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...), Status: http.StatusNotFound}
}

// RequestFailed reports a non-2xx answer or a transport failure. status is 0
// when no response was received.
func RequestFailed(status int, message string, err error) *Error {
	return &Error{Code: CodeRequestFailed, Message: message, Status: status, Err: err}
}

// UpstreamAgent wraps a failure raised by the model or its provider.
func UpstreamAgent(err error) *Error {
	return &Error{Code: CodeUpstreamAgent, Message: "agent failed", Err: err}
}

// Busy reports that a conversation is still waiting for its previous answer.
func Busy(message string) *Error {
	return &Error{Code: CodeBusy, Message: message}
}

// As returns the first *Error in err's chain, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	if e := As(err); e != nil {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps an error to the status an HTTP surface should answer with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBusy:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// Meta describes e for the _meta field of an MCP tool result so the kind
// survives the hop to another host.
func (e *Error) Meta() map[string]any {
	m := map[string]any{"code": string(e.Code)}
	if e.Status != 0 {
		m["status"] = e.Status
	}
	if len(e.Fields) > 0 {
		m["fields"] = e.Fields
	}
	return m
}

// FromMeta rebuilds the error a remote host described with Meta. message is
// the text the host reported. It returns nil when meta names no known code.
func FromMeta(meta map[string]any, message string) *Error {
	code, _ := meta["code"].(string)
	switch Code(code) {
	case CodeInvalidInput, CodeNotFound, CodeRequestFailed, CodeUpstreamAgent, CodeBusy:
	default:
		return nil
	}
	e := &Error{Code: Code(code), Message: message}
	switch s := meta["status"].(type) {
	case float64:
		e.Status = int(s)
	case int:
		e.Status = s
	}
	switch fields := meta["fields"].(type) {
	case []string:
		e.Fields = fields
	case []any:
		for _, f := range fields {
			if name, ok := f.(string); ok {
				e.Fields = append(e.Fields, name)
			}
		}
	}
	return e
}
