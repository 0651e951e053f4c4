package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed call so callers branch on a closed set instead
// of inspecting message text.
type Kind int

const (
	// KindCancelled: the call was superseded or its owner went away.
	// Never shown to the user.
	KindCancelled Kind = iota + 1
	// KindNetwork: no response was received. Offer a retry.
	KindNetwork
	// KindServer: the server answered 4xx/5xx.
	KindServer
	// KindValidation: rejected locally before any request was sent.
	KindValidation
	// KindDecode: the server answered 2xx with a body we could not read.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindCancelled:
		return "cancelled"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindValidation:
		return "validation"
	case KindDecode:
		return "decode"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by every Client method. Callers can use errors.As:
//
//	var apiErr *api.Error
//	if errors.As(err, &apiErr) && apiErr.Kind == api.KindServer { ... }
type Error struct {
	Kind Kind
	// Status is the HTTP status for KindServer, zero otherwise.
	Status int
	// Code is the machine-readable "error" field of the server body when
	// the body also carried a "message".
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindCancelled:
		return "request cancelled"
	case KindServer:
		if e.Code != "" {
			return fmt.Sprintf("server error (%d %s): %s", e.Status, e.Code, e.UserMessage())
		}
		return fmt.Sprintf("server error (%d): %s", e.Status, e.UserMessage())
	case KindValidation:
		return "invalid input: " + e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage is the text shown in an error banner.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindServer:
		if e.Message != "" {
			return e.Message
		}
		if e.Status != 0 {
			return fmt.Sprintf("The server returned an error (%d %s).", e.Status, http.StatusText(e.Status))
		}
		return "The server returned an error."
	case KindNetwork:
		return "Could not reach the library server."
	case KindValidation:
		return e.Message
	case KindDecode:
		return "The server sent a response this client does not understand."
	}
	return ""
}

// Retryable reports whether re-issuing the same call might succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork:
		return true
	case KindServer:
		return e.Status >= 500
	}
	return false
}

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return 0
}

// IsCancelled reports whether err represents a superseded or abandoned call.
func IsCancelled(err error) bool { return KindOf(err) == KindCancelled }

// UserMessage returns the banner text for any error.
func UserMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if msg := apiErr.UserMessage(); msg != "" {
			return msg
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// errorBody covers both error shapes the backend emits:
// {"error": code, "message": text} and {"error": text}.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func serverError(status int, body []byte) *Error {
	e := &Error{Kind: KindServer, Status: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		switch {
		case eb.Message != "":
			e.Code = eb.Error
			e.Message = eb.Message
		case eb.Error != "":
			e.Message = eb.Error
		}
		return e
	}
	// Plain-text bodies (e.g. the router's 404) are short enough to show.
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 && !strings.HasPrefix(text, "<") {
		e.Message = text
	}
	return e
}
