// odooconnect/errors.go
package odooconnect

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Error kinds returned by the client. Every error produced by this package
// wraps exactly one of the first four, so callers can branch with errors.Is.
var (
	// ErrConnection indicates a transport-level failure: timeout, DNS or socket
	// failure, or a non-2xx HTTP status.
	ErrConnection = errors.New("odooconnect: connection failed")

	// ErrAuthentication indicates the server rejected the credentials, or a session
	// could not be established after the single allowed retry.
	ErrAuthentication = errors.New("odooconnect: authentication failed")

	// ErrRequest indicates the server answered with a JSON-RPC error object or with a
	// payload the client cannot interpret.
	ErrRequest = errors.New("odooconnect: request failed")

	// ErrValidation indicates a client-side contract violation caught before any
	// network call.
	ErrValidation = errors.New("odooconnect: validation failed")

	// ErrSessionExpired is reported alongside ErrRequest when the server no longer
	// recognises the session id. Session.call reacts to it with one re-login.
	ErrSessionExpired = errors.New("odooconnect: session expired")

	// ErrRecordNotFound indicates that no record matched in SearchOne, ReadOne or a
	// Record field fetch.
	ErrRecordNotFound = errors.New("odooconnect: no record found for the given criteria")

	// ErrInvalidModel indicates the model does not exist on the server.
	ErrInvalidModel = errors.New("odooconnect: invalid Odoo model")

	// ErrInvalidMethod indicates the method does not exist on the model.
	ErrInvalidMethod = errors.New("odooconnect: invalid Odoo method for the model")

	// ErrInvalidResponse is returned when a result does not have the expected shape.
	ErrInvalidResponse = errors.New("odooconnect: invalid Odoo RPC response")

	// ErrNotAField is returned by Record.Get when the name is not a field of the
	// model. Invoke treats it as "call the method instead".
	ErrNotAField = errors.New("odooconnect: not a field")
)

// RequestError is the structured form of a server-side error. It keeps the raw
// error payload for diagnostics.
type RequestError struct {
	Code    int            // JSON-RPC error code, or the XML-RPC fault code
	Message string         // human readable message
	Name    string         // server exception class, e.g. odoo.exceptions.AccessError
	Debug   string         // server traceback when provided
	Payload map[string]any // raw "error" object as received
	Kind    error          // optional refinement: ErrSessionExpired, ErrInvalidModel, ErrInvalidMethod

	OriginalError error
}

func (e *RequestError) Error() string {
	msg := e.Message
	if e.Name != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Name)
	}
	if e.OriginalError != nil {
		return fmt.Sprintf("%s: %s (original: %v)", ErrRequest, msg, e.OriginalError)
	}
	return fmt.Sprintf("%s: %s", ErrRequest, msg)
}

// Unwrap lets errors.Is match ErrRequest, the refinement kind and the original error.
func (e *RequestError) Unwrap() []error {
	errs := []error{ErrRequest}
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.OriginalError != nil {
		errs = append(errs, e.OriginalError)
	}
	return errs
}

// ConnectionError describes a transport failure for one operation.
type ConnectionError struct {
	Op         string // endpoint or operation, e.g. "/web/session/authenticate"
	StatusCode int    // HTTP status, 0 when the request never completed
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: HTTP status %d", ErrConnection, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s: %v", ErrConnection, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConnection}
	}
	return []error{ErrConnection, e.Err}
}

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// isSessionRejected reports whether err means the server no longer honours the
// session id.
func isSessionRejected(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// isRetryable reports whether Session.call may re-authenticate and resend once.
func isRetryable(err error) bool {
	return isSessionRejected(err) || errors.Is(err, ErrConnection)
}

var faultPattern = regexp.MustCompile(`Fault (\d+): '(.*?)'`)

// classifyMessage maps well-known server messages to a refinement kind.
func classifyMessage(msg string) error {
	switch {
	case strings.Contains(msg, "Session expired"),
		strings.Contains(msg, "SessionExpiredException"):
		return ErrSessionExpired
	case strings.Contains(msg, "The model does not exist"),
		strings.Contains(msg, "No model named"),
		strings.Contains(msg, "not found in registry"),
		strings.Contains(msg, "'object' object has no attribute") && strings.Contains(msg, "model"):
		return ErrInvalidModel
	case strings.Contains(msg, "Object has no method"),
		strings.Contains(msg, "method does not exist"),
		strings.Contains(msg, "has no attribute"),
		strings.Contains(msg, "missing 1 required positional argument") && strings.Contains(msg, "self"):
		return ErrInvalidMethod
	}
	return nil
}

// parseOdooRPCError turns an XML-RPC client error into a *RequestError.
// kolo/xmlrpc surfaces faults as plain strings, so the code and message are
// recovered from the text.
func parseOdooRPCError(err error) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()
	faultCode := 0
	faultMessage := errMsg

	if matches := faultPattern.FindStringSubmatch(errMsg); len(matches) == 3 {
		if code, cerr := strconv.Atoi(matches[1]); cerr == nil {
			faultCode = code
		}
		faultMessage = matches[2]
	} else if strings.HasPrefix(errMsg, "XML-RPC fault: ") {
		faultMessage = strings.TrimPrefix(errMsg, "XML-RPC fault: ")
	}

	return &RequestError{
		Code:          faultCode,
		Message:       faultMessage,
		Kind:          classifyMessage(faultMessage),
		OriginalError: err,
	}
}

// newRequestError builds a *RequestError from a JSON-RPC "error" object.
func newRequestError(payload map[string]any) *RequestError {
	e := &RequestError{Payload: payload}
	if code, ok := asInt64(payload["code"]); ok {
		e.Code = int(code)
	}
	e.Message, _ = payload["message"].(string)
	if data, ok := payload["data"].(map[string]any); ok {
		e.Name, _ = data["name"].(string)
		e.Debug, _ = data["debug"].(string)
		if m, ok := data["message"].(string); ok && m != "" {
			e.Message = m
		}
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("%v", payload)
	}

	// Odoo reports an unknown or expired session with code 100.
	if e.Code == 100 || strings.HasSuffix(e.Name, "SessionExpiredException") {
		e.Kind = ErrSessionExpired
	} else {
		e.Kind = classifyMessage(e.Message + " " + e.Name)
	}
	return e
}
