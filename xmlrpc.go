package odooconnect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// rpcEncoder is implemented by values that need flattening before XML-RPC
// encoding, such as Domain and command.Command.
type rpcEncoder interface {
	ToRPC() []interface{}
}

// XMLRPCChannel talks to Odoo's external XML-RPC API. That API has no server
// session: every execute_kw call carries db, uid and password. A successful
// login therefore mints a local ULID token that stands in for the session id,
// so the Session can track authentication the same way for both transports.
type XMLRPCChannel struct {
	baseURL   string
	transport http.RoundTripper
	timeout   time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	object *xmlrpc.Client
	creds  Credentials
	uid    int64
	token  string
}

// NewXMLRPCChannel returns a channel for baseURL. A nil transport uses
// http.DefaultTransport; timeout bounds each call when positive.
func NewXMLRPCChannel(baseURL string, transport http.RoundTripper, timeout time.Duration, logger *zap.Logger) *XMLRPCChannel {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &XMLRPCChannel{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		transport: transport,
		timeout:   timeout,
		logger:    logger,
	}
}

// Authenticate calls common.authenticate, then loads the user context.
func (c *XMLRPCChannel) Authenticate(ctx context.Context, creds Credentials) (*AuthResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ConnectionError{Op: "authenticate", Err: err}
	}

	commonURL := c.baseURL + "/xmlrpc/2/common"
	common, err := xmlrpc.NewClient(commonURL, c.transport)
	if err != nil {
		return nil, &ConnectionError{Op: commonURL, Err: err}
	}
	defer common.Close()

	var rawUID interface{}
	err = c.callWithContext(ctx, func() error {
		return common.Call("authenticate", []interface{}{creds.Database, creds.Login, creds.Password, map[string]interface{}{}}, &rawUID)
	})
	if err != nil {
		c.logger.Error("Odoo XML-RPC authentication call failed",
			zap.Error(err),
			zap.String("db", creds.Database),
			zap.String("op", "authenticate"),
		)
		return nil, classifyXMLRPCError(commonURL, err)
	}
	uid, ok := asInt64(rawUID)
	if !ok || uid == 0 {
		return nil, fmt.Errorf("%w: login failed for %q", ErrAuthentication, creds.Login)
	}

	var version map[string]interface{}
	if err := c.callWithContext(ctx, func() error { return common.Call("version", nil, &version) }); err != nil {
		c.logger.Warn("Could not read Odoo server version", zap.Error(err), zap.String("op", "authenticate"))
	}

	objectURL := c.baseURL + "/xmlrpc/2/object"
	object, err := xmlrpc.NewClient(objectURL, c.transport)
	if err != nil {
		return nil, &ConnectionError{Op: objectURL, Err: err}
	}

	token := ulid.Make().String()
	c.mu.Lock()
	if c.object != nil {
		c.object.Close()
	}
	c.object = object
	c.creds = creds
	c.uid = uid
	c.token = token
	c.mu.Unlock()

	auth := &AuthResult{
		SessionID: token,
		UID:       uid,
		User:      UserInfo{UID: uid, Username: creds.Login},
	}
	if v, ok := version["server_version"].(string); ok {
		auth.ServerVersion = v
	}
	if uc, err := c.contextGet(ctx, token); err == nil {
		auth.UserContext = uc
	} else {
		c.logger.Warn("Could not read Odoo user context", zap.Error(err), zap.String("op", "authenticate"))
	}
	return auth, nil
}

// SessionInfo accepts only the token minted by the last login and confirms
// the user with res.users.context_get.
func (c *XMLRPCChannel) SessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	c.mu.Lock()
	current, uid := c.token, c.uid
	c.mu.Unlock()
	if sessionID == "" || sessionID != current {
		return &SessionInfo{}, nil
	}
	uc, err := c.contextGet(ctx, sessionID)
	if err != nil {
		if isSessionRejected(err) {
			return &SessionInfo{}, nil
		}
		return nil, err
	}
	return &SessionInfo{UID: uid, UserContext: uc}, nil
}

// Execute calls object.execute_kw.
func (c *XMLRPCChannel) Execute(ctx context.Context, sessionID string, req *Request) (any, error) {
	c.mu.Lock()
	object, creds, uid, token := c.object, c.creds, c.uid, c.token
	c.mu.Unlock()
	if object == nil || sessionID != token {
		return nil, &RequestError{Message: "unknown XML-RPC session token", Kind: ErrSessionExpired}
	}

	args := req.Args
	if args == nil {
		args = []interface{}{}
	}
	kwargs := req.Kwargs
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	callArgs := []interface{}{
		creds.Database, uid, creds.Password,
		string(req.Model), req.Method,
		flattenForXMLRPC(args), flattenForXMLRPC(kwargs),
	}

	var result interface{}
	err := c.callWithContext(ctx, func() error {
		return object.Call("execute_kw", callArgs, &result)
	})
	if err != nil {
		c.logger.Error("Failed to execute Odoo XML-RPC call",
			zap.Error(err),
			zap.String("model", string(req.Model)),
			zap.String("method", req.Method),
		)
		return nil, classifyXMLRPCError(c.baseURL+"/xmlrpc/2/object", err)
	}
	return result, nil
}

// Close closes the object endpoint client and forgets the session token.
func (c *XMLRPCChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.object != nil {
		err = c.object.Close()
		c.object = nil
	}
	c.token = ""
	return err
}

func (c *XMLRPCChannel) contextGet(ctx context.Context, token string) (OdooContext, error) {
	result, err := c.Execute(ctx, token, &Request{Model: ModelResUsers, Method: "context_get"})
	if err != nil {
		return nil, err
	}
	uc, _ := toContext(result)
	return uc, nil
}

// callWithContext runs a blocking kolo/xmlrpc call and gives up when ctx is
// done. kolo/xmlrpc has no context support, so the call keeps running in the
// background until the transport returns.
func (c *XMLRPCChannel) callWithContext(ctx context.Context, call func() error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() { done <- call() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// classifyXMLRPCError separates transport failures from server faults.
// kolo/xmlrpc reports faults as xmlrpc.FaultError and HTTP problems as plain
// errors; anything else is matched against the "Fault N: 'msg'" text form.
func classifyXMLRPCError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ConnectionError{Op: op, Err: err}
	}
	var fault xmlrpc.FaultError
	if errors.As(err, &fault) {
		return &RequestError{
			Code:          fault.Code,
			Message:       fault.String,
			Kind:          classifyMessage(fault.String),
			OriginalError: err,
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "Client.Timeout") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "bad status code") ||
		strings.Contains(msg, "request error") ||
		strings.HasPrefix(msg, "Post ") {
		return &ConnectionError{Op: op, Err: err}
	}
	return parseOdooRPCError(err)
}

// flattenForXMLRPC converts values with a ToRPC form (commands, domains) into
// plain slices, recursively, so kolo/xmlrpc encodes them as arrays.
func flattenForXMLRPC(v interface{}) interface{} {
	switch t := v.(type) {
	case rpcEncoder:
		return flattenForXMLRPC(t.ToRPC())
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = flattenForXMLRPC(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = flattenForXMLRPC(item)
		}
		return out
	case Data:
		return flattenForXMLRPC(map[string]interface{}(t))
	case OdooContext:
		return flattenForXMLRPC(map[string]interface{}(t))
	case []byte:
		return t
	}

	// Typed slices such as []command.Command or []map[string]interface{}.
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = flattenForXMLRPC(rv.Index(i).Interface())
		}
		return out
	}
	return v
}
