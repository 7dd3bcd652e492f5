package odooconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const sessionCookieName = "session_id"

// JSONRPCChannel is the default Channel. It speaks JSON-RPC 2.0 to the /web
// endpoints and carries the session id in the session_id cookie.
type JSONRPCChannel struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewJSONRPCChannel returns a channel for baseURL. The http.Client's Timeout
// bounds every exchange.
func NewJSONRPCChannel(baseURL string, httpClient *http.Client, logger *zap.Logger) *JSONRPCChannel {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONRPCChannel{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

type rpcEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

// Authenticate posts the credentials to /web/session/authenticate.
func (c *JSONRPCChannel) Authenticate(ctx context.Context, creds Credentials) (*AuthResult, error) {
	params := map[string]any{
		"db":       creds.Database,
		"login":    creds.Login,
		"password": creds.Password,
	}
	result, cookies, err := c.post(ctx, "/web/session/authenticate", params, "")
	if err != nil {
		var reqErr *RequestError
		var connErr *ConnectionError
		if errors.As(err, &reqErr) || (errors.As(err, &connErr) && connErr.StatusCode == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: login failed: %w", ErrAuthentication, err)
		}
		return nil, err
	}

	res, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: login failed: empty result", ErrAuthentication)
	}
	uid, ok := asInt64(res["uid"])
	if !ok || uid == 0 {
		return nil, fmt.Errorf("%w: login failed: server returned no user id", ErrAuthentication)
	}

	sessionID, _ := res["session_id"].(string)
	for _, cookie := range cookies {
		if cookie.Name == sessionCookieName && cookie.Value != "" {
			sessionID = cookie.Value
		}
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: login failed: server returned no session id", ErrAuthentication)
	}

	auth := &AuthResult{
		SessionID: sessionID,
		UID:       uid,
		Companies: res["user_companies"],
		User:      UserInfo{UID: uid},
	}
	auth.ServerVersion, _ = res["server_version"].(string)
	if uc, ok := toContext(res["user_context"]); ok {
		auth.UserContext = uc
	}
	auth.User.Name, _ = res["name"].(string)
	auth.User.Username, _ = res["username"].(string)
	auth.User.PartnerID, _ = asInt64(res["partner_id"])
	auth.User.IsAdmin, _ = res["is_admin"].(bool)
	auth.User.WebBaseURL, _ = res["web.base.url"].(string)
	return auth, nil
}

// SessionInfo asks /web/session/get_session_info who owns sessionID.
func (c *JSONRPCChannel) SessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	result, _, err := c.post(ctx, "/web/session/get_session_info", map[string]any{}, sessionID)
	if err != nil {
		if isSessionRejected(err) {
			return &SessionInfo{}, nil
		}
		return nil, err
	}
	info := &SessionInfo{}
	if res, ok := result.(map[string]any); ok {
		info.UID, _ = asInt64(res["uid"])
		info.UserContext, _ = toContext(res["user_context"])
	}
	return info, nil
}

// Execute posts to /web/dataset/call_kw/<model>/<method>.
func (c *JSONRPCChannel) Execute(ctx context.Context, sessionID string, req *Request) (any, error) {
	args := req.Args
	if args == nil {
		args = []interface{}{}
	}
	kwargs := req.Kwargs
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	params := map[string]any{
		"model":  string(req.Model),
		"method": req.Method,
		"args":   args,
		"kwargs": kwargs,
	}
	path := fmt.Sprintf("/web/dataset/call_kw/%s/%s", req.Model, req.Method)
	result, _, err := c.post(ctx, path, params, sessionID)
	return result, err
}

// Report downloads /report/pdf/<reportName>/<ids>.
func (c *JSONRPCChannel) Report(ctx context.Context, sessionID, reportName string, ids []int64) ([]byte, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	path := fmt.Sprintf("/report/pdf/%s/%s", reportName, strings.Join(parts, ","))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %s: %w", ErrValidation, path, err)
	}
	if sessionID != "" {
		httpReq.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sessionID})
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ConnectionError{Op: path, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Op: path, Err: err}
	}
	// An expired session is answered with the HTML login page rather than a PDF.
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/html") {
		return nil, &RequestError{Message: "report request answered with an HTML page", Kind: ErrSessionExpired}
	}
	return body, nil
}

// Close drops idle keep-alive connections.
func (c *JSONRPCChannel) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// post sends one JSON-RPC envelope and returns the decoded result with the
// response cookies.
func (c *JSONRPCChannel) post(ctx context.Context, path string, params any, sessionID string) (any, []*http.Cookie, error) {
	body, err := json.Marshal(rpcEnvelope{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  params,
		ID:      rand.Int64N(1_000_000_000),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encoding request for %s: %w", ErrValidation, path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: building request for %s: %w", ErrValidation, path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if sessionID != "" {
		httpReq.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sessionID})
	}

	c.logger.Debug("Sending Odoo JSON-RPC request", zap.String("path", path))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("Odoo JSON-RPC transport failure", zap.Error(err), zap.String("path", path))
		return nil, nil, &ConnectionError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Odoo JSON-RPC non-success status",
			zap.Int("status", resp.StatusCode),
			zap.String("path", path),
		)
		return nil, nil, &ConnectionError{Op: path, StatusCode: resp.StatusCode}
	}

	var reply map[string]any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&reply); err != nil {
		return nil, nil, fmt.Errorf("%w: decoding response from %s: %w", ErrRequest, path, err)
	}

	if rawErr, ok := reply["error"]; ok && rawErr != nil {
		var reqErr *RequestError
		if payload, ok := normalizeNumbers(rawErr).(map[string]any); ok {
			reqErr = newRequestError(payload)
		} else {
			msg := fmt.Sprintf("%v", rawErr)
			reqErr = &RequestError{Message: msg, Payload: map[string]any{"message": msg}, Kind: classifyMessage(msg)}
		}
		c.logger.Error("Odoo JSON-RPC error response",
			zap.Int("code", reqErr.Code),
			zap.String("message", reqErr.Message),
			zap.String("path", path),
		)
		return nil, nil, reqErr
	}

	// A reply without "result" and without "error" is a success with no payload.
	return normalizeNumbers(reply["result"]), resp.Cookies(), nil
}
