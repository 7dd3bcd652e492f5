package odooconnect

import (
	"context"
)

// Channel performs the bytes-on-the-wire exchange with the server. The
// Session decides when to log in, validate or retry; a Channel only performs
// single exchanges and reports failures with this package's error kinds.
type Channel interface {
	// Authenticate logs in and returns the new session. A credential rejection
	// must wrap ErrAuthentication.
	Authenticate(ctx context.Context, creds Credentials) (*AuthResult, error)

	// SessionInfo reports who owns sessionID. A dead session yields UID 0.
	SessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error)

	// Execute runs one model method. req.Kwargs already holds the merged context.
	Execute(ctx context.Context, sessionID string, req *Request) (any, error)

	// Close releases transport resources.
	Close() error
}

// Transport selects the Channel implementation built by New.
type Transport string

const (
	// TransportJSONRPC talks to the /web JSON-RPC endpoints with a session cookie.
	TransportJSONRPC Transport = "jsonrpc"
	// TransportXMLRPC talks to /xmlrpc/2/common and /xmlrpc/2/object.
	TransportXMLRPC Transport = "xmlrpc"
)

// Credentials identify the user to log in as.
type Credentials struct {
	Database string
	Login    string
	Password string
}

// AuthResult is what a successful login reports.
type AuthResult struct {
	SessionID     string
	UID           int64
	ServerVersion string
	UserContext   OdooContext
	Companies     any
	User          UserInfo
}

// UserInfo describes the authenticated user.
type UserInfo struct {
	UID        int64  `json:"uid"`
	Name       string `json:"name"`
	Username   string `json:"username"`
	PartnerID  int64  `json:"partner_id"`
	IsAdmin    bool   `json:"is_admin"`
	WebBaseURL string `json:"web_base_url"`
}

// SessionInfo is the answer to a session liveness probe.
type SessionInfo struct {
	UID         int64
	UserContext OdooContext
}

// Request is one model method invocation.
type Request struct {
	Model  ModelName
	Method string
	Args   []interface{}
	Kwargs map[string]interface{}

	// Context is the handle-level override. Session.call layers it between the
	// session default and kwargs["context"] before the request reaches a Channel.
	Context OdooContext
}

// reportFetcher is implemented by channels that can download rendered reports.
type reportFetcher interface {
	Report(ctx context.Context, sessionID, reportName string, ids []int64) ([]byte, error)
}
