package odooconnect

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
)

// Authenticate logs in with the Session's credentials. On success it stores
// the session id, uid, server version, user info and the server-reported
// context. On failure the Session is left unauthenticated.
func (s *Session) Authenticate(ctx context.Context) error {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.authenticateLocked(ctx)
}

func (s *Session) authenticateLocked(ctx context.Context) error {
	s.logger.Debug("Authenticating with Odoo",
		zap.String("db", s.db),
		zap.String("login", s.login),
		zap.String("op", "Authenticate"),
	)

	if s.login == "" || s.password == "" {
		s.clearSession()
		return fmt.Errorf("%w: no credentials to re-authenticate with", ErrAuthentication)
	}

	auth, err := s.channel.Authenticate(ctx, Credentials{Database: s.db, Login: s.login, Password: s.password})
	if err != nil {
		s.clearSession()
		s.logger.Error("Odoo authentication failed",
			zap.Error(err),
			zap.String("db", s.db),
			zap.String("login", s.login),
			zap.String("op", "Authenticate"),
		)
		return err
	}

	s.mu.Lock()
	s.sessionID = auth.SessionID
	s.uid = auth.UID
	s.serverVersion = auth.ServerVersion
	s.user = auth.User
	s.companies = auth.Companies
	if auth.UserContext != nil {
		s.serverContext = auth.UserContext.Clone()
	}
	s.lastValidated = s.now()
	s.mu.Unlock()

	s.logger.Info("Successfully authenticated with Odoo",
		zap.Int64("uid", auth.UID),
		zap.String("db", s.db),
		zap.String("server_version", auth.ServerVersion),
		zap.String("op", "Authenticate"),
	)
	return nil
}

func (s *Session) clearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = ""
	s.uid = 0
	s.lastValidated = s.now().AddDate(-100, 0, 0)
}

// EnsureValid reports whether the session can be used. A session validated
// within the validation interval is trusted without I/O; otherwise the server
// is asked who owns the session. Errors count as "not valid".
func (s *Session) EnsureValid(ctx context.Context) bool {
	s.mu.Lock()
	sessionID := s.sessionID
	fresh := sessionID != "" && s.uid != 0 && s.now().Sub(s.lastValidated) < s.validateInterval
	s.mu.Unlock()

	if sessionID == "" {
		return false
	}
	if fresh {
		return true
	}

	info, err := s.channel.SessionInfo(ctx, sessionID)
	if err != nil {
		s.logger.Debug("Odoo session probe failed", zap.Error(err), zap.String("op", "EnsureValid"))
		return false
	}
	if info.UID == 0 {
		s.logger.Debug("Odoo session is no longer live", zap.String("op", "EnsureValid"))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID != sessionID {
		// A concurrent login replaced the session while we were probing.
		return s.sessionID != "" && s.uid != 0
	}
	s.uid = info.UID
	if info.UserContext != nil && len(s.serverContext) == 0 {
		s.serverContext = info.UserContext.Clone()
	}
	s.lastValidated = s.now()
	return true
}

// ensureSession makes sure a usable session exists before a call.
func (s *Session) ensureSession(ctx context.Context) error {
	if s.EnsureValid(ctx) {
		return nil
	}

	s.authMu.Lock()
	defer s.authMu.Unlock()
	// Another caller may have logged in while we waited.
	if s.isFresh() {
		return nil
	}
	if err := s.authenticateLocked(ctx); err != nil {
		return wrapAuthentication(err)
	}
	return nil
}

// reauthenticate logs in again after sessionID was rejected, unless another
// caller already replaced it.
func (s *Session) reauthenticate(ctx context.Context, rejected string) error {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	s.mu.Lock()
	replaced := s.sessionID != "" && s.sessionID != rejected
	s.mu.Unlock()
	if replaced {
		return nil
	}
	if err := s.authenticateLocked(ctx); err != nil {
		return wrapAuthentication(err)
	}
	return nil
}

func (s *Session) isFresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID != "" && s.uid != 0 && s.now().Sub(s.lastValidated) < s.validateInterval
}

func wrapAuthentication(err error) error {
	if errors.Is(err, ErrAuthentication) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrAuthentication, err)
}

// callSiteContext returns the kwargs["context"] of req as an OdooContext.
// Any string-keyed map is accepted; other non-nil values are rejected.
func callSiteContext(req *Request) (OdooContext, error) {
	raw, ok := req.Kwargs["context"]
	if !ok || raw == nil {
		return nil, nil
	}
	c, ok := toContext(raw)
	if !ok {
		return nil, validationErrorf("context keyword argument must be a mapping, got %T", raw)
	}
	return c, nil
}

// prepare returns a copy of req whose kwargs carry the layered context:
// session default, then req.Context, then the call-site context.
func (s *Session) prepare(req *Request, callSite OdooContext) *Request {
	kwargs := make(map[string]interface{}, len(req.Kwargs)+1)
	maps.Copy(kwargs, req.Kwargs)
	kwargs["context"] = s.DefaultContext().Merge(req.Context, callSite)

	return &Request{
		Model:   req.Model,
		Method:  req.Method,
		Args:    req.Args,
		Kwargs:  kwargs,
		Context: req.Context,
	}
}

// call is the single path for every model method invocation. It makes sure a
// session exists, layers the context, sends, and on a rejected session or a
// transport failure re-authenticates and resends exactly once.
func (s *Session) call(ctx context.Context, req *Request) (any, error) {
	callSite, err := callSiteContext(req)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSession(ctx); err != nil {
		return nil, err
	}

	out := s.prepare(req, callSite)
	sessionID := s.SessionID()
	result, err := s.channel.Execute(ctx, sessionID, out)
	if err == nil {
		return result, nil
	}
	if !isRetryable(err) || ctx.Err() != nil {
		return nil, err
	}

	s.logger.Warn("Odoo call failed, re-authenticating and resending once",
		zap.Error(err),
		zap.String("model", string(req.Model)),
		zap.String("method", req.Method),
	)
	if aerr := s.reauthenticate(ctx, sessionID); aerr != nil {
		return nil, aerr
	}

	out = s.prepare(req, callSite)
	result, err = s.channel.Execute(ctx, s.SessionID(), out)
	if err != nil {
		if isSessionRejected(err) {
			s.clearSession()
			return nil, wrapAuthentication(err)
		}
		return nil, err
	}
	return result, nil
}

// DownloadReport renders reportName for ids as PDF and returns the bytes.
// Only channels that serve the /report routes support it.
func (s *Session) DownloadReport(ctx context.Context, reportName string, ids []int64) ([]byte, error) {
	fetcher, ok := s.channel.(reportFetcher)
	if !ok {
		return nil, validationErrorf("transport %T cannot download reports", s.channel)
	}
	if reportName == "" || len(ids) == 0 {
		return nil, validationErrorf("report name and at least one id are required")
	}
	if err := s.ensureSession(ctx); err != nil {
		return nil, err
	}

	sessionID := s.SessionID()
	body, err := fetcher.Report(ctx, sessionID, reportName, ids)
	if err != nil && isRetryable(err) && ctx.Err() == nil {
		if aerr := s.reauthenticate(ctx, sessionID); aerr != nil {
			return nil, aerr
		}
		body, err = fetcher.Report(ctx, s.SessionID(), reportName, ids)
	}
	if err != nil {
		s.logger.Error("Failed to download Odoo report",
			zap.Error(err),
			zap.String("report", reportName),
			zap.Int64s("ids", ids),
		)
		return nil, err
	}

	s.logger.Info("Odoo report downloaded",
		zap.String("report", reportName),
		zap.Int("bytes", len(body)),
	)
	return body, nil
}
