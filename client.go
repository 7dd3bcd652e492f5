// odooconnect/client.go
package odooconnect

import (
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerEnv selects the zap configuration used when no logger is injected.
type LoggerEnv string

const (
	// EnvDevelopment configures human readable console output.
	EnvDevelopment LoggerEnv = "development"
	// EnvProduction configures structured JSON output.
	EnvProduction LoggerEnv = "production"
)

const (
	// DefaultTimeout bounds every HTTP exchange.
	DefaultTimeout = 30 * time.Second
	// DefaultValidateInterval is how long a validated session is trusted
	// before EnsureValid pings the server again.
	DefaultValidateInterval = 5 * time.Minute
	// DefaultFieldCacheTTL is how long fields_get results are kept.
	DefaultFieldCacheTTL = 30 * time.Minute

	fieldCacheCapacity = 512
)

// Session is an authenticated connection to one Odoo database. It owns the
// credentials, the session id and the default context layered into every
// call. A Session is safe for concurrent use; Records are not.
type Session struct {
	url      string
	db       string
	login    string
	password string

	channel          Channel
	transport        Transport
	httpClient       *http.Client
	timeout          time.Duration
	skipTLSVerify    bool
	validateInterval time.Duration
	fieldCacheTTL    time.Duration
	fields           *fieldCache
	logger           *zap.Logger
	now              func() time.Time

	// authMu serializes logins so concurrent callers re-authenticate once.
	authMu sync.Mutex

	mu            sync.Mutex
	sessionID     string
	uid           int64
	serverVersion string
	serverContext OdooContext
	userContext   OdooContext // caller overrides; win over serverContext
	user          UserInfo
	companies     any
	lastValidated time.Time

	closeOnce sync.Once
	closeErr  error
}

// createLogger builds a zap logger for the given environment.
func createLogger(env LoggerEnv) *zap.Logger {
	var cfg zap.Config
	if env == EnvDevelopment {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.CallerKey = ""
		cfg.DisableStacktrace = true
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.LevelKey = "level"
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.CallerKey = "caller"
		cfg.DisableStacktrace = false
	}

	logger, err := cfg.Build()
	if err != nil {
		log.Printf("Failed to build Zap logger for env '%s', falling back to no-op logger: %v", env, err)
		return zap.NewNop()
	}
	return logger
}

// Option configures a Session.
type Option func(*Session)

// WithValidateInterval sets how long a validated session is trusted.
func WithValidateInterval(d time.Duration) Option {
	return func(s *Session) {
		s.validateInterval = d
	}
}

// WithTimeout sets the per-call HTTP timeout. Ignored when WithHTTPClient is used.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.timeout = d
	}
}

// WithSkipTLSVerify disables TLS certificate verification.
// WARNING: do not use in production.
func WithSkipTLSVerify(skip bool) Option {
	return func(s *Session) {
		s.skipTLSVerify = skip
	}
}

// WithHTTPClient sets the *http.Client used by the built-in channels.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *Session) {
		s.httpClient = httpClient
	}
}

// WithTransport selects the built-in channel. Defaults to TransportJSONRPC.
func WithTransport(t Transport) Option {
	return func(s *Session) {
		s.transport = t
	}
}

// WithChannel replaces the built-in channel entirely.
func WithChannel(ch Channel) Option {
	return func(s *Session) {
		s.channel = ch
	}
}

// WithSessionID starts the Session from an existing server session instead
// of logging in. The session is validated on first use.
func WithSessionID(sessionID string) Option {
	return func(s *Session) {
		s.sessionID = sessionID
	}
}

// WithDefaultContext sets caller default context keys such as lang or tz. They take
// precedence over the context the server reports at login.
func WithDefaultContext(ctx OdooContext) Option {
	return func(s *Session) {
		s.userContext = s.userContext.Merge(ctx)
	}
}

// WithFieldCacheTTL sets how long field metadata is cached.
func WithFieldCacheTTL(d time.Duration) Option {
	return func(s *Session) {
		s.fieldCacheTTL = d
	}
}

// WithLogger sets a custom zap logger. It takes precedence over WithLoggerEnv.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithLoggerEnv configures the logger for the given environment.
func WithLoggerEnv(env LoggerEnv) Option {
	return func(s *Session) {
		if s.logger == nil {
			s.logger = createLogger(env)
		}
	}
}

// withClock is used by tests to control validation timing.
func withClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// New creates a Session. It does not contact the server; the first call
// logs in (or validates the session given by WithSessionID).
func New(urlStr, db, login, password string, opts ...Option) (*Session, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, validationErrorf("failed to parse Odoo URL: %v", err)
	}
	if parsedURL.Scheme != "https" && parsedURL.Scheme != "http" {
		return nil, validationErrorf("invalid Odoo URL scheme %q, must be http or https", parsedURL.Scheme)
	}
	if db == "" {
		return nil, validationErrorf("database name is required")
	}

	s := &Session{
		url:              strings.TrimSuffix(urlStr, "/"),
		db:               db,
		login:            login,
		password:         password,
		transport:        TransportJSONRPC,
		timeout:          DefaultTimeout,
		validateInterval: DefaultValidateInterval,
		fieldCacheTTL:    DefaultFieldCacheTTL,
		serverContext:    OdooContext{},
		userContext:      OdooContext{},
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = createLogger(EnvProduction)
	}

	if s.sessionID == "" && (login == "" || password == "") {
		return nil, validationErrorf("login and password are required when no session id is given")
	}

	if s.channel == nil {
		ch, err := s.buildChannel()
		if err != nil {
			return nil, err
		}
		s.channel = ch
	}
	s.fields = newFieldCache(s.fieldCacheTTL, fieldCacheCapacity)

	return s, nil
}

func (s *Session) buildChannel() (Channel, error) {
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: s.timeout}
	}

	if s.skipTLSVerify {
		s.logger.Warn("TLS certificate verification is disabled for Odoo connections. DO NOT USE IN PRODUCTION.",
			zap.String("component", "Session"),
			zap.String("action", "New"),
		)
		// Work on copies: the caller's client may be shared, even http.DefaultClient.
		client := *s.httpClient
		base := client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		if tr, ok := base.(*http.Transport); ok {
			tr = tr.Clone()
			if tr.TLSClientConfig == nil {
				tr.TLSClientConfig = &tls.Config{}
			}
			tr.TLSClientConfig.InsecureSkipVerify = true
			client.Transport = tr
			s.httpClient = &client
		} else {
			s.logger.Warn("Cannot apply skipTLSVerify to a non-http.Transport round tripper",
				zap.String("transport_type", fmt.Sprintf("%T", s.httpClient.Transport)),
			)
		}
	}

	switch s.transport {
	case TransportJSONRPC, "":
		return NewJSONRPCChannel(s.url, s.httpClient, s.logger), nil
	case TransportXMLRPC:
		return NewXMLRPCChannel(s.url, s.httpClient.Transport, s.httpClient.Timeout, s.logger), nil
	}
	return nil, validationErrorf("unknown transport %q", s.transport)
}

// Close releases the channel and stops the field metadata cache. It is safe
// to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.fields.stop()
		s.closeErr = s.channel.Close()
		s.logger.Debug("Odoo session closed", zap.String("db", s.db))
	})
	return s.closeErr
}

// UID returns the authenticated user id, or 0.
func (s *Session) UID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uid
}

// SessionID returns the current session id, or "".
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// IsAuthenticated reports whether both a session id and a uid are held.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID != "" && s.uid != 0
}

// ServerVersion returns the version reported at login.
func (s *Session) ServerVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverVersion
}

// UserInfo returns the user details reported at login.
func (s *Session) UserInfo() UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Companies returns the raw user_companies payload reported at login.
func (s *Session) Companies() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.companies
}

// DefaultContext returns a copy of the context every call starts from.
func (s *Session) DefaultContext() OdooContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultContextLocked()
}

func (s *Session) defaultContextLocked() OdooContext {
	merged := s.serverContext.Merge(s.userContext)
	if s.uid != 0 {
		merged["uid"] = s.uid
	}
	return merged
}

// UpdateContext sets default context keys for all later calls, including
// calls made through handles created earlier.
func (s *Session) UpdateContext(overrides OdooContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userContext = s.userContext.Merge(overrides)
}

// Env returns a handle on model with no context override.
func (s *Session) Env(model ModelName) *Model {
	return &Model{session: s, name: model, context: OdooContext{}}
}

// InvalidateFields drops cached field metadata for the given models, or for
// all models when none are given.
func (s *Session) InvalidateFields(models ...ModelName) {
	s.fields.invalidate(models...)
}
