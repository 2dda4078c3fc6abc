package session

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/upb/refdata-portal/authz"
	"go.uber.org/zap"
)

// DefaultSessionName is the cookie name used when none is configured
const DefaultSessionName = "refdata-session"

const (
	isAuthKey = "is_authenticated"
	userIDKey = "user_id"
	roleKey   = "user_role"
)

// NewCookieStore builds a signed cookie store. In secure mode cookies are
// Secure with SameSite=None; otherwise SameSite=Lax so plain-http dev works.
func NewCookieStore(sessionKey, domain string, secure bool, logger *zap.Logger) (*sessions.CookieStore, error) {
	if sessionKey == "" {
		return nil, errors.New("session key is empty; provide 32 or more random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	} else {
		opts.SameSite = http.SameSiteLaxMode
	}
	store.Options = opts

	logger.Info("session store initialized",
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return store, nil
}

// CookieProvider reads the principal from a gorilla session cookie
type CookieProvider struct {
	store  sessions.Store
	name   string
	logger *zap.Logger
}

// NewCookieProvider creates a provider over store using the named session
func NewCookieProvider(store sessions.Store, name string, logger *zap.Logger) *CookieProvider {
	if name == "" {
		name = DefaultSessionName
	}
	return &CookieProvider{store: store, name: name, logger: logger}
}

// CurrentPrincipal implements Provider. The stored role string is returned
// as-is; callers reject roles outside the closed set.
func (p *CookieProvider) CurrentPrincipal(r *http.Request) (*authz.Principal, error) {
	if _, err := r.Cookie(p.name); errors.Is(err, http.ErrNoCookie) {
		return nil, nil
	}

	sess, err := p.store.Get(r, p.name)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	if isAuth, _ := sess.Values[isAuthKey].(bool); !isAuth {
		return nil, nil
	}

	id := getString(sess, userIDKey)
	if id == "" {
		p.logger.Warn("authenticated session without user id")
		return nil, nil
	}

	return &authz.Principal{ID: id, Role: authz.Role(getString(sess, roleKey))}, nil
}

// Save stores principal in the session cookie
func (p *CookieProvider) Save(w http.ResponseWriter, r *http.Request, principal authz.Principal) error {
	sess, err := p.store.Get(r, p.name)
	if err != nil && sess == nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = principal.ID
	sess.Values[roleKey] = string(principal.Role)
	return sess.Save(r, w)
}

// Clear expires the session cookie
func (p *CookieProvider) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, err := p.store.Get(r, p.name)
	if err != nil && sess == nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}
