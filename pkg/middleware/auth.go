package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/corestack/corestack/internal/accounts"
	"github.com/corestack/corestack/internal/sessions"
	"github.com/corestack/corestack/internal/store"
	"github.com/corestack/corestack/pkg/metrics"
)

// Context keys set by Authenticated on success.
const (
	ContextAccount    = "account"
	ContextCollection = "accountCollection"
)

// SessionCookie is the name prefix of the cookie the session flow
// reads the session id from.
const SessionCookie = "session"

// SessionCookieName scopes the session cookie to one collection, so
// signing out of a collection never drops another collection's
// session on the same client.
func SessionCookieName(collection string) string {
	if collection == "" {
		return SessionCookie
	}
	return SessionCookie + "_" + collection
}

// TokenDecoder is the minimal token interface the middleware depends on.
type TokenDecoder interface {
	Decode(raw string) (map[string]any, bool)
}

// SessionFetcher resolves a session id to its stored credential record.
type SessionFetcher interface {
	Fetch(ctx context.Context, sessionID, collection string) (*sessions.Record, error)
}

// CredentialVerifier re-checks a presented proof against the account store.
type CredentialVerifier interface {
	VerifyDigest(ctx context.Context, collection, key, digest string, extraQuery store.Document) (*accounts.Account, error)
	VerifyPassword(ctx context.Context, collection, key, plain string, extraQuery store.Document) (*accounts.Account, error)
}

// Authenticator holds the collaborators for per-user authentication.
// Collection is the account collection consulted for session proofs;
// token proofs name their own collection in the claims.
type Authenticator struct {
	Tokens     TokenDecoder
	Sessions   SessionFetcher
	Accounts   CredentialVerifier
	Collection string
}

// Authenticated returns a Gin middleware that resolves the caller to a
// stored account. A Bearer token, when present, is authoritative: the
// session fallback runs only when no Authorization header was sent.
// Both paths end in a live lookup against the account store, so a
// deleted account or rotated password denies immediately regardless of
// what the client still holds.
func (a *Authenticator) Authenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := bearerToken(c); ok {
			a.withToken(c, raw)
			return
		}
		a.withSession(c)
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return "", false
	}
	raw, found := strings.CutPrefix(auth, "Bearer ")
	if !found || raw == "" {
		return "", false
	}
	return raw, true
}

func (a *Authenticator) withToken(c *gin.Context, raw string) {
	claims, ok := a.Tokens.Decode(raw)
	if !ok {
		deny(c, "token")
		return
	}
	collection, _ := claims["collection"].(string)
	key, _ := claims["key"].(string)
	digest, _ := claims["hash"].(string)
	if collection == "" || key == "" || digest == "" {
		deny(c, "token")
		return
	}
	// the signin's narrowing query rides in the claims and is
	// re-applied here, so e.g. a deactivated account is denied even
	// while its token is unexpired
	extra, _ := claims["query"].(map[string]any)
	acct, err := a.Accounts.VerifyDigest(c.Request.Context(), collection, key, digest, extra)
	if err != nil {
		deny(c, "token")
		return
	}
	admit(c, "token", collection, acct)
}

func (a *Authenticator) withSession(c *gin.Context) {
	// routes that name a collection scope the session lookup to it
	collection := c.Param("collection")
	if collection == "" {
		collection = a.Collection
	}
	sid, err := c.Cookie(SessionCookieName(collection))
	if err != nil || sid == "" {
		deny(c, "session")
		return
	}
	rec, err := a.Sessions.Fetch(c.Request.Context(), sid, collection)
	if err != nil || rec == nil {
		deny(c, "session")
		return
	}
	acct, err := a.Accounts.VerifyPassword(c.Request.Context(), rec.Collection, rec.Key, rec.Password, rec.Query)
	if err != nil {
		deny(c, "session")
		return
	}
	admit(c, "session", rec.Collection, acct)
}

func admit(c *gin.Context, mode, collection string, acct *accounts.Account) {
	metrics.AuthAttempts.WithLabelValues(mode, "ok").Inc()
	c.Set(ContextAccount, acct)
	c.Set(ContextCollection, collection)
	c.Next()
}

func deny(c *gin.Context, mode string) {
	metrics.AuthAttempts.WithLabelValues(mode, "denied").Inc()
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AccountFrom returns the authenticated account and its collection, or
// false when the request did not pass Authenticated.
func AccountFrom(c *gin.Context) (*accounts.Account, string, bool) {
	v, ok := c.Get(ContextAccount)
	if !ok {
		return nil, "", false
	}
	acct, ok := v.(*accounts.Account)
	if !ok {
		return nil, "", false
	}
	collection, _ := c.Get(ContextCollection)
	name, _ := collection.(string)
	return acct, name, true
}
