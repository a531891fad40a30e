package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corestack/corestack/internal/accounts"
	"github.com/corestack/corestack/internal/config"
	"github.com/corestack/corestack/internal/sessions"
	"github.com/corestack/corestack/internal/store"
	"github.com/corestack/corestack/pkg/middleware"
)

// CredentialsRequest carries the key/password pair for signup and
// signin. Fields (signup) become extra account fields; Query (signin)
// further filters the candidate account.
type CredentialsRequest struct {
	Key      string         `json:"key" binding:"required"`
	Password string         `json:"password" binding:"required"`
	Fields   store.Document `json:"fields"`
	Query    store.Document `json:"query"`
}

// AuthHandler holds dependencies for the account routes.
type AuthHandler struct {
	cfg         *config.Config
	accountsSvc *accounts.Service
	sessionsSvc *sessions.Service
	auth        *middleware.Authenticator
}

func NewAuthHandler(cfg *config.Config, a *accounts.Service, s *sessions.Service, auth *middleware.Authenticator) *AuthHandler {
	return &AuthHandler{cfg: cfg, accountsSvc: a, sessionsSvc: s, auth: auth}
}

// Register routes under /auth/v1
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth/v1")
	a.POST("/signup/:collection", h.Signup)
	a.POST("/signin/:collection", h.Signin)
	a.GET("/session/:collection", h.Session)
	a.GET("/signout/:collection", h.Signout)

	authed := a.Group("", h.auth.Authenticated())
	authed.POST("/refresh/:collection", h.Refresh)
	authed.GET("/whoami/:collection", h.Whoami)
}

// Signup registers a new account in the named collection.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.accountsSvc.Signup(c.Request.Context(), c.Param("collection"), req.Key, req.Password, req.Fields)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// Signin verifies the credential pair, issues a token, and establishes
// a server-side session correlated to the session cookie.
func (h *AuthHandler) Signin(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	collection := c.Param("collection")
	acct, token, err := h.accountsSvc.Signin(c.Request.Context(), collection, req.Key, req.Password, req.Query)
	if err != nil {
		respondError(c, err)
		return
	}

	// reuse the caller's session id when one is already set
	sid, _ := c.Cookie(middleware.SessionCookieName(collection))
	sid, err = h.sessionsSvc.Establish(c.Request.Context(), sid, collection, req.Key, req.Password, req.Query)
	if err != nil {
		respondError(c, err)
		return
	}
	h.setSessionCookie(c, collection, sid, int(h.cfg.Auth.SessionTTL.Seconds()))

	c.JSON(http.StatusOK, gin.H{"token": token, "account": acct.Map()})
}

// Session resolves the caller's session cookie to an account, re-checking
// the stored credential pair on the way.
func (h *AuthHandler) Session(c *gin.Context) {
	collection := c.Param("collection")
	sid, err := c.Cookie(middleware.SessionCookieName(collection))
	if err != nil || sid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	rec, err := h.sessionsSvc.Fetch(c.Request.Context(), sid, collection)
	if err != nil || rec == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	acct, err := h.accountsSvc.VerifyPassword(c.Request.Context(), collection, rec.Key, rec.Password, rec.Query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": acct.Map()})
}

// Signout clears the named collection's session record and its
// cookie; sessions held for other collections are untouched. Safe to
// call without either.
func (h *AuthHandler) Signout(c *gin.Context) {
	collection := c.Param("collection")
	if sid, err := c.Cookie(middleware.SessionCookieName(collection)); err == nil && sid != "" {
		if err := h.sessionsSvc.Clear(c.Request.Context(), sid, collection); err != nil {
			respondError(c, err)
			return
		}
	}
	h.setSessionCookie(c, collection, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}

// Refresh applies an update to the authenticated caller's own account.
// A new `_password` value is hashed before it is stored; outstanding
// tokens and sessions bound to the old password stop working.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var patch store.Document
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acct, collection, ok := middleware.AccountFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	modified, err := h.accountsSvc.Refresh(c.Request.Context(), collection, acct.Key, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"modified": modified})
}

// Whoami returns the authenticated account.
func (h *AuthHandler) Whoami(c *gin.Context) {
	acct, collection, ok := middleware.AccountFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": acct.Map(), "collection": collection})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, collection, sid string, maxAge int) {
	secure := h.cfg.Server.Environment == "production"
	c.SetCookie(middleware.SessionCookieName(collection), sid, maxAge, "/", "", secure, true)
}
