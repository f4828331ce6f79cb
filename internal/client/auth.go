package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// AuthContext holds the credentials resolved during authentication. It is
// mutated only on successful flows and read by the dispatcher and the
// subscription manager.
type AuthContext struct {
	Token        string
	UserID       string
	TokenExpires time.Time
	Username     string
}

// Expired reports whether the token expiry has passed. Expiry is tracked
// for callers to consult; the client does not act on it.
func (a AuthContext) Expired(now time.Time) bool {
	return !a.TokenExpires.IsZero() && now.After(a.TokenExpires)
}

type loginResult struct {
	ID           string     `json:"id"`
	Token        string     `json:"token"`
	TokenExpires millisDate `json:"tokenExpires"`
}

type guestResult struct {
	UserID  string `json:"userId"`
	Token   string `json:"token"`
	Visitor struct {
		ID       string `json:"_id"`
		Username string `json:"username"`
		Token    string `json:"token"`
	} `json:"visitor"`
}

// passwordDigest hashes the password so plaintext never crosses the wire.
func passwordDigest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// loginWithPassword performs the private-mode login flow.
func (c *Client) loginWithPassword(ctx context.Context) error {
	res, err := c.transport.Call(ctx, "login", map[string]any{
		"user": map[string]any{"username": c.cfg.Private.Username},
		"password": map[string]any{
			"digest":    passwordDigest(c.cfg.Private.Password),
			"algorithm": "sha-256",
		},
	})
	if err != nil {
		return wrap(KindAuthentication, err, "login failed")
	}
	return c.adoptLogin(res, c.cfg.Private.Username)
}

// registerGuest performs the livechat guest registration flow. The
// configured department identifier routes the visitor.
func (c *Client) registerGuest(ctx context.Context) error {
	res, err := c.transport.Call(ctx, "livechat:registerGuest", map[string]any{
		"token":      c.cfg.Livechat.Token,
		"name":       c.cfg.Livechat.Name,
		"email":      c.cfg.Livechat.Email,
		"department": c.cfg.Livechat.Department,
	})
	if err != nil {
		return wrap(KindAuthentication, err, "guest registration failed")
	}

	var guest guestResult
	if err := json.Unmarshal(res, &guest); err != nil {
		return wrap(KindAuthentication, err, "guest registration returned malformed result")
	}

	token := guest.Token
	if token == "" {
		token = guest.Visitor.Token
	}
	userID := guest.UserID
	if userID == "" {
		userID = guest.Visitor.ID
	}

	c.mu.Lock()
	c.auth.Token = token
	c.auth.UserID = userID
	if guest.Visitor.Username != "" {
		c.auth.Username = guest.Visitor.Username
	} else {
		c.auth.Username = c.cfg.Livechat.Name
	}
	c.mu.Unlock()

	c.log.Debug().Str("userId", userID).Msg("guest registered")
	return nil
}

// resumeToken upgrades the session with a token login. Used right after
// guest registration; there is no fallback if it fails.
func (c *Client) resumeToken(ctx context.Context) error {
	c.mu.Lock()
	token := c.auth.Token
	username := c.auth.Username
	c.mu.Unlock()

	res, err := c.transport.Call(ctx, "login", map[string]any{"resume": token})
	if err != nil {
		return wrap(KindAuthentication, err, "token resume failed")
	}
	return c.adoptLogin(res, username)
}

// adoptLogin stores a successful login result in the auth context.
func (c *Client) adoptLogin(res json.RawMessage, username string) error {
	var login loginResult
	if err := json.Unmarshal(res, &login); err != nil {
		return wrap(KindAuthentication, err, "login returned malformed result")
	}

	c.mu.Lock()
	if login.Token != "" {
		c.auth.Token = login.Token
	}
	if login.ID != "" {
		c.auth.UserID = login.ID
	}
	c.auth.TokenExpires = login.TokenExpires.Time()
	c.auth.Username = username
	c.mu.Unlock()

	c.log.Debug().Str("userId", login.ID).Msg("authenticated")
	return nil
}
