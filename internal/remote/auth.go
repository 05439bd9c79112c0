package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bohemiyan/ugibdd"
	"golang.org/x/oauth2"
)

// tokenResponse is the answer of the token endpoint.
type tokenResponse struct {
	AccessToken  string         `json:"access_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int64          `json:"expires_in"`
	ExpiresAt    int64          `json:"expires_at"`
	RefreshToken string         `json:"refresh_token"`
	User         ugibdd.Subject `json:"user"`
}

func (r tokenResponse) token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
	}
	switch {
	case r.ExpiresAt > 0:
		tok.Expiry = time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		tok.Expiry = time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return tok
}

func (c *Client) grant(ctx context.Context, grantType string, body any) (tokenResponse, error) {
	var out tokenResponse
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   authPath + "token",
		query:  url.Values{"grant_type": {grantType}},
		body:   body,
	}, &out)
	if err != nil {
		return tokenResponse{}, err
	}
	if out.AccessToken == "" {
		return tokenResponse{}, &ugibdd.RemoteError{Status: http.StatusBadGateway, Message: "auth API returned no access token"}
	}
	return out, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*oauth2.Token, ugibdd.Subject, error) {
	out, err := c.grant(ctx, "password", map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, ugibdd.Subject{}, err
	}
	tok := out.token()
	c.mu.Lock()
	c.current = tok
	c.mu.Unlock()
	return copyToken(tok), out.User, nil
}

func (c *Client) Session(context.Context) *oauth2.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyToken(c.current)
}

func (c *Client) SetSession(_ context.Context, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ugibdd.ErrInvalidInput)
	}
	c.mu.Lock()
	c.current = copyToken(tok)
	c.mu.Unlock()
	return nil
}

func (c *Client) Refresh(ctx context.Context) (*oauth2.Token, error) {
	c.mu.RLock()
	var refresh string
	if c.current != nil {
		refresh = c.current.RefreshToken
	}
	c.mu.RUnlock()
	if refresh == "" {
		return nil, &ugibdd.RemoteError{Status: http.StatusUnauthorized, Message: "Session not found"}
	}

	out, err := c.grant(ctx, "refresh_token", map[string]string{"refresh_token": refresh})
	if err != nil {
		return nil, err
	}
	tok := out.token()
	c.mu.Lock()
	c.current = tok
	c.mu.Unlock()
	return copyToken(tok), nil
}

// SignOut revokes the current session. The local session is forgotten even
// when the backend no longer knows it.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	tok := c.current
	c.current = nil
	c.mu.Unlock()
	if tok == nil {
		return nil
	}

	_, err := c.do(ctx, request{method: http.MethodPost, path: authPath + "logout", bearer: tok}, nil)
	var re *ugibdd.RemoteError
	if errors.As(err, &re) && (re.Status == http.StatusUnauthorized || re.Status == http.StatusNotFound || re.Status == http.StatusForbidden) {
		return nil
	}
	return err
}

func copyToken(tok *oauth2.Token) *oauth2.Token {
	if tok == nil {
		return nil
	}
	cp := *tok
	return &cp
}
