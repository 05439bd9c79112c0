package ugibdd

import (
	"context"
	"encoding/json"

	"golang.org/x/oauth2"
)

// Subject is an authenticated identity as the auth API knows it.
type Subject struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Authenticator is the auth API of the backend. Implementations keep the
// current bearer session and use it for every table call they serve.
type Authenticator interface {
	// SignInWithPassword verifies credentials and makes the returned token current.
	SignInWithPassword(ctx context.Context, email, password string) (*oauth2.Token, Subject, error)
	// Session returns the current token, nil when signed out.
	Session(ctx context.Context) *oauth2.Token
	// SetSession replaces the current token.
	SetSession(ctx context.Context, tok *oauth2.Token) error
	// Refresh exchanges the refresh token for a new current token.
	Refresh(ctx context.Context) (*oauth2.Token, error)
	// SignOut revokes the current token and forgets it.
	SignOut(ctx context.Context) error
}

// AdminAction is an operation of the remote user-management function.
type AdminAction string

const (
	AdminCreateUser AdminAction = "createUser"
	AdminUpdateUser AdminAction = "updateUser"
	AdminDeleteUser AdminAction = "deleteUser"
)

// AdminRequest is the body posted to the user-management function.
type AdminRequest struct {
	Action AdminAction    `json:"action"`
	UserID string         `json:"userId,omitempty"`
	Data   map[string]any `json:"data"`
}

// AdminFunction invokes the remote user-management function under the
// caller's bearer token and returns the "data" member of its answer.
type AdminFunction interface {
	Call(ctx context.Context, bearer *oauth2.Token, req AdminRequest) (json.RawMessage, error)
}
