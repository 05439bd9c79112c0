package ugibdd

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// subjects drives the remote user-management function. The function runs
// with elevated rights and may leave the auth client on a different token,
// so every call puts the caller's own session back before returning.
type subjects struct {
	fn   AdminFunction
	auth Authenticator
	log  *zap.SugaredLogger
}

func (s *subjects) call(ctx context.Context, req AdminRequest) (json.RawMessage, error) {
	tok := s.auth.Session(ctx)
	if tok == nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: Admin session not found", ErrNotAuthenticated)
	}
	saved := *tok
	defer s.restore(ctx, &saved)

	return s.fn.Call(ctx, &saved, req)
}

// restore reinstates the caller's token.
func (s *subjects) restore(ctx context.Context, tok *oauth2.Token) {
	if err := s.auth.SetSession(context.WithoutCancel(ctx), tok); err != nil {
		s.log.Errorw("failed to restore caller session", "error", err)
	}
}

// Create makes an auth subject and returns its id.
func (s *subjects) Create(ctx context.Context, email, password string, metadata map[string]any) (string, error) {
	data, err := s.call(ctx, AdminRequest{
		Action: AdminCreateUser,
		Data: map[string]any{
			"email":         email,
			"password":      password,
			"email_confirm": true,
			"user_metadata": metadata,
		},
	})
	if err != nil {
		return "", err
	}
	var out struct {
		User Subject `json:"user"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to decode created subject: %w", err)
	}
	if out.User.ID == "" {
		return "", fmt.Errorf("admin function returned no subject id")
	}
	return out.User.ID, nil
}

// UpdatePassword sets a new password on a subject.
func (s *subjects) UpdatePassword(ctx context.Context, id, password string) error {
	_, err := s.call(ctx, AdminRequest{Action: AdminUpdateUser, UserID: id, Data: map[string]any{"password": password}})
	return err
}

// UpdateEmail changes the login of a subject.
func (s *subjects) UpdateEmail(ctx context.Context, id, email string) error {
	_, err := s.call(ctx, AdminRequest{Action: AdminUpdateUser, UserID: id, Data: map[string]any{"email": email}})
	return err
}

// UpdateMetadata replaces a subject's metadata.
func (s *subjects) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error {
	_, err := s.call(ctx, AdminRequest{Action: AdminUpdateUser, UserID: id, Data: map[string]any{"user_metadata": metadata}})
	return err
}

// Delete removes a subject.
func (s *subjects) Delete(ctx context.Context, id string) error {
	_, err := s.call(ctx, AdminRequest{Action: AdminDeleteUser, UserID: id, Data: map[string]any{}})
	return err
}
