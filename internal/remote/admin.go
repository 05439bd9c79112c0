package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bohemiyan/ugibdd"
	"golang.org/x/oauth2"
)

// Call posts req to the user-management function under bearer and returns
// the "data" member of the answer.
func (c *Client) Call(ctx context.Context, bearer *oauth2.Token, req ugibdd.AdminRequest) (json.RawMessage, error) {
	if bearer == nil || bearer.AccessToken == "" {
		return nil, &ugibdd.RemoteError{Status: http.StatusUnauthorized, Message: "Admin session not found"}
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}

	var out struct {
		Data json.RawMessage `json:"data"`
	}
	if _, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   functionsPath + c.function,
		body:   req,
		bearer: bearer,
	}, &out); err != nil {
		return nil, fmt.Errorf("admin %s: %w", req.Action, err)
	}
	return out.Data, nil
}
