package concourse

import (
	"context"
	"net/http"
)

// GetInfo returns the server's version information.
func (c *Client) GetInfo(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.getJSON(ctx, "/api/v1/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetUserInfo returns the user the client is authenticated as.
func (c *Client) GetUserInfo(ctx context.Context) (*UserInfo, error) {
	var user UserInfo
	if err := c.getJSON(ctx, "/api/v1/user", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.Send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return resp.Decode(v)
}

// do sends a request whose response body is of no interest.
func (c *Client) do(ctx context.Context, method, path string) error {
	_, err := c.Send(ctx, method, path, nil)
	return err
}
