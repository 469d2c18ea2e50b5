package concourse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

func teamPath(team TeamRef) string {
	return "/api/v1/teams/" + url.PathEscape(team.Name)
}

// ListTeams returns the teams visible to the user.
func (c *Client) ListTeams(ctx context.Context) ([]Team, error) {
	var teams []Team
	if err := c.getJSON(ctx, "/api/v1/teams", &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// GetTeam returns a team.
func (c *Client) GetTeam(ctx context.Context, team TeamRef) (*Team, error) {
	var t Team
	if err := c.getJSON(ctx, teamPath(team), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SetTeam creates the team or replaces its auth configuration.
func (c *Client) SetTeam(ctx context.Context, team TeamRef, auth TeamAuth) (*Team, error) {
	resp, err := c.Send(ctx, http.MethodPut, teamPath(team), &RequestOptions{
		Body: map[string]TeamAuth{"auth": auth},
	})
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Team json.RawMessage `json:"team"`
	}
	if err := resp.Decode(&wrapped); err != nil {
		return nil, err
	}

	// Older servers answer with the bare team.
	body := resp.Body
	if len(wrapped.Team) > 0 {
		body = wrapped.Team
	}

	saved := Team{Name: team.Name}
	if err := (&Response{Body: body}).Decode(&saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// DeleteTeam deletes a team and all of its pipelines.
func (c *Client) DeleteTeam(ctx context.Context, team TeamRef) error {
	return c.do(ctx, http.MethodDelete, teamPath(team))
}
