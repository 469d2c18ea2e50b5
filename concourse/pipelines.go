package concourse

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

func pipelinePath(p PipelineRef) string {
	return teamPath(p.Team()) + "/pipelines/" + url.PathEscape(p.Name)
}

// ListPipelines returns a team's pipelines.
func (c *Client) ListPipelines(ctx context.Context, team TeamRef) ([]Pipeline, error) {
	var pipelines []Pipeline
	if err := c.getJSON(ctx, teamPath(team)+"/pipelines", &pipelines); err != nil {
		return nil, err
	}
	return pipelines, nil
}

// GetPipeline returns a pipeline's metadata.
func (c *Client) GetPipeline(ctx context.Context, pipeline PipelineRef) (*Pipeline, error) {
	var p Pipeline
	if err := c.getJSON(ctx, pipelinePath(pipeline), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePipeline deletes a pipeline and its build history.
func (c *Client) DeletePipeline(ctx context.Context, pipeline PipelineRef) error {
	return c.do(ctx, http.MethodDelete, pipelinePath(pipeline))
}

// PausePipeline stops a pipeline from scheduling new builds.
func (c *Client) PausePipeline(ctx context.Context, pipeline PipelineRef) error {
	return c.do(ctx, http.MethodPut, pipelinePath(pipeline)+"/pause")
}

// UnpausePipeline lets a paused pipeline schedule builds again.
func (c *Client) UnpausePipeline(ctx context.Context, pipeline PipelineRef) error {
	return c.do(ctx, http.MethodPut, pipelinePath(pipeline)+"/unpause")
}

// GetPipelineConfig returns a pipeline's configuration and its version. Pass the
// version to SetPipelineConfig to make the write fail if someone else changed
// the configuration in the meantime.
func (c *Client) GetPipelineConfig(ctx context.Context, pipeline PipelineRef) (*PipelineConfig, string, error) {
	resp, err := c.Send(ctx, http.MethodGet, pipelinePath(pipeline)+"/config", nil)
	if err != nil {
		return nil, "", err
	}

	var body struct {
		Config PipelineConfig `json:"config"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, "", err
	}
	return &body.Config, resp.Header.Get(ConfigVersionHeader), nil
}

// SetPipelineConfig creates the pipeline or replaces its configuration. A non-empty
// version is sent for optimistic concurrency, and a stale one fails with a 409
// *HTTPError. A configuration the server refuses comes back as ConfigFailures
// with Errors set and a nil error. Warnings do not prevent the save.
func (c *Client) SetPipelineConfig(ctx context.Context, pipeline PipelineRef, config PipelineConfig, version string) (*ConfigFailures, error) {
	opts := &RequestOptions{Body: config}
	if version != "" {
		opts.Header = http.Header{ConfigVersionHeader: {version}}
	}

	resp, err := c.Send(ctx, http.MethodPut, pipelinePath(pipeline)+"/config", opts)
	if err != nil {
		return nil, err
	}

	failures := &ConfigFailures{}
	if err := resp.Decode(failures); err != nil {
		if resp.StatusCode != http.StatusBadRequest {
			return nil, err
		}
		// Some validation failures come back as plain text.
		failures.Errors = []string{strings.TrimSpace(string(resp.Body))}
	}

	if resp.StatusCode == http.StatusBadRequest && !failures.HasErrors() {
		failures.Errors = []string{fmt.Sprintf("configuration rejected (%d %s)", resp.StatusCode, http.StatusText(resp.StatusCode))}
	}

	return failures, nil
}
