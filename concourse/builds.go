package concourse

import (
	"context"
	"net/http"
	"net/url"
	"sort"
)

func jobPath(job JobRef) string {
	return pipelinePath(job.Pipeline()) + "/jobs/" + url.PathEscape(job.Name)
}

func buildPath(build BuildRef) string {
	return "/api/v1/builds/" + build.String()
}

// ListJobs returns a pipeline's jobs.
func (c *Client) ListJobs(ctx context.Context, pipeline PipelineRef) ([]Job, error) {
	var jobs []Job
	if err := c.getJSON(ctx, pipelinePath(pipeline)+"/jobs", &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListPipelineBuilds returns a pipeline's builds, newest first.
func (c *Client) ListPipelineBuilds(ctx context.Context, pipeline PipelineRef) ([]Build, error) {
	var builds []Build
	if err := c.getJSON(ctx, pipelinePath(pipeline)+"/builds", &builds); err != nil {
		return nil, err
	}
	sortNewestFirst(builds)
	return builds, nil
}

// sortNewestFirst orders builds by start time, latest first. Builds that have not
// started yet are newer than any started build. Ties go to the higher ID.
func sortNewestFirst(builds []Build) {
	sort.SliceStable(builds, func(i, j int) bool {
		a, b := builds[i], builds[j]
		if a.StartTime != b.StartTime {
			switch {
			case a.StartTime == 0:
				return true
			case b.StartTime == 0:
				return false
			default:
				return a.StartTime > b.StartTime
			}
		}
		return a.ID > b.ID
	})
}

// CreateJobBuild triggers a new build of a job.
func (c *Client) CreateJobBuild(ctx context.Context, job JobRef) (*Build, error) {
	resp, err := c.Send(ctx, http.MethodPost, jobPath(job)+"/builds", nil)
	if err != nil {
		return nil, err
	}

	var build Build
	if err := resp.Decode(&build); err != nil {
		return nil, err
	}
	return &build, nil
}

// GetBuild returns a build.
func (c *Client) GetBuild(ctx context.Context, build BuildRef) (*Build, error) {
	var b Build
	if err := c.getJSON(ctx, buildPath(build), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// AbortBuild stops a running or pending build.
func (c *Client) AbortBuild(ctx context.Context, build BuildRef) error {
	return c.do(ctx, http.MethodPut, buildPath(build)+"/abort")
}

// BuildEvents opens the build's event stream. The server keeps the stream open
// after the build finishes: read until the end event, then Close it.
func (c *Client) BuildEvents(ctx context.Context, build BuildRef) (*EventStream, error) {
	return c.Stream(ctx, http.MethodGet, buildPath(build)+"/events", nil)
}
