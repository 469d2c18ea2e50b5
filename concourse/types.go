package concourse

import (
	"strconv"
	"time"
)

// Info describes the Concourse server.
type Info struct {
	Version       string `json:"version"`
	WorkerVersion string `json:"worker_version"`
	ExternalURL   string `json:"external_url"`
	ClusterName   string `json:"cluster_name,omitempty"`
}

// UserInfo describes the user the client is authenticated as.
type UserInfo struct {
	Sub       string              `json:"sub"`
	Name      string              `json:"name"`
	UserID    string              `json:"user_id"`
	UserName  string              `json:"user_name"`
	Email     string              `json:"email"`
	IsAdmin   bool                `json:"is_admin"`
	IsSystem  bool                `json:"is_system"`
	Teams     map[string][]string `json:"teams"`
	Connector string              `json:"connector"`
}

// TeamAuth maps a role (owner, member, pipeline-operator, viewer) to who holds it.
type TeamAuth map[string]RoleAuth

// RoleAuth lists users and groups as "connector:name", e.g. "local:admin" or "github:octocat".
type RoleAuth struct {
	Users  []string `json:"users,omitempty"`
	Groups []string `json:"groups,omitempty"`
}

// Team is a Concourse team.
type Team struct {
	ID   int      `json:"id"`
	Name string   `json:"name"`
	Auth TeamAuth `json:"auth,omitempty"`
}

// Ref returns the reference other team calls take.
func (t Team) Ref() TeamRef {
	return TeamRef{Name: t.Name}
}

// Pipeline is a pipeline's metadata. It does not include the configuration.
type Pipeline struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Paused      bool   `json:"paused"`
	Public      bool   `json:"public"`
	Archived    bool   `json:"archived"`
	TeamName    string `json:"team_name"`
	LastUpdated int64  `json:"last_updated"`
}

// Ref returns the reference other pipeline calls take.
func (p Pipeline) Ref() PipelineRef {
	return PipelineRef{Name: p.Name, TeamName: p.TeamName}
}

// ConfigWarning is a non-fatal remark on a saved pipeline configuration.
type ConfigWarning struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ConfigFailures is the server's verdict on a pipeline configuration write.
// A write that produced only warnings was still saved.
type ConfigFailures struct {
	Errors   []string        `json:"errors,omitempty"`
	Warnings []ConfigWarning `json:"warnings,omitempty"`
}

// HasErrors reports whether the configuration was rejected.
func (f *ConfigFailures) HasErrors() bool {
	return f != nil && len(f.Errors) > 0
}

// Empty reports whether the write produced neither errors nor warnings.
func (f *ConfigFailures) Empty() bool {
	return f == nil || (len(f.Errors) == 0 && len(f.Warnings) == 0)
}

// BuildStatus is the lifecycle state of a build.
type BuildStatus string

const (
	BuildStatusPending   BuildStatus = "pending"
	BuildStatusStarted   BuildStatus = "started"
	BuildStatusSucceeded BuildStatus = "succeeded"
	BuildStatusFailed    BuildStatus = "failed"
	BuildStatusErrored   BuildStatus = "errored"
	BuildStatusAborted   BuildStatus = "aborted"
)

// Finished reports whether the build can no longer change state.
func (s BuildStatus) Finished() bool {
	switch s {
	case BuildStatusSucceeded, BuildStatusFailed, BuildStatusErrored, BuildStatusAborted:
		return true
	default:
		return false
	}
}

// Build is one execution of a job, or a one-off build.
type Build struct {
	ID           int         `json:"id"`
	TeamName     string      `json:"team_name"`
	Name         string      `json:"name"`
	Status       BuildStatus `json:"status"`
	JobName      string      `json:"job_name,omitempty"`
	PipelineName string      `json:"pipeline_name,omitempty"`
	APIURL       string      `json:"api_url"`
	StartTime    int64       `json:"start_time,omitempty"`
	EndTime      int64       `json:"end_time,omitempty"`
}

// Ref returns the reference build calls take.
func (b Build) Ref() BuildRef {
	return BuildRef{ID: b.ID}
}

// Started returns the start time, or the zero time if the build has not started.
func (b Build) Started() time.Time {
	if b.StartTime == 0 {
		return time.Time{}
	}
	return time.Unix(b.StartTime, 0)
}

// Job is a job of a pipeline, with its latest builds.
type Job struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	PipelineName  string `json:"pipeline_name"`
	TeamName      string `json:"team_name"`
	Paused        bool   `json:"paused,omitempty"`
	FinishedBuild *Build `json:"finished_build,omitempty"`
	NextBuild     *Build `json:"next_build,omitempty"`
}

// Ref returns the reference job calls take.
func (j Job) Ref() JobRef {
	return JobRef{Name: j.Name, PipelineName: j.PipelineName, TeamName: j.TeamName}
}

// TeamRef names a team.
type TeamRef struct {
	Name string
}

// PipelineRef names a pipeline within a team.
type PipelineRef struct {
	Name     string
	TeamName string
}

// Team returns the reference of the pipeline's team.
func (r PipelineRef) Team() TeamRef {
	return TeamRef{Name: r.TeamName}
}

// JobRef names a job within a pipeline.
type JobRef struct {
	Name         string
	PipelineName string
	TeamName     string
}

// Pipeline returns the reference of the job's pipeline.
func (r JobRef) Pipeline() PipelineRef {
	return PipelineRef{Name: r.PipelineName, TeamName: r.TeamName}
}

// BuildRef identifies a build.
type BuildRef struct {
	ID int
}

func (r BuildRef) String() string {
	return strconv.Itoa(r.ID)
}
