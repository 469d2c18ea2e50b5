package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ConfigVersionHeader carries the pipeline config version for optimistic concurrency.
const ConfigVersionHeader = "X-Concourse-Config-Version"

// FakeConcourse is an in-process Concourse API server: the token endpoint plus the
// team, pipeline, job and build routes, kept in memory. Every API route requires
// the bearer token the token endpoint hands out.
type FakeConcourse struct {
	*httptest.Server

	username    string
	password    string
	accessToken string
	buildOutput string

	mux           *http.ServeMux
	tokenRequests atomic.Int32
	openStreams   atomic.Int32
	epoch         int64

	mu          sync.Mutex
	tokenGate   chan struct{}
	lastScope   string
	teams       map[string]*fakeTeam
	pipelines   map[string]*fakePipeline
	builds      []*fakeBuild
	nextID      int
	apiRequests []RecordedRequest
}

// RecordedRequest is an authenticated API request as the fake server saw it.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// FakeOption configures a FakeConcourse before it starts.
type FakeOption func(*FakeConcourse)

// WithFakeCredentials sets the only username/password pair the token endpoint accepts.
func WithFakeCredentials(username, password string) FakeOption {
	return func(f *FakeConcourse) {
		f.username = username
		f.password = password
	}
}

// WithFakeAccessToken sets the access token the token endpoint returns.
func WithFakeAccessToken(token string) FakeOption {
	return func(f *FakeConcourse) {
		f.accessToken = token
	}
}

// WithFakeBuildOutput sets the task output every build's event stream logs.
func WithFakeBuildOutput(output string) FakeOption {
	return func(f *FakeConcourse) {
		f.buildOutput = output
	}
}

type fakeTeam struct {
	ID   int             `json:"id"`
	Name string          `json:"name"`
	Auth json.RawMessage `json:"auth,omitempty"`
}

type fakePipeline struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Paused      bool   `json:"paused"`
	Public      bool   `json:"public"`
	Archived    bool   `json:"archived"`
	TeamName    string `json:"team_name"`
	LastUpdated int64  `json:"last_updated"`

	config  json.RawMessage
	version int
	jobs    []string
}

type fakeBuild struct {
	ID           int    `json:"id"`
	TeamName     string `json:"team_name"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	JobName      string `json:"job_name,omitempty"`
	PipelineName string `json:"pipeline_name,omitempty"`
	APIURL       string `json:"api_url"`
	StartTime    int64  `json:"start_time,omitempty"`
	EndTime      int64  `json:"end_time,omitempty"`
}

// NewFakeConcourse starts a fake Concourse on IPv4 loopback. It accepts the
// credentials test/test unless WithFakeCredentials says otherwise, and starts with
// a single team named "main". The server is closed when the test ends.
func NewFakeConcourse(tb testing.TB, opts ...FakeOption) *FakeConcourse {
	tb.Helper()

	f := &FakeConcourse{
		username:    "test",
		password:    "test",
		accessToken: "fake-access-token",
		buildOutput: "Hello, world!\n",
		mux:         http.NewServeMux(),
		epoch:       time.Now().Unix(),
		teams:       map[string]*fakeTeam{"main": {ID: 1, Name: "main"}},
		pipelines:   make(map[string]*fakePipeline),
		nextID:      1,
	}
	for _, opt := range opts {
		opt(f)
	}

	f.mux.HandleFunc("POST /sky/issuer/token", f.handleToken)
	f.Handle("GET /api/v1/info", http.HandlerFunc(f.handleInfo))
	f.Handle("GET /api/v1/user", http.HandlerFunc(f.handleUser))
	f.Handle("GET /api/v1/teams", http.HandlerFunc(f.handleListTeams))
	f.Handle("GET /api/v1/teams/{team}", http.HandlerFunc(f.handleGetTeam))
	f.Handle("PUT /api/v1/teams/{team}", http.HandlerFunc(f.handleSetTeam))
	f.Handle("DELETE /api/v1/teams/{team}", http.HandlerFunc(f.handleDeleteTeam))
	f.Handle("GET /api/v1/teams/{team}/pipelines", http.HandlerFunc(f.handleListPipelines))
	f.Handle("GET /api/v1/teams/{team}/pipelines/{pipeline}", http.HandlerFunc(f.handleGetPipeline))
	f.Handle("DELETE /api/v1/teams/{team}/pipelines/{pipeline}", http.HandlerFunc(f.handleDeletePipeline))
	f.Handle("GET /api/v1/teams/{team}/pipelines/{pipeline}/config", http.HandlerFunc(f.handleGetConfig))
	f.Handle("PUT /api/v1/teams/{team}/pipelines/{pipeline}/config", http.HandlerFunc(f.handleSetConfig))
	f.Handle("PUT /api/v1/teams/{team}/pipelines/{pipeline}/pause", f.pauseHandler(true))
	f.Handle("PUT /api/v1/teams/{team}/pipelines/{pipeline}/unpause", f.pauseHandler(false))
	f.Handle("GET /api/v1/teams/{team}/pipelines/{pipeline}/builds", http.HandlerFunc(f.handleListBuilds))
	f.Handle("GET /api/v1/teams/{team}/pipelines/{pipeline}/jobs", http.HandlerFunc(f.handleListJobs))
	f.Handle("POST /api/v1/teams/{team}/pipelines/{pipeline}/jobs/{job}/builds", http.HandlerFunc(f.handleCreateBuild))
	f.Handle("GET /api/v1/builds/{id}", http.HandlerFunc(f.handleGetBuild))
	f.Handle("PUT /api/v1/builds/{id}/abort", http.HandlerFunc(f.handleAbortBuild))
	f.Handle("GET /api/v1/builds/{id}/events", http.HandlerFunc(f.handleBuildEvents))

	f.Server = NewLocalHTTPServer(tb, f.mux)
	tb.Cleanup(func() {
		f.Server.CloseClientConnections()
		f.Server.Close()
	})

	return f
}

// Handle registers an extra route behind the same bearer check as the built-in ones.
func (f *FakeConcourse) Handle(pattern string, handler http.Handler) {
	f.mux.Handle(pattern, f.requireBearer(handler))
}

// TokenRequests returns how many times the token endpoint was called.
func (f *FakeConcourse) TokenRequests() int {
	return int(f.tokenRequests.Load())
}

// OpenStreams returns how many build event streams are currently being served.
func (f *FakeConcourse) OpenStreams() int {
	return int(f.openStreams.Load())
}

// LastScope returns the scope parameter of the most recent token request.
func (f *FakeConcourse) LastScope() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastScope
}

// HoldTokenRequests makes the token endpoint block until the returned release
// function is called.
func (f *FakeConcourse) HoldTokenRequests() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.tokenGate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.tokenGate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Requests returns every authenticated API request received so far.
func (f *FakeConcourse) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest(nil), f.apiRequests...)
}

// ConfigVersion returns the current config version of a pipeline, or "" if it does not exist.
func (f *FakeConcourse) ConfigVersion(team, pipeline string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pipelines[pipelineKey(team, pipeline)]
	if !ok {
		return ""
	}
	return strconv.Itoa(p.version)
}

func (f *FakeConcourse) handleToken(w http.ResponseWriter, r *http.Request) {
	f.tokenRequests.Add(1)

	f.mu.Lock()
	gate := f.tokenGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	clientID, clientSecret, ok := r.BasicAuth()
	if !ok || clientID != "fly" || clientSecret != "Zmx5" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if r.PostForm.Get("grant_type") != "password" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	f.mu.Lock()
	f.lastScope = r.PostForm.Get("scope")
	f.mu.Unlock()

	if r.PostForm.Get("username") != f.username || r.PostForm.Get("password") != f.password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":             "invalid_grant",
			"error_description": "Invalid username or password",
		})
		return
	}

	idToken, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":                f.URL + "/sky/issuer",
		"sub":                "Cgl0ZXN0EgVsb2NhbA",
		"name":               f.username,
		"email":              f.username + "@example.com",
		"preferred_username": f.username,
		"groups":             []string{},
		"federated_claims":   map[string]string{"connector_id": "local", "user_id": f.username},
	}).SignedString([]byte("fake-concourse"))

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": f.accessToken,
		"token_type":   "bearer",
		"expires_in":   86399,
		"id_token":     idToken,
	})
}

// requireBearer rejects requests that do not carry "Authorization: Bearer <token>"
// with the token issued by handleToken.
func (f *FakeConcourse) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" || token != f.accessToken {
			http.Error(w, "not authorized", http.StatusUnauthorized)
			return
		}

		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		f.mu.Lock()
		f.apiRequests = append(f.apiRequests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		f.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (f *FakeConcourse) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":        "7.11.2",
		"worker_version": "2.5",
		"external_url":   f.URL,
	})
}

func (f *FakeConcourse) handleUser(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	teams := make(map[string][]string, len(f.teams))
	for name := range f.teams {
		teams[name] = []string{"owner"}
	}
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"sub":       "Cgl0ZXN0EgVsb2NhbA",
		"name":      f.username,
		"user_id":   f.username,
		"user_name": f.username,
		"email":     f.username + "@example.com",
		"is_admin":  true,
		"is_system": false,
		"teams":     teams,
		"connector": "local",
	})
}

func (f *FakeConcourse) handleListTeams(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	teams := make([]fakeTeam, 0, len(f.teams))
	for _, t := range f.teams {
		teams = append(teams, *t)
	}
	f.mu.Unlock()

	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
	writeJSON(w, http.StatusOK, teams)
}

func (f *FakeConcourse) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	team, ok := f.teams[r.PathValue("team")]
	var found fakeTeam
	if ok {
		found = *team
	}
	f.mu.Unlock()

	if !ok {
		http.Error(w, "team not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (f *FakeConcourse) handleSetTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Auth json.RawMessage `json:"auth"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Auth) == 0 || string(req.Auth) == "null" {
		http.Error(w, "auth configuration is required", http.StatusUnprocessableEntity)
		return
	}

	name := r.PathValue("team")

	f.mu.Lock()
	team, exists := f.teams[name]
	if !exists {
		team = &fakeTeam{ID: f.allocateID(), Name: name}
		f.teams[name] = team
	}
	team.Auth = req.Auth
	saved := *team
	f.mu.Unlock()

	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"team": saved})
}

func (f *FakeConcourse) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("team")

	f.mu.Lock()
	_, ok := f.teams[name]
	if ok {
		delete(f.teams, name)
		for key, p := range f.pipelines {
			if p.TeamName == name {
				delete(f.pipelines, key)
			}
		}
	}
	f.mu.Unlock()

	if !ok {
		http.Error(w, "team not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeConcourse) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	team := r.PathValue("team")

	f.mu.Lock()
	pipelines := make([]fakePipeline, 0)
	for _, p := range f.pipelines {
		if p.TeamName == team {
			pipelines = append(pipelines, *p)
		}
	}
	f.mu.Unlock()

	sort.Slice(pipelines, func(i, j int) bool { return pipelines[i].ID < pipelines[j].ID })
	writeJSON(w, http.StatusOK, pipelines)
}

func (f *FakeConcourse) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	p, ok := f.lookupPipeline(r)
	if !ok {
		http.Error(w, "pipeline not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (f *FakeConcourse) handleDeletePipeline(w http.ResponseWriter, r *http.Request) {
	key := pipelineKey(r.PathValue("team"), r.PathValue("pipeline"))

	f.mu.Lock()
	_, ok := f.pipelines[key]
	delete(f.pipelines, key)
	f.mu.Unlock()

	if !ok {
		http.Error(w, "pipeline not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeConcourse) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	key := pipelineKey(r.PathValue("team"), r.PathValue("pipeline"))

	f.mu.Lock()
	p, ok := f.pipelines[key]
	var config json.RawMessage
	var version int
	if ok {
		config, version = p.config, p.version
	}
	f.mu.Unlock()

	if !ok {
		http.Error(w, "pipeline not found", http.StatusNotFound)
		return
	}
	w.Header().Set(ConfigVersionHeader, strconv.Itoa(version))
	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"config": config})
}

func (f *FakeConcourse) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var parsed struct {
		Jobs []struct {
			Name string `json:"name"`
		} `json:"jobs"`
		Resources []json.RawMessage `json:"resources"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"errors": {"malformed config: " + err.Error()}})
		return
	}

	team, name := r.PathValue("team"), r.PathValue("pipeline")
	requestedVersion := r.Header.Get(ConfigVersionHeader)

	f.mu.Lock()
	if _, ok := f.teams[team]; !ok {
		f.mu.Unlock()
		http.Error(w, "team not found", http.StatusNotFound)
		return
	}
	p, exists := f.pipelines[pipelineKey(team, name)]
	if exists && requestedVersion != "" && requestedVersion != strconv.Itoa(p.version) {
		f.mu.Unlock()
		http.Error(w, "pipeline config has been modified since you retrieved it", http.StatusConflict)
		return
	}
	if !exists {
		p = &fakePipeline{ID: f.allocateID(), Name: name, TeamName: team}
		f.pipelines[pipelineKey(team, name)] = p
	}
	p.config = body
	p.version++
	p.LastUpdated = time.Now().Unix()
	p.jobs = p.jobs[:0]
	for _, job := range parsed.Jobs {
		p.jobs = append(p.jobs, job.Name)
	}
	f.mu.Unlock()

	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}

	response := map[string]any{}
	if len(parsed.Jobs) == 0 {
		response["warnings"] = []map[string]string{{"type": "pipeline", "message": "pipeline contains no jobs"}}
	}
	writeJSON(w, status, response)
}

func (f *FakeConcourse) pauseHandler(paused bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		p, ok := f.pipelines[pipelineKey(r.PathValue("team"), r.PathValue("pipeline"))]
		if ok {
			p.Paused = paused
		}
		f.mu.Unlock()

		if !ok {
			http.Error(w, "pipeline not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func (f *FakeConcourse) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	team, pipeline := r.PathValue("team"), r.PathValue("pipeline")

	f.mu.Lock()
	builds := make([]fakeBuild, 0)
	for _, b := range f.builds {
		if b.TeamName == team && b.PipelineName == pipeline {
			builds = append(builds, *b)
		}
	}
	f.mu.Unlock()

	sort.Slice(builds, func(i, j int) bool { return builds[i].ID > builds[j].ID })
	writeJSON(w, http.StatusOK, builds)
}

func (f *FakeConcourse) handleListJobs(w http.ResponseWriter, r *http.Request) {
	p, ok := f.lookupPipeline(r)
	if !ok {
		http.Error(w, "pipeline not found", http.StatusNotFound)
		return
	}

	jobs := make([]map[string]any, 0, len(p.jobs))
	for i, name := range p.jobs {
		jobs = append(jobs, map[string]any{
			"id":            p.ID*100 + i,
			"name":          name,
			"pipeline_id":   p.ID,
			"pipeline_name": p.Name,
			"team_name":     p.TeamName,
			"paused":        false,
		})
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (f *FakeConcourse) handleCreateBuild(w http.ResponseWriter, r *http.Request) {
	team, pipeline, job := r.PathValue("team"), r.PathValue("pipeline"), r.PathValue("job")

	f.mu.Lock()
	p, ok := f.pipelines[pipelineKey(team, pipeline)]
	known := false
	if ok {
		for _, name := range p.jobs {
			known = known || name == job
		}
	}
	if !known {
		f.mu.Unlock()
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	count := 1
	for _, b := range f.builds {
		if b.TeamName == team && b.PipelineName == pipeline && b.JobName == job {
			count++
		}
	}
	id := f.allocateID()
	build := &fakeBuild{
		ID:           id,
		TeamName:     team,
		Name:         strconv.Itoa(count),
		Status:       "started",
		JobName:      job,
		PipelineName: pipeline,
		APIURL:       fmt.Sprintf("/api/v1/builds/%d", id),
		StartTime:    f.epoch + int64(id),
	}
	f.builds = append(f.builds, build)
	created := *build
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, created)
}

func (f *FakeConcourse) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	build, ok := f.lookupBuild(r)
	if !ok {
		http.Error(w, "build not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, build)
}

func (f *FakeConcourse) handleAbortBuild(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(r.PathValue("id"))

	f.mu.Lock()
	var found bool
	for _, b := range f.builds {
		if b.ID == id {
			found = true
			if b.Status == "started" || b.Status == "pending" {
				b.Status = "aborted"
				b.EndTime = time.Now().Unix()
			}
		}
	}
	f.mu.Unlock()

	if !found {
		http.Error(w, "build not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBuildEvents writes the build's events followed by the end marker and then,
// like the real server, keeps the connection open until the client goes away.
func (f *FakeConcourse) handleBuildEvents(w http.ResponseWriter, r *http.Request) {
	build, ok := f.lookupBuild(r)
	if !ok {
		http.Error(w, "build not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	f.openStreams.Add(1)
	defer f.openStreams.Add(-1)

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate, max-age=0")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := f.buildEvents(build)
	for i, event := range events {
		data, _ := json.Marshal(event)
		fmt.Fprintf(w, "id: %d\nevent: event\ndata: %s\n\n", i, data)
		flusher.Flush()
	}
	fmt.Fprintf(w, "id: %d\nevent: end\ndata\n\n", len(events))
	flusher.Flush()

	f.mu.Lock()
	for _, b := range f.builds {
		if b.ID == build.ID && b.Status == "started" {
			b.Status = "succeeded"
			b.EndTime = time.Now().Unix()
		}
	}
	f.mu.Unlock()

	<-r.Context().Done()
}

func (f *FakeConcourse) buildEvents(build fakeBuild) []map[string]any {
	now := time.Now().Unix()
	origin := map[string]string{"id": "task-1", "name": "say-hello"}

	return []map[string]any{
		{"event": "status", "version": "1.0", "data": map[string]any{"status": "started", "time": now}},
		{"event": "initialize-task", "version": "4.0", "data": map[string]any{"origin": origin, "time": now}},
		{"event": "start-task", "version": "5.0", "data": map[string]any{"origin": origin, "time": now}},
		{"event": "log", "version": "5.1", "data": map[string]any{
			"origin":  map[string]string{"id": "task-1", "source": "stdout"},
			"payload": f.buildOutput,
			"time":    now,
		}},
		{"event": "finish-task", "version": "4.0", "data": map[string]any{"origin": origin, "exit_status": 0, "time": now}},
		{"event": "status", "version": "1.0", "data": map[string]any{"status": "succeeded", "time": now}},
	}
}

func (f *FakeConcourse) lookupPipeline(r *http.Request) (fakePipeline, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.pipelines[pipelineKey(r.PathValue("team"), r.PathValue("pipeline"))]
	if !ok {
		return fakePipeline{}, false
	}
	found := *p
	found.jobs = append([]string(nil), p.jobs...)
	return found, true
}

func (f *FakeConcourse) lookupBuild(r *http.Request) (fakeBuild, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return fakeBuild{}, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.builds {
		if b.ID == id {
			return *b, true
		}
	}
	return fakeBuild{}, false
}

// allocateID must be called with f.mu held.
func (f *FakeConcourse) allocateID() int {
	f.nextID++
	return f.nextID
}

func pipelineKey(team, pipeline string) string {
	return team + "/" + pipeline
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
