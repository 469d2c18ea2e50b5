package concourse

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// PipelineConfig is a pipeline's configuration. Keys the typed fields do not cover
// are kept in Extra, here and in the nested types, so a configuration read from the
// server or a file is written back unchanged.
type PipelineConfig struct {
	Groups        []GroupConfig        `json:"groups,omitempty"`
	Resources     []ResourceConfig     `json:"resources"`
	ResourceTypes []ResourceTypeConfig `json:"resource_types,omitempty"`
	Jobs          []JobConfig          `json:"jobs"`

	Extra map[string]json.RawMessage `json:"-"`
}

// GroupConfig is a named tab of jobs in the web UI.
type GroupConfig struct {
	Name      string   `json:"name"`
	Jobs      []string `json:"jobs,omitempty"`
	Resources []string `json:"resources,omitempty"`
}

// ResourceConfig declares a resource.
type ResourceConfig struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Icon       string         `json:"icon,omitempty"`
	Source     map[string]any `json:"source,omitempty"`
	CheckEvery string         `json:"check_every,omitempty"`
	Tags       []string       `json:"tags,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// ResourceTypeConfig declares a custom resource type.
type ResourceTypeConfig struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Source map[string]any `json:"source,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// JobConfig declares a job and its build plan.
type JobConfig struct {
	Name   string `json:"name"`
	Public bool   `json:"public,omitempty"`
	Serial bool   `json:"serial,omitempty"`
	Plan   []Step `json:"plan"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Step is one step of a build plan: a get, a put or a task. Other step kinds
// (in_parallel, do, try, ...) and hooks survive in Extra.
type Step struct {
	// get
	Get     string   `json:"get,omitempty"`
	Trigger bool     `json:"trigger,omitempty"`
	Passed  []string `json:"passed,omitempty"`

	// put
	Put       string         `json:"put,omitempty"`
	Inputs    any            `json:"inputs,omitempty"`
	GetParams map[string]any `json:"get_params,omitempty"`

	// get and put
	Resource string `json:"resource,omitempty"`

	// task
	Task          string            `json:"task,omitempty"`
	Config        *TaskConfig       `json:"config,omitempty"`
	File          string            `json:"file,omitempty"`
	Image         string            `json:"image,omitempty"`
	Privileged    bool              `json:"privileged,omitempty"`
	InputMapping  map[string]string `json:"input_mapping,omitempty"`
	OutputMapping map[string]string `json:"output_mapping,omitempty"`

	// all
	Params map[string]any `json:"params,omitempty"`
	Tags   []string       `json:"tags,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// TaskConfig is an inline task definition.
type TaskConfig struct {
	Platform        string           `json:"platform"`
	ImageResource   *ImageResource   `json:"image_resource,omitempty"`
	Inputs          []TaskIO         `json:"inputs,omitempty"`
	Outputs         []TaskIO         `json:"outputs,omitempty"`
	Caches          []TaskCache      `json:"caches,omitempty"`
	Params          map[string]any   `json:"params,omitempty"`
	Run             TaskRun          `json:"run"`
	ContainerLimits *ContainerLimits `json:"container_limits,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// ImageResource is the image a task runs in.
type ImageResource struct {
	Type   string         `json:"type"`
	Source map[string]any `json:"source"`

	Extra map[string]json.RawMessage `json:"-"`
}

// TaskIO is a task input or output.
type TaskIO struct {
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// TaskCache is a directory cached between runs of a task on a worker.
type TaskCache struct {
	Path string `json:"path"`
}

// TaskRun is the command a task executes.
type TaskRun struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
	Dir  string   `json:"dir,omitempty"`
	User string   `json:"user,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// ContainerLimits caps a task container's resources.
type ContainerLimits struct {
	CPU    *int64 `json:"cpu,omitempty"`
	Memory *int64 `json:"memory,omitempty"`
}

type (
	plainPipelineConfig     PipelineConfig
	plainResourceConfig     ResourceConfig
	plainResourceTypeConfig ResourceTypeConfig
	plainJobConfig          JobConfig
	plainStep               Step
	plainTaskConfig         TaskConfig
	plainImageResource      ImageResource
	plainTaskRun            TaskRun
)

func (c PipelineConfig) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(plainPipelineConfig(c), c.Extra)
}

func (c *PipelineConfig) UnmarshalJSON(data []byte) error {
	return unmarshalWithExtra(data, (*plainPipelineConfig)(c), &c.Extra)
}

func (r ResourceConfig) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(plainResourceConfig(r), r.Extra)
}

func (r *ResourceConfig) UnmarshalJSON(data []byte) error {
	return unmarshalWithExtra(data, (*plainResourceConfig)(r), &r.Extra)
}

func (r ResourceTypeConfig) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(plainResourceTypeConfig(r), r.Extra)
}

func (r *ResourceTypeConfig) UnmarshalJSON(data []byte) error {
	return unmarshalWithExtra(data, (*plainResourceTypeConfig)(r), &r.Extra)
}

func (j JobConfig) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(plainJobConfig(j), j.Extra)
}

func (j *JobConfig) UnmarshalJSON(data []byte) error {
	return unmarshalWithExtra(data, (*plainJobConfig)(j), &j.Extra)
}

func (s Step) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(plainStep(s), s.Extra)
}

func (s *Step) UnmarshalJSON(data []byte) error {
	return unmarshalWithExtra(data, (*plainStep)(s), &s.Extra)
}

func (t TaskConfig) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(plainTaskConfig(t), t.Extra)
}

func (t *TaskConfig) UnmarshalJSON(data []byte) error {
	return unmarshalWithExtra(data, (*plainTaskConfig)(t), &t.Extra)
}

func (i ImageResource) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(plainImageResource(i), i.Extra)
}

func (i *ImageResource) UnmarshalJSON(data []byte) error {
	return unmarshalWithExtra(data, (*plainImageResource)(i), &i.Extra)
}

func (r TaskRun) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(plainTaskRun(r), r.Extra)
}

func (r *TaskRun) UnmarshalJSON(data []byte) error {
	return unmarshalWithExtra(data, (*plainTaskRun)(r), &r.Extra)
}

// marshalWithExtra encodes v and adds the extra keys it does not already have.
func marshalWithExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	encoded, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return encoded, err
	}

	merged := make(map[string]json.RawMessage, len(extra))
	if err := json.Unmarshal(encoded, &merged); err != nil {
		return nil, err
	}
	for key, value := range extra {
		if _, ok := merged[key]; !ok {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

// unmarshalWithExtra decodes data into v and collects the keys v has no field for.
func unmarshalWithExtra(data []byte, v any, extra *map[string]json.RawMessage) error {
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	known := jsonKeys(reflect.TypeOf(v).Elem())
	for key := range all {
		if known[key] {
			delete(all, key)
		}
	}

	*extra = nil
	if len(all) > 0 {
		*extra = all
	}
	return nil
}

var jsonKeyCache sync.Map // reflect.Type -> map[string]bool

func jsonKeys(t reflect.Type) map[string]bool {
	if cached, ok := jsonKeyCache.Load(t); ok {
		return cached.(map[string]bool)
	}

	keys := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = field.Name
		}
		keys[name] = true
	}

	jsonKeyCache.Store(t, keys)
	return keys
}
