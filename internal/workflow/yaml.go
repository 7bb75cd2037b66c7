package workflow

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loomwrk/loom/internal/decide"
	"github.com/loomwrk/loom/internal/job"
	"github.com/loomwrk/loom/internal/retry"
	"github.com/loomwrk/loom/internal/value"
	"github.com/loomwrk/loom/internal/workflowctx"
)

// Definition is the declarative YAML shape a workflow directory file is
// unmarshaled into: a DAG where inputs may depend on another step's
// output, steps may route dynamically via `decide`, and `connect` lists
// explicit successors instead of relying on list order.
type Definition struct {
	Name        string                `yaml:"name"`
	Description string                `yaml:"description"`
	Globals     map[string]any        `yaml:"globals"`
	Steps       []StepDefinitionYAML  `yaml:"steps"`
}

// StepDefinitionYAML is one step entry of a Definition.
type StepDefinitionYAML struct {
	ID         string                      `yaml:"id"`
	Job        JobRefYAML                  `yaml:"job"`
	Inputs     map[string]InputRefYAML     `yaml:"inputs"`
	Retry      *RetryYAML                  `yaml:"retry,omitempty"`
	Timeout    string                      `yaml:"timeout,omitempty"`
	StopOnFail bool                        `yaml:"stop_on_fail"`
	Connect    []string                    `yaml:"connect,omitempty"`
	Decide     *DeciderYAML                `yaml:"decide,omitempty"`
}

// JobRefYAML names the registered job class and its construction data.
type JobRefYAML struct {
	Class string         `yaml:"class"`
	Data  map[string]any `yaml:"data"`
}

// InputRefYAML is either a literal value or a dependency on another
// step's output key; exactly one of Literal or DependsOn should be set.
type InputRefYAML struct {
	Literal   any    `yaml:"literal,omitempty"`
	DependsOn string `yaml:"depends_on,omitempty"`
	OutputKey string `yaml:"output_key,omitempty"`
}

// RetryYAML mirrors retry.Policy with YAML-friendly duration strings.
type RetryYAML struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay,omitempty"`
	Multiplier  float64 `yaml:"multiplier,omitempty"`
	MaxDelay    string `yaml:"max_delay,omitempty"`
}

// DeciderYAML mirrors decide.Decider.
type DeciderYAML struct {
	Conditions []ConditionYAML `yaml:"conditions"`
	Default    string          `yaml:"default,omitempty"`
}

// ConditionYAML mirrors decide.Condition.
type ConditionYAML struct {
	Key      string `yaml:"key"`
	Operator string `yaml:"operator"`
	Expected any    `yaml:"expected"`
	Target   string `yaml:"target"`
}

// LoadDefinitionFromFile reads and parses a workflow definition file.
func LoadDefinitionFromFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: read definition file: %w", err)
	}
	return LoadDefinitionFromYAML(data)
}

// LoadDefinitionFromYAML parses and validates a workflow definition.
func LoadDefinitionFromYAML(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("workflow: parse definition YAML: %w", err)
	}
	if err := validateDefinition(&def); err != nil {
		return nil, fmt.Errorf("workflow: invalid definition: %w", err)
	}
	return &def, nil
}

func validateDefinition(def *Definition) error {
	if def.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	seen := make(map[string]bool, len(def.Steps))
	for i, s := range def.Steps {
		if s.ID == "" {
			return fmt.Errorf("step %d: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("step %d (%s): duplicate step id", i, s.ID)
		}
		seen[s.ID] = true
		if s.Job.Class == "" {
			return fmt.Errorf("step %d (%s): job.class is required", i, s.ID)
		}
	}
	return nil
}

// Build constructs a *Workflow from a parsed Definition, instantiating
// each step's Job via registry. tracker may be nil.
func Build(def *Definition, registry *job.Registry, tracker workflowctx.Tracker) (*Workflow, error) {
	w := New(def.Name, def.Description, value.Map(def.Globals), tracker)

	for _, s := range def.Steps {
		j, err := registry.Create(s.Job.Class, value.Map(s.Job.Data))
		if err != nil {
			return nil, fmt.Errorf("workflow: build step %q: %w", s.ID, err)
		}

		inputs, err := buildInputSpec(s.Inputs)
		if err != nil {
			return nil, fmt.Errorf("workflow: build step %q inputs: %w", s.ID, err)
		}

		w.AddStep(s.ID, j, inputs, s.StopOnFail)
		if w.err != nil {
			return nil, fmt.Errorf("workflow: add step %q: %w", s.ID, w.err)
		}
	}

	for _, s := range def.Steps {
		for _, to := range s.Connect {
			w.Connect(s.ID, to)
			if w.err != nil {
				return nil, fmt.Errorf("workflow: connect %q -> %q: %w", s.ID, to, w.err)
			}
		}

		if s.Retry != nil {
			p, err := buildRetry(s.Retry)
			if err != nil {
				return nil, fmt.Errorf("workflow: step %q retry: %w", s.ID, err)
			}
			w.ctx.SetRetry(s.ID, p)
		}

		if s.Timeout != "" {
			d, err := time.ParseDuration(s.Timeout)
			if err != nil {
				return nil, fmt.Errorf("workflow: step %q timeout: %w", s.ID, err)
			}
			w.WithTimeout(s.ID, d)
		}

		if s.Decide != nil {
			conditions := make([]decide.Condition, 0, len(s.Decide.Conditions))
			for _, c := range s.Decide.Conditions {
				conditions = append(conditions, decide.Condition{
					Key:      c.Key,
					Operator: decide.Operator(c.Operator),
					Expected: c.Expected,
					Target:   c.Target,
				})
			}
			w.WithDecider(s.ID, conditions, s.Decide.Default)
			if w.err != nil {
				return nil, fmt.Errorf("workflow: step %q decider: %w", s.ID, w.err)
			}
		}
	}

	return w, nil
}

func buildInputSpec(inputs map[string]InputRefYAML) ([]workflowctx.InputSpec, error) {
	out := make([]workflowctx.InputSpec, 0, len(inputs))
	for name, ref := range inputs {
		if ref.DependsOn != "" {
			out = append(out, workflowctx.InputSpec{Name: name, Ref: workflowctx.Dep(ref.DependsOn, ref.OutputKey)})
			continue
		}
		out = append(out, workflowctx.InputSpec{Name: name, Ref: workflowctx.Lit(ref.Literal)})
	}
	return out, nil
}

func buildRetry(r *RetryYAML) (retry.Policy, error) {
	var base, maxDelay time.Duration
	var err error
	if r.BaseDelay != "" {
		base, err = time.ParseDuration(r.BaseDelay)
		if err != nil {
			return retry.Policy{}, fmt.Errorf("base_delay: %w", err)
		}
	}
	if r.MaxDelay != "" {
		maxDelay, err = time.ParseDuration(r.MaxDelay)
		if err != nil {
			return retry.Policy{}, fmt.Errorf("max_delay: %w", err)
		}
	}
	return retry.New(r.MaxAttempts, base, r.Multiplier, maxDelay), nil
}
