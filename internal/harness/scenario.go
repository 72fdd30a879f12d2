package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a sequence of service
// operations plus assertions over the resulting trail and state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Port configures the scripted outbound port.
	Port PortScript `yaml:"port,omitempty"`

	// Steps are executed in order against the real services.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trail and state.
	Assertions []Assertion `yaml:"assertions"`
}

// PortScript configures the scripted outbound port for a scenario.
type PortScript struct {
	// FailNext makes the first N port calls fail before calls start
	// succeeding. Zero means every call succeeds.
	FailNext int `yaml:"fail_next,omitempty"`
}

// Step is one service operation in a scenario.
type Step struct {
	// Op names the operation: create_event, update_schedule, delete_event,
	// create_draft, request_sync, approve_sync, request_execution,
	// approve_execution, checkpoint_create, checkpoint_keep,
	// checkpoint_recover.
	Op string `yaml:"op"`

	// Ref is the symbolic name of the target entity. Creation ops bind it;
	// later ops resolve it to the generated id.
	Ref string `yaml:"ref"`

	// Actor identifies who performs the operation.
	Actor StepActor `yaml:"actor"`

	// Args are op-specific arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect validates the step outcome. Nil means the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// StepActor is the actor performing a step.
type StepActor struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`
}

// ExpectClause specifies the expected step outcome.
type ExpectClause struct {
	// Error is the expected error code (invalid_request, not_found,
	// conflict, forbidden, unknown). Empty means success.
	Error string `yaml:"error"`
}

// Assertion validates the trail or final state after all steps ran.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Ref resolves to the target entity (all types except port_calls).
	Ref string `yaml:"ref,omitempty"`

	// States is the exact toState sequence (entity_states).
	States []string `yaml:"states,omitempty"`

	// Count is an exact occurrence count (trail_count, port_calls).
	Count int `yaml:"count,omitempty"`

	// FromState/ToState/Reason are subset-matched (trail_contains);
	// empty fields are ignored.
	FromState string `yaml:"from_state,omitempty"`
	ToState   string `yaml:"to_state,omitempty"`
	Reason    string `yaml:"reason,omitempty"`

	// Expect contains expected entity field values (final_entity).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertEntityStates  = "entity_states"
	AssertTrailCount    = "trail_count"
	AssertTrailContains = "trail_contains"
	AssertPortCalls     = "port_calls"
	AssertFinalEntity   = "final_entity"
)

// LoadScenario reads and parses a scenario YAML file. Returns an error if
// the file is missing, malformed, contains unknown fields (typos), or is
// missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validOps is the closed set of step operations.
var validOps = map[string]bool{
	"create_event":       true,
	"update_schedule":    true,
	"delete_event":       true,
	"create_draft":       true,
	"request_sync":       true,
	"approve_sync":       true,
	"request_execution":  true,
	"approve_execution":  true,
	"checkpoint_create":  true,
	"checkpoint_keep":    true,
	"checkpoint_recover": true,
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Port.FailNext < 0 {
		return fmt.Errorf("port.fail_next must be non-negative")
	}

	for i, step := range s.Steps {
		if !validOps[step.Op] {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.Ref == "" {
			return fmt.Errorf("steps[%d]: ref is required", i)
		}
		if step.Actor.ID == "" || step.Actor.Kind == "" {
			return fmt.Errorf("steps[%d]: actor id and kind are required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertEntityStates:
		if a.Ref == "" {
			return fmt.Errorf("assertions[%d]: ref is required for entity_states", index)
		}
		if len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: states list is required for entity_states", index)
		}
	case AssertTrailCount:
		if a.Ref == "" {
			return fmt.Errorf("assertions[%d]: ref is required for trail_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trail_count", index)
		}
	case AssertTrailContains:
		if a.Ref == "" {
			return fmt.Errorf("assertions[%d]: ref is required for trail_contains", index)
		}
		if a.FromState == "" && a.ToState == "" && a.Reason == "" {
			return fmt.Errorf("assertions[%d]: trail_contains needs at least one of from_state, to_state, reason", index)
		}
	case AssertPortCalls:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for port_calls", index)
		}
	case AssertFinalEntity:
		if a.Ref == "" {
			return fmt.Errorf("assertions[%d]: ref is required for final_entity", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_entity", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
