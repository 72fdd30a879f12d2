package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/chronicle/internal/domain"
)

// AssertionError is returned when an assertion fails. It includes the
// entity's trail slice to help debug the failure.
type AssertionError struct {
	Type     string              // Assertion type for categorization
	Expected string              // Human-readable expected outcome
	Actual   string              // Human-readable actual outcome
	Trail    []domain.Transition // Relevant trail for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trail) > 0 {
		fmt.Fprintf(&buf, "\nTrail:\n")
		for i, tr := range e.Trail {
			fmt.Fprintf(&buf, "  [%d] %s/%s %q -> %q (%s)\n",
				i+1, tr.EntityType, tr.EntityID, tr.FromState, tr.ToState, tr.Reason)
		}
	}
	return buf.String()
}

// evaluateAssertions checks all assertions against the finished run.
// Returns a message per failed assertion.
func evaluateAssertions(ctx context.Context, h *Harness, result *Result, assertions []Assertion) []string {
	var errors []string
	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertEntityStates:
			err = assertEntityStates(h, result.Trail, assertion)
		case AssertTrailCount:
			err = assertTrailCount(h, result.Trail, assertion)
		case AssertTrailContains:
			err = assertTrailContains(h, result.Trail, assertion)
		case AssertPortCalls:
			err = assertPortCalls(result.PortCalls, assertion)
		case AssertFinalEntity:
			err = assertFinalEntity(ctx, h, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

// entityTrail filters the trail down to one entity's transitions.
func entityTrail(h *Harness, trail []domain.Transition, refName string) ([]domain.Transition, error) {
	ref, err := h.resolve(refName)
	if err != nil {
		return nil, err
	}
	var out []domain.Transition
	for _, tr := range trail {
		if tr.EntityType == ref.Type && tr.EntityID == ref.ID {
			out = append(out, tr)
		}
	}
	return out, nil
}

// assertEntityStates checks that the entity's toState sequence matches
// exactly, in order.
func assertEntityStates(h *Harness, trail []domain.Transition, assertion Assertion) error {
	slice, err := entityTrail(h, trail, assertion.Ref)
	if err != nil {
		return err
	}
	actual := make([]string, len(slice))
	for i, tr := range slice {
		actual[i] = tr.ToState
	}
	if len(actual) != len(assertion.States) {
		return &AssertionError{
			Type:     AssertEntityStates,
			Expected: fmt.Sprintf("%s states %v", assertion.Ref, assertion.States),
			Actual:   fmt.Sprintf("states %v", actual),
			Trail:    slice,
		}
	}
	for i := range actual {
		if actual[i] != assertion.States[i] {
			return &AssertionError{
				Type:     AssertEntityStates,
				Expected: fmt.Sprintf("%s states %v", assertion.Ref, assertion.States),
				Actual:   fmt.Sprintf("states %v (first mismatch at %d)", actual, i),
				Trail:    slice,
			}
		}
	}
	return nil
}

// assertTrailCount checks the entity has exactly Count transitions.
func assertTrailCount(h *Harness, trail []domain.Transition, assertion Assertion) error {
	slice, err := entityTrail(h, trail, assertion.Ref)
	if err != nil {
		return err
	}
	if len(slice) != assertion.Count {
		return &AssertionError{
			Type:     AssertTrailCount,
			Expected: fmt.Sprintf("%d transitions for %s", assertion.Count, assertion.Ref),
			Actual:   fmt.Sprintf("%d transitions", len(slice)),
			Trail:    slice,
		}
	}
	return nil
}

// assertTrailContains checks one of the entity's transitions matches the
// specified from/to/reason fields (empty fields are ignored).
func assertTrailContains(h *Harness, trail []domain.Transition, assertion Assertion) error {
	slice, err := entityTrail(h, trail, assertion.Ref)
	if err != nil {
		return err
	}
	for _, tr := range slice {
		if assertion.FromState != "" && tr.FromState != assertion.FromState {
			continue
		}
		if assertion.ToState != "" && tr.ToState != assertion.ToState {
			continue
		}
		if assertion.Reason != "" && tr.Reason != assertion.Reason {
			continue
		}
		return nil
	}
	return &AssertionError{
		Type: AssertTrailContains,
		Expected: fmt.Sprintf("%s transition from=%q to=%q reason=%q",
			assertion.Ref, assertion.FromState, assertion.ToState, assertion.Reason),
		Actual: "not found in trail",
		Trail:  slice,
	}
}

// assertPortCalls checks the exact outbound port call count.
func assertPortCalls(calls int, assertion Assertion) error {
	if calls != assertion.Count {
		return &AssertionError{
			Type:     AssertPortCalls,
			Expected: fmt.Sprintf("%d port calls", assertion.Count),
			Actual:   fmt.Sprintf("%d port calls", calls),
		}
	}
	return nil
}

// assertFinalEntity checks the entity's final stored fields. Subset match -
// only fields named in the assertion are validated.
func assertFinalEntity(ctx context.Context, h *Harness, assertion Assertion) error {
	ref, err := h.resolve(assertion.Ref)
	if err != nil {
		return err
	}
	entity, found, err := h.repo.GetEntity(ctx, ref.Type, ref.ID)
	if err != nil {
		return fmt.Errorf("final_entity %s: %w", assertion.Ref, err)
	}
	if !found {
		return &AssertionError{
			Type:     AssertFinalEntity,
			Expected: fmt.Sprintf("%s (%s/%s) to exist", assertion.Ref, ref.Type, ref.ID),
			Actual:   "entity not found",
		}
	}
	for key, expected := range assertion.Expect {
		actual, exists := entity[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalEntity,
				Expected: fmt.Sprintf("%s field %q = %v", assertion.Ref, key, expected),
				Actual:   fmt.Sprintf("field %q not present", key),
			}
		}
		if !fieldValuesEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalEntity,
				Expected: fmt.Sprintf("%s field %q = %v (type %T)", assertion.Ref, key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}
	return nil
}

// fieldValuesEqual compares a YAML-parsed expected value against a stored
// entity field. Stored numbers may be json.Number or float64 depending on
// the write path, so numeric comparison goes through string rendering.
func fieldValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if es, ok := expected.(string); ok {
		as, ok := actual.(string)
		return ok && es == as
	}
	if eb, ok := expected.(bool); ok {
		ab, ok := actual.(bool)
		return ok && eb == ab
	}
	return fmt.Sprintf("%v", expected) == fmt.Sprintf("%v", actual)
}
