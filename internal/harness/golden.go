package harness

import (
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/chronicle/internal/domain"
)

// RunWithGolden executes a scenario and compares its rendered trail against
// a golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden files serve as the source of truth for expected audit trails:
// every transition's id, entity, states, actor, reason, timestamp, and
// metadata is pinned, so any behavior drift in the services shows up as a
// golden diff.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, []byte(RenderTrail(scenario.Name, result)))

	return result, nil
}

// RenderTrail renders a run's audit trail as deterministic text, one line
// per transition.
func RenderTrail(name string, result *Result) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", name)
	fmt.Fprintf(&buf, "port_calls: %d\n", result.PortCalls)
	fmt.Fprintf(&buf, "trail:\n")
	for i, tr := range result.Trail {
		fmt.Fprintf(&buf, "  [%d] %s %s/%s %q -> %q actor=%s/%s reason=%q at=%s%s\n",
			i+1, tr.ID, tr.EntityType, tr.EntityID,
			tr.FromState, tr.ToState,
			tr.Actor.Kind, tr.Actor.ID,
			tr.Reason,
			tr.At.UTC().Format(time.RFC3339),
			renderMetadata(tr.Metadata),
		)
	}
	return buf.String()
}

// renderMetadata renders a metadata map with sorted keys, or nothing when
// the map is empty.
func renderMetadata(metadata map[string]string) string {
	if len(metadata) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, metadata[k])
	}
	return " meta{" + strings.Join(parts, ",") + "}"
}

// trailFor filters a trail down to one entity, preserving order. Exposed
// for tests that assert on a single entity's transitions.
func trailFor(trail []domain.Transition, entityType, entityID string) []domain.Transition {
	var out []domain.Transition
	for _, tr := range trail {
		if tr.EntityType == entityType && tr.EntityID == entityID {
			out = append(out, tr)
		}
	}
	return out
}
