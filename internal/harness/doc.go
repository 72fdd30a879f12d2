// Package harness provides scenario-driven conformance testing for the
// lifecycle engine.
//
// Scenarios are YAML files that drive the real services (lifecycle,
// workflow, checkpoint) against an in-memory repository, then assert on the
// resulting audit trail, final entity state, and outbound port call count.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	port:
//	  fail_next: 0
//	steps:
//	  - op: create_event
//	    ref: E1
//	    actor: { id: alice, kind: user }
//	    args: { title: "Standup", startsAt: "2024-07-01T10:00:00Z" }
//	  - op: approve_sync
//	    ref: E1
//	    actor: { id: alice, kind: user }
//	    args: { approved: true }
//	    expect: { error: conflict }
//	assertions:
//	  - type: entity_states
//	    ref: E1
//	    states: [local_only, pending_approval, synced]
//	  - type: port_calls
//	    count: 1
//	  - type: final_entity
//	    ref: E1
//	    expect: { syncState: synced }
//
// Steps reference entities through symbolic refs; the harness maps each ref
// to the id the service generated, so scenarios stay independent of id
// generation.
//
// # Assertion Types
//
//   - entity_states: the exact toState sequence of one entity's transitions
//   - trail_count: the number of transitions recorded for one entity
//   - trail_contains: one transition matching a from/to/reason subset
//   - port_calls: the exact number of outbound port invocations
//   - final_entity: subset match on an entity's final stored fields
//
// # Deterministic Execution
//
// Every run uses a fresh in-memory repository, a stepping test clock, and
// sequence id generators, so the same scenario always produces a
// byte-identical trace for golden comparison.
package harness
