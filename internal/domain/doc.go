// Package domain defines the core types of the chronicle lifecycle engine:
// opaque entities, immutable audit transitions, checkpoints, and the closed
// error taxonomy shared by every service.
//
// The package is a leaf. It performs no I/O and holds no state beyond the
// values it constructs; persistence lives in internal/store and orchestration
// in the service packages.
//
// # Critical Invariants
//
//   - Entities are schema-less: the engine never interprets entity contents
//     except to read the "id" field for listing. Callers always receive deep
//     copies so stored state cannot be mutated from outside the repository.
//   - Transitions are append-only: once constructed and appended to the audit
//     trail they are never mutated or removed.
//   - Error codes form a closed set (invalid_request, not_found, conflict,
//     forbidden, unknown) and classification is by errors.As, never by string
//     comparison.
package domain
