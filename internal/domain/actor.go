package domain

// ActorKind identifies what sort of principal caused a state change.
type ActorKind string

const (
	ActorUser   ActorKind = "user"
	ActorSystem ActorKind = "system"
	ActorAI     ActorKind = "ai"
)

// Valid reports whether the kind is one of the known actor kinds.
func (k ActorKind) Valid() bool {
	switch k {
	case ActorUser, ActorSystem, ActorAI:
		return true
	default:
		return false
	}
}

// Actor is the principal attributed to an audit transition.
type Actor struct {
	ID   string    `json:"id"`
	Kind ActorKind `json:"kind"`
}
