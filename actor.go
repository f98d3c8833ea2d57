package identity

// ActorType classifies who performed a privileged mutation.
type ActorType string

const (
	// ActorOperator is a human administrator acting through the dashboard.
	ActorOperator ActorType = "operator"
	// ActorSystem is an automated process, e.g. a provisioning script.
	ActorSystem ActorType = "system"
	// ActorSelf is the subject account acting on itself.
	ActorSelf ActorType = "self"
)

// ActorRef identifies who or what triggered a privileged mutation. It is
// carried verbatim into the audit trail.
type ActorRef struct {
	ID   string
	Type ActorType
}

// Operator returns an ActorRef for a human administrator.
func Operator(id string) ActorRef {
	return ActorRef{ID: id, Type: ActorOperator}
}

// SystemActor returns an ActorRef for an automated process. The tag names
// the process, e.g. "seed-admins".
func SystemActor(tag string) ActorRef {
	return ActorRef{ID: tag, Type: ActorSystem}
}

// SelfActor returns an ActorRef for the subject acting on its own account.
func SelfActor(accountID string) ActorRef {
	return ActorRef{ID: accountID, Type: ActorSelf}
}

// IsZero reports whether the actor is missing entirely.
func (a ActorRef) IsZero() bool {
	return a == ActorRef{}
}

// Descriptor renders the actor as a single audit-friendly string.
func (a ActorRef) Descriptor() string {
	if a.IsZero() {
		return "unknown"
	}
	if a.ID == "" {
		return string(a.Type)
	}
	return string(a.Type) + ":" + a.ID
}
