package deployment

import "time"

// Actor identifies who performed an action in the system.
type Actor struct {
	// Hostname is the machine name where the action was performed.
	Hostname string `json:"hostname"`
	// Username is the system user who triggered the action.
	Username string `json:"username"`
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// Record describes the most recent successfully applied update of a project.
type Record struct {
	// Project is the registry name of the deployment.
	Project string `json:"project"`
	// Checksum is the hex content hash of the applied archive.
	Checksum string `json:"checksum,omitempty"`
	// Message is the human-readable apply result.
	Message string `json:"message"`
	// Actor is who triggered the apply.
	Actor *Actor `json:"actor,omitempty"`
	// AppliedAt is when extraction completed.
	AppliedAt time.Time `json:"applied_at"`
}

// Clone returns a copy of the record to avoid leaking internal references.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	cloned := *r
	cloned.Actor = r.Actor.Clone()

	return &cloned
}
