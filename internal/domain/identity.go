package domain

// Identity is a user session: anonymous (ephemeral, disposable) or durable
// (linked to a long-lived credential). Exactly one identity is current at a
// time; the per-user documents are keyed by the current identity's UID and
// have no existence independent of one.
type Identity struct {
	UID       string `json:"uid"`
	Anonymous bool   `json:"anonymous"`
}
