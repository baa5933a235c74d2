// Package queue defines message payloads exchanged over the message broker.
package queue

// Event types published to the auth.events queue.
const (
	EventUserRegistered = "user.registered"
	EventUserLogin      = "user.login"
	EventSessionRevoked = "session.revoked"
)

// AuthEvent is published on security-relevant account activity so that
// downstream consumers (audit log, alerting) can react without querying
// the primary database. It never carries passwords, token values or
// hashes.
type AuthEvent struct {
	Type       string `json:"type"`
	UserID     uint64 `json:"user_id"`
	Email      string `json:"email"`
	OccurredAt string `json:"occurred_at"`
}
