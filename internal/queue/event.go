// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the reconnecting consumer.
package queue

// Queue names. Both queues are durable and use the default exchange with
// the queue name as routing key.
const (
	VerificationQueue = "email.verification"
	LibrarySyncQueue  = "library.sync"
)

// VerificationEmailEvent is published after registration and on resend.
// The worker renders and sends the verification mail from it.
type VerificationEmailEvent struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Code     string `json:"code"`
}

// LibrarySyncEvent requests a Steam library import for one user.
type LibrarySyncEvent struct {
	UserID      uint64 `json:"user_id"`
	RequestedAt string `json:"requested_at"`
}
