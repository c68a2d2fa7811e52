// Package queue moves slow work (CSV exports, outgoing mail) off the
// request path through durable RabbitMQ queues.
package queue

import (
	"time"

	"github.com/iliyamo/happiness-journal/internal/mailer"
)

// Queue names.  Both are durable and use the default exchange.
const (
	ExportRequestedQueue = "export.requested"
	EmailSendQueue       = "email.send"
)

// ExportRequested asks for a CSV of every happiness entry of a user to be
// mailed to Email.
type ExportRequested struct {
	UserID      uint64    `json:"user_id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	RequestedAt time.Time `json:"requested_at"`
}

// EmailSend is a queued outgoing message.
type EmailSend struct {
	Message mailer.Message `json:"message"`
}
