package domain

import "time"

// Message is append-only. ReadBy never contains the sender.
type Message struct {
	ID          string
	ThreadID    string
	SenderID    string
	Body        string
	SentAt      time.Time
	Attachments []string
	ReadBy      []string

	// SenderRole is populated on read.
	SenderRole Role
}
