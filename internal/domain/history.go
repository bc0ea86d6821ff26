package domain

import "time"

// StatusChange is one entry of the status history trail.
type StatusChange struct {
	EntityKind RefKind
	EntityID   string
	From       string
	To         string
	ActorID    string
	At         time.Time
	Note       string
}
