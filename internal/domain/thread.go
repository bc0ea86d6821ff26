package domain

import "time"

// Thread is a private two-party conversation, optionally scoped to a listing.
type Thread struct {
	ID            string
	Participants  [2]string
	ListingID     string
	LastMessage   string
	LastMessageAt time.Time
	CreatedAt     time.Time
}

func (t Thread) HasParticipant(userID string) bool {
	return userID != "" && (t.Participants[0] == userID || t.Participants[1] == userID)
}

func (t Thread) Other(userID string) string {
	switch userID {
	case t.Participants[0]:
		return t.Participants[1]
	case t.Participants[1]:
		return t.Participants[0]
	}
	return ""
}

// OrderedPair returns the two ids sorted, which is the storage order of
// Participants and the dedup key for find-or-create.
func OrderedPair(a, b string) [2]string {
	if b < a {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}

// ThreadSummary is a thread as listed for one participant.
type ThreadSummary struct {
	Thread       Thread
	Unread       int
	Counterpart  User
	ListingTitle string
}
