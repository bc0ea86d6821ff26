package app

import "github.com/google/uuid"

func newID() string {
	return uuid.NewString()
}

// validID rejects malformed identifiers before they reach storage.
func validID(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}
