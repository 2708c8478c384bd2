package domain

import "time"

// Subscriber represents a single recipient within a company database.
// TagIDs is populated at read time from the subscriber/tag join table.
type Subscriber struct {
	ID         string `json:"id" db:"id"`
	DatabaseID string `json:"database_id" db:"database_id"`
	Email      string `json:"email" db:"email"`
	Name       string `json:"name" db:"name"`
	ExternalID string `json:"external_id" db:"external_id"`
	Notes      string `json:"notes" db:"notes"`

	SubscribedAt   time.Time  `json:"subscribed_at" db:"subscribed_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at" db:"unsubscribed_at"`

	TagIDs []string `json:"tags" db:"-"`
}

// IsActive returns true if the subscriber has not unsubscribed.
func (s *Subscriber) IsActive() bool {
	return s.UnsubscribedAt == nil
}

// HasTag returns true if the subscriber carries the given tag.
func (s *Subscriber) HasTag(tagID string) bool {
	for _, id := range s.TagIDs {
		if id == tagID {
			return true
		}
	}
	return false
}
