package audience

import (
	"github.com/haywire-mail/relay-crm/internal/domain"
)

// Resolve returns the ids of every subscriber matching the target, in input
// order. It is used both for the live recipient estimate while composing and
// for the authoritative snapshot taken at the moment a campaign enters
// Sending; the two must never diverge.
func Resolve(target domain.Target, subscribers []domain.Subscriber) []string {
	ids := make([]string, 0, len(subscribers))
	for _, sub := range subscribers {
		if Matches(sub.TagIDs, target) {
			ids = append(ids, sub.ID)
		}
	}
	return ids
}

// Count returns the number of subscribers matching the target. It exists for
// the composer's live estimate and is defined as len(Resolve(...)).
func Count(target domain.Target, subscribers []domain.Subscriber) int {
	return len(Resolve(target, subscribers))
}
