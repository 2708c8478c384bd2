// Package audience evaluates campaign targeting rules against subscriber
// tag sets. It is the single source of truth for audience membership: both
// the live recipient estimate shown while composing and the final snapshot
// frozen at send time go through the same code path.
package audience

import (
	"github.com/haywire-mail/relay-crm/internal/domain"
)

// Matches reports whether a subscriber with the given tag ids falls inside
// the target's audience.
//
// A target with no groups, or whose groups all have empty tag sets, matches
// every subscriber. A single group with an empty tag set is vacuously true
// under every logic, which is what makes the universal-audience case fall out
// of the per-group evaluation. Tag ids that no longer exist simply never
// intersect, so a deleted tag stops matching anyone without being an error.
func Matches(subscriberTagIDs []string, target domain.Target) bool {
	if len(target.Groups) == 0 {
		return true
	}

	subTags := make(map[string]struct{}, len(subscriberTagIDs))
	for _, id := range subscriberTagIDs {
		subTags[id] = struct{}{}
	}

	switch target.GroupsLogic {
	case domain.GroupsOr:
		for _, g := range target.Groups {
			if matchGroup(subTags, g) {
				return true
			}
		}
		return false
	default:
		// AND is the default combination, matching the composer's default.
		for _, g := range target.Groups {
			if !matchGroup(subTags, g) {
				return false
			}
		}
		return true
	}
}

// matchGroup evaluates one tag group against a subscriber's tag set.
func matchGroup(subTags map[string]struct{}, g domain.TagGroup) bool {
	if len(g.TagIDs) == 0 {
		return true
	}

	intersection := 0
	for _, id := range g.TagIDs {
		if _, ok := subTags[id]; ok {
			intersection++
		}
	}

	switch g.Logic {
	case domain.LogicAny:
		return intersection > 0
	case domain.LogicAll:
		return intersection == len(g.TagIDs)
	case domain.LogicNone:
		return intersection == 0
	case domain.LogicAtLeast:
		atLeast := g.AtLeast
		if atLeast < 1 {
			atLeast = 1
		}
		return intersection >= atLeast
	default:
		return false
	}
}
