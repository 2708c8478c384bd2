package audience_test

import (
	"testing"

	"github.com/haywire-mail/relay-crm/internal/audience"
	"github.com/haywire-mail/relay-crm/internal/domain"
)

func group(logic domain.TagLogic, atLeast int, tagIDs ...string) domain.TagGroup {
	return domain.TagGroup{ID: "g", TagIDs: tagIDs, Logic: logic, AtLeast: atLeast}
}

func TestMatchesUniversalAudience(t *testing.T) {
	subscriberTags := [][]string{nil, {}, {"a"}, {"a", "b", "c"}}

	for _, logic := range []domain.GroupsLogic{domain.GroupsAnd, domain.GroupsOr} {
		for _, tags := range subscriberTags {
			// No groups at all.
			if !audience.Matches(tags, domain.Target{GroupsLogic: logic}) {
				t.Errorf("empty target (%s) should match tags %v", logic, tags)
			}

			// Groups present but every tag set empty.
			target := domain.Target{
				Groups: []domain.TagGroup{
					group(domain.LogicAll, 0),
					group(domain.LogicNone, 0),
				},
				GroupsLogic: logic,
			}
			if !audience.Matches(tags, target) {
				t.Errorf("all-empty groups (%s) should match tags %v", logic, tags)
			}
		}
	}
}

func TestMatchesGroupLogic(t *testing.T) {
	// Group tags {A,B,C}, subscriber tags {A,B}.
	subTags := []string{"A", "B"}

	tests := []struct {
		name  string
		group domain.TagGroup
		want  bool
	}{
		{"ANY", group(domain.LogicAny, 0, "A", "B", "C"), true},
		{"ALL", group(domain.LogicAll, 0, "A", "B", "C"), false},
		{"NONE", group(domain.LogicNone, 0, "A", "B", "C"), false},
		{"AT_LEAST 2", group(domain.LogicAtLeast, 2, "A", "B", "C"), true},
		{"AT_LEAST 3", group(domain.LogicAtLeast, 3, "A", "B", "C"), false},
		{"AT_LEAST default", group(domain.LogicAtLeast, 0, "A", "B", "C"), true},
		{"ANY no overlap", group(domain.LogicAny, 0, "X"), false},
		{"NONE no overlap", group(domain.LogicNone, 0, "X"), true},
		{"ALL exact", group(domain.LogicAll, 0, "A", "B"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := domain.Target{Groups: []domain.TagGroup{tt.group}, GroupsLogic: domain.GroupsAnd}
			if got := audience.Matches(subTags, target); got != tt.want {
				t.Errorf("Matches(%v, %s) = %v, want %v", subTags, tt.name, got, tt.want)
			}
		})
	}
}

func TestMatchesGroupCombination(t *testing.T) {
	g1 := group(domain.LogicAny, 0, "A")
	g2 := group(domain.LogicAny, 0, "B")
	subTags := []string{"A"} // matches g1 only

	andTarget := domain.Target{Groups: []domain.TagGroup{g1, g2}, GroupsLogic: domain.GroupsAnd}
	if audience.Matches(subTags, andTarget) {
		t.Error("AND across groups should fail when only one group matches")
	}

	orTarget := domain.Target{Groups: []domain.TagGroup{g1, g2}, GroupsLogic: domain.GroupsOr}
	if !audience.Matches(subTags, orTarget) {
		t.Error("OR across groups should pass when one group matches")
	}
}

func TestMatchesEmptyGroupIsVacuouslyTrue(t *testing.T) {
	// An empty group combined via AND with a failing group: only the failing
	// group decides.
	target := domain.Target{
		Groups: []domain.TagGroup{
			group(domain.LogicAll, 0),           // vacuous
			group(domain.LogicAny, 0, "absent"), // fails
		},
		GroupsLogic: domain.GroupsAnd,
	}
	if audience.Matches([]string{"A"}, target) {
		t.Error("vacuous group must not mask a failing group under AND")
	}

	// Same groups under OR: the vacuous group alone matches everyone.
	target.GroupsLogic = domain.GroupsOr
	if !audience.Matches([]string{"A"}, target) {
		t.Error("vacuous group should match everyone under OR")
	}
}

func TestMatchesDeletedTagContributesNothing(t *testing.T) {
	// A target referencing only ids that no subscriber carries behaves as
	// zero matches, not an error.
	target := domain.Target{
		Groups:      []domain.TagGroup{group(domain.LogicAny, 0, "deleted-tag")},
		GroupsLogic: domain.GroupsAnd,
	}
	if audience.Matches([]string{"A", "B"}, target) {
		t.Error("group over a deleted tag should match no one")
	}
}
