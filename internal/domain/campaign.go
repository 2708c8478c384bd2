package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
)

// TagLogic enumerates how a single tag group evaluates a subscriber's tags.
type TagLogic string

const (
	LogicAny     TagLogic = "ANY"
	LogicAll     TagLogic = "ALL"
	LogicNone    TagLogic = "NONE"
	LogicAtLeast TagLogic = "AT_LEAST"
)

// GroupsLogic enumerates how the per-group results combine into the final
// audience decision.
type GroupsLogic string

const (
	GroupsAnd GroupsLogic = "AND"
	GroupsOr  GroupsLogic = "OR"
)

// TagGroup is one boolean clause over a set of tag ids. A group with no tags
// matches every subscriber regardless of its logic.
type TagGroup struct {
	ID      string   `json:"id"`
	TagIDs  []string `json:"tags"`
	Logic   TagLogic `json:"logic"`
	AtLeast int      `json:"atLeast,omitempty"`
}

// Target is a campaign's full audience definition: an ordered list of tag
// groups plus the logic that combines them.
type Target struct {
	Groups      []TagGroup  `json:"groups"`
	GroupsLogic GroupsLogic `json:"groupsLogic"`
}

// Campaign represents a newsletter campaign with its content, audience
// definition, and delivery state.
//
// Recipients is empty for every status except Sent; it is the frozen snapshot
// of subscriber ids resolved at send time and never changes afterwards.
// RecipientCount is authoritative only once the campaign reaches Sent.
// ScheduledAt is retained after sending as a historical record.
type Campaign struct {
	ID             string         `json:"id" db:"id"`
	DatabaseID     string         `json:"database_id" db:"database_id"`
	Subject        string         `json:"subject" db:"subject"`
	Body           string         `json:"body" db:"body"`
	Status         CampaignStatus `json:"status" db:"status"`
	SentAt         *time.Time     `json:"sent_at" db:"sent_at"`
	ScheduledAt    *time.Time     `json:"scheduled_at" db:"scheduled_at"`
	RecipientCount int            `json:"recipient_count" db:"recipient_count"`
	Recipients     []string       `json:"recipients" db:"recipients"`
	Target         Target         `json:"target" db:"target"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign has completed a send.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent
}

// IsDue returns true if the campaign is scheduled and its scheduled time has
// passed as of now.
func (c *Campaign) IsDue(now time.Time) bool {
	return c.Status == CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now)
}
