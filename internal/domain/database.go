package domain

import "time"

// SocialLink is a single social media link on a company profile.
type SocialLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// Database is an isolated company tenant owning one subscriber set, one tag
// set, and one campaign set, plus a denormalized company profile. Exactly one
// database is "active" at a time; the pointer lives in the settings table, not
// on this record.
type Database struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`

	// Company profile
	Street          string       `json:"street" db:"street"`
	City            string       `json:"city" db:"city"`
	State           string       `json:"state" db:"state"`
	ZipCode         string       `json:"zip_code" db:"zip_code"`
	County          string       `json:"county" db:"county"`
	Website         string       `json:"website" db:"website"`
	Phone           string       `json:"phone" db:"phone"`
	FaxNumber       string       `json:"fax_number" db:"fax_number"`
	KeyContactName  string       `json:"key_contact_name" db:"key_contact_name"`
	KeyContactPhone string       `json:"key_contact_phone" db:"key_contact_phone"`
	KeyContactEmail string       `json:"key_contact_email" db:"key_contact_email"`
	SocialLinks     []SocialLink `json:"social_links" db:"social_links"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DatabaseContents is a full-tenant snapshot: the database record plus every
// subscriber (with resolved tag ids), tag, and campaign it owns.
type DatabaseContents struct {
	Database    Database     `json:"database"`
	Subscribers []Subscriber `json:"subscribers"`
	Tags        []Tag        `json:"tags"`
	Campaigns   []Campaign   `json:"campaigns"`
}

// DatabaseStats summarizes a tenant for the dashboard.
type DatabaseStats struct {
	SubscriberCount   int        `json:"subscriber_count"`
	ActiveSubscribers int        `json:"active_subscribers"`
	TagCount          int        `json:"tag_count"`
	CampaignCount     int        `json:"campaign_count"`
	SentCampaigns     int        `json:"sent_campaigns"`
	LastSentAt        *time.Time `json:"last_sent_at"`
}
