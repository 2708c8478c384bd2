package domain

// Tag is a label attachable to subscribers, used for audience segmentation.
// Names are unique within their owning database.
type Tag struct {
	ID         string `json:"id" db:"id"`
	DatabaseID string `json:"database_id" db:"database_id"`
	Name       string `json:"name" db:"name"`
}
