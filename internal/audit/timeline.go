package audit

import "time"

// TimelineFilters narrows the audit timeline. Zero values are ignored.
type TimelineFilters struct {
	From       time.Time
	To         time.Time
	UserID     int64
	EntityType string
	EntityID   int64
	Action     string
	Page       int
	PageSize   int
}

// Entry is one audit log row with the acting user's name.
type Entry struct {
	ID         int64     `json:"log_id"`
	At         time.Time `json:"created_at"`
	UserID     *int64    `json:"user_id,omitempty"`
	Username   string    `json:"username"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   *int64    `json:"entity_id,omitempty"`
	Details    string    `json:"details"`
}

// PagingInfo holds simple next/previous paging metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps a timeline page.
type Result struct {
	Rows   []Entry    `json:"rows"`
	Paging PagingInfo `json:"paging"`
}

// ImportRecord summarises bulk imports of one kind.
type ImportRecord struct {
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	Count      int       `json:"count"`
	LastAt     time.Time `json:"last_at"`
}
