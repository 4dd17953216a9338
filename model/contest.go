package model

import "time"

// ContestRecord is one listing entry, keyed by (Source, ID).
type ContestRecord struct {
	Source      string     `json:"source" bson:"source"`
	ID          string     `json:"id" bson:"id"`
	Title       string     `json:"title" bson:"title"`
	DDay        string     `json:"d_day" bson:"d_day"`
	Host        string     `json:"host" bson:"host"`
	URL         string     `json:"url" bson:"url"`
	Category    string     `json:"category" bson:"category"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	FirstSeenAt *time.Time `json:"first_seen_at" bson:"first_seen_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
}

// RawRecord is what a source extractor pulls out of one listing entry
// before normalization.
type RawRecord struct {
	ID       string
	Title    string
	DDay     string
	Host     string
	Href     string
	Category string
}

// Provenance holds the timestamps carried forward for an already stored record.
type Provenance struct {
	CreatedAt   *time.Time `bson:"created_at"`
	FirstSeenAt *time.Time `bson:"first_seen_at"`
}

// CrawlCursor is the persisted next page for a rotating source.
type CrawlCursor struct {
	Source    string    `json:"source" bson:"source"`
	NextPage  int       `json:"next_page" bson:"next_page"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
