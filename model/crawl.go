package model

import "time"

type CrawlMode string

const (
	ModeFull        CrawlMode = "full"
	ModeIncremental CrawlMode = "incremental"
)

// CrawlRequest travels over the bus from the scheduler (or a manual trigger)
// to the worker.
type CrawlRequest struct {
	Source    string `json:"source"`
	Full      bool   `json:"full"`
	RequestID string `json:"requestId"`
}

// CrawlResult is the summary of one invocation. It doubles as the HTTP
// response body and the bus result message.
type CrawlResult struct {
	Success   bool      `json:"success"`
	Total     int       `json:"total"`
	Source    string    `json:"source"`
	Mode      CrawlMode `json:"mode"`
	Pages     int       `json:"pages"`
	Message   string    `json:"message"`
	NextPage  *int      `json:"nextPage,omitempty"`
	Inserted  int       `json:"inserted"`
	Updated   int       `json:"updated"`
	Error     string    `json:"error,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
}
