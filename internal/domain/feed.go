package domain

import "time"

// FeedSource is a configured upstream feed together with its fetch bookkeeping.
type FeedSource struct {
	ID                  string
	Name                string
	URL                 string
	ETag                string
	LastModified        string
	ConsecutiveFailures int
	Active              bool
	LastError           string
	LastFetchedAt       time.Time
}

// FeedItem is a single entry fetched from a feed. It is not modified after fetch.
type FeedItem struct {
	GUID        string
	Title       string
	Link        string
	Description string
	Content     string
	PublishedAt time.Time
	SourceID    string
}

// Text joins every searchable field of the item.
func (i FeedItem) Text() string {
	return i.Title + " " + i.Description + " " + i.Content
}

// Body returns the searchable text without the title.
func (i FeedItem) Body() string {
	return i.Description + " " + i.Content
}
