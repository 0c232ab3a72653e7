package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"CCNLMonitor/internal/domain"
)

// GenerateID creates a short, stable ID by hashing the provided string input.
func GenerateID(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

func toItems(parsed *gofeed.Feed, sourceID string, fetchedAt time.Time) []domain.FeedItem {
	if parsed == nil {
		return nil
	}

	items := make([]domain.FeedItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}
		items = append(items, toItem(entry, sourceID, fetchedAt))
	}
	return items
}

func toItem(entry *gofeed.Item, sourceID string, fetchedAt time.Time) domain.FeedItem {
	guid := strings.TrimSpace(entry.GUID)
	if guid == "" && entry.Link != "" {
		guid = GenerateID(entry.Link)
	}
	if guid == "" {
		guid = GenerateID(sourceID + "|" + entry.Title)
	}

	publishedAt := fetchedAt
	if entry.PublishedParsed != nil {
		publishedAt = *entry.PublishedParsed
	} else if entry.UpdatedParsed != nil {
		publishedAt = *entry.UpdatedParsed
	}

	return domain.FeedItem{
		GUID:        guid,
		Title:       strings.TrimSpace(entry.Title),
		Link:        strings.TrimSpace(entry.Link),
		Description: strings.TrimSpace(entry.Description),
		Content:     strings.TrimSpace(entry.Content),
		PublishedAt: publishedAt,
		SourceID:    sourceID,
	}
}
