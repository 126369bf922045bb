package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// FeedDocument is one parsed Backloggd review feed, valid for a single
// poll cycle. It is never persisted.
type FeedDocument struct {
	Title       string
	Description string
	Link        string
	Items       []FeedItem
}

// FeedItem is one parsed review entry.
type FeedItem struct {
	Title       string
	Link        string
	Published   time.Time
	Description string
	GUID        string
	Rating      int
	Reviewer    string
	ImageURL    string
}

// Key returns the dedup key for the item: the guid, or a key derived
// from link and title when the feed omits the guid.
func (i FeedItem) Key() string {
	if i.GUID != "" {
		return i.GUID
	}
	sum := sha256.Sum256([]byte(i.Link + "\n" + i.Title))
	return "derived-" + hex.EncodeToString(sum[:])
}
