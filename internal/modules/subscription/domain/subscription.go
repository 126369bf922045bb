package domain

import (
	"time"

	feedDomain "github.com/ellis-vester/backloggd-discord/internal/modules/feed/domain"
)

// FeedState is the persisted record for one distinct feed URL: its
// subscribers and the dedup watermark. A (feed URL, channel) pair is
// unique; subscribing a channel twice is a no-op. The record exists
// while at least one channel references the URL, plus a short grace
// period.
type FeedState struct {
	FeedURL        string               `json:"feed_url"`
	ChannelIDs     []string             `json:"channel_ids"`
	KnownIDs       *feedDomain.KnownIDs `json:"known_ids"`
	LastPolledAt   time.Time            `json:"last_polled_at"`
	FailureCount   int                  `json:"failure_count"`
	BrokenNotified bool                 `json:"broken_notified"`
}

// NewFeedState returns an empty state for feedURL.
func NewFeedState(feedURL string) *FeedState {
	return &FeedState{
		FeedURL:  feedURL,
		KnownIDs: feedDomain.NewKnownIDs(),
	}
}

// HasChannel reports whether channelID subscribes to this feed.
func (s *FeedState) HasChannel(channelID string) bool {
	for _, id := range s.ChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}

// AddChannel subscribes channelID. Returns false if it was already
// subscribed.
func (s *FeedState) AddChannel(channelID string) bool {
	if s.HasChannel(channelID) {
		return false
	}
	s.ChannelIDs = append(s.ChannelIDs, channelID)
	return true
}

// RemoveChannel unsubscribes channelID. Returns false if it was not
// subscribed.
func (s *FeedState) RemoveChannel(channelID string) bool {
	for i, id := range s.ChannelIDs {
		if id == channelID {
			s.ChannelIDs = append(s.ChannelIDs[:i], s.ChannelIDs[i+1:]...)
			return true
		}
	}
	return false
}
