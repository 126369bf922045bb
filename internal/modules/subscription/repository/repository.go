package repository

import (
	"github.com/ellis-vester/backloggd-discord/internal/modules/subscription/domain"
)

// Repository defines the interface for feed state persistence
// This abstraction allows easy replacement of storage implementations
// (e.g., FileStorage -> PostgreSQL -> MongoDB)
type Repository interface {
	GetFeedState(feedURL string) (*domain.FeedState, error)
	GetAllFeedStates() ([]*domain.FeedState, error)
	// MutateFeedState applies fn to the state for feedURL under the
	// store lock, creating an empty state if none exists, and persists
	// the result. The returned state is a snapshot safe to use after
	// the call.
	MutateFeedState(feedURL string, fn func(*domain.FeedState)) (*domain.FeedState, error)
	DeleteFeedState(feedURL string) error
}
