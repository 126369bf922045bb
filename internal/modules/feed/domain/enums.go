//go:generate go run github.com/abice/go-enum --file=$GOFILE --names --nocase

package domain

// FeedStatus represents the scheduling state of one feed URL
// ENUM(idle,polling,backoff,retired)
type FeedStatus string
