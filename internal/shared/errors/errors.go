package errors

import "errors"

var (
	ErrMissingBotToken   = errors.New("DISCORD_BOT_TOKEN environment variable is required")
	ErrInvalidFeedURL    = errors.New("invalid Backloggd RSS feed URL")
	ErrInvalidUsername   = errors.New("invalid Backloggd username")
	ErrFeedDoesNotExist  = errors.New("feed cannot be found for that user")
	ErrFeedStateNotFound = errors.New("feed state not found")
	ErrNotSubscribed     = errors.New("channel is not subscribed to this feed")
)
