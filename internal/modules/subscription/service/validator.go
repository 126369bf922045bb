package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ellis-vester/backloggd-discord/internal/shared/errors"
)

var (
	feedURLPattern  = regexp.MustCompile(`^https://(www\.)?backloggd\.com/u/([A-Za-z0-9_-]{1,16})/reviews/rss/?$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,16}$`)
)

// CanonicalFeedURL validates a Backloggd review feed URL and returns
// its canonical form, so that cosmetic variants (www prefix, missing
// trailing slash) never create duplicate feed entries.
func CanonicalFeedURL(feedURL string) (string, error) {
	matches := feedURLPattern.FindStringSubmatch(strings.TrimSpace(feedURL))
	if matches == nil {
		return "", errors.ErrInvalidFeedURL
	}
	return feedURLForUser(matches[2]), nil
}

// FeedURLForUsername validates a Backloggd username and returns the
// canonical review feed URL for it.
func FeedURLForUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return "", errors.ErrInvalidUsername
	}
	return feedURLForUser(username), nil
}

func feedURLForUser(username string) string {
	return fmt.Sprintf("https://backloggd.com/u/%s/reviews/rss/", username)
}
