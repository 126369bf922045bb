package service

import (
	goerrors "errors"
	"testing"

	"github.com/ellis-vester/backloggd-discord/internal/shared/errors"
)

func TestCanonicalFeedURLAcceptsValidVariants(t *testing.T) {
	want := "https://backloggd.com/u/username-_1/reviews/rss/"

	cases := []string{
		"https://backloggd.com/u/username-_1/reviews/rss/",
		"https://www.backloggd.com/u/username-_1/reviews/rss/",
		"https://backloggd.com/u/username-_1/reviews/rss",
		"  https://backloggd.com/u/username-_1/reviews/rss/  ",
	}

	for _, input := range cases {
		got, err := CanonicalFeedURL(input)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("%q: expected %q, got %q", input, want, got)
		}
	}
}

func TestCanonicalFeedURLRejectsInvalid(t *testing.T) {
	cases := []string{
		"",
		"https://example.com/u/username/reviews/rss/",
		"http://backloggd.com/u/username/reviews/rss/",
		"https://backloggd.com/u/username-too-loooong/reviews/rss/",
		"https://backloggd.com/u/username!/reviews/rss/",
		"https://backloggd.com/u/username/",
	}

	for _, input := range cases {
		if _, err := CanonicalFeedURL(input); !goerrors.Is(err, errors.ErrInvalidFeedURL) {
			t.Errorf("%q: expected ErrInvalidFeedURL, got %v", input, err)
		}
	}
}

func TestFeedURLForUsername(t *testing.T) {
	got, err := FeedURLForUsername("bapanadavibes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://backloggd.com/u/bapanadavibes/reviews/rss/" {
		t.Fatalf("unexpected url: %s", got)
	}
}

func TestFeedURLForUsernameRejectsInvalid(t *testing.T) {
	for _, input := range []string{"", "username-too-loooong", "user name", "user!"} {
		if _, err := FeedURLForUsername(input); !goerrors.Is(err, errors.ErrInvalidUsername) {
			t.Errorf("%q: expected ErrInvalidUsername, got %v", input, err)
		}
	}
}
