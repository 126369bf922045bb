package service

import (
	"context"
	goerrors "errors"
	"log/slog"
	"sort"

	feedDomain "github.com/ellis-vester/backloggd-discord/internal/modules/feed/domain"
	"github.com/ellis-vester/backloggd-discord/internal/modules/subscription/domain"
	"github.com/ellis-vester/backloggd-discord/internal/modules/subscription/repository"
	"github.com/ellis-vester/backloggd-discord/internal/shared/errors"
	"github.com/samber/oops"
)

// FeedProber checks that a candidate URL actually serves a parseable
// review feed before a subscription is accepted.
type FeedProber interface {
	Fetch(ctx context.Context, url string) (*feedDomain.FeedDocument, error)
}

// FeedScheduler is the scheduling surface the service drives when
// subscriptions change.
type FeedScheduler interface {
	EnsureFeed(feedURL string, immediate bool)
	RetireFeed(feedURL string)
}

// Service handles subscription commands from the chat transport.
type Service struct {
	repo      repository.Repository
	prober    FeedProber
	scheduler FeedScheduler
}

// New creates a subscription service.
func New(repo repository.Repository, prober FeedProber) *Service {
	return &Service{
		repo:   repo,
		prober: prober,
	}
}

// SetScheduler sets the poll scheduler once it has been constructed.
func (s *Service) SetScheduler(scheduler FeedScheduler) {
	s.scheduler = scheduler
}

// resolveRef turns a user-supplied feed URL or username into the
// canonical feed URL.
func resolveRef(feedURL string, username string) (string, error) {
	switch {
	case feedURL != "":
		return CanonicalFeedURL(feedURL)
	case username != "":
		return FeedURLForUsername(username)
	default:
		return "", errors.ErrInvalidFeedURL
	}
}

// Subscribe adds a (feed URL, channel) subscription. Subscribing an
// already-subscribed channel is a no-op. The first subscription to a
// previously unknown URL triggers an immediate first poll so the
// dedup watermark is seeded promptly.
func (s *Service) Subscribe(ctx context.Context, channelID string, feedURL string, username string) error {
	url, err := resolveRef(feedURL, username)
	if err != nil {
		return err
	}

	if err := s.probeFeed(ctx, url); err != nil {
		return err
	}

	_, known := s.feedKnown(url)

	added := false
	if _, err := s.repo.MutateFeedState(url, func(state *domain.FeedState) {
		added = state.AddChannel(channelID)
	}); err != nil {
		slog.Error("Failed to persist subscription", "feed_url", url, "channel_id", channelID, "error", err)
	}

	if !added {
		slog.Info("Channel already subscribed", "feed_url", url, "channel_id", channelID)
		return nil
	}

	if s.scheduler != nil {
		s.scheduler.EnsureFeed(url, !known)
	}

	slog.Info("Channel subscribed", "feed_url", url, "channel_id", channelID)
	return nil
}

// Unsubscribe removes a (feed URL, channel) subscription. The last
// subscriber retires the feed from the schedule.
func (s *Service) Unsubscribe(ctx context.Context, channelID string, feedURL string, username string) error {
	url, err := resolveRef(feedURL, username)
	if err != nil {
		return err
	}

	removed := false
	empty := false
	state, err := s.repo.MutateFeedState(url, func(state *domain.FeedState) {
		removed = state.RemoveChannel(channelID)
		empty = len(state.ChannelIDs) == 0
	})
	if err != nil {
		slog.Error("Failed to persist unsubscribe", "feed_url", url, "channel_id", channelID, "error", err)
	}

	if !removed {
		// The mutate above may have created an empty record; drop it.
		if state != nil && len(state.ChannelIDs) == 0 && state.KnownIDs.Len() == 0 {
			_ = s.repo.DeleteFeedState(url)
		}
		return errors.ErrNotSubscribed
	}

	if empty && s.scheduler != nil {
		s.scheduler.RetireFeed(url)
	}

	slog.Info("Channel unsubscribed", "feed_url", url, "channel_id", channelID)
	return nil
}

// List returns the feed URLs the channel subscribes to, sorted.
func (s *Service) List(ctx context.Context, channelID string) ([]string, error) {
	states, err := s.repo.GetAllFeedStates()
	if err != nil {
		return nil, oops.With("channel_id", channelID, "context", "failed to list subscriptions").Wrap(err)
	}

	var urls []string
	for _, state := range states {
		if state.HasChannel(channelID) {
			urls = append(urls, state.FeedURL)
		}
	}
	sort.Strings(urls)
	return urls, nil
}

// DropChannel removes channelID from every feed it subscribes to,
// retiring feeds left without subscribers. Called when dispatch
// reports the channel as gone.
func (s *Service) DropChannel(channelID string) {
	states, err := s.repo.GetAllFeedStates()
	if err != nil {
		slog.Error("Failed to load feed states while dropping channel", "channel_id", channelID, "error", err)
		return
	}

	for _, st := range states {
		if !st.HasChannel(channelID) {
			continue
		}

		empty := false
		if _, err := s.repo.MutateFeedState(st.FeedURL, func(state *domain.FeedState) {
			state.RemoveChannel(channelID)
			empty = len(state.ChannelIDs) == 0
		}); err != nil {
			slog.Error("Failed to persist channel removal", "feed_url", st.FeedURL, "channel_id", channelID, "error", err)
		}

		slog.Info("Dropped gone channel from feed", "feed_url", st.FeedURL, "channel_id", channelID)

		if empty && s.scheduler != nil {
			s.scheduler.RetireFeed(st.FeedURL)
		}
	}
}

// probeFeed verifies the feed exists and parses before a subscription
// is recorded.
func (s *Service) probeFeed(ctx context.Context, url string) error {
	if _, err := s.prober.Fetch(ctx, url); err != nil {
		var fetchErr *feedDomain.FetchError
		if goerrors.As(err, &fetchErr) {
			switch fetchErr.Kind {
			case feedDomain.FetchErrorHTTPStatus, feedDomain.FetchErrorMalformed:
				return errors.ErrFeedDoesNotExist
			}
		}
		return oops.With("feed_url", url, "context", "failed to probe feed").Wrap(err)
	}
	return nil
}

// feedKnown reports whether state already exists for url and whether
// its watermark has been seeded.
func (s *Service) feedKnown(url string) (*domain.FeedState, bool) {
	state, err := s.repo.GetFeedState(url)
	if err != nil {
		return nil, false
	}
	return state, true
}
