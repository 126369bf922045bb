package notify

import (
	"context"
	goerrors "errors"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	feedDomain "github.com/ellis-vester/backloggd-discord/internal/modules/feed/domain"
)

// Sender delivers one message to one channel. Implementations classify
// failures as *domain.DispatchError where possible.
type Sender interface {
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) error
	SendText(channelID string, text string) error
}

// Delivery is the outcome of one (channel, item) send attempt.
type Delivery struct {
	ChannelID string
	ItemKey   string
	Err       error
}

// Delivered reports whether the send succeeded.
func (d Delivery) Delivered() bool {
	return d.Err == nil
}

// Dispatcher fans new feed items out to subscribed channels. Each
// (channel, item) pair is an independent unit of work; a failed send
// never blocks the rest of the cycle, and items are not re-queued once
// the cycle ends.
type Dispatcher struct {
	sender        Sender
	logger        *slog.Logger
	onChannelGone func(channelID string)
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		logger: slog.Default(),
	}
}

// SetLogger sets the logger.
func (d *Dispatcher) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// SetChannelGoneHandler registers the callback invoked when a send
// fails because the target channel no longer exists or is
// inaccessible.
func (d *Dispatcher) SetChannelGoneHandler(fn func(channelID string)) {
	d.onChannelGone = fn
}

// DispatchReviews sends one notification per (channel, item) pair.
// Items must arrive oldest-first; that order is preserved per channel.
func (d *Dispatcher) DispatchReviews(ctx context.Context, channelIDs []string, items []feedDomain.FeedItem) []Delivery {
	deliveries := make([]Delivery, 0, len(channelIDs)*len(items))
	goneChannels := make(map[string]bool)

	for _, item := range items {
		embed := BuildReviewEmbed(item)

		for _, channelID := range channelIDs {
			if ctx.Err() != nil {
				return deliveries
			}
			if goneChannels[channelID] {
				continue
			}

			err := d.sender.SendEmbed(channelID, embed)
			deliveries = append(deliveries, Delivery{
				ChannelID: channelID,
				ItemKey:   item.Key(),
				Err:       err,
			})

			if err == nil {
				continue
			}

			kind := classify(err)
			d.logger.Warn("Failed to deliver notification",
				"channel_id", channelID, "item", item.Link, "kind", kind, "error", err)

			if kind == feedDomain.DispatchErrorChannelGone {
				goneChannels[channelID] = true
			}
		}
	}

	for channelID := range goneChannels {
		if d.onChannelGone != nil {
			d.onChannelGone(channelID)
		}
	}

	return deliveries
}

// NotifyFeedBroken tells every subscribed channel, once, that the feed
// has been failing persistently.
func (d *Dispatcher) NotifyFeedBroken(ctx context.Context, channelIDs []string, feedURL string) {
	text := "⚠️ The feed " + feedURL + " appears to be broken. I will keep checking it, but new reviews may be delayed."

	for _, channelID := range channelIDs {
		if ctx.Err() != nil {
			return
		}
		if err := d.sender.SendText(channelID, text); err != nil {
			d.logger.Warn("Failed to deliver broken-feed notice",
				"channel_id", channelID, "feed_url", feedURL, "error", err)
		}
	}
}

func classify(err error) feedDomain.DispatchErrorKind {
	var dispatchErr *feedDomain.DispatchError
	if goerrors.As(err, &dispatchErr) {
		return dispatchErr.Kind
	}
	return feedDomain.DispatchErrorUnknown
}
