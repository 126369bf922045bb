// Package discord wires the bot to the chat platform: slash command
// handling in, notification sends out. All subscription logic lives
// behind the subscription service boundary.
package discord

import (
	"context"
	goerrors "errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/ellis-vester/backloggd-discord/internal/modules/notify"
	subService "github.com/ellis-vester/backloggd-discord/internal/modules/subscription/service"
	"github.com/ellis-vester/backloggd-discord/internal/shared/config"
	"github.com/ellis-vester/backloggd-discord/internal/shared/errors"
	"github.com/samber/oops"
)

const commandTimeout = 30 * time.Second

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "backloggd",
		Description: "Base command for Backloggd Bot.",
		Type:        discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "sub",
				Description: "Subscribe this channel to a Backloggd review feed.",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "feed_url",
						Description: "Backloggd RSS feed URL you want to subscribe the channel to",
						Type:        discordgo.ApplicationCommandOptionString,
					},
					{
						Name:        "username",
						Description: "Username of the Backloggd user you want to subscribe the channel to",
						Type:        discordgo.ApplicationCommandOptionString,
					},
				},
			},
			{
				Name:        "unsub",
				Description: "Unsubscribe this channel from a Backloggd review feed.",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "feed_url",
						Description: "Backloggd RSS feed URL you want to unsubscribe the channel from",
						Type:        discordgo.ApplicationCommandOptionString,
					},
					{
						Name:        "username",
						Description: "Username of the Backloggd user you want to unsubscribe the channel from",
						Type:        discordgo.ApplicationCommandOptionString,
					},
				},
			},
			{
				Name:        "list",
				Description: "List this channel's review feed subscriptions.",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
			{
				Name:        "help",
				Description: "Show usage help.",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
		},
	},
}

// Handler owns the Discord session and the slash command surface.
type Handler struct {
	cfg                *config.Config
	subscriptions      *subService.Service
	session            *discordgo.Session
	registeredCommands []*discordgo.ApplicationCommand
}

// New creates the handler and its session without connecting.
func New(cfg *config.Config, subscriptions *subService.Service) (*Handler, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		return nil, oops.With("context", "failed to create discord session").Wrap(err)
	}

	h := &Handler{
		cfg:           cfg,
		subscriptions: subscriptions,
		session:       session,
	}

	session.AddHandler(h.handleInteraction)
	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Logged in to Discord",
			"username", s.State.User.Username, "discriminator", s.State.User.Discriminator)
	})

	return h, nil
}

// Open connects the session and registers the slash commands, scoped
// to the configured guild when one is set.
func (h *Handler) Open() error {
	if err := h.session.Open(); err != nil {
		return oops.With("context", "failed to open discord session").Wrap(err)
	}

	for _, cmd := range commands {
		registered, err := h.session.ApplicationCommandCreate(h.session.State.User.ID, h.cfg.GuildID, cmd)
		if err != nil {
			return oops.With("command", cmd.Name, "context", "failed to register command").Wrap(err)
		}
		h.registeredCommands = append(h.registeredCommands, registered)
	}

	slog.Info("Registered commands", "count", len(h.registeredCommands), "guild_id", h.cfg.GuildID)
	return nil
}

// Close disconnects the session.
func (h *Handler) Close() error {
	return h.session.Close()
}

func (h *Handler) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != "backloggd" || len(data.Options) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sub := data.Options[0]
	channelID := i.ChannelID

	switch sub.Name {
	case "sub":
		feedURL, username := stringOptions(sub)
		err := h.subscriptions.Subscribe(ctx, channelID, feedURL, username)
		h.respondText(s, i, subscribeReply(err))
	case "unsub":
		feedURL, username := stringOptions(sub)
		err := h.subscriptions.Unsubscribe(ctx, channelID, feedURL, username)
		h.respondText(s, i, unsubscribeReply(err))
	case "list":
		urls, err := h.subscriptions.List(ctx, channelID)
		if err != nil {
			slog.Error("Error listing subscriptions", "channel_id", channelID, "error", err)
			h.respondText(s, i, "The bot experienced an unexpected error. Please try again later")
			return
		}
		h.respondEmbed(s, i, notify.BuildSubscriptionListEmbed(urls))
	case "help":
		h.respondText(s, i, helpText)
	}
}

func subscribeReply(err error) string {
	switch {
	case err == nil:
		return "Successfully subscribed to feed"
	case goerrors.Is(err, errors.ErrInvalidFeedURL):
		return "The feed_url you provided is invalid"
	case goerrors.Is(err, errors.ErrInvalidUsername):
		return "The username you provided is invalid"
	case goerrors.Is(err, errors.ErrFeedDoesNotExist):
		return "Feed cannot be found for that user"
	default:
		slog.Error("Error handling sub command", "error", err)
		return "The bot experienced an unexpected error. Please try again later"
	}
}

func unsubscribeReply(err error) string {
	switch {
	case err == nil:
		return "Successfully unsubscribed from feed"
	case goerrors.Is(err, errors.ErrInvalidFeedURL):
		return "The feed_url you provided is invalid"
	case goerrors.Is(err, errors.ErrInvalidUsername):
		return "The username you provided is invalid"
	case goerrors.Is(err, errors.ErrNotSubscribed):
		return "This channel is not subscribed to that feed"
	default:
		slog.Error("Error handling unsub command", "error", err)
		return "The bot experienced an unexpected error. Please try again later"
	}
}

const helpText = `Backloggd review feed bot.

/backloggd sub feed_url:<url> - subscribe this channel to a review feed
/backloggd sub username:<name> - subscribe by Backloggd username
/backloggd unsub feed_url:<url> | username:<name> - unsubscribe
/backloggd list - list this channel's subscriptions

New reviews are checked every few minutes and posted here as they appear.`

func stringOptions(sub *discordgo.ApplicationCommandInteractionDataOption) (feedURL string, username string) {
	for _, opt := range sub.Options {
		switch opt.Name {
		case "feed_url":
			feedURL = opt.StringValue()
		case "username":
			username = opt.StringValue()
		}
	}
	return feedURL, username
}

func (h *Handler) respondText(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:   discordgo.MessageFlagsEphemeral,
			Content: content,
		},
	})
	if err != nil {
		slog.Error("Error sending interaction response", "error", err)
	}
}

func (h *Handler) respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
	if err != nil {
		slog.Error("Error sending interaction response", "error", err)
	}
}
