package discord

import (
	goerrors "errors"

	"github.com/bwmarrin/discordgo"
	feedDomain "github.com/ellis-vester/backloggd-discord/internal/modules/feed/domain"
)

// SendEmbed posts one notification embed to channelID.
func (h *Handler) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	_, err := h.session.ChannelMessageSendEmbed(channelID, embed)
	return classifySendError(channelID, err)
}

// SendText posts a plain message to channelID.
func (h *Handler) SendText(channelID string, text string) error {
	_, err := h.session.ChannelMessageSend(channelID, text)
	return classifySendError(channelID, err)
}

// classifySendError maps discordgo REST failures onto the dispatch
// error taxonomy so the dispatcher can react without knowing the
// platform.
func classifySendError(channelID string, err error) error {
	if err == nil {
		return nil
	}

	kind := feedDomain.DispatchErrorUnknown

	var rateErr *discordgo.RateLimitError
	if goerrors.As(err, &rateErr) {
		kind = feedDomain.DispatchErrorRateLimited
	}

	var restErr *discordgo.RESTError
	if goerrors.As(err, &restErr) && restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel:
			kind = feedDomain.DispatchErrorChannelGone
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			kind = feedDomain.DispatchErrorPermissionDenied
		}
	}

	return &feedDomain.DispatchError{Kind: kind, ChannelID: channelID, Err: err}
}
