package notify

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	feedDomain "github.com/ellis-vester/backloggd-discord/internal/modules/feed/domain"
)

// backloggdPink is the accent color used on backloggd.com.
const backloggdPink = 0xFC6399

// Stars renders a 1-10 rating as filled stars, with a half star for
// odd ratings. Zero or negative ratings render as unrated.
func Stars(rating int) string {
	if rating <= 0 {
		return "unrated"
	}
	if rating > 10 {
		rating = 10
	}

	var b strings.Builder
	for i := 0; i < rating/2; i++ {
		b.WriteString("★")
	}
	if rating%2 == 1 {
		b.WriteString("½")
	}
	return b.String()
}

// BuildReviewEmbed turns one review item into the notification embed.
func BuildReviewEmbed(item feedDomain.FeedItem) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		URL:         item.Link,
		Color:       backloggdPink,
		Title:       fmt.Sprintf("%s - %s", item.Title, Stars(item.Rating)),
		Description: item.Description,
		Timestamp:   item.Published.Format("2006-01-02T15:04:05Z07:00"),
	}

	if item.ImageURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: item.ImageURL}
	}

	if item.Reviewer != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{
			Name: item.Reviewer,
			URL:  fmt.Sprintf("https://backloggd.com/u/%s/", item.Reviewer),
		}
	}

	return embed
}

// BuildSubscriptionListEmbed renders the channel's subscriptions for
// the list command.
func BuildSubscriptionListEmbed(feedURLs []string) *discordgo.MessageEmbed {
	var b strings.Builder
	if len(feedURLs) == 0 {
		b.WriteString("This channel has no feed subscriptions.")
	}
	for _, url := range feedURLs {
		fmt.Fprintf(&b, " - %s\n", url)
	}

	return &discordgo.MessageEmbed{
		Color:       backloggdPink,
		Title:       "Subscriptions",
		Description: b.String(),
	}
}
