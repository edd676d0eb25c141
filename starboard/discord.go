package starboard

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// DiscordClient adapts a discordgo session to the ChatClient interface.
// Reads go through the session state cache first and fall back to the REST
// API.
type DiscordClient struct {
	session *discordgo.Session
}

// NewDiscordClient wraps a connected session.
func NewDiscordClient(session *discordgo.Session) *DiscordClient {
	return &DiscordClient{session: session}
}

// FetchMessage retrieves the full content of a message.
func (c *DiscordClient) FetchMessage(channelID, messageID string) (*Message, error) {
	m, err := c.session.State.Message(channelID, messageID)
	if err != nil {
		m, err = c.session.ChannelMessage(channelID, messageID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch message %s: %w", messageID, err)
		}
	}

	msg := &Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorName = m.Author.Username
		msg.AuthorAvatarURL = m.Author.AvatarURL("")
	}
	for _, attachment := range m.Attachments {
		msg.AttachmentURLs = append(msg.AttachmentURLs, attachment.URL)
	}
	return msg, nil
}

// FetchChannel resolves a channel and reports whether it can hold a
// crosspost and whether the guild's default role can read it.
func (c *DiscordClient) FetchChannel(channelID string) (*Channel, error) {
	ch, err := c.session.State.Channel(channelID)
	if err != nil {
		ch, err = c.session.Channel(channelID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch channel %s: %w", channelID, err)
		}
	}

	text := ch.Type == discordgo.ChannelTypeGuildText || ch.Type == discordgo.ChannelTypeGuildNews
	return &Channel{
		ID:     ch.ID,
		Text:   text,
		Public: c.channelPublic(ch),
	}, nil
}

// channelPublic reports whether the @everyone role can view the channel:
// the role's base permissions with the channel's @everyone overwrite
// applied must include View Channel.
func (c *DiscordClient) channelPublic(ch *discordgo.Channel) bool {
	guild, err := c.session.State.Guild(ch.GuildID)
	if err != nil {
		guild, err = c.session.Guild(ch.GuildID)
		if err != nil {
			return false
		}
	}

	var everyone *discordgo.Role
	for _, role := range guild.Roles {
		// The @everyone role shares its ID with the guild.
		if role.ID == ch.GuildID {
			everyone = role
			break
		}
	}
	if everyone == nil {
		return false
	}

	perms := everyone.Permissions
	for _, overwrite := range ch.PermissionOverwrites {
		if overwrite.ID == everyone.ID {
			perms &^= overwrite.Deny
			perms |= overwrite.Allow
			break
		}
	}
	return perms&discordgo.PermissionViewChannel != 0
}

// WebhookAppID resolves the application that owns a webhook, used to
// detect reactions on the bot's own crossposts.
func (c *DiscordClient) WebhookAppID(webhookID string) (string, error) {
	webhook, err := c.session.Webhook(webhookID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch webhook %s: %w", webhookID, err)
	}
	return webhook.ApplicationID, nil
}

// JoinedAt returns the time this bot joined the guild. A zero time means
// the join time could not be determined.
func (c *DiscordClient) JoinedAt(guildID string) (time.Time, error) {
	guild, err := c.session.State.Guild(guildID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to resolve guild %s: %w", guildID, err)
	}
	return guild.JoinedAt, nil
}
