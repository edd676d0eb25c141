package handlers

import (
	"fmt"

	"starboard-bot/bot"
	"starboard-bot/models"
	"starboard-bot/utils"

	"github.com/bwmarrin/discordgo"
)

// ReactionAddHandler handles Discord reaction add events and feeds them
// into the starboard pipeline.
func ReactionAddHandler(b *bot.Bot) func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	return func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		// Skip DM reactions
		if r.GuildID == "" {
			return
		}

		ev, err := buildReactionEvent(s, r.MessageReaction, models.ReactionAdd)
		if err != nil {
			utils.Warn("starboard", "reaction add", err.Error())
			return
		}

		b.Service.HandleAdd(ev)
	}
}

// ReactionRemoveHandler handles Discord reaction remove events. Removals
// only adjust the reactor's star tally.
func ReactionRemoveHandler(b *bot.Bot) func(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	return func(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
		if r.GuildID == "" {
			return
		}

		ev, err := buildReactionEvent(s, r.MessageReaction, models.ReactionRemove)
		if err != nil {
			utils.Warn("starboard", "reaction remove", err.Error())
			return
		}

		b.Service.HandleRemove(ev)
	}
}

// buildReactionEvent normalizes a gateway reaction payload. The gateway
// event carries no author, webhook or count information, so the reacted-on
// message is resolved from the state cache or the API to fill those in.
func buildReactionEvent(s *discordgo.Session, r *discordgo.MessageReaction, kind models.ReactionKind) (models.ReactionEvent, error) {
	msg, err := s.State.Message(r.ChannelID, r.MessageID)
	if err != nil {
		msg, err = s.ChannelMessage(r.ChannelID, r.MessageID)
		if err != nil {
			return models.ReactionEvent{}, fmt.Errorf("failed to fetch message %s: %w", r.MessageID, err)
		}
	}

	count := 0
	for _, reaction := range msg.Reactions {
		if reaction.Emoji != nil && reaction.Emoji.Name == r.Emoji.Name {
			count = reaction.Count
			break
		}
	}

	authorID := ""
	if msg.Author != nil {
		authorID = msg.Author.ID
	}

	return models.ReactionEvent{
		Kind:      kind,
		Emoji:     r.Emoji.Name,
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		AuthorID:  authorID,
		ReactorID: r.UserID,
		Count:     count,
		WebhookID: msg.WebhookID,
	}, nil
}
