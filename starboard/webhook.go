package starboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

const webhookName = "Starboard"

// WebhookPublisher posts crossposts through a bot-owned webhook in the
// target channel, so the entry appears under the original author's name
// and avatar. Executions are rate limited to stay under Discord's webhook
// limits.
type WebhookPublisher struct {
	session *discordgo.Session
	appID   string
	limiter *rate.Limiter

	mu    sync.Mutex
	hooks map[string]*discordgo.Webhook // keyed by target channel ID
}

// NewWebhookPublisher creates a publisher for the given application ID.
func NewWebhookPublisher(session *discordgo.Session, appID string) *WebhookPublisher {
	return &WebhookPublisher{
		session: session,
		appID:   appID,
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
		hooks:   make(map[string]*discordgo.Webhook),
	}
}

// Publish executes the channel's webhook with the message content and
// returns the ID of the new starboard post.
func (p *WebhookPublisher) Publish(msg *Message, targetChannelID string) (string, error) {
	if err := p.limiter.Wait(context.Background()); err != nil {
		return "", fmt.Errorf("rate limiter interrupted: %w", err)
	}

	hook, err := p.webhookFor(targetChannelID)
	if err != nil {
		return "", err
	}

	params := &discordgo.WebhookParams{
		Content:   buildContent(msg),
		Username:  msg.AuthorName,
		AvatarURL: msg.AuthorAvatarURL,
		// Re-posted mentions must never ping anyone a second time.
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}

	posted, err := p.session.WebhookExecute(hook.ID, hook.Token, true, params)
	if err != nil {
		return "", fmt.Errorf("failed to execute starboard webhook in channel %s: %w", targetChannelID, err)
	}
	return posted.ID, nil
}

// webhookFor returns the bot's webhook in the target channel, creating
// one on first use and caching it afterwards.
func (p *WebhookPublisher) webhookFor(channelID string) (*discordgo.Webhook, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if hook, ok := p.hooks[channelID]; ok {
		return hook, nil
	}

	hooks, err := p.session.ChannelWebhooks(channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks for channel %s: %w", channelID, err)
	}
	for _, hook := range hooks {
		if hook.ApplicationID == p.appID && hook.Token != "" {
			p.hooks[channelID] = hook
			return hook, nil
		}
	}

	hook, err := p.session.WebhookCreate(channelID, webhookName, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook in channel %s: %w", channelID, err)
	}
	p.hooks[channelID] = hook
	return hook, nil
}

// buildContent assembles the crosspost body: original text, attachment
// URLs, and a jump link back to the source message.
func buildContent(msg *Message) string {
	var b strings.Builder
	b.WriteString(msg.Content)
	for _, url := range msg.AttachmentURLs {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(url)
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "https://discord.com/channels/%s/%s/%s", msg.GuildID, msg.ChannelID, msg.ID)
	return b.String()
}
