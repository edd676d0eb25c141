package starboard

import (
	"fmt"
	"log"
	"time"

	"starboard-bot/models"
)

// Message is the fully-fetched content of a starred message, everything
// the publisher needs to re-post it.
type Message struct {
	ID              string
	ChannelID       string
	GuildID         string
	AuthorID        string
	AuthorName      string
	AuthorAvatarURL string
	Content         string
	AttachmentURLs  []string
	Timestamp       time.Time
}

// Channel is the slice of a chat channel the pipeline cares about.
type Channel struct {
	ID     string
	Text   bool // text-capable, can receive a crosspost
	Public bool // readable by the guild's default role
}

// TallyStore maintains the per-user star counters.
type TallyStore interface {
	UpsertDelta(guildID, userID string, delta int) error
}

// SettingsStore exposes the read side of the starboard configuration.
type SettingsStore interface {
	GetGuildSetting(guildID string) (*models.GuildSetting, error)
	GetChannelSetting(channelID string) (*models.ChannelSetting, error)
	IsBlocked(messageID string) (bool, error)
}

// RecordStore tracks which messages have already been crossposted.
type RecordStore interface {
	GetRecord(messageID string) (*models.CrosspostRecord, error)
	CreateRecord(rec models.CrosspostRecord) error
	UpdateCount(messageID string, count int) error
}

// ChatClient is the slice of the chat platform the pipeline queries.
type ChatClient interface {
	FetchMessage(channelID, messageID string) (*Message, error)
	FetchChannel(channelID string) (*Channel, error)
	WebhookAppID(webhookID string) (string, error)
	JoinedAt(guildID string) (time.Time, error)
}

// Publisher posts a message to the starboard channel and returns the ID
// of the new post.
type Publisher interface {
	Publish(msg *Message, targetChannelID string) (string, error)
}

// Service runs the reaction-to-starboard pipeline. Every gateway reaction
// event flows through HandleAdd or HandleRemove; many events may be in
// flight concurrently, including several for the same message.
type Service struct {
	botID    string
	emoji    string
	tallies  TallyStore
	settings SettingsStore
	records  RecordStore
	chat     ChatClient
	pub      Publisher
	metrics  Metrics
	guard    *Guard
}

// NewService wires the pipeline together. botID is this bot's own
// application/user ID, used for loopback detection.
func NewService(botID, emoji string, tallies TallyStore, settings SettingsStore, records RecordStore, chat ChatClient, pub Publisher, metrics Metrics) *Service {
	if metrics == nil {
		metrics = NewCounters()
	}
	return &Service{
		botID:    botID,
		emoji:    emoji,
		tallies:  tallies,
		settings: settings,
		records:  records,
		chat:     chat,
		pub:      pub,
		metrics:  metrics,
		guard:    NewGuard(),
	}
}

// accept decides whether a reaction event counts at all. It drops events
// for other emoji, self-stars, and reactions on the bot's own crossposts
// (a star on a starboard entry must not feed back into the pipeline).
func (s *Service) accept(ev models.ReactionEvent) (bool, error) {
	if ev.Emoji != s.emoji {
		return false, nil
	}
	if ev.GuildID == "" {
		return false, nil
	}
	if ev.AuthorID == "" {
		return false, fmt.Errorf("reaction on message %s has no author information", ev.MessageID)
	}
	if ev.ReactorID == ev.AuthorID {
		return false, nil
	}
	if ev.WebhookID != "" {
		appID, err := s.chat.WebhookAppID(ev.WebhookID)
		if err != nil {
			return false, fmt.Errorf("failed to resolve webhook %s: %w", ev.WebhookID, err)
		}
		if appID == s.botID {
			return false, nil
		}
	}
	return true, nil
}

// HandleRemove processes a reaction-remove event: it only decrements the
// reactor's tally. The crosspost record's count is corrected by the next
// qualifying add event.
func (s *Service) HandleRemove(ev models.ReactionEvent) {
	ok, err := s.accept(ev)
	if err != nil {
		log.Printf("Warning: dropping remove event: %v", err)
		s.metrics.IncDrop()
		return
	}
	if !ok {
		s.metrics.IncDrop()
		return
	}

	s.metrics.IncRemove()
	log.Printf("Decrementing star tally for user %s in guild %s", ev.ReactorID, ev.GuildID)

	if err := s.tallies.UpsertDelta(ev.GuildID, ev.ReactorID, -1); err != nil {
		log.Printf("Error decrementing star tally for user %s: %v", ev.ReactorID, err)
	}
}

// HandleAdd processes a reaction-add event end to end: tally update,
// configuration and threshold gates, and the at-most-once crosspost.
func (s *Service) HandleAdd(ev models.ReactionEvent) {
	ok, err := s.accept(ev)
	if err != nil {
		log.Printf("Warning: dropping add event: %v", err)
		s.metrics.IncDrop()
		return
	}
	if !ok {
		s.metrics.IncDrop()
		return
	}

	s.metrics.IncAdd()
	log.Printf("Processing star reaction by %s on message %s", ev.ReactorID, ev.MessageID)

	// The tally is a pure signed delta so event ordering never matters.
	if err := s.tallies.UpsertDelta(ev.GuildID, ev.ReactorID, 1); err != nil {
		log.Printf("Error incrementing star tally for user %s: %v", ev.ReactorID, err)
		return
	}

	// Guild must be fully configured before anything is posted.
	setting, err := s.settings.GetGuildSetting(ev.GuildID)
	if err != nil {
		log.Printf("Error loading settings for guild %s: %v", ev.GuildID, err)
		return
	}
	if setting == nil || setting.LogChannelID == "" {
		return
	}

	blocked, err := s.settings.IsBlocked(ev.MessageID)
	if err != nil {
		log.Printf("Error checking block list for message %s: %v", ev.MessageID, err)
		return
	}
	if blocked {
		log.Printf("Message %s is blocked", ev.MessageID)
		return
	}

	// Ties publish: count >= threshold.
	if ev.Count < setting.Amount {
		return
	}

	// Already posted: refresh the stored count and stop. This path stays
	// lock-free, it is the common case for popular messages.
	rec, err := s.records.GetRecord(ev.MessageID)
	if err != nil {
		log.Printf("Error looking up crosspost record for %s: %v", ev.MessageID, err)
		return
	}
	if rec != nil {
		log.Printf("Message %s already crossposted, updating count to %d", ev.MessageID, ev.Count)
		if err := s.records.UpdateCount(ev.MessageID, ev.Count); err != nil {
			log.Printf("Error updating crosspost count for %s: %v", ev.MessageID, err)
		}
		return
	}

	// The record check above is racy: two events for a never-posted message
	// can both see "no record". The guard admits one attempt at a time; the
	// losers abandon their event and a future reaction retries if needed.
	if !s.guard.TryAcquire(ev.MessageID) {
		return
	}
	defer s.guard.Release(ev.MessageID)

	s.crosspost(ev, setting.LogChannelID)
}

// crosspost performs one publish attempt while the dedup guard is held.
// On any abort or failure no record is written, which keeps the message
// eligible for retry by the next reaction event.
func (s *Service) crosspost(ev models.ReactionEvent, targetChannelID string) {
	// The triggering event carries only a summary; fetch the full message.
	msg, err := s.chat.FetchMessage(ev.ChannelID, ev.MessageID)
	if err != nil {
		log.Printf("Error fetching message %s: %v", ev.MessageID, err)
		return
	}

	target, err := s.chat.FetchChannel(targetChannelID)
	if err != nil {
		log.Printf("Error fetching starboard channel %s: %v", targetChannelID, err)
		return
	}
	if target == nil || !target.Text {
		return
	}

	// An explicit channel setting wins; otherwise the source channel must
	// be readable by the guild's default role.
	channelSetting, err := s.settings.GetChannelSetting(ev.ChannelID)
	if err != nil {
		log.Printf("Error loading channel setting for %s: %v", ev.ChannelID, err)
		return
	}
	if channelSetting != nil {
		if !channelSetting.Visible {
			return
		}
	} else {
		source, err := s.chat.FetchChannel(ev.ChannelID)
		if err != nil {
			log.Printf("Error fetching source channel %s: %v", ev.ChannelID, err)
			return
		}
		if source == nil || !source.Public {
			return
		}
	}

	// Messages from before the bot joined the guild are never eligible.
	joined, err := s.chat.JoinedAt(ev.GuildID)
	if err != nil {
		log.Printf("Error resolving join time for guild %s: %v", ev.GuildID, err)
		return
	}
	if !joined.IsZero() && msg.Timestamp.Before(joined) {
		return
	}

	postID, err := s.pub.Publish(msg, targetChannelID)
	if err != nil {
		s.metrics.IncPublishError()
		log.Printf("Error crossposting message %s: %v", ev.MessageID, err)
		return
	}
	s.metrics.IncPublish()

	record := models.CrosspostRecord{
		MessageID:   ev.MessageID,
		ChannelID:   ev.ChannelID,
		GuildID:     ev.GuildID,
		AuthorID:    ev.AuthorID,
		Count:       ev.Count,
		CrosspostID: postID,
	}
	if err := s.records.CreateRecord(record); err != nil {
		log.Printf("Error saving crosspost record for %s: %v", ev.MessageID, err)
	}
}
