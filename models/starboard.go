package models

// ReactionKind distinguishes reaction add and remove events.
type ReactionKind int

const (
	ReactionAdd ReactionKind = iota
	ReactionRemove
)

// ReactionEvent is a normalized reaction notification from the gateway.
// Count is the platform-reported reaction total for the emoji at the time
// the event was observed; WebhookID is set when the reacted-on message was
// posted through a webhook.
type ReactionEvent struct {
	Kind      ReactionKind
	Emoji     string
	GuildID   string
	ChannelID string
	MessageID string
	AuthorID  string
	ReactorID string
	Count     int
	WebhookID string
}

// StarTally is a per-guild, per-user running count of stars given.
// Amount may go negative when removes arrive without matching adds.
type StarTally struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
	Amount  int    `json:"amount"`
}

// GuildSetting holds a guild's starboard configuration. A missing row or
// an empty LogChannelID means the guild is not fully configured.
type GuildSetting struct {
	GuildID      string `json:"guild_id"`
	Amount       int    `json:"amount"` // reaction threshold
	LogChannelID string `json:"log_channel_id"`
}

// ChannelSetting is an explicit per-channel visibility override.
type ChannelSetting struct {
	ChannelID string `json:"channel_id"`
	Visible   bool   `json:"visible"`
}

// CrosspostRecord is the durable marker that a message has been posted to
// the starboard. At most one record exists per MessageID.
type CrosspostRecord struct {
	MessageID   string `json:"message_id"`
	ChannelID   string `json:"channel_id"`
	GuildID     string `json:"guild_id"`
	AuthorID    string `json:"author_id"`
	Count       int    `json:"count"`
	CrosspostID string `json:"crosspost_id"`
}
