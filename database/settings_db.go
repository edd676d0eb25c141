package database

import (
	"database/sql"
	"fmt"

	"starboard-bot/models"
)

// GetGuildSetting returns a guild's starboard settings, or nil when the
// guild has never been configured.
func (d *DB) GetGuildSetting(guildID string) (*models.GuildSetting, error) {
	setting := models.GuildSetting{GuildID: guildID}
	err := d.db.QueryRow(
		"SELECT amount, log_channel_id FROM guild_settings WHERE guild_id = ?",
		guildID,
	).Scan(&setting.Amount, &setting.LogChannelID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query guild setting for %s: %w", guildID, err)
	}
	return &setting, nil
}

// SetGuildSetting creates or replaces a guild's starboard settings.
func (d *DB) SetGuildSetting(setting models.GuildSetting) error {
	query := `INSERT OR REPLACE INTO guild_settings (guild_id, amount, log_channel_id) VALUES (?, ?, ?)`
	if _, err := d.db.Exec(query, setting.GuildID, setting.Amount, setting.LogChannelID); err != nil {
		return fmt.Errorf("failed to set guild setting for %s: %w", setting.GuildID, err)
	}
	return nil
}

// GetChannelSetting returns a channel's explicit visibility override, or
// nil when the channel uses default visibility.
func (d *DB) GetChannelSetting(channelID string) (*models.ChannelSetting, error) {
	setting := models.ChannelSetting{ChannelID: channelID}
	var visible int
	err := d.db.QueryRow(
		"SELECT visible FROM channel_settings WHERE channel_id = ?",
		channelID,
	).Scan(&visible)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query channel setting for %s: %w", channelID, err)
	}
	setting.Visible = visible != 0
	return &setting, nil
}

// SetChannelSetting creates or replaces a channel's visibility override.
func (d *DB) SetChannelSetting(setting models.ChannelSetting) error {
	visible := 0
	if setting.Visible {
		visible = 1
	}
	query := `INSERT OR REPLACE INTO channel_settings (channel_id, visible) VALUES (?, ?)`
	if _, err := d.db.Exec(query, setting.ChannelID, visible); err != nil {
		return fmt.Errorf("failed to set channel setting for %s: %w", setting.ChannelID, err)
	}
	return nil
}

// IsBlocked reports whether a message is on the moderation block list.
func (d *DB) IsBlocked(messageID string) (bool, error) {
	var id string
	err := d.db.QueryRow(
		"SELECT message_id FROM blocked_messages WHERE message_id = ?",
		messageID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query blocked message %s: %w", messageID, err)
	}
	return true, nil
}

// BlockMessage adds a message to the block list.
func (d *DB) BlockMessage(messageID string) error {
	query := `INSERT OR IGNORE INTO blocked_messages (message_id) VALUES (?)`
	if _, err := d.db.Exec(query, messageID); err != nil {
		return fmt.Errorf("failed to block message %s: %w", messageID, err)
	}
	return nil
}

// UnblockMessage removes a message from the block list.
func (d *DB) UnblockMessage(messageID string) error {
	if _, err := d.db.Exec("DELETE FROM blocked_messages WHERE message_id = ?", messageID); err != nil {
		return fmt.Errorf("failed to unblock message %s: %w", messageID, err)
	}
	return nil
}

// ConfiguredGuilds returns the settings of every guild with a starboard
// configuration, used by the scheduled stats report.
func (d *DB) ConfiguredGuilds() ([]models.GuildSetting, error) {
	rows, err := d.db.Query("SELECT guild_id, amount, log_channel_id FROM guild_settings")
	if err != nil {
		return nil, fmt.Errorf("failed to query configured guilds: %w", err)
	}
	defer rows.Close()

	var settings []models.GuildSetting
	for rows.Next() {
		var s models.GuildSetting
		if err := rows.Scan(&s.GuildID, &s.Amount, &s.LogChannelID); err != nil {
			return nil, fmt.Errorf("failed to scan guild setting: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}
