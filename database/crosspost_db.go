package database

import (
	"database/sql"
	"fmt"

	"starboard-bot/models"
)

// GetRecord returns the crosspost record for a message, or nil when the
// message has never been posted to the starboard.
func (d *DB) GetRecord(messageID string) (*models.CrosspostRecord, error) {
	rec := models.CrosspostRecord{MessageID: messageID}
	err := d.db.QueryRow(
		"SELECT channel_id, guild_id, author_id, count, crosspost_id FROM crosspost_records WHERE message_id = ?",
		messageID,
	).Scan(&rec.ChannelID, &rec.GuildID, &rec.AuthorID, &rec.Count, &rec.CrosspostID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query crosspost record for %s: %w", messageID, err)
	}
	return &rec, nil
}

// CreateRecord inserts a new crosspost record. The message_id primary key
// rejects a second insert for the same message, backstopping the in-process
// dedup guard.
func (d *DB) CreateRecord(rec models.CrosspostRecord) error {
	query := `
    INSERT INTO crosspost_records (message_id, channel_id, guild_id, author_id, count, crosspost_id)
    VALUES (?, ?, ?, ?, ?, ?);`

	stmt, err := d.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for crosspost record: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(rec.MessageID, rec.ChannelID, rec.GuildID, rec.AuthorID, rec.Count, rec.CrosspostID)
	if err != nil {
		return fmt.Errorf("failed to insert crosspost record for %s: %w", rec.MessageID, err)
	}

	return nil
}

// UpdateCount refreshes the stored star count of an existing record. This
// is the hot path for popular messages and takes no locks.
func (d *DB) UpdateCount(messageID string, count int) error {
	if _, err := d.db.Exec(
		"UPDATE crosspost_records SET count = ? WHERE message_id = ?",
		count, messageID,
	); err != nil {
		return fmt.Errorf("failed to update crosspost count for %s: %w", messageID, err)
	}
	return nil
}
