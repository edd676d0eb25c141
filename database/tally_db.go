package database

import (
	"database/sql"
	"fmt"

	"starboard-bot/models"
)

// UpsertDelta applies a signed delta to a user's star tally. The whole
// operation is a single conditional-increment statement so concurrent
// callers for the same (guild, user) pair never lose updates. A missing
// row is seeded with the delta itself. Amounts are never clamped; a
// remove delivered before its add leaves a negative tally.
func (d *DB) UpsertDelta(guildID, userID string, delta int) error {
	query := `
    INSERT INTO star_tallies (guild_id, user_id, amount)
    VALUES (?, ?, ?)
    ON CONFLICT(guild_id, user_id) DO UPDATE SET amount = amount + excluded.amount;`

	if _, err := d.db.Exec(query, guildID, userID, delta); err != nil {
		return fmt.Errorf("failed to upsert star tally for user %s in guild %s: %w", userID, guildID, err)
	}

	return nil
}

// GetTally returns the current star tally for a user, 0 if no row exists.
func (d *DB) GetTally(guildID, userID string) (int, error) {
	var amount int
	err := d.db.QueryRow(
		"SELECT amount FROM star_tallies WHERE guild_id = ? AND user_id = ?",
		guildID, userID,
	).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query star tally: %w", err)
	}
	return amount, nil
}

// TopTallies returns the highest star tallies in a guild, used by the
// scheduled stats report.
func (d *DB) TopTallies(guildID string, limit int) ([]models.StarTally, error) {
	rows, err := d.db.Query(
		"SELECT user_id, amount FROM star_tallies WHERE guild_id = ? ORDER BY amount DESC LIMIT ?",
		guildID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query top tallies for guild %s: %w", guildID, err)
	}
	defer rows.Close()

	var tallies []models.StarTally
	for rows.Next() {
		t := models.StarTally{GuildID: guildID}
		if err := rows.Scan(&t.UserID, &t.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan star tally: %w", err)
		}
		tallies = append(tallies, t)
	}
	return tallies, rows.Err()
}
