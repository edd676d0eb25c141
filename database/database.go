package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // Import the SQLite3 driver
)

// DB wraps the starboard's SQLite database. It owns the per-user star
// tallies, the per-guild/per-channel settings, the blocked-message list and
// the crosspost records.
type DB struct {
	db *sql.DB
}

// New opens (and creates if necessary) the starboard database at dbPath.
func New(dbPath string) (*DB, error) {
	// Ensure the directory for the database file exists.
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open the SQLite database. It will be created if it doesn't exist.
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Ping the database to verify the connection.
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &DB{db: db}
	if err := d.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.Println("Successfully connected to the database at", dbPath)
	return d, nil
}

// initTables creates the starboard tables if they don't exist.
func (d *DB) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS star_tallies (
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			amount INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (guild_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id TEXT PRIMARY KEY,
			amount INTEGER NOT NULL,
			log_channel_id TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS channel_settings (
			channel_id TEXT PRIMARY KEY,
			visible INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS blocked_messages (
			message_id TEXT PRIMARY KEY
		);`,
		`CREATE TABLE IF NOT EXISTS crosspost_records (
			message_id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			guild_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			count INTEGER NOT NULL,
			crosspost_id TEXT NOT NULL
		);`,
	}

	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute table creation query: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
