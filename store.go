package main

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is the local index: processed events plus the node and user
// registries, all in one SQLite file with read-through caches on top.
type Store struct {
	db        *sql.DB
	nodeCache *cache[*NodeRecord]
	userCache *cache[*UserRecord]
}

func openStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// single connection keeps sqlite writers from tripping over each other
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	s.nodeCache = newCache(registryCacheSize, registryCacheTTL, s.fetchNode)
	s.userCache = newCache(registryCacheSize, registryCacheTTL, s.fetchUser)
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		block_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		node_id TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_node ON events(node_id);

	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		alias TEXT NOT NULL,
		name TEXT DEFAULT '',
		email TEXT DEFAULT '',
		public_key TEXT NOT NULL,
		tags TEXT DEFAULT '',
		version INTEGER DEFAULT 1,
		creation_date INTEGER NOT NULL,
		last_seen INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS nodes (
		node_id TEXT PRIMARY KEY,
		alias TEXT DEFAULT '',
		hostname TEXT DEFAULT '',
		public_key TEXT NOT NULL,
		platform TEXT DEFAULT '',
		software_version TEXT DEFAULT '',
		uptime INTEGER DEFAULT 0,
		total_space INTEGER DEFAULT 0,
		ip TEXT NOT NULL,
		port INTEGER NOT NULL,
		tags TEXT DEFAULT '',
		version INTEGER DEFAULT 1,
		creation_date INTEGER NOT NULL,
		last_seen INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EventEntry is one indexed ledger reference.
type EventEntry struct {
	BlockID   string `json:"block_id"`
	EventType string `json:"event_type"`
	Timestamp int64  `json:"timestamp"`
	NodeID    string `json:"node_id"`
}

// InsertEvent records a processed block. Returns false when the block was
// already indexed; the primary key is the exactly-once guard.
func (s *Store) InsertEvent(e *EventEntry) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO events (block_id, event_type, timestamp, node_id) VALUES (?, ?, ?, ?)`,
		e.BlockID, e.EventType, e.Timestamp, e.NodeID,
	)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *Store) HasEvent(blockID string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM events WHERE block_id = ?`, blockID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) GetEvent(blockID string) (*EventEntry, error) {
	var e EventEntry
	err := s.db.QueryRow(
		`SELECT block_id, event_type, timestamp, node_id FROM events WHERE block_id = ?`,
		blockID,
	).Scan(&e.BlockID, &e.EventType, &e.Timestamp, &e.NodeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEvents returns the index in replay order (oldest first), so a seeding
// peer can apply dependencies before dependents in the common case.
func (s *Store) ListEvents() ([]EventEntry, error) {
	rows, err := s.db.Query(
		`SELECT block_id, event_type, timestamp, node_id FROM events ORDER BY timestamp ASC, rowid ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []EventEntry
	for rows.Next() {
		var e EventEntry
		if err := rows.Scan(&e.BlockID, &e.EventType, &e.Timestamp, &e.NodeID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
