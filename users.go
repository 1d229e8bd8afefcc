package main

import (
	"crypto/ed25519"
	"database/sql"
)

// UserRecord is one row of the user registry.
type UserRecord struct {
	UserID       string   `json:"user_id"`
	Alias        string   `json:"alias"`
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	PublicKey    string   `json:"public_key"`
	Tags         []string `json:"tags"`
	Version      int      `json:"version"`
	CreationDate int64    `json:"creation_date"`
	LastSeen     int64    `json:"last_seen"`
}

func (s *Store) fetchUser(userID string) (*UserRecord, error) {
	var r UserRecord
	var tags string
	err := s.db.QueryRow(
		`SELECT user_id, alias, name, email, public_key, tags, version, creation_date, last_seen
		 FROM users WHERE user_id = ?`, userID,
	).Scan(&r.UserID, &r.Alias, &r.Name, &r.Email, &r.PublicKey, &tags,
		&r.Version, &r.CreationDate, &r.LastSeen)
	if err == sql.ErrNoRows {
		return nil, errNotFoundf("user %s not found", shortID(userID))
	}
	if err != nil {
		return nil, err
	}
	r.Tags = splitTags(tags)
	return &r, nil
}

// GetUser reads through the registry cache.
func (s *Store) GetUser(userID string) (*UserRecord, error) {
	return s.userCache.getOrLoad(userID)
}

func (s *Store) UserExists(userID string) (bool, error) {
	_, err := s.GetUser(userID)
	if err == nil {
		return true, nil
	}
	if errorKindIs(err, errNotFound) {
		return false, nil
	}
	return false, err
}

// SaveUser upserts a user record; the cache entry is dropped first.
func (s *Store) SaveUser(r *UserRecord) error {
	s.userCache.invalidate(r.UserID)
	_, err := s.db.Exec(`
	INSERT INTO users (user_id, alias, name, email, public_key, tags, version, creation_date, last_seen)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		alias = excluded.alias,
		name = excluded.name,
		email = excluded.email,
		public_key = excluded.public_key,
		tags = excluded.tags,
		version = excluded.version,
		last_seen = excluded.last_seen
	`, r.UserID, r.Alias, r.Name, r.Email, r.PublicKey, joinTags(r.Tags),
		r.Version, r.CreationDate, r.LastSeen)
	return err
}

// TouchUser bumps last_seen (login activity). Missing users are not an
// error; the warning belongs to the caller.
func (s *Store) TouchUser(userID string, lastSeen int64) (bool, error) {
	s.userCache.invalidate(userID)
	res, err := s.db.Exec(`UPDATE users SET last_seen = ? WHERE user_id = ?`, lastSeen, userID)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *Store) ListUsers() ([]UserRecord, error) {
	rows, err := s.db.Query(
		`SELECT user_id, alias, name, email, public_key, tags, version, creation_date, last_seen
		 FROM users ORDER BY creation_date ASC, user_id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []UserRecord
	for rows.Next() {
		var r UserRecord
		var tags string
		if err := rows.Scan(&r.UserID, &r.Alias, &r.Name, &r.Email, &r.PublicKey, &tags,
			&r.Version, &r.CreationDate, &r.LastSeen); err != nil {
			return nil, err
		}
		r.Tags = splitTags(tags)
		records = append(records, r)
	}
	return records, rows.Err()
}

// UserPublicKey resolves the key used for challenge verification.
func (s *Store) UserPublicKey(userID string) (ed25519.PublicKey, error) {
	r, err := s.GetUser(userID)
	if err != nil {
		return nil, err
	}
	return publicKeyFromB64(r.PublicKey)
}
