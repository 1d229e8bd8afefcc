package main

import (
	"crypto/ed25519"
	"database/sql"
	"net"
	"strconv"
	"strings"
)

// NodeRecord is one row of the node registry.
type NodeRecord struct {
	NodeID          string   `json:"node_id"`
	Alias           string   `json:"alias"`
	Hostname        string   `json:"hostname"`
	PublicKey       string   `json:"public_key"`
	Platform        string   `json:"platform"`
	SoftwareVersion string   `json:"software_version"`
	Uptime          int64    `json:"uptime"`
	TotalSpace      int64    `json:"total_space"`
	IP              string   `json:"ip"`
	Port            int      `json:"port"`
	Tags            []string `json:"tags"`
	Version         int      `json:"version"`
	CreationDate    int64    `json:"creation_date"`
	LastSeen        int64    `json:"last_seen"`
}

func (r *NodeRecord) Endpoint() string {
	return net.JoinHostPort(r.IP, strconv.Itoa(r.Port))
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// fetchNode is the uncached registry read.
func (s *Store) fetchNode(nodeID string) (*NodeRecord, error) {
	var r NodeRecord
	var tags string
	err := s.db.QueryRow(
		`SELECT node_id, alias, hostname, public_key, platform, software_version,
		        uptime, total_space, ip, port, tags, version, creation_date, last_seen
		 FROM nodes WHERE node_id = ?`, nodeID,
	).Scan(&r.NodeID, &r.Alias, &r.Hostname, &r.PublicKey, &r.Platform, &r.SoftwareVersion,
		&r.Uptime, &r.TotalSpace, &r.IP, &r.Port, &tags, &r.Version, &r.CreationDate, &r.LastSeen)
	if err == sql.ErrNoRows {
		return nil, errNotFoundf("node %s not found", shortID(nodeID))
	}
	if err != nil {
		return nil, err
	}
	r.Tags = splitTags(tags)
	return &r, nil
}

// GetNode reads through the registry cache.
func (s *Store) GetNode(nodeID string) (*NodeRecord, error) {
	return s.nodeCache.getOrLoad(nodeID)
}

// SaveNode upserts a node record; a conflict on node_id refreshes every
// field. The cache entry is dropped before the write.
func (s *Store) SaveNode(r *NodeRecord) error {
	s.nodeCache.invalidate(r.NodeID)
	_, err := s.db.Exec(`
	INSERT INTO nodes (node_id, alias, hostname, public_key, platform, software_version,
	                   uptime, total_space, ip, port, tags, version, creation_date, last_seen)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(node_id) DO UPDATE SET
		alias = excluded.alias,
		hostname = excluded.hostname,
		public_key = excluded.public_key,
		platform = excluded.platform,
		software_version = excluded.software_version,
		uptime = excluded.uptime,
		total_space = excluded.total_space,
		ip = excluded.ip,
		port = excluded.port,
		tags = excluded.tags,
		version = excluded.version,
		last_seen = excluded.last_seen
	`, r.NodeID, r.Alias, r.Hostname, r.PublicKey, r.Platform, r.SoftwareVersion,
		r.Uptime, r.TotalSpace, r.IP, r.Port, joinTags(r.Tags), r.Version, r.CreationDate, r.LastSeen)
	return err
}

// UpdateNodeStatus refreshes the volatile fields. Returns false when the
// node is not registered yet.
func (s *Store) UpdateNodeStatus(nodeID, ip string, port int, uptime, totalSpace, lastSeen int64) (bool, error) {
	s.nodeCache.invalidate(nodeID)
	res, err := s.db.Exec(
		`UPDATE nodes SET ip = ?, port = ?, uptime = ?, total_space = ?, last_seen = ? WHERE node_id = ?`,
		ip, port, uptime, totalSpace, lastSeen, nodeID,
	)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *Store) ListNodes() ([]NodeRecord, error) {
	rows, err := s.db.Query(
		`SELECT node_id, alias, hostname, public_key, platform, software_version,
		        uptime, total_space, ip, port, tags, version, creation_date, last_seen
		 FROM nodes ORDER BY creation_date ASC, node_id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []NodeRecord
	for rows.Next() {
		var r NodeRecord
		var tags string
		if err := rows.Scan(&r.NodeID, &r.Alias, &r.Hostname, &r.PublicKey, &r.Platform,
			&r.SoftwareVersion, &r.Uptime, &r.TotalSpace, &r.IP, &r.Port, &tags,
			&r.Version, &r.CreationDate, &r.LastSeen); err != nil {
			return nil, err
		}
		r.Tags = splitTags(tags)
		records = append(records, r)
	}
	return records, rows.Err()
}

// NodePublicKey resolves the emitter key used for envelope verification.
func (s *Store) NodePublicKey(nodeID string) (ed25519.PublicKey, error) {
	r, err := s.GetNode(nodeID)
	if err != nil {
		return nil, err
	}
	return publicKeyFromB64(r.PublicKey)
}
