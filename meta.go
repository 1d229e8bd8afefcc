package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileMetadata is the shared per-file document. Entries hard-link to it, so
// every user-visible name resolves to this one record.
type FileMetadata struct {
	FileID          string           `json:"file_id"`
	OwnerID         string           `json:"owner_id"`
	Size            int64            `json:"size"`
	Mimetype        string           `json:"mimetype"`
	SHA256          string           `json:"sha256"`
	IV              string           `json:"iv"`
	CreationTime    int64            `json:"creation_time"`
	ReplicaNodes    []string         `json:"replica_nodes"`
	AuthorizedUsers []AuthorizedUser `json:"authorized_users"`
	Tags            []string         `json:"tags,omitempty"`
	Version         int              `json:"version"`
}

// AuthorizedEntry returns the wrapped key material for one user.
func (m *FileMetadata) AuthorizedEntry(userID string) (AuthorizedUser, bool) {
	for _, u := range m.AuthorizedUsers {
		if u.UserID == userID {
			return u, true
		}
	}
	return AuthorizedUser{}, false
}

func (m *FileMetadata) HasReplica(nodeID string) bool {
	for _, n := range m.ReplicaNodes {
		if n == nodeID {
			return true
		}
	}
	return false
}

// MetaStore owns the .meta directory. Mutations of one file_id serialize on
// a per-file lock.
//
// The first write of a document is temp+rename (no links exist yet).
// Every later mutation rewrites the document in place through the existing
// inode: renaming a fresh file over it would detach the user entry hard
// links from the record they must keep observing.
type MetaStore struct {
	dir   string
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMetaStore(dir string) *MetaStore {
	return &MetaStore{dir: dir, locks: make(map[string]*sync.Mutex)}
}

func (ms *MetaStore) path(fileID string) string {
	return filepath.Join(ms.dir, fileID+".json")
}

func (ms *MetaStore) lock(fileID string) *sync.Mutex {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	l, ok := ms.locks[fileID]
	if !ok {
		l = &sync.Mutex{}
		ms.locks[fileID] = l
	}
	return l
}

func (ms *MetaStore) Exists(fileID string) bool {
	_, err := os.Stat(ms.path(fileID))
	return err == nil
}

func (ms *MetaStore) Read(fileID string) (*FileMetadata, error) {
	return readMetadataFile(ms.path(fileID))
}

func readMetadataFile(path string) (*FileMetadata, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errNotFoundf("no metadata at %s", filepath.Base(path))
	}
	if err != nil {
		return nil, err
	}
	var m FileMetadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", filepath.Base(path), err)
	}
	return &m, nil
}

// Create writes a fresh document atomically. Replays against an existing
// document are a no-op: the record and its links must stay untouched.
func (ms *MetaStore) Create(m *FileMetadata) error {
	l := ms.lock(m.FileID)
	l.Lock()
	defer l.Unlock()

	path := ms.path(m.FileID)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(ms.dir, m.FileID+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Update applies mutate under the per-file lock and persists in place when
// it reports a change.
func (ms *MetaStore) Update(fileID string, mutate func(*FileMetadata) (bool, error)) (*FileMetadata, error) {
	l := ms.lock(fileID)
	l.Lock()
	defer l.Unlock()

	m, err := ms.Read(fileID)
	if err != nil {
		return nil, err
	}
	changed, err := mutate(m)
	if err != nil {
		return nil, err
	}
	if !changed {
		return m, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(ms.path(fileID), b, 0o600); err != nil {
		return nil, err
	}
	return m, nil
}

// MergeAuthorized unions users into the document, keyed by user_id with
// last-wins on key material. It returns the users that were not authorized
// before (those need fresh entry links).
func (ms *MetaStore) MergeAuthorized(fileID string, users []AuthorizedUser) ([]AuthorizedUser, error) {
	var added []AuthorizedUser
	_, err := ms.Update(fileID, func(m *FileMetadata) (bool, error) {
		changed := false
		for _, u := range users {
			replaced := false
			for i, cur := range m.AuthorizedUsers {
				if cur.UserID == u.UserID {
					if cur != u {
						m.AuthorizedUsers[i] = u
						changed = true
					}
					replaced = true
					break
				}
			}
			if !replaced {
				m.AuthorizedUsers = append(m.AuthorizedUsers, u)
				added = append(added, u)
				changed = true
			}
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// AddReplica unions one node into replica_nodes.
func (ms *MetaStore) AddReplica(fileID, nodeID string) error {
	_, err := ms.Update(fileID, func(m *FileMetadata) (bool, error) {
		if m.HasReplica(nodeID) {
			return false, nil
		}
		m.ReplicaNodes = append(m.ReplicaNodes, nodeID)
		return true, nil
	})
	return err
}
