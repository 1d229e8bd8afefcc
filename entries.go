package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// FileEntry is the listing item for one name in a user's namespace.
type FileEntry struct {
	Name         string `json:"name"`
	FileID       string `json:"file_id"`
	Size         int64  `json:"size"`
	Mimetype     string `json:"mimetype"`
	CreationTime int64  `json:"creation_time"`
}

// EntryStore owns the per-user namespaces under .users. Each entry is a
// hard link onto a metadata document, so reading an entry yields the
// document and unlinking never disturbs other users' names.
type EntryStore struct {
	usersDir string
}

func newEntryStore(usersDir string) *EntryStore {
	return &EntryStore{usersDir: usersDir}
}

// entryPath validates the pieces and guards the user directory boundary.
func (es *EntryStore) entryPath(userID, filename string) (string, error) {
	if !reHexID.MatchString(userID) {
		return "", errValidationf("bad user_id")
	}
	if !validFilename(filename) {
		return "", errValidationf("bad filename %q", filename)
	}
	dir := filepath.Join(es.usersDir, userID)
	p := filepath.Join(dir, filename)
	if filepath.Dir(p) != dir {
		return "", errValidationf("filename escapes user namespace")
	}
	return p, nil
}

func splitExt(name string) (base, ext string) {
	ext = filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}

// Link creates the entry (userID, filename) → metaPath. Collisions get
// " (N)" before the extension; a replay that already links this document
// under a candidate name is a no-op. Returns the final name.
func (es *EntryStore) Link(userID, filename, metaPath string) (string, error) {
	p, err := es.entryPath(userID, filename)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create user dir: %w", err)
	}
	metaInfo, err := os.Stat(metaPath)
	if err != nil {
		return "", fmt.Errorf("stat metadata: %w", err)
	}

	base, ext := splitExt(filename)
	name := filename
	for n := 1; ; n++ {
		full := filepath.Join(dir, name)
		fi, err := os.Stat(full)
		if os.IsNotExist(err) {
			if err := os.Link(metaPath, full); err != nil {
				if os.IsExist(err) {
					continue // lost a race for this name, try the next
				}
				return "", fmt.Errorf("link entry: %w", err)
			}
			return name, nil
		}
		if err == nil && os.SameFile(fi, metaInfo) {
			return name, nil
		}
		name = fmt.Sprintf("%s (%d)%s", base, n, ext)
	}
}

// Rename moves one entry within the same namespace, collision-renamed.
// Returns the final name.
func (es *EntryStore) Rename(userID, oldName, newName string) (string, error) {
	oldPath, err := es.entryPath(userID, oldName)
	if err != nil {
		return "", err
	}
	newPath, err := es.entryPath(userID, newName)
	if err != nil {
		return "", err
	}
	if _, err := os.Lstat(oldPath); os.IsNotExist(err) {
		return "", errNotFoundf("no file %q", oldName)
	}
	if oldPath == newPath {
		return newName, nil
	}

	dir := filepath.Dir(newPath)
	base, ext := splitExt(newName)
	name := newName
	for n := 1; ; n++ {
		full := filepath.Join(dir, name)
		if _, err := os.Lstat(full); os.IsNotExist(err) {
			if err := os.Rename(oldPath, full); err != nil {
				return "", fmt.Errorf("rename entry: %w", err)
			}
			return name, nil
		}
		name = fmt.Sprintf("%s (%d)%s", base, n, ext)
	}
}

// Exists reports whether the entry (userID, filename) is present.
func (es *EntryStore) Exists(userID, filename string) bool {
	p, err := es.entryPath(userID, filename)
	if err != nil {
		return false
	}
	_, err = os.Lstat(p)
	return err == nil
}

// Remove unlinks one entry. The metadata document survives through its
// other links.
func (es *EntryStore) Remove(userID, filename string) error {
	p, err := es.entryPath(userID, filename)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return errNotFoundf("no file %q", filename)
		}
		return fmt.Errorf("remove entry: %w", err)
	}
	return nil
}

// Resolve reads the metadata document through the entry link.
func (es *EntryStore) Resolve(userID, filename string) (*FileMetadata, error) {
	p, err := es.entryPath(userID, filename)
	if err != nil {
		return nil, err
	}
	m, err := readMetadataFile(p)
	if err != nil {
		if errorKindIs(err, errNotFound) {
			return nil, errNotFoundf("no file %q", filename)
		}
		return nil, err
	}
	return m, nil
}

// List walks one user's namespace. A user with no entries yet is an empty
// listing, not an error.
func (es *EntryStore) List(userID string) ([]FileEntry, error) {
	if !reHexID.MatchString(userID) {
		return nil, errValidationf("bad user_id")
	}
	dir := filepath.Join(es.usersDir, userID)
	des, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entries := make([]FileEntry, 0, len(des))
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		m, err := readMetadataFile(filepath.Join(dir, de.Name()))
		if err != nil {
			log.Warnf("[entries] unreadable entry %s/%s: %v", shortID(userID), de.Name(), err)
			continue
		}
		entries = append(entries, FileEntry{
			Name:         de.Name(),
			FileID:       m.FileID,
			Size:         m.Size,
			Mimetype:     m.Mimetype,
			CreationTime: m.CreationTime,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
