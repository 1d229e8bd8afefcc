package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// BlobStore is the content-addressed ciphertext store. A blob lives at
// <dir>/<file_id>.dat, is only written when its hash equals file_id, and is
// never rewritten.
type BlobStore struct {
	dir string
}

func newBlobStore(dir string) *BlobStore {
	return &BlobStore{dir: dir}
}

func (bs *BlobStore) Path(fileID string) string {
	return filepath.Join(bs.dir, fileID+".dat")
}

func (bs *BlobStore) Has(fileID string) bool {
	_, err := os.Stat(bs.Path(fileID))
	return err == nil
}

// WriteBytes stores a ciphertext after verifying its hash. Write-once:
// when the blob already exists the new bytes are discarded.
func (bs *BlobStore) WriteBytes(fileID string, data []byte) error {
	if sha256Hex(data) != fileID {
		return errIntegrityf("content does not hash to %s", shortID(fileID))
	}
	if bs.Has(fileID) {
		return nil
	}
	tmp, err := os.CreateTemp(bs.dir, fileID+".*.part")
	if err != nil {
		return fmt.Errorf("blob temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("blob write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return bs.commit(tmp.Name(), fileID)
}

// NewPart opens a temp file for a streamed write (proxy-while-store).
func (bs *BlobStore) NewPart(fileID string) (*os.File, error) {
	return os.CreateTemp(bs.dir, fileID+".*.part")
}

// CommitPart promotes a finished temp file to the blob location. Losing a
// same-file_id race is fine: the winner's bytes are identical.
func (bs *BlobStore) CommitPart(tmpPath, fileID string) error {
	return bs.commit(tmpPath, fileID)
}

func (bs *BlobStore) AbortPart(tmpPath string) {
	os.Remove(tmpPath)
}

func (bs *BlobStore) commit(tmpPath, fileID string) error {
	if bs.Has(fileID) {
		os.Remove(tmpPath)
		return nil
	}
	if err := os.Rename(tmpPath, bs.Path(fileID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("blob commit: %w", err)
	}
	return nil
}

// Open returns a reader over the stored ciphertext plus its size.
func (bs *BlobStore) Open(fileID string) (*os.File, int64, error) {
	f, err := os.Open(bs.Path(fileID))
	if os.IsNotExist(err) {
		return nil, 0, errNotFoundf("no blob for %s", shortID(fileID))
	}
	if err != nil {
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, st.Size(), nil
}
