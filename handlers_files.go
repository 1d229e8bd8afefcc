package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

// UploadFileMetadata is the metadata part of the upload form. file_id is
// the SHA-256 of the ciphertext being uploaded; sha256 is the client-side
// hash of the plaintext and opaque to the node.
type UploadFileMetadata struct {
	Filename        string           `json:"filename"`
	FileID          string           `json:"file_id"`
	Size            int64            `json:"size"`
	Mimetype        string           `json:"mimetype"`
	SHA256          string           `json:"sha256"`
	IV              string           `json:"iv"`
	Tags            []string         `json:"tags,omitempty"`
	AuthorizedUsers []AuthorizedUser `json:"authorized_users"`
}

type ShareFileRequest struct {
	Filename        string           `json:"filename"`
	AuthorizedUsers []AuthorizedUser `json:"authorized_users"`
}

type RenameFileRequest struct {
	NewName string `json:"new_name"`
}

// entryName pulls the {name} URL param, percent-decoded.
func entryName(r *http.Request) (string, error) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" {
		return "", errValidationf("bad filename in path")
	}
	return name, nil
}

// GET /api/v1/files
func (a *App) handleListFiles(w http.ResponseWriter, r *http.Request) {
	entries, err := a.entries.List(authUser(r))
	if err != nil {
		writeError(w, wrapInternal("list entries", err))
		return
	}
	if entries == nil {
		entries = []FileEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// POST /api/v1/files
func (a *App) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFileSize+uploadOverhead)
	if err := r.ParseMultipartForm(maxFileSize + uploadOverhead); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, errTooLargef("upload exceeds %d bytes", maxFileSize))
			return
		}
		writeError(w, errValidationf("bad multipart request: %v", err))
		return
	}

	metaPart := r.FormValue("metadata")
	if metaPart == "" {
		writeError(w, errValidationf("missing metadata part"))
		return
	}
	var um UploadFileMetadata
	if err := decodeStrictString(metaPart, &um); err != nil {
		writeError(w, err)
		return
	}
	if um.Size > maxFileSize {
		writeError(w, errTooLargef("file exceeds %d bytes", maxFileSize))
		return
	}
	payload := &FileCreatedPayload{
		UserID:          authUser(r),
		FileID:          um.FileID,
		Filename:        um.Filename,
		Size:            um.Size,
		Mimetype:        um.Mimetype,
		SHA256:          um.SHA256,
		IV:              um.IV,
		AuthorizedUsers: um.AuthorizedUsers,
		Tags:            um.Tags,
		Version:         1,
	}
	if err := validateFileCreated(payload); err != nil {
		writeError(w, err)
		return
	}

	part, _, err := r.FormFile("data")
	if err != nil {
		writeError(w, errValidationf("missing data part"))
		return
	}
	defer part.Close()
	data, err := io.ReadAll(part)
	if err != nil {
		writeError(w, errValidationf("read upload: %v", err))
		return
	}
	if int64(len(data)) != um.Size {
		writeError(w, errValidationf("got %d bytes, metadata says %d", len(data), um.Size))
		return
	}
	if sha256Hex(data) != um.FileID {
		writeError(w, errIntegrityf("content does not hash to file_id"))
		return
	}

	if err := a.blobs.WriteBytes(um.FileID, data); err != nil {
		writeError(w, err)
		return
	}
	if _, err := a.publishEvent(r.Context(), evFileCreated, payload); err != nil {
		writeError(w, err)
		return
	}
	log.Infof("[files] stored %q (%s, %d bytes) for %s",
		um.Filename, shortID(um.FileID), um.Size, shortID(payload.UserID))
	writeJSON(w, http.StatusCreated, map[string]string{"status": "stored"})
}

// decodeStrictString is decodeStrict for an in-memory form field.
func decodeStrictString(s string, dst any) error {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errValidationf("bad metadata: %v", err)
	}
	return nil
}

// fileHeaders sets the metadata headers on a blob response. The owner's
// public key lets the client verify provenance; a missing owner record
// only drops that header.
func (a *App) fileHeaders(w http.ResponseWriter, name string, m *FileMetadata, grant AuthorizedUser) {
	h := w.Header()
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	h.Set("Content-Type", m.Mimetype)
	h.Set("Content-Length", strconv.FormatInt(m.Size, 10))
	h.Set("X-DFS3-File-ID", m.FileID)
	h.Set("X-DFS3-Owner", m.OwnerID)
	h.Set("X-DFS3-Size", strconv.FormatInt(m.Size, 10))
	h.Set("X-DFS3-IV", m.IV)
	h.Set("X-DFS3-SHA256", m.SHA256)
	h.Set("X-DFS3-Mimetype", m.Mimetype)
	h.Set("X-DFS3-Encrypted-Key", grant.EncryptedKey)
	h.Set("X-DFS3-IV-Key", grant.IV)
	if owner, err := a.store.GetUser(m.OwnerID); err == nil {
		h.Set("X-DFS3-Public-Key", owner.PublicKey)
	} else {
		log.Warnf("[files] owner %s not in registry: %v", shortID(m.OwnerID), err)
	}
}

// GET /api/v1/files/{name}
func (a *App) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	name, err := entryName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := authUser(r)
	m, err := a.entries.Resolve(userID, name)
	if err != nil {
		writeError(w, err)
		return
	}
	grant, ok := m.AuthorizedEntry(userID)
	if !ok {
		writeError(w, errForbiddenf("not authorized for %q", name))
		return
	}

	// the access record is part of the contract; no event, no bytes
	accessed := &FileAccessedPayload{UserID: userID, FileID: m.FileID, Filename: name}
	if _, err := a.publishEvent(r.Context(), evFileAccessed, accessed); err != nil {
		writeError(w, err)
		return
	}

	// headers only go out once a source for the bytes is secured
	if a.blobs.Has(m.FileID) {
		f, _, err := a.blobs.Open(m.FileID)
		if err != nil {
			writeError(w, wrapInternal("open blob", err))
			return
		}
		defer f.Close()
		a.fileHeaders(w, name, m, grant)
		if _, err := io.Copy(w, f); err != nil {
			log.Debugf("[files] stream %s aborted: %v", shortID(m.FileID), err)
		}
		return
	}

	resp, release, err := a.racePeers(r.Context(), m.FileID, m.ReplicaNodes)
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()
	a.fileHeaders(w, name, m, grant)
	if err := a.streamRemote(w, resp.Body, m); err != nil {
		// headers are gone; the truncated stream is the client's signal
		log.Warnf("[files] relay %s: %v", shortID(m.FileID), err)
	}
}

// GET /api/v1/files/{name}/data
//
// Public peer endpoint: {name} is a file_id and the body is the raw
// ciphertext. Access control lives with the key material, not the blob.
func (a *App) handleFileData(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "name")
	if !reHexID.MatchString(fileID) {
		writeError(w, errValidationf("bad file_id"))
		return
	}
	f, size, err := a.blobs.Open(fileID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	if _, err := io.Copy(w, f); err != nil {
		log.Debugf("[files] serve %s aborted: %v", shortID(fileID), err)
	}
}

// GET /api/v1/files/{name}/meta
func (a *App) handleFileMeta(w http.ResponseWriter, r *http.Request) {
	name, err := entryName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := authUser(r)
	m, err := a.entries.Resolve(userID, name)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, ok := m.AuthorizedEntry(userID); !ok {
		writeError(w, errForbiddenf("not authorized for %q", name))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// POST /api/v1/files/share
func (a *App) handleShareFile(w http.ResponseWriter, r *http.Request) {
	var req ShareFileRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID := authUser(r)
	m, err := a.entries.Resolve(userID, req.Filename)
	if err != nil {
		writeError(w, err)
		return
	}
	if m.OwnerID != userID {
		writeError(w, errForbiddenf("only the owner may share %q", req.Filename))
		return
	}
	if len(req.AuthorizedUsers) == 0 {
		writeError(w, errValidationf("no users to share with"))
		return
	}
	payload := &FileSharedPayload{
		UserID:          userID,
		FileID:          m.FileID,
		Filename:        req.Filename,
		AuthorizedUsers: req.AuthorizedUsers,
	}
	if err := validateFileShared(payload); err != nil {
		writeError(w, err)
		return
	}
	if _, err := a.publishEvent(r.Context(), evFileShared, payload); err != nil {
		writeError(w, err)
		return
	}
	log.Infof("[files] %q shared with %d user(s) by %s", req.Filename, len(req.AuthorizedUsers), shortID(userID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "shared"})
}

// PATCH /api/v1/files/{name}
func (a *App) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	name, err := entryName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req RenameFileRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID := authUser(r)
	m, err := a.entries.Resolve(userID, name)
	if err != nil {
		writeError(w, err)
		return
	}
	payload := &FileRenamedPayload{UserID: userID, FileID: m.FileID, Filename: name, NewName: req.NewName}
	if err := validateFileRenamed(payload); err != nil {
		writeError(w, err)
		return
	}
	if _, err := a.publishEvent(r.Context(), evFileRenamed, payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

// DELETE /api/v1/files/{name}
func (a *App) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	name, err := entryName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := authUser(r)
	m, err := a.entries.Resolve(userID, name)
	if err != nil {
		writeError(w, err)
		return
	}
	payload := &FileDeletedPayload{UserID: userID, FileID: m.FileID, Filename: name}
	if _, err := a.publishEvent(r.Context(), evFileDeleted, payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
