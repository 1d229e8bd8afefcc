package main

import (
	"encoding/base64"
)

func validBase64(s string) bool {
	if s == "" || !reBase64.MatchString(s) {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}

// validFilename admits a single printable path segment: no separators, no
// control characters, no dot names.
func validFilename(name string) bool {
	if name == "" || len(name) > 255 || name == "." || name == ".." {
		return false
	}
	for _, r := range name {
		if r == '/' || r == '\\' || r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

func validTags(tags []string) bool {
	for _, t := range tags {
		if !reTag.MatchString(t) {
			return false
		}
	}
	return true
}

func validPort(p int) bool { return p >= 0 && p <= 65535 }

func validSize(n int64) bool { return n >= 0 && n <= maxFileSize }

// validateAnnouncement checks the bus message shape. The event type only
// needs to be a plausible token here; unknown types are skipped later by
// the dispatcher with a warning.
func validateAnnouncement(a *Announcement) error {
	if !reBlockID.MatchString(a.BlockID) {
		return errValidationf("bad block_id %q", a.BlockID)
	}
	if a.EventType == "" || len(a.EventType) > 64 {
		return errValidationf("bad event_type")
	}
	if a.Timestamp <= 0 {
		return errValidationf("bad timestamp")
	}
	if !reHexID.MatchString(a.NodeID) {
		return errValidationf("bad node_id")
	}
	return nil
}

func validateEnvelope(env *Envelope) error {
	if env.EventType == "" || len(env.EventType) > 64 {
		return errValidationf("bad event_type")
	}
	if env.Timestamp <= 0 {
		return errValidationf("bad timestamp")
	}
	if !reHexID.MatchString(env.NodeID) {
		return errValidationf("bad node_id")
	}
	if env.Protocol != protocol {
		return errValidationf("unsupported protocol %q", env.Protocol)
	}
	if len(env.Payload) == 0 {
		return errValidationf("empty payload")
	}
	if !validBase64(env.Signature) {
		return errValidationf("bad signature encoding")
	}
	return nil
}

func validateAuthorizedUsers(users []AuthorizedUser) error {
	if len(users) == 0 {
		return errValidationf("authorized_users must not be empty")
	}
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		if !reHexID.MatchString(u.UserID) {
			return errValidationf("bad authorized user_id %q", u.UserID)
		}
		if seen[u.UserID] {
			return errValidationf("duplicate authorized user %s", u.UserID)
		}
		seen[u.UserID] = true
		if !validBase64(u.EncryptedKey) {
			return errValidationf("bad encrypted_key for %s", u.UserID)
		}
		if !validBase64(u.IV) {
			return errValidationf("bad iv for %s", u.UserID)
		}
	}
	return nil
}

func validateUserRegistered(p *UserRegisteredPayload) error {
	if !reHexID.MatchString(p.UserID) {
		return errValidationf("bad user_id")
	}
	if !reAlias.MatchString(p.Alias) {
		return errValidationf("bad alias")
	}
	if p.Email != "" && !reEmail.MatchString(p.Email) {
		return errValidationf("bad email")
	}
	if !validBase64(p.PublicKey) {
		return errValidationf("bad public_key")
	}
	if !validTags(p.Tags) {
		return errValidationf("bad tags")
	}
	return nil
}

func validateUserJoinedNode(p *UserJoinedNodePayload) error {
	if !reHexID.MatchString(p.UserID) {
		return errValidationf("bad user_id")
	}
	if !validBase64(p.Challenge) {
		return errValidationf("bad challenge")
	}
	if !validBase64(p.PublicKey) {
		return errValidationf("bad public_key")
	}
	if !validBase64(p.Signature) {
		return errValidationf("bad signature")
	}
	return nil
}

func validateNodeRegistered(p *NodeRegisteredPayload) error {
	if !reAlias.MatchString(p.Alias) {
		return errValidationf("bad alias")
	}
	if p.Hostname == "" || len(p.Hostname) > 255 {
		return errValidationf("bad hostname")
	}
	if !validBase64(p.PublicKey) {
		return errValidationf("bad public_key")
	}
	if p.Uptime < 0 || p.TotalSpace < 0 {
		return errValidationf("bad uptime/total_space")
	}
	if p.IP == "" || !validPort(p.Port) {
		return errValidationf("bad endpoint")
	}
	if !validTags(p.Tags) {
		return errValidationf("bad tags")
	}
	return nil
}

func validateNodeStatus(p *NodeStatusPayload) error {
	if p.IP == "" || !validPort(p.Port) {
		return errValidationf("bad endpoint")
	}
	if p.Uptime < 0 || p.TotalSpace < 0 {
		return errValidationf("bad uptime/total_space")
	}
	return nil
}

func validateFileCreated(p *FileCreatedPayload) error {
	if !reHexID.MatchString(p.UserID) {
		return errValidationf("bad user_id")
	}
	if !reHexID.MatchString(p.FileID) {
		return errValidationf("bad file_id")
	}
	if !validFilename(p.Filename) {
		return errValidationf("bad filename")
	}
	if !validSize(p.Size) {
		return errValidationf("bad size")
	}
	if !reMimetype.MatchString(p.Mimetype) {
		return errValidationf("bad mimetype")
	}
	if !reHexID.MatchString(p.SHA256) {
		return errValidationf("bad sha256")
	}
	if !validBase64(p.IV) {
		return errValidationf("bad iv")
	}
	if err := validateAuthorizedUsers(p.AuthorizedUsers); err != nil {
		return err
	}
	if !validTags(p.Tags) {
		return errValidationf("bad tags")
	}
	owner := false
	for _, u := range p.AuthorizedUsers {
		if u.UserID == p.UserID {
			owner = true
			break
		}
	}
	if !owner {
		return errValidationf("owner missing from authorized_users")
	}
	return nil
}

func validateFileShared(p *FileSharedPayload) error {
	if !reHexID.MatchString(p.UserID) {
		return errValidationf("bad user_id")
	}
	if !reHexID.MatchString(p.FileID) {
		return errValidationf("bad file_id")
	}
	if !validFilename(p.Filename) {
		return errValidationf("bad filename")
	}
	return validateAuthorizedUsers(p.AuthorizedUsers)
}

func validateFileRef(userID, fileID, filename string) error {
	if !reHexID.MatchString(userID) {
		return errValidationf("bad user_id")
	}
	if !reHexID.MatchString(fileID) {
		return errValidationf("bad file_id")
	}
	if !validFilename(filename) {
		return errValidationf("bad filename")
	}
	return nil
}

func validateFileRenamed(p *FileRenamedPayload) error {
	if err := validateFileRef(p.UserID, p.FileID, p.Filename); err != nil {
		return err
	}
	if !validFilename(p.NewName) {
		return errValidationf("bad new_name")
	}
	return nil
}

func validateFileReplicated(p *FileReplicatedPayload) error {
	if !reHexID.MatchString(p.FileID) {
		return errValidationf("bad file_id")
	}
	return nil
}
