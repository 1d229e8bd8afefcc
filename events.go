package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the signed wire record of a domain event. The signature is
// base64 Ed25519 over the canonical JSON with the signature field removed.
type Envelope struct {
	EventType string          `json:"event_type"`
	Timestamp int64           `json:"timestamp"`
	NodeID    string          `json:"node_id"`
	Protocol  string          `json:"protocol"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature,omitempty"`
}

// Announcement is the bus message pointing peers at a ledger block.
type Announcement struct {
	BlockID   string `json:"block_id"`
	EventType string `json:"event_type"`
	Timestamp int64  `json:"timestamp"`
	NodeID    string `json:"node_id"`
}

// AuthorizedUser grants one user access to a file: the file key wrapped
// under that user's public key, plus the wrapping IV.
type AuthorizedUser struct {
	UserID       string `json:"user_id"`
	EncryptedKey string `json:"encrypted_key"`
	IV           string `json:"iv"`
}

type UserRegisteredPayload struct {
	UserID    string   `json:"user_id"`
	Alias     string   `json:"alias"`
	Name      string   `json:"name,omitempty"`
	Email     string   `json:"email,omitempty"`
	PublicKey string   `json:"public_key"`
	Tags      []string `json:"tags,omitempty"`
	Version   int      `json:"version"`
}

// UserJoinedNodePayload records a login. Signature here is the user's own
// signature over the challenge text, not the envelope signature.
type UserJoinedNodePayload struct {
	UserID    string `json:"user_id"`
	Challenge string `json:"challenge"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

type NodeRegisteredPayload struct {
	Alias           string   `json:"alias"`
	Hostname        string   `json:"hostname"`
	PublicKey       string   `json:"public_key"`
	Platform        string   `json:"platform"`
	SoftwareVersion string   `json:"software_version"`
	Uptime          int64    `json:"uptime"`
	TotalSpace      int64    `json:"total_space"`
	IP              string   `json:"ip"`
	Port            int      `json:"port"`
	Tags            []string `json:"tags,omitempty"`
	Version         int      `json:"version"`
}

type NodeStatusPayload struct {
	IP         string `json:"ip"`
	Port       int    `json:"port"`
	Uptime     int64  `json:"uptime"`
	TotalSpace int64  `json:"total_space"`
}

type FileCreatedPayload struct {
	UserID          string           `json:"user_id"`
	FileID          string           `json:"file_id"`
	Filename        string           `json:"filename"`
	Size            int64            `json:"size"`
	Mimetype        string           `json:"mimetype"`
	SHA256          string           `json:"sha256"`
	IV              string           `json:"iv"`
	AuthorizedUsers []AuthorizedUser `json:"authorized_users"`
	Tags            []string         `json:"tags,omitempty"`
	Version         int              `json:"version"`
}

type FileSharedPayload struct {
	UserID          string           `json:"user_id"`
	FileID          string           `json:"file_id"`
	Filename        string           `json:"filename"`
	AuthorizedUsers []AuthorizedUser `json:"authorized_users"`
}

type FileAccessedPayload struct {
	UserID   string `json:"user_id"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
}

type FileRenamedPayload struct {
	UserID   string `json:"user_id"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	NewName  string `json:"new_name"`
}

type FileDeletedPayload struct {
	UserID   string `json:"user_id"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
}

type FileReplicatedPayload struct {
	FileID string `json:"file_id"`
}

// buildSignedEvent wraps a payload in a signed envelope for this node.
func buildSignedEvent(eventType, nodeID string, priv ed25519.PrivateKey, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	env := &Envelope{
		EventType: eventType,
		Timestamp: time.Now().Unix(),
		NodeID:    nodeID,
		Protocol:  protocol,
		Payload:   raw,
	}
	if err := signEnvelope(env, priv); err != nil {
		return nil, err
	}
	return env, nil
}

// decodePayload strictly decodes an envelope payload; unknown fields are a
// schema violation.
func decodePayload(env *Envelope, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(env.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errValidationf("bad %s payload: %v", env.EventType, err)
	}
	return nil
}
