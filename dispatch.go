package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// handleAnnouncement is the bus entry point of the ingestion pipeline.
// Malformed or unverifiable input is logged and dropped; the listener
// never dies over a bad message.
func (a *App) handleAnnouncement(ctx context.Context, raw []byte) {
	var ann Announcement
	if err := json.Unmarshal(raw, &ann); err != nil {
		log.Warnf("[dispatch] unparseable announcement: %v", err)
		return
	}
	if err := validateAnnouncement(&ann); err != nil {
		log.Warnf("[dispatch] invalid announcement: %v", err)
		return
	}
	log.Debugf("[dispatch] announcement %s (%s) from %s",
		shortID(ann.BlockID), ann.EventType, shortID(ann.NodeID))
	if err := a.ingestBlock(ctx, ann.BlockID); err != nil {
		log.Warnf("[dispatch] block %s not ingested: %v", shortID(ann.BlockID), err)
	}
}

// ingestBlock fetches the envelope for a block from the ledger and runs it
// through the pipeline. Already-indexed blocks are skipped up front.
func (a *App) ingestBlock(ctx context.Context, blockID string) error {
	seen, err := a.store.HasEvent(blockID)
	if err != nil {
		return err
	}
	if seen {
		log.Debugf("[dispatch] block %s already indexed", shortID(blockID))
		return nil
	}
	env, err := a.ledger.Fetch(ctx, blockID)
	if err != nil {
		return err
	}
	return a.ingest(ctx, blockID, env)
}

// ingest verifies, applies and indexes one envelope. The event index is the
// linearization point: a block either commits with its handler effects
// visible, or leaves no trace and can be retried (e.g. by seeding).
// Handlers are idempotent, so racing ingests of the same block are safe.
func (a *App) ingest(ctx context.Context, blockID string, env *Envelope) error {
	if err := validateEnvelope(env); err != nil {
		return err
	}
	pub, err := a.emitterKey(env)
	if err != nil {
		return fmt.Errorf("emitter %s: %w", shortID(env.NodeID), err)
	}
	if err := verifyEnvelope(env, pub); err != nil {
		return fmt.Errorf("signature for %s: %w", shortID(blockID), err)
	}
	if err := a.applyEvent(env); err != nil {
		return fmt.Errorf("apply %s: %w", env.EventType, err)
	}
	inserted, err := a.store.InsertEvent(&EventEntry{
		BlockID:   blockID,
		EventType: env.EventType,
		Timestamp: env.Timestamp,
		NodeID:    env.NodeID,
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", shortID(blockID), err)
	}
	if inserted {
		log.Infof("[dispatch] %s applied from %s", env.EventType, shortID(blockID))
	}
	return nil
}

// emitterKey resolves the public key that must have signed the envelope.
// node_registered self-authorizes via its payload (the emitter is unknown
// by definition); everything else requires a registered emitter. Our own
// key comes straight from the identity, so a node can always replay its
// own events.
func (a *App) emitterKey(env *Envelope) (ed25519.PublicKey, error) {
	if env.NodeID == a.nodeID() {
		return a.pub, nil
	}
	if env.EventType == evNodeRegistered {
		var p NodeRegisteredPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		pub, err := publicKeyFromB64(p.PublicKey)
		if err != nil {
			return nil, err
		}
		if sha256Hex(pub) != env.NodeID {
			return nil, errValidationf("node_id does not match public key")
		}
		return pub, nil
	}
	return a.store.NodePublicKey(env.NodeID)
}

// applyEvent routes a verified envelope to its handler.
func (a *App) applyEvent(env *Envelope) error {
	switch env.EventType {
	case evNodeRegistered:
		return a.applyNodeRegistered(env)
	case evNodeStatus:
		return a.applyNodeStatus(env)
	case evUserRegistered:
		return a.applyUserRegistered(env)
	case evUserJoinedNode:
		return a.applyUserJoinedNode(env)
	case evFileCreated:
		return a.applyFileCreated(env)
	case evFileShared:
		return a.applyFileShared(env)
	case evFileAccessed:
		return a.applyFileAccessed(env)
	case evFileRenamed:
		return a.applyFileRenamed(env)
	case evFileDeleted:
		return a.applyFileDeleted(env)
	case evFileReplicated:
		return a.applyFileReplicated(env)
	case evFileCopied:
		// reserved event type: accepted, indexed, no state change
		return nil
	default:
		log.Warnf("[dispatch] no handler for event type %q, skipping", env.EventType)
		return nil
	}
}

func (a *App) applyNodeRegistered(env *Envelope) error {
	var p NodeRegisteredPayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}
	if err := validateNodeRegistered(&p); err != nil {
		return err
	}
	rec := &NodeRecord{
		NodeID:          env.NodeID,
		Alias:           p.Alias,
		Hostname:        p.Hostname,
		PublicKey:       p.PublicKey,
		Platform:        p.Platform,
		SoftwareVersion: p.SoftwareVersion,
		Uptime:          p.Uptime,
		TotalSpace:      p.TotalSpace,
		IP:              p.IP,
		Port:            p.Port,
		Tags:            p.Tags,
		Version:         p.Version,
		CreationDate:    env.Timestamp,
		LastSeen:        env.Timestamp,
	}
	if err := a.store.SaveNode(rec); err != nil {
		return err
	}
	log.Infof("[dispatch] node %s (%s) registered", shortID(env.NodeID), p.Alias)
	return nil
}

func (a *App) applyNodeStatus(env *Envelope) error {
	var p NodeStatusPayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}
	if err := validateNodeStatus(&p); err != nil {
		return err
	}
	found, err := a.store.UpdateNodeStatus(env.NodeID, p.IP, p.Port, p.Uptime, p.TotalSpace, env.Timestamp)
	if err != nil {
		return err
	}
	if !found {
		log.Warnf("[dispatch] node_status for unknown node %s", shortID(env.NodeID))
	}
	return nil
}

func (a *App) applyUserRegistered(env *Envelope) error {
	var p UserRegisteredPayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}
	if err := validateUserRegistered(&p); err != nil {
		return err
	}
	rec := &UserRecord{
		UserID:       p.UserID,
		Alias:        p.Alias,
		Name:         p.Name,
		Email:        p.Email,
		PublicKey:    p.PublicKey,
		Tags:         p.Tags,
		Version:      p.Version,
		CreationDate: env.Timestamp,
		LastSeen:     env.Timestamp,
	}
	if err := a.store.SaveUser(rec); err != nil {
		return err
	}
	log.Infof("[dispatch] user %s (%s) registered", shortID(p.UserID), p.Alias)
	return nil
}

func (a *App) applyUserJoinedNode(env *Envelope) error {
	var p UserJoinedNodePayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}
	if err := validateUserJoinedNode(&p); err != nil {
		return err
	}
	found, err := a.store.TouchUser(p.UserID, env.Timestamp)
	if err != nil {
		return err
	}
	if !found {
		log.Warnf("[dispatch] user_joined_node for unknown user %s", shortID(p.UserID))
	}
	return nil
}

// applyFileCreated writes the metadata document, links the owner's entry
// and, for small files, may schedule a background clone from the emitter.
// The emitter is the first replica holder.
func (a *App) applyFileCreated(env *Envelope) error {
	var p FileCreatedPayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}
	if err := validateFileCreated(&p); err != nil {
		return err
	}
	m := &FileMetadata{
		FileID:          p.FileID,
		OwnerID:         p.UserID,
		Size:            p.Size,
		Mimetype:        p.Mimetype,
		SHA256:          p.SHA256,
		IV:              p.IV,
		CreationTime:    env.Timestamp,
		ReplicaNodes:    []string{env.NodeID},
		AuthorizedUsers: p.AuthorizedUsers,
		Tags:            p.Tags,
		Version:         p.Version,
	}
	if err := a.meta.Create(m); err != nil {
		return err
	}
	name, err := a.entries.Link(p.UserID, p.Filename, a.meta.path(p.FileID))
	if err != nil {
		return err
	}
	log.Infof("[dispatch] file %q (%s) created for %s", name, shortID(p.FileID), shortID(p.UserID))

	a.maybeScheduleClone(env.NodeID, &p)
	return nil
}

// applyFileShared merges the advertised grants into the metadata and links
// an entry for every user that was not authorized before. A missing
// metadata document means file_created has not arrived yet: warn and leave
// the block unindexed so seeding can retry it.
func (a *App) applyFileShared(env *Envelope) error {
	var p FileSharedPayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}
	if err := validateFileShared(&p); err != nil {
		return err
	}
	added, err := a.meta.MergeAuthorized(p.FileID, p.AuthorizedUsers)
	if err != nil {
		return err
	}
	for _, u := range added {
		name, err := a.entries.Link(u.UserID, p.Filename, a.meta.path(p.FileID))
		if err != nil {
			return err
		}
		log.Infof("[dispatch] file %s shared with %s as %q", shortID(p.FileID), shortID(u.UserID), name)
	}
	return nil
}

// applyFileAccessed is audit-only: the event index entry is the record.
func (a *App) applyFileAccessed(env *Envelope) error {
	var p FileAccessedPayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}
	if err := validateFileRef(p.UserID, p.FileID, p.Filename); err != nil {
		return err
	}
	log.Debugf("[dispatch] file %s accessed by %s", shortID(p.FileID), shortID(p.UserID))
	return nil
}

func (a *App) applyFileRenamed(env *Envelope) error {
	var p FileRenamedPayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}
	if err := validateFileRenamed(&p); err != nil {
		return err
	}
	name, err := a.entries.Rename(p.UserID, p.Filename, p.NewName)
	if err != nil {
		// a rename replay after the entry already moved is a no-op
		if errorKindIs(err, errNotFound) && a.entries.Exists(p.UserID, p.NewName) {
			return nil
		}
		return err
	}
	log.Infof("[dispatch] entry %q renamed to %q for %s", p.Filename, name, shortID(p.UserID))
	return nil
}

func (a *App) applyFileDeleted(env *Envelope) error {
	var p FileDeletedPayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}
	if err := validateFileRef(p.UserID, p.FileID, p.Filename); err != nil {
		return err
	}
	if err := a.entries.Remove(p.UserID, p.Filename); err != nil {
		// a delete replay against an already-removed entry is a no-op
		if errorKindIs(err, errNotFound) {
			return nil
		}
		return err
	}
	log.Infof("[dispatch] entry %q removed for %s", p.Filename, shortID(p.UserID))
	return nil
}

func (a *App) applyFileReplicated(env *Envelope) error {
	var p FileReplicatedPayload
	if err := decodePayload(env, &p); err != nil {
		return err
	}
	if err := validateFileReplicated(&p); err != nil {
		return err
	}
	if err := a.meta.AddReplica(p.FileID, env.NodeID); err != nil {
		return err
	}
	log.Debugf("[dispatch] replica of %s on %s", shortID(p.FileID), shortID(env.NodeID))
	return nil
}
