package main

import (
	"context"
	"io"
	"sort"

	log "github.com/sirupsen/logrus"
)

// maybeScheduleClone kicks off a background pull of a freshly announced
// file when this node elects itself a replica holder. The pull is detached
// from ingestion: a slow peer must never stall the event pipeline.
func (a *App) maybeScheduleClone(emitterID string, p *FileCreatedPayload) {
	if !a.cloneWanted(emitterID, p) {
		return
	}
	log.Infof("[clone] pulling %s (%d bytes) from %s", shortID(p.FileID), p.Size, shortID(emitterID))
	go a.cloneFile(emitterID, p)
}

// cloneWanted is the eligibility gate. Policy "off" never clones; "any"
// clones every small file the node does not already hold; "strict" adds
// the production gates: a settled node (no seeding in progress, a day of
// uptime), room for twice the ciphertext, and a seat among the top-K
// largest nodes in the registry.
func (a *App) cloneWanted(emitterID string, p *FileCreatedPayload) bool {
	if a.cfg.ClonePolicy == "off" {
		return false
	}
	if emitterID == a.nodeID() || a.blobs.Has(p.FileID) {
		return false
	}
	if p.Size >= fragmentThreshold {
		return false
	}
	if a.seeding.Load() {
		log.Debugf("[clone] seeding in progress, skipping %s", shortID(p.FileID))
		return false
	}
	if a.cfg.ClonePolicy == "any" {
		return true
	}

	if uptimeSeconds() < cloneMinUptime {
		return false
	}
	need := a.cfg.MinFreeSpace
	if 2*p.Size > need {
		need = 2 * p.Size
	}
	if free := freeSpace(a.paths.StorageDir); free < need {
		log.Debugf("[clone] %d bytes free, need %d, skipping %s", free, need, shortID(p.FileID))
		return false
	}
	return a.amongLargestNodes(a.cfg.CloneTopK)
}

// amongLargestNodes reports whether this node ranks in the top k of the
// registry by advertised capacity. Ties break on node_id so every node
// ranks the mesh identically.
func (a *App) amongLargestNodes(k int) bool {
	nodes, err := a.store.ListNodes()
	if err != nil {
		log.Warnf("[clone] node ranking unavailable: %v", err)
		return false
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].TotalSpace != nodes[j].TotalSpace {
			return nodes[i].TotalSpace > nodes[j].TotalSpace
		}
		return nodes[i].NodeID < nodes[j].NodeID
	})
	for i, n := range nodes {
		if i >= k {
			return false
		}
		if n.NodeID == a.nodeID() {
			return true
		}
	}
	return false
}

// cloneFile pulls the ciphertext from the emitter and stores it. WriteBytes
// verifies the hash, so a bad transfer is dropped, not stored. Success is
// announced with file_replicated.
func (a *App) cloneFile(emitterID string, p *FileCreatedPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), cloneTimeout)
	defer cancel()

	rec, err := a.store.GetNode(emitterID)
	if err != nil {
		log.Warnf("[clone] emitter %s not in registry: %v", shortID(emitterID), err)
		return
	}
	resp, err := a.fetchBlobFrom(ctx, a.peerBaseURL(rec), p.FileID)
	if err != nil {
		log.Warnf("[clone] fetch %s: %v", shortID(p.FileID), err)
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.Size+1))
	if err != nil {
		log.Warnf("[clone] read %s: %v", shortID(p.FileID), err)
		return
	}
	if int64(len(data)) != p.Size {
		log.Warnf("[clone] %s: got %d bytes, want %d", shortID(p.FileID), len(data), p.Size)
		return
	}
	if err := a.blobs.WriteBytes(p.FileID, data); err != nil {
		log.Warnf("[clone] store %s: %v", shortID(p.FileID), err)
		return
	}
	if _, err := a.publishEvent(ctx, evFileReplicated, &FileReplicatedPayload{FileID: p.FileID}); err != nil {
		log.Warnf("[clone] file_replicated for %s not published: %v", shortID(p.FileID), err)
		return
	}
	log.Infof("[clone] replica of %s stored", shortID(p.FileID))
}
