package main

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// App is the process-scope context: identity, config and the handles every
// component needs. It is built once in main and passed explicitly; there
// are no package globals besides constants.
type App struct {
	cfg      *Config
	paths    *Paths
	identity *NodeIdentity
	priv     ed25519.PrivateKey
	pub      ed25519.PublicKey

	store   *Store
	meta    *MetaStore
	entries *EntryStore
	blobs   *BlobStore
	ledger  *Ledger
	auth    *AuthStore

	// bus may be nil: the node then runs without a mesh (single node,
	// tests) and events still commit locally via the publish path.
	bus *Bus

	// peers is the HTTP client for node-to-node blob fetches. The timeout
	// bounds response headers only; body streaming runs under the caller's
	// context.
	peers *http.Client

	seeding atomic.Bool
	started time.Time
}

func newApp(cfg *Config, paths *Paths, id *NodeIdentity, priv ed25519.PrivateKey, store *Store, ledger *Ledger) (*App, error) {
	pub, err := publicKeyFromB64(id.Keys.PublicKey)
	if err != nil {
		return nil, err
	}
	return &App{
		cfg:      cfg,
		paths:    paths,
		identity: id,
		priv:     priv,
		pub:      pub,
		store:    store,
		meta:     newMetaStore(paths.MetaDir),
		entries:  newEntryStore(paths.UsersDir),
		blobs:    newBlobStore(paths.StorageDir),
		ledger:   ledger,
		auth:     newAuthStore(challengeTTL, sessionTTL),
		peers: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: peerTimeout},
		},
		started: time.Now(),
	}, nil
}

func (a *App) nodeID() string { return a.identity.NodeID }

// publishEvent signs a payload, appends it to the ledger, announces the
// block on the bus and applies the event locally. The listener skips
// self-published announcements, so the local apply here is the only one.
func (a *App) publishEvent(ctx context.Context, eventType string, payload any) (string, error) {
	env, err := buildSignedEvent(eventType, a.nodeID(), a.priv, payload)
	if err != nil {
		return "", wrapInternal("build event", err)
	}
	blockID, err := a.ledger.Publish(ctx, env)
	if err != nil {
		return "", wrapInternal("ledger publish", err)
	}
	log.Infof("[events] %s published as %s", eventType, shortID(blockID))

	if a.bus != nil {
		ann := &Announcement{
			BlockID:   blockID,
			EventType: env.EventType,
			Timestamp: env.Timestamp,
			NodeID:    env.NodeID,
		}
		if err := a.bus.Announce(ctx, ann); err != nil {
			return "", wrapInternal("bus announce", err)
		}
	}

	if err := a.ingest(ctx, blockID, env); err != nil {
		return "", wrapInternal("apply own event", err)
	}
	return blockID, nil
}

// advertiseIP is the endpoint address published in node events.
func (a *App) advertiseIP() string {
	if a.cfg.AdvertiseIP != "" {
		return a.cfg.AdvertiseIP
	}
	return localIP()
}

func (a *App) nodeRegisteredPayload() *NodeRegisteredPayload {
	hostname, _ := os.Hostname()
	return &NodeRegisteredPayload{
		Alias:           a.identity.Alias,
		Hostname:        hostname,
		PublicKey:       a.identity.Keys.PublicKey,
		Platform:        platformString(),
		SoftwareVersion: swVersion,
		Uptime:          uptimeSeconds(),
		TotalSpace:      totalSpace(a.paths.DataDir),
		IP:              a.advertiseIP(),
		Port:            a.cfg.APIPort,
		Tags:            a.identity.Tags,
		Version:         1,
	}
}

func (a *App) nodeStatusPayload() *NodeStatusPayload {
	return &NodeStatusPayload{
		IP:         a.advertiseIP(),
		Port:       a.cfg.APIPort,
		Uptime:     uptimeSeconds(),
		TotalSpace: totalSpace(a.paths.DataDir),
	}
}

// statusLoop periodically announces this node's endpoint and capacity.
// First emission shortly after startup so peers learn a rebooted node's
// address without waiting a full interval.
func (a *App) statusLoop(ctx context.Context) {
	t := time.NewTimer(statusStartupDelay)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := a.publishEvent(ctx, evNodeStatus, a.nodeStatusPayload()); err != nil {
				log.Warnf("[status] publish failed: %v", err)
			}
			t.Reset(a.cfg.StatusInterval)
		}
	}
}
