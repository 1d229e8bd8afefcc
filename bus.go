package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
	log "github.com/sirupsen/logrus"
)

// Bus broadcasts block announcements to the mesh and feeds received ones
// into the ingestion pipeline. GossipSub covers the connected mesh;
// anything missed while offline is recovered by seeding.
type Bus struct {
	host  host.Host
	topic *pubsub.Topic
	sub   *pubsub.Subscription
}

type busNotifee struct{ h host.Host }

func (n *busNotifee) HandlePeerFound(info peer.AddrInfo) {
	if err := n.h.Connect(context.Background(), info); err != nil {
		log.Debugf("[bus] mdns connect %s: %v", info.ID, err)
	}
}

// newBus builds the libp2p host (the node key doubles as the transport
// identity), joins the announcement topic, starts mDNS and dials any
// configured bootstrap peers.
func newBus(ctx context.Context, cfg *Config, priv ed25519.PrivateKey) (*Bus, error) {
	libPriv, _, err := crypto.KeyPairFromStdKey(&priv)
	if err != nil {
		return nil, fmt.Errorf("bus identity: %w", err)
	}
	h, err := libp2p.New(
		libp2p.Identity(libPriv),
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.BusPort)),
	)
	if err != nil {
		return nil, fmt.Errorf("bus host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("gossipsub: %w", err)
	}
	topic, err := ps.Join(cfg.BusTopic)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("join %s: %w", cfg.BusTopic, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.BusTopic, err)
	}

	if err := mdns.NewMdnsService(h, mdnsTag, &busNotifee{h}).Start(); err != nil {
		log.Warnf("[bus] mdns not available: %v", err)
	}
	for _, s := range cfg.BootstrapPeers {
		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			log.Warnf("[bus] bad bootstrap addr %q: %v", s, err)
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			log.Warnf("[bus] bad bootstrap addr %q: %v", s, err)
			continue
		}
		if err := h.Connect(ctx, *info); err != nil {
			log.Warnf("[bus] bootstrap %s: %v", info.ID, err)
			continue
		}
		log.Infof("[bus] connected bootstrap %s", info.ID)
	}

	log.Infof("[bus] peer %s on topic %s (port %d)", h.ID(), cfg.BusTopic, cfg.BusPort)
	return &Bus{host: h, topic: topic, sub: sub}, nil
}

// Announce publishes one announcement to the topic.
func (b *Bus) Announce(ctx context.Context, ann *Announcement) error {
	raw, err := json.Marshal(ann)
	if err != nil {
		return err
	}
	return b.topic.Publish(ctx, raw)
}

// Listen pumps received announcements into handle until ctx ends.
// Self-published messages are skipped: the emitter applies its own events
// synchronously at publish time.
func (b *Bus) Listen(ctx context.Context, handle func(context.Context, []byte)) {
	for {
		msg, err := b.sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("[bus] subscription closed: %v", err)
			return
		}
		if msg.ReceivedFrom == b.host.ID() {
			continue
		}
		handle(ctx, msg.Data)
	}
}

func (b *Bus) Close() error {
	b.sub.Cancel()
	if err := b.topic.Close(); err != nil {
		log.Debugf("[bus] topic close: %v", err)
	}
	return b.host.Close()
}
