package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// seedFromPeer replays a peer's event index through the normal ingestion
// pipeline. Events arrive oldest-first, so dependencies land before their
// dependents; blocks that fail anyway stay unindexed and a later seed run
// picks them up. The seeding flag suppresses clone scheduling while the
// replay is in flight.
func (a *App) seedFromPeer(ctx context.Context, seedURL string) error {
	a.seeding.Store(true)
	defer a.seeding.Store(false)

	entries, err := a.fetchEventIndex(ctx, seedURL)
	if err != nil {
		return err
	}
	log.Infof("[seed] %d event(s) listed by %s", len(entries), seedURL)

	var applied, skipped, failed int
	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		seen, err := a.store.HasEvent(e.BlockID)
		if err != nil {
			return err
		}
		if seen {
			skipped++
			continue
		}
		if err := a.ingestBlock(ctx, e.BlockID); err != nil {
			log.Warnf("[seed] block %s: %v", shortID(e.BlockID), err)
			failed++
			continue
		}
		applied++
	}
	log.Infof("[seed] done: %d applied, %d already known, %d failed", applied, skipped, failed)
	return nil
}

// fetchEventIndex pulls the full event listing from a peer node.
func (a *App) fetchEventIndex(ctx context.Context, seedURL string) ([]EventEntry, error) {
	url := strings.TrimRight(seedURL, "/") + "/api/v1/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: seedTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("seed peer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("seed peer answered %s", resp.Status)
	}
	var entries []EventEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("seed listing: %w", err)
	}
	return entries, nil
}
