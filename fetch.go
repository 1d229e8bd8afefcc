package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
)

func (a *App) peerBaseURL(rec *NodeRecord) string {
	return fmt.Sprintf("%s://%s", a.cfg.PeerScheme, rec.Endpoint())
}

// fetchBlobFrom GETs one peer's public blob endpoint. Anything but a 200
// counts as a miss.
func (a *App) fetchBlobFrom(ctx context.Context, baseURL, fileID string) (*http.Response, error) {
	url := baseURL + "/api/v1/files/" + fileID + "/data"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.peers.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s answered %d", baseURL, resp.StatusCode)
	}
	return resp, nil
}

type fetchResult struct {
	idx  int
	resp *http.Response
}

// racePeers asks every replica holder for the blob at once and hands back
// the first 200 response. Losers are cancelled as soon as a winner shows;
// late winners are drained and discarded. The caller must invoke release
// once the body is consumed.
func (a *App) racePeers(ctx context.Context, fileID string, nodeIDs []string) (*http.Response, func(), error) {
	var peers []*NodeRecord
	for _, id := range nodeIDs {
		if id == a.nodeID() {
			continue
		}
		rec, err := a.store.GetNode(id)
		if err != nil {
			log.Debugf("[fetch] replica node %s not in registry, skipping", shortID(id))
			continue
		}
		peers = append(peers, rec)
	}
	if len(peers) == 0 {
		return nil, nil, errNotFoundf("no reachable replica holds %s", shortID(fileID))
	}
	log.Debugf("[fetch] racing %d peer(s) for %s", len(peers), shortID(fileID))

	results := make(chan fetchResult, len(peers))
	stops := make([]context.CancelFunc, len(peers))
	for i, rec := range peers {
		pctx, stop := context.WithCancel(ctx)
		stops[i] = stop
		go func(i int, rec *NodeRecord) {
			resp, err := a.fetchBlobFrom(pctx, a.peerBaseURL(rec), fileID)
			if err != nil {
				log.Debugf("[fetch] %s: %v", shortID(rec.NodeID), err)
				results <- fetchResult{idx: i}
				return
			}
			results <- fetchResult{idx: i, resp: resp}
		}(i, rec)
	}

	for received := 1; received <= len(peers); received++ {
		r := <-results
		if r.resp == nil {
			continue
		}
		for i, stop := range stops {
			if i != r.idx {
				stop()
			}
		}
		// reap the cancelled losers in the background; a late 200 still
		// owns a body that must be closed
		remaining := len(peers) - received
		go func() {
			for j := 0; j < remaining; j++ {
				if late := <-results; late.resp != nil {
					late.resp.Body.Close()
				}
			}
		}()
		stop := stops[r.idx]
		resp := r.resp
		release := func() {
			resp.Body.Close()
			stop()
		}
		return resp, release, nil
	}

	for _, stop := range stops {
		stop()
	}
	return nil, nil, errNotFoundf("no replica served %s", shortID(fileID))
}

// streamRemote proxies a peer's blob to the client while writing it to a
// part file. A complete transfer whose bytes hash to file_id commits the
// part and publishes file_replicated; anything short of that aborts the
// part, so a lying peer can at most spoil one download, never the store.
func (a *App) streamRemote(w io.Writer, body io.Reader, m *FileMetadata) error {
	part, err := a.blobs.NewPart(m.FileID)
	if err != nil {
		return wrapInternal("open part file", err)
	}
	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, part, hash), body)
	if cerr := part.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		a.blobs.AbortPart(part.Name())
		return fmt.Errorf("relay %s: %w", shortID(m.FileID), err)
	}
	if n != m.Size {
		a.blobs.AbortPart(part.Name())
		return errIntegrityf("peer sent %d bytes for %s, want %d", n, shortID(m.FileID), m.Size)
	}
	if hex.EncodeToString(hash.Sum(nil)) != m.FileID {
		a.blobs.AbortPart(part.Name())
		return errIntegrityf("peer content does not hash to %s", shortID(m.FileID))
	}
	if err := a.blobs.CommitPart(part.Name(), m.FileID); err != nil {
		return wrapInternal("commit relayed blob", err)
	}
	log.Infof("[fetch] stored local replica of %s while relaying", shortID(m.FileID))

	// the request context dies with the response, so the publish gets its own
	if _, err := a.publishEvent(context.Background(), evFileReplicated, &FileReplicatedPayload{FileID: m.FileID}); err != nil {
		log.Warnf("[fetch] file_replicated for %s not published: %v", shortID(m.FileID), err)
	}
	return nil
}
