package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Ledger is the client for the append-only tangle node. Envelopes travel as
// tagged-data blocks: tag = hex of "dfs3", data = hex of the envelope JSON.
type Ledger struct {
	baseURL string
	client  *http.Client
}

func newLedger(baseURL string) *Ledger {
	return &Ledger{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: ledgerTimeout},
	}
}

type ledgerPayload struct {
	Type int    `json:"type"`
	Tag  string `json:"tag"`
	Data string `json:"data"`
}

type ledgerBlock struct {
	ProtocolVersion int           `json:"protocolVersion"`
	Payload         ledgerPayload `json:"payload"`
}

// Publish posts a signed envelope and returns the assigned block id.
func (l *Ledger) Publish(ctx context.Context, env *Envelope) (string, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	blk := ledgerBlock{
		ProtocolVersion: ledgerProtoVersion,
		Payload: ledgerPayload{
			Type: ledgerPayloadType,
			Tag:  "0x" + hex.EncodeToString([]byte(ledgerTag)),
			Data: "0x" + hex.EncodeToString(raw),
		},
	}
	body, err := json.Marshal(blk)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/core/v2/blocks", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ledger rejected block: %s %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out struct {
		BlockID string `json:"blockId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ledger response: %w", err)
	}
	if !reBlockID.MatchString(out.BlockID) {
		return "", fmt.Errorf("ledger returned bad block id %q", out.BlockID)
	}
	return out.BlockID, nil
}

// Fetch retrieves a block and decodes the envelope from its data payload.
func (l *Ledger) Fetch(ctx context.Context, blockID string) (*Envelope, error) {
	if !reBlockID.MatchString(blockID) {
		return nil, errValidationf("bad block_id %q", blockID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/api/core/v2/blocks/"+blockID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFoundf("block %s not on ledger", blockID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ledger get %s: %s", blockID, resp.Status)
	}

	var blk ledgerBlock
	if err := json.NewDecoder(resp.Body).Decode(&blk); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	if blk.Payload.Type != ledgerPayloadType || blk.Payload.Data == "" {
		return nil, fmt.Errorf("block %s carries no tagged data", blockID)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(blk.Payload.Data, "0x"))
	if err != nil {
		return nil, fmt.Errorf("block data not hex: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("block data not an envelope: %w", err)
	}
	return &env, nil
}
