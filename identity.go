package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// NodeKeys is the sealed key material inside node.json. The private key seed
// and the sealing key are derived from the same passphrase but distinct
// salts, so re-sealing under a new passphrase never changes node_id.
type NodeKeys struct {
	SaltPrivateKey      string `json:"salt_private_key"`
	SaltEncryption      string `json:"salt_encryption"`
	PublicKey           string `json:"public_key"`
	PrivateKeyEncrypted string `json:"private_key_encrypted"`
}

type NodeIdentity struct {
	NodeID       string   `json:"node_id"`
	Alias        string   `json:"alias"`
	Hostname     string   `json:"hostname"`
	Version      string   `json:"version"`
	Port         int      `json:"port"`
	Tags         []string `json:"tags"`
	CreationDate int64    `json:"creation_date"`
	Keys         NodeKeys `json:"keys"`
}

// generateIdentity mints a fresh node identity from a passphrase.
// node_id = hex SHA-256 of the raw 32B Ed25519 public key.
func generateIdentity(pass []byte, alias string, tags []string, port int) (*NodeIdentity, ed25519.PrivateKey, error) {
	saltPriv, err := newSalt()
	if err != nil {
		return nil, nil, err
	}
	seed := kdf(pass, saltPriv)
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	saltEnc, err := newSalt()
	if err != nil {
		return nil, nil, err
	}
	sealed, err := sealBytes(kdf(pass, saltEnc), seed)
	if err != nil {
		return nil, nil, err
	}

	hostname, _ := os.Hostname()
	id := &NodeIdentity{
		NodeID:       sha256Hex(pub),
		Alias:        alias,
		Hostname:     hostname,
		Version:      swVersion,
		Port:         port,
		Tags:         tags,
		CreationDate: time.Now().Unix(),
		Keys: NodeKeys{
			SaltPrivateKey:      base64.StdEncoding.EncodeToString(saltPriv),
			SaltEncryption:      base64.StdEncoding.EncodeToString(saltEnc),
			PublicKey:           base64.StdEncoding.EncodeToString(pub),
			PrivateKeyEncrypted: base64.StdEncoding.EncodeToString(sealed),
		},
	}
	return id, priv, nil
}

// decryptNodeKey recovers the private key from the sealed seed and checks it
// still matches the recorded public key and node_id.
func decryptNodeKey(id *NodeIdentity, pass []byte) (ed25519.PrivateKey, error) {
	saltEnc, err := base64.StdEncoding.DecodeString(id.Keys.SaltEncryption)
	if err != nil {
		return nil, fmt.Errorf("bad salt_encryption: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(id.Keys.PrivateKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("bad private_key_encrypted: %w", err)
	}
	seed, err := openBytes(kdf(pass, saltEnc), sealed)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("sealed seed has wrong length")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	want, err := base64.StdEncoding.DecodeString(id.Keys.PublicKey)
	if err != nil || !bytes.Equal(pub, want) {
		return nil, errors.New("recovered key does not match node.json public key")
	}
	if sha256Hex(pub) != id.NodeID {
		return nil, errors.New("node_id does not match public key")
	}
	return priv, nil
}

func loadIdentity(path string) (*NodeIdentity, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var id NodeIdentity
	if err := json.Unmarshal(b, &id); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &id, nil
}

func saveIdentity(path string, id *NodeIdentity) error {
	b, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// ensureIdentity loads node.json or creates it on first boot. The bool
// reports whether the identity was just minted (a fresh node must announce
// node_registered).
func ensureIdentity(paths *Paths, cfg *Config) (*NodeIdentity, ed25519.PrivateKey, bool, error) {
	if _, err := os.Stat(paths.NodeFile); err == nil {
		id, err := loadIdentity(paths.NodeFile)
		if err != nil {
			return nil, nil, false, err
		}
		pass, err := resolvePassphrase(cfg, false)
		if err != nil {
			return nil, nil, false, err
		}
		priv, err := decryptNodeKey(id, pass)
		if err != nil {
			return nil, nil, false, err
		}
		log.Infof("[identity] node %s (%s) loaded", shortID(id.NodeID), id.Alias)
		return id, priv, false, nil
	}

	pass, err := resolvePassphrase(cfg, true)
	if err != nil {
		return nil, nil, false, err
	}
	id, priv, err := generateIdentity(pass, cfg.Alias, cfg.Tags, cfg.APIPort)
	if err != nil {
		return nil, nil, false, err
	}
	if err := saveIdentity(paths.NodeFile, id); err != nil {
		return nil, nil, false, fmt.Errorf("write node.json: %w", err)
	}
	log.Infof("[identity] new node %s (%s) created", shortID(id.NodeID), id.Alias)
	return id, priv, true, nil
}

// resolvePassphrase takes the configured passphrase or prompts on the
// terminal (twice for a fresh identity).
func resolvePassphrase(cfg *Config, fresh bool) ([]byte, error) {
	if cfg.Passphrase != "" {
		return []byte(cfg.Passphrase), nil
	}
	if !fresh {
		return promptPassphrase("Passphrase: ")
	}
	for {
		p1, err := promptPassphrase("New passphrase: ")
		if err != nil {
			return nil, err
		}
		if len(p1) < 8 {
			fmt.Println("passphrase must be at least 8 characters")
			continue
		}
		p2, err := promptPassphrase("Repeat passphrase: ")
		if err != nil {
			return nil, err
		}
		if bytes.Equal(p1, p2) {
			return p1, nil
		}
		fmt.Println("passphrases do not match, try again")
	}
}

func promptPassphrase(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return pass, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
