package main

import (
	"regexp"
	"time"
)

const (
	swVersion = "dfs3-node/0.1.0"
	protocol  = "dfs3/1.0"

	// ledger tagged-data framing
	ledgerTag          = "dfs3"
	ledgerPayloadType  = 5
	ledgerProtoVersion = 2

	maxFileSize       = 10 << 20 // 10 MiB ciphertext cap
	fragmentThreshold = 1 << 20  // clone only below this size
	uploadOverhead    = 64 << 10 // multipart framing + metadata part

	challengeTTL       = 5 * time.Minute
	sessionTTL         = 30 * time.Minute
	challengeCacheSize = 128
	sessionCacheSize   = 256

	peerTimeout   = 5 * time.Second
	ledgerTimeout = 10 * time.Second
	seedTimeout   = 10 * time.Second
	cloneTimeout  = 30 * time.Second

	statusStartupDelay = 15 * time.Second

	mdnsTag = "dfs3-mdns"

	cloneMinUptime = 24 * 60 * 60 // seconds

	registryCacheSize = 256
	registryCacheTTL  = 5 * time.Minute
)

// Event types carried in envelopes. file_copied is reserved: accepted on
// ingest, never emitted.
const (
	evUserRegistered = "user_registered"
	evUserJoinedNode = "user_joined_node"
	evNodeRegistered = "node_registered"
	evNodeStatus     = "node_status"
	evFileCreated    = "file_created"
	evFileShared     = "file_shared"
	evFileAccessed   = "file_accessed"
	evFileRenamed    = "file_renamed"
	evFileDeleted    = "file_deleted"
	evFileReplicated = "file_replicated"
	evFileCopied     = "file_copied"
)

var (
	reHexID    = regexp.MustCompile(`^[a-f0-9]{64}$`)
	reBlockID  = regexp.MustCompile(`^0x[a-f0-9]{64}$`)
	reAlias    = regexp.MustCompile(`^[a-z0-9_-]{3,20}$`)
	reTag      = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)
	reMimetype = regexp.MustCompile(`^[a-z0-9.+-]+/[a-z0-9.+-]+$`)
	reBase64   = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)
	reEmail    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)
