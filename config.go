package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	DataDir        string
	BindIP         string
	APIPort        int
	TLSCert        string
	TLSKey         string
	AdvertiseIP    string // endpoint published in node events; autodetected if empty
	LedgerURL      string
	BusTopic       string
	BusPort        int
	BootstrapPeers []string
	SeedURL        string
	Alias          string
	Tags           []string
	StatusInterval time.Duration
	ClonePolicy    string // strict | any | off
	CloneTopK      int
	MinFreeSpace   int64
	PeerScheme     string
	CORSOrigin     string
	LogLevel       string
	Passphrase     string // non-interactive override; prompted when empty
}

func defaultConfig() *Config {
	return &Config{
		DataDir:        "data",
		BindIP:         "0.0.0.0",
		APIPort:        1234,
		LedgerURL:      "https://api.testnet.shimmer.network",
		BusTopic:       "dfs3/events",
		BusPort:        9000,
		Alias:          "node",
		StatusInterval: 300 * time.Second,
		ClonePolicy:    "strict",
		CloneTopK:      3,
		MinFreeSpace:   100 << 20,
		PeerScheme:     "http",
		CORSOrigin:     "*",
		LogLevel:       "info",
	}
}

// loadConfig builds the config from defaults, .env (if present) and
// DFS3_* environment variables. Flag overrides happen in main.
func loadConfig() *Config {
	if err := godotenv.Load(); err == nil {
		log.Debug("[config] loaded .env")
	}
	cfg := defaultConfig()
	envStr(&cfg.DataDir, "DFS3_DATA_DIR")
	envStr(&cfg.BindIP, "DFS3_BIND_IP")
	envInt(&cfg.APIPort, "DFS3_PORT")
	envStr(&cfg.TLSCert, "DFS3_TLS_CERT")
	envStr(&cfg.TLSKey, "DFS3_TLS_KEY")
	envStr(&cfg.AdvertiseIP, "DFS3_ADVERTISE_IP")
	envStr(&cfg.LedgerURL, "DFS3_LEDGER_URL")
	envStr(&cfg.BusTopic, "DFS3_BUS_TOPIC")
	envInt(&cfg.BusPort, "DFS3_BUS_PORT")
	envList(&cfg.BootstrapPeers, "DFS3_BOOTSTRAP_PEERS")
	envStr(&cfg.SeedURL, "DFS3_SEED_URL")
	envStr(&cfg.Alias, "DFS3_NODE_ALIAS")
	envList(&cfg.Tags, "DFS3_NODE_TAGS")
	envSeconds(&cfg.StatusInterval, "DFS3_STATUS_INTERVAL")
	envStr(&cfg.ClonePolicy, "DFS3_CLONE_POLICY")
	envInt(&cfg.CloneTopK, "DFS3_CLONE_TOP_K")
	envInt64(&cfg.MinFreeSpace, "DFS3_MIN_FREE_SPACE")
	envStr(&cfg.PeerScheme, "DFS3_PEER_SCHEME")
	envStr(&cfg.CORSOrigin, "DFS3_CORS_ORIGIN")
	envStr(&cfg.LogLevel, "DFS3_LOG_LEVEL")
	envStr(&cfg.Passphrase, "DFS3_PASSPHRASE")
	return cfg
}

func envStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(dst *int64, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envSeconds(dst *time.Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = time.Duration(n) * time.Second
		}
	}
}

func envList(dst *[]string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst = out
	}
}

// Paths are the fixed locations under the data dir.
type Paths struct {
	DataDir    string
	NodeFile   string // node.json
	DBFile     string // dfs3.db
	StorageDir string // .storage/<file_id>.dat
	MetaDir    string // .meta/<file_id>.json
	UsersDir   string // .users/<user_id>/<filename>
}

func initPaths(dataDir string) (*Paths, error) {
	p := &Paths{
		DataDir:    dataDir,
		NodeFile:   filepath.Join(dataDir, "node.json"),
		DBFile:     filepath.Join(dataDir, "dfs3.db"),
		StorageDir: filepath.Join(dataDir, ".storage"),
		MetaDir:    filepath.Join(dataDir, ".meta"),
		UsersDir:   filepath.Join(dataDir, ".users"),
	}
	for _, dir := range []string{p.StorageDir, p.MetaDir, p.UsersDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("cannot create data dirs: %w", err)
		}
	}
	log.Debugf("[config] using %s for node storage", dataDir)
	return p, nil
}

func initLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lv, err := log.ParseLevel(level)
	if err != nil {
		lv = log.InfoLevel
	}
	log.SetLevel(lv)
}
