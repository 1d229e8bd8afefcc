package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

const banner = `
       ____     _____
  ____/ / __/__|__  /
 / __  / /_/ ___//_ <
/ /_/ / __(__  )__/ /
\__,_/_/ /____/____/
`

func main() {
	// ---- Config: defaults < .env < environment < flags ----
	cfg := loadConfig()
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "data directory")
	flag.IntVar(&cfg.APIPort, "port", cfg.APIPort, "HTTP API port")
	flag.StringVar(&cfg.SeedURL, "seed", cfg.SeedURL, "peer URL to replay events from")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")
	flag.Parse()

	initLogging(cfg.LogLevel)
	fmt.Print(banner)
	log.Infof("[main] %s starting", swVersion)

	paths, err := initPaths(cfg.DataDir)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	store, err := openStore(paths.DBFile)
	if err != nil {
		log.Fatalf("[main] open index: %v", err)
	}
	defer store.Close()

	id, priv, _, err := ensureIdentity(paths, cfg)
	if err != nil {
		log.Fatalf("[main] identity: %v", err)
	}

	app, err := newApp(cfg, paths, id, priv, store, newLedger(cfg.LedgerURL))
	if err != nil {
		log.Fatalf("[main] wiring: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Mesh ----
	bus, err := newBus(ctx, cfg, priv)
	if err != nil {
		log.Fatalf("[main] bus: %v", err)
	}
	app.bus = bus
	go bus.Listen(ctx, app.handleAnnouncement)

	// A node without its own registry row announces itself. Covers first
	// boot and a node whose index was rebuilt from scratch.
	if _, err := store.GetNode(app.nodeID()); err != nil {
		if !errorKindIs(err, errNotFound) {
			log.Fatalf("[main] registry: %v", err)
		}
		if _, err := app.publishEvent(ctx, evNodeRegistered, app.nodeRegisteredPayload()); err != nil {
			log.Fatalf("[main] node registration: %v", err)
		}
	}

	if cfg.SeedURL != "" {
		go func() {
			if err := app.seedFromPeer(ctx, cfg.SeedURL); err != nil {
				log.Warnf("[seed] %v", err)
			}
		}()
	}
	go app.statusLoop(ctx)

	// ---- API ----
	httpSrv := newHTTPServer(cfg, newRouter(app))
	go func() {
		var err error
		if cfg.TLSCert != "" && cfg.TLSKey != "" {
			log.Infof("[main] serving https on %s", httpSrv.Addr)
			err = httpSrv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			log.Infof("[main] serving http on %s", httpSrv.Addr)
			err = httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("[main] shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		log.Warnf("[main] http shutdown: %v", err)
	}
	if err := bus.Close(); err != nil {
		log.Warnf("[main] bus close: %v", err)
	}
}
