// Command ensod is the database daemon: it opens an engine, schema
// manager, and authorizer, wires them into a SQL executor, and serves
// the line-oriented protocol over TCP until it receives SIGINT/SIGTERM.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ensodb/enso/internal/authz"
	"github.com/ensodb/enso/internal/engine"
	"github.com/ensodb/enso/internal/netserver"
	"github.com/ensodb/enso/internal/schema"
	"github.com/ensodb/enso/internal/sql"
)

type config struct {
	dataDir     string
	bindAddr    string
	maxSegments int
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.dataDir, "data", "./data", "data directory root")
	flag.StringVar(&cfg.bindAddr, "addr", ":9090", "TCP listen address")
	flag.IntVar(&cfg.maxSegments, "max-segments", 0, "segment count that triggers compaction (0 = default)")
	flag.Parse()
	return cfg
}

func main() {
	cfg := parseFlags()

	fmt.Println("[Init] Opening engine...")
	eng, err := engine.Open(engine.Config{
		Dir:         filepath.Join(cfg.dataDir, "engine"),
		MaxSegments: cfg.maxSegments,
	})
	if err != nil {
		log.Fatalf("failed to open engine: %v", err)
	}
	defer eng.Close()

	sm, err := schema.Open(filepath.Join(cfg.dataDir, "schema"))
	if err != nil {
		log.Fatalf("failed to open schema manager: %v", err)
	}

	az, err := authz.Open()
	if err != nil {
		log.Fatalf("failed to open authorizer: %v", err)
	}

	ex := sql.NewExecutor(eng, sm, az)

	fmt.Printf("[Init] Listening on %s...\n", cfg.bindAddr)
	srv, err := netserver.New(netserver.Config{BindAddr: cfg.bindAddr}, eng, ex)
	if err != nil {
		log.Fatalf("failed to start listener: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\n[Main] Shutting down...")
	if err := srv.Shutdown(); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	fmt.Println("[Main] Stopped. Bye!")
}
