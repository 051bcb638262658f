package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ajesipow/cached/internal/config"
	"github.com/ajesipow/cached/internal/server"
	"github.com/ajesipow/cached/internal/stats"
	"github.com/ajesipow/cached/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	capacity := flag.Int64("capacity_bytes", -1, "store capacity in bytes, 0 for unbounded (overrides config)")
	defaultTTL := flag.Duration("default_ttl", -1, "default TTL for SET without one, 0 to disable (overrides config)")
	maxConns := flag.Int("max_conns", -1, "max concurrent connections, 0 for unlimited (overrides config)")
	shards := flag.Int("shards", -1, "number of store shards (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *capacity >= 0 {
		cfg.CapacityBytes = *capacity
	}
	if *defaultTTL >= 0 {
		cfg.DefaultTTL = config.Duration(*defaultTTL)
	}
	if *maxConns >= 0 {
		cfg.MaxConns = *maxConns
	}
	if *shards >= 0 {
		cfg.Shards = *shards
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	st := store.New(store.Options{CapacityBytes: cfg.CapacityBytes, Shards: cfg.Shards})
	srv := server.New(cfg, st, stats.New())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Listen(); err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Printf("cached listening on %s (capacity=%d default_ttl=%s max_conns=%d)",
		srv.Addr(), cfg.CapacityBytes, time.Duration(cfg.DefaultTTL), cfg.MaxConns)
	if err := srv.Serve(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("cached shut down")
}
