package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dd0wney/cluso-sqlgate/pkg/collector"
	"github.com/dd0wney/cluso-sqlgate/pkg/config"
	"github.com/dd0wney/cluso-sqlgate/pkg/server"
	"github.com/dd0wney/cluso-sqlgate/pkg/store"
)

func main() {
	configPath := flag.String("config", "sqlgate.yaml", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Printf("📊 sqlgate collector (poll %s, %d replicas)\n",
		cfg.Collector.PollInterval.Std(), len(cfg.Cluster.Replicas))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	master, err := store.Connect(ctx, cfg.Cluster.Master)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to master %s: %v", cfg.Cluster.Master.ID, err)
	}
	defer master.Close()

	replicas := make([]collector.Target, 0, len(cfg.Cluster.Replicas))
	for _, rc := range cfg.Cluster.Replicas {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		inst, err := store.Connect(ctx, rc)
		cancel()
		if err != nil {
			// The poll loop will report it as unreachable until it comes back
			log.Printf("Replica %s unreachable at startup: %v", rc.ID, err)
			continue
		}
		defer inst.Close()
		replicas = append(replicas, inst)
	}

	var publisher *collector.Publisher
	if cfg.Collector.SnapshotPubAddr != "" {
		publisher, err = collector.NewPublisher(cfg.Collector.SnapshotPubAddr)
		if err != nil {
			log.Fatalf("Failed to open snapshot publisher: %v", err)
		}
		defer publisher.Close()
	}

	var journal *collector.Journal
	if cfg.Collector.JournalPath != "" {
		journal, err = collector.OpenJournal(cfg.Collector.JournalPath)
		if err != nil {
			log.Fatalf("Failed to open journal: %v", err)
		}
		defer journal.Close()
	}

	c := collector.New(master, replicas, cfg.Collector, publisher, journal)
	if err := c.Start(); err != nil {
		log.Fatalf("Failed to start collector: %v", err)
	}

	mux := http.NewServeMux()
	collector.NewHandler(c).Routes(mux)

	gs := server.NewGracefulServer(cfg.Collector.ListenAddr, mux)
	gs.OnShutdown(func(ctx context.Context) error {
		c.Stop()
		return nil
	})

	if err := gs.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
