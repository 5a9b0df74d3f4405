package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dd0wney/cluso-sqlgate/pkg/cabinet"
	"github.com/dd0wney/cluso-sqlgate/pkg/collector"
	"github.com/dd0wney/cluso-sqlgate/pkg/config"
	"github.com/dd0wney/cluso-sqlgate/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	fmt.Printf("🗳️  sqlgate cabinet (metrics source %s)\n", cfg.Cabinet.MetricsURL)

	source := collector.NewClient(cfg.Cabinet.MetricsURL, 5*time.Second)

	mux := http.NewServeMux()
	cabinet.NewHandler(source).Routes(mux)

	gs := server.NewGracefulServer(cfg.Cabinet.ListenAddr, mux)
	if err := gs.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
