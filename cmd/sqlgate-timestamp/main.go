package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/dd0wney/cluso-sqlgate/pkg/config"
	"github.com/dd0wney/cluso-sqlgate/pkg/server"
	"github.com/dd0wney/cluso-sqlgate/pkg/timestamp"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	listen := flag.String("listen", "", "Listen address (overrides config)")
	serverID := flag.Int("server-id", 0, "Issuer server id (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *listen != "" {
		cfg.Timestamp.ListenAddr = *listen
	}
	if *serverID > 0 {
		cfg.Timestamp.ServerID = *serverID
		// Residue class follows the server id unless pinned in config
		cfg.Timestamp.StartValue = uint64(*serverID)
	}

	fmt.Printf("🕐 sqlgate timestamp issuer %d (stride %d, start %d)\n",
		cfg.Timestamp.ServerID, cfg.Timestamp.Stride, cfg.Timestamp.StartValue)

	issuer, err := timestamp.NewIssuer(timestamp.IssuerConfig{
		ServerID:          cfg.Timestamp.ServerID,
		StartValue:        cfg.Timestamp.StartValue,
		Stride:            cfg.Timestamp.Stride,
		CheckpointPath:    cfg.Timestamp.CheckpointPath,
		CheckpointReserve: cfg.Timestamp.CheckpointReserve,
	})
	if err != nil {
		log.Fatalf("Failed to create issuer: %v", err)
	}

	mux := http.NewServeMux()
	timestamp.NewHandler(issuer).Routes(mux)

	gs := server.NewGracefulServer(cfg.Timestamp.ListenAddr, mux)
	if err := gs.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
