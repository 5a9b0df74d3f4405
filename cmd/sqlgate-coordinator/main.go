package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dd0wney/cluso-sqlgate/pkg/auth"
	"github.com/dd0wney/cluso-sqlgate/pkg/cabinet"
	"github.com/dd0wney/cluso-sqlgate/pkg/collector"
	"github.com/dd0wney/cluso-sqlgate/pkg/config"
	"github.com/dd0wney/cluso-sqlgate/pkg/coordinator"
	"github.com/dd0wney/cluso-sqlgate/pkg/health"
	"github.com/dd0wney/cluso-sqlgate/pkg/server"
	"github.com/dd0wney/cluso-sqlgate/pkg/store"
)

func main() {
	configPath := flag.String("config", "sqlgate.yaml", "Path to YAML config file")
	dockerPrefix := flag.String("docker-prefix", "", "Docker container name prefix for instance process control")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Printf("🚪 sqlgate coordinator (master %s, %d replicas)\n",
		cfg.Cluster.Master.ID, len(cfg.Cluster.Replicas))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	fleet, err := store.NewFleet(ctx, cfg.Cluster)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to cluster: %v", err)
	}
	defer fleet.Close()

	state := coordinator.NewClusterState(cfg.Cluster)
	snapshots, stopSnapshots := snapshotSource(cfg.Coordinator)

	var procs coordinator.ProcessController = coordinator.NoopController{}
	if *dockerPrefix != "" {
		procs = coordinator.NewDockerController(*dockerPrefix)
	}

	coord := coordinator.New(cfg.Coordinator, coordinator.NewStoreFleet(fleet), state, snapshots, procs)

	var jwt *auth.JWTManager
	if cfg.Auth.JWTSecret != "" {
		jwt, err = auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL.Std())
		if err != nil {
			log.Fatalf("Invalid JWT configuration: %v", err)
		}
	} else {
		log.Printf("Admin endpoints are OPEN: no jwt_secret configured")
	}

	mux := http.NewServeMux()
	coordinator.NewHandler(coord, jwt, cfg.Auth.AdminPasswordHash).Routes(mux)
	registerHealth(mux, cfg, fleet, coord, snapshots)

	handler := coordinator.Chain(mux,
		coordinator.RequestIDMiddleware,
		coordinator.MetricsMiddleware,
		coordinator.LoggingMiddleware,
	)

	gs := server.NewGracefulServer(cfg.Coordinator.ListenAddr, handler)
	gs.OnShutdown(func(ctx context.Context) error {
		return stopSnapshots()
	})

	if err := gs.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// snapshotSource prefers the collector's PUB/SUB fan-out and falls
// back to synchronous HTTP polling when no socket address is set.
func snapshotSource(cfg config.CoordinatorConfig) (coordinator.SnapshotSource, func() error) {
	timeout := cfg.DependencyTimeout.Std()

	if cfg.SnapshotSubAddr != "" {
		sub, err := coordinator.NewSnapshotSubscriber(cfg.SnapshotSubAddr)
		if err != nil {
			log.Fatalf("Failed to create snapshot subscriber: %v", err)
		}
		if err := sub.Start(); err != nil {
			log.Fatalf("Failed to connect snapshot subscriber: %v", err)
		}
		return sub, sub.Stop
	}

	client := collector.NewClient(cfg.MetricsURL, timeout)
	return coordinator.NewPollingSource(client, timeout), func() error { return nil }
}

// registerHealth wires readiness and liveness probes: the coordinator
// is ready only when its dependencies can actually serve a write path.
func registerHealth(mux *http.ServeMux, cfg *config.Config, fleet *store.Fleet, coord *coordinator.Coordinator, snapshots coordinator.SnapshotSource) {
	checker := health.NewChecker()

	checker.RegisterLiveness("process", func() health.Check {
		return health.Check{Name: "process", Status: health.StatusHealthy}
	})

	for i, url := range cfg.Coordinator.TimestampServices {
		name := fmt.Sprintf("timestamps_%d", i+1)
		checker.RegisterReadiness(name, health.DependencyCheck(name, url+"/health", nil))
	}
	checker.RegisterReadiness("cabinet",
		health.DependencyCheck("cabinet", cfg.Coordinator.CabinetURL+"/health", nil))
	checker.RegisterReadiness("seer",
		health.DependencyCheck("seer", cfg.Coordinator.SeerURL+"/health", nil))
	checker.RegisterReadiness("master", health.DatabaseCheck("master", func(ctx context.Context) error {
		master, err := fleet.Get(coord.State().Master().ID)
		if err != nil {
			return err
		}
		_, err = master.Probe(ctx)
		return err
	}))

	checker.Register("failover", health.FailoverCheck(coord.Failover().Phase))
	checker.Register("collector",
		health.DependencyCheck("collector", cfg.Coordinator.MetricsURL+"/health", nil))
	checker.Register("snapshot", health.SnapshotCheck(func() (time.Duration, bool) {
		snap := snapshots.Latest()
		if snap == nil {
			return 0, false
		}
		return time.Since(snap.CollectedAt), true
	}, 3*cfg.Collector.PollInterval.Std()))
	checker.Register("quorum", health.QuorumCheck(func() (int, int) {
		snap := snapshots.Latest()
		if snap == nil {
			return 0, 1
		}
		return len(snap.Healthy()), cabinet.RequiredSize(len(snap.Replicas))
	}))

	mux.HandleFunc("/health/ready", checker.ReadinessHandler())
	mux.HandleFunc("/health/live", checker.LivenessHandler())
	mux.HandleFunc("/health/full", checker.Handler())
}
