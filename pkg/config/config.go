package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written as "5s" in YAML
type Duration time.Duration

// UnmarshalYAML parses a Go duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// InstanceConfig identifies one relational database instance
type InstanceConfig struct {
	ID   string `yaml:"id" validate:"required"`
	Host string `yaml:"host" validate:"required"`
	DSN  string `yaml:"dsn" validate:"required"`
}

// ClusterConfig lists the master and replica instances
type ClusterConfig struct {
	Master   InstanceConfig   `yaml:"master" validate:"required"`
	Replicas []InstanceConfig `yaml:"replicas" validate:"min=1,dive"`
}

// CoordinatorConfig configures the coordinator service
type CoordinatorConfig struct {
	ListenAddr         string   `yaml:"listen_addr" validate:"required"`
	TimestampServices  []string `yaml:"timestamp_services" validate:"min=1,dive,required"`
	CabinetURL         string   `yaml:"cabinet_url" validate:"required"`
	SeerURL            string   `yaml:"seer_url" validate:"required"`
	MetricsURL         string   `yaml:"metrics_url" validate:"required"`
	SnapshotSubAddr    string   `yaml:"snapshot_sub_addr"`
	ReadLagThreshold   uint64   `yaml:"read_lag_threshold"`
	DependencyTimeout  Duration `yaml:"dependency_timeout"`
	QuorumPollInterval Duration `yaml:"quorum_poll_interval"`
	QuorumTimeout      Duration `yaml:"quorum_timeout"`
	TimestampRetries   int      `yaml:"timestamp_retries" validate:"min=1"`
}

// CollectorConfig configures the metrics collector service
type CollectorConfig struct {
	ListenAddr         string   `yaml:"listen_addr" validate:"required"`
	PollInterval       Duration `yaml:"poll_interval"`
	ProbeTimeout       Duration `yaml:"probe_timeout"`
	UnhealthyLatencyMs float64  `yaml:"unhealthy_latency_ms"`
	SnapshotPubAddr    string   `yaml:"snapshot_pub_addr"`
	JournalPath        string   `yaml:"journal_path"`
}

// TimestampConfig configures one timestamp issuer service
type TimestampConfig struct {
	ListenAddr        string `yaml:"listen_addr" validate:"required"`
	ServerID          int    `yaml:"server_id" validate:"min=1"`
	StartValue        uint64 `yaml:"start_value" validate:"min=1"`
	Stride            uint64 `yaml:"stride" validate:"min=1"`
	CheckpointPath    string `yaml:"checkpoint_path"`
	CheckpointReserve uint64 `yaml:"checkpoint_reserve"`
}

// CabinetConfig configures the quorum selection service
type CabinetConfig struct {
	ListenAddr string `yaml:"listen_addr" validate:"required"`
	MetricsURL string `yaml:"metrics_url" validate:"required"`
}

// SeerConfig configures the leader election service
type SeerConfig struct {
	ListenAddr string `yaml:"listen_addr" validate:"required"`
	MetricsURL string `yaml:"metrics_url" validate:"required"`
}

// AuthConfig configures admin endpoint authentication.
// Admin endpoints are open when JWTSecret is empty (development mode).
type AuthConfig struct {
	JWTSecret         string   `yaml:"jwt_secret" validate:"omitempty,min=32"`
	AdminPasswordHash string   `yaml:"admin_password_hash"`
	TokenTTL          Duration `yaml:"token_ttl"`
}

// Config is the root configuration shared by all sqlgate services
type Config struct {
	Cluster     ClusterConfig     `yaml:"cluster"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Collector   CollectorConfig   `yaml:"collector"`
	Timestamp   TimestampConfig   `yaml:"timestamp"`
	Cabinet     CabinetConfig     `yaml:"cabinet"`
	Seer        SeerConfig        `yaml:"seer"`
	Auth        AuthConfig        `yaml:"auth"`
}

// Default returns a configuration with safe defaults for a local three-replica cluster
func Default() *Config {
	return &Config{
		Coordinator: CoordinatorConfig{
			ListenAddr:         ":9000",
			TimestampServices:  []string{"http://localhost:9001", "http://localhost:9002"},
			CabinetURL:         "http://localhost:9004",
			SeerURL:            "http://localhost:9005",
			MetricsURL:         "http://localhost:9003",
			SnapshotSubAddr:    "tcp://localhost:9103",
			ReadLagThreshold:   5,
			DependencyTimeout:  Duration(5 * time.Second),
			QuorumPollInterval: Duration(200 * time.Millisecond),
			QuorumTimeout:      Duration(10 * time.Second),
			TimestampRetries:   3,
		},
		Collector: CollectorConfig{
			ListenAddr:         ":9003",
			PollInterval:       Duration(5 * time.Second),
			ProbeTimeout:       Duration(5 * time.Second),
			UnhealthyLatencyMs: 5000,
			SnapshotPubAddr:    "tcp://0.0.0.0:9103",
		},
		Timestamp: TimestampConfig{
			ListenAddr:        ":9001",
			ServerID:          1,
			StartValue:        1,
			Stride:            2,
			CheckpointReserve: 1000,
		},
		Cabinet: CabinetConfig{
			ListenAddr: ":9004",
			MetricsURL: "http://localhost:9003",
		},
		Seer: SeerConfig{
			ListenAddr: ":9005",
			MetricsURL: "http://localhost:9003",
		},
		Auth: AuthConfig{
			TokenTTL: Duration(time.Hour),
		},
	}
}

// Load reads a YAML configuration file over the defaults and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies a small set of deployment-level environment overrides
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SQLGATE_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("SQLGATE_MASTER_DSN"); v != "" {
		c.Cluster.Master.DSN = v
	}
}

// Validate checks the configuration for structural errors
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	seen := make(map[string]bool, len(c.Cluster.Replicas)+1)
	seen[c.Cluster.Master.ID] = true
	for _, r := range c.Cluster.Replicas {
		if seen[r.ID] {
			return fmt.Errorf("duplicate instance id %q", r.ID)
		}
		seen[r.ID] = true
	}

	if c.Timestamp.StartValue > c.Timestamp.Stride {
		return fmt.Errorf("timestamp start_value %d must not exceed stride %d",
			c.Timestamp.StartValue, c.Timestamp.Stride)
	}

	return nil
}
