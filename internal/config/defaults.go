package config

import "time"

func DefaultConfig() *Config {
	return &Config{
		Workload: WorkloadConfig{
			Name:    WorkloadCheckpoints,
			Seed:    42,
			Runtime: Duration(5 * time.Minute),
			Filesystem: FilesystemConfig{
				Variant:        FilesystemLANL,
				ReadBufferSize: ByteSize(2 * 1024 * 1024 * 1024), // 2GB
				Runs:           10000,
			},
		},
		Engine: EngineConfig{
			Metadata: MetadataConfig{
				Path:   "/var/lib/tier-workloads/catalog.db",
				NoSync: true,
			},
			Tiers: TiersConfig{
				// Memory is opt-in: it loses synced chunks on restart.
				Fastest: TierConfig{
					Backend:  BackendFile,
					Capacity: ByteSize(8 * 1024 * 1024 * 1024),
					DataDir:  "/var/lib/tier-workloads/fastest",
				},
				Fast: TierConfig{
					Backend:  BackendFile,
					Capacity: ByteSize(64 * 1024 * 1024 * 1024),
					DataDir:  "/var/lib/tier-workloads/fast",
				},
				Slow: TierConfig{
					Backend:  BackendFile,
					Capacity: ByteSize(512 * 1024 * 1024 * 1024),
					DataDir:  "/var/lib/tier-workloads/slow",
				},
			},
		},
		NATS: NATSConfig{
			ConnectionName: "tier-workloads",
			MaxReconnects:  -1,
			ReconnectWait:  Duration(2 * time.Second),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Listen:  ":9090",
				Path:    "/metrics",
			},
			Health: HealthConfig{
				Enabled:       false,
				Listen:        ":8081",
				LivenessPath:  "/healthz",
				ReadinessPath: "/readyz",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stderr",
			},
		},
	}
}
