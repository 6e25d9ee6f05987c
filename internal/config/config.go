package config

import (
	"fmt"
	"os"
	"time"

	"github.com/gftdcojp/tier-workloads/internal/types"
	"gopkg.in/yaml.v3"
)

// Workload names accepted by workload.name.
const (
	WorkloadCheckpoints = "checkpoints"
	WorkloadFilesystem  = "filesystem"
	WorkloadScientific  = "scientific_evaluation"
)

// Filesystem workload variants accepted by workload.filesystem.variant.
const (
	FilesystemLANL               = "lanl"
	FilesystemCoarse             = "coarse"
	FilesystemCoarseReserved     = "coarse-reserved"
	FilesystemCoarseReservedSync = "coarse-reserved-sync"
)

// Tier backend kinds accepted by engine.tiers.<tier>.backend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBlob   = "blob"
	BackendNATS   = "nats"
)

type Config struct {
	Workload      WorkloadConfig      `yaml:"workload"`
	Engine        EngineConfig        `yaml:"engine"`
	NATS          NATSConfig          `yaml:"nats"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type WorkloadConfig struct {
	Name       string           `yaml:"name"`
	Seed       uint64           `yaml:"seed"`
	Runtime    Duration         `yaml:"runtime"`
	Filesystem FilesystemConfig `yaml:"filesystem"`
}

type FilesystemConfig struct {
	// Variant is one of lanl, coarse, coarse-reserved, coarse-reserved-sync.
	Variant        string   `yaml:"variant"`
	ReadBufferSize ByteSize `yaml:"read_buffer_size"`
	Runs           int      `yaml:"runs"`
}

type EngineConfig struct {
	Metadata MetadataConfig `yaml:"metadata"`
	Tiers    TiersConfig    `yaml:"tiers"`
}

type MetadataConfig struct {
	Path   string `yaml:"path"`
	NoSync bool   `yaml:"no_sync"`
}

type TiersConfig struct {
	Fastest TierConfig `yaml:"fastest"`
	Fast    TierConfig `yaml:"fast"`
	Slow    TierConfig `yaml:"slow"`
}

// ByTier returns the configuration of tier t.
func (tc TiersConfig) ByTier(t types.Tier) TierConfig {
	switch t {
	case types.TierFastest:
		return tc.Fastest
	case types.TierFast:
		return tc.Fast
	default:
		return tc.Slow
	}
}

type TierConfig struct {
	Backend        string     `yaml:"backend"`
	Capacity       ByteSize   `yaml:"capacity"`
	DataDir        string     `yaml:"data_dir"`
	ReadBandwidth  ByteSize   `yaml:"read_bandwidth"`
	WriteBandwidth ByteSize   `yaml:"write_bandwidth"`
	Blob           BlobConfig `yaml:"blob"`
	NATSBucket     string     `yaml:"nats_bucket"`
}

type BlobConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
}

type NATSConfig struct {
	URL             string    `yaml:"url"`
	CredentialsFile string    `yaml:"credentials_file"`
	NKeySeedFile    string    `yaml:"nkey_seed_file"`
	TLS             TLSConfig `yaml:"tls"`
	ConnectionName  string    `yaml:"connection_name"`
	MaxReconnects   int       `yaml:"max_reconnects"`
	ReconnectWait   Duration  `yaml:"reconnect_wait"`
}

type TLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type ObservabilityConfig struct {
	Metrics  MetricsConfig `yaml:"metrics"`
	Health   HealthConfig  `yaml:"health"`
	Logging  LoggingConfig `yaml:"logging"`
	Progress bool          `yaml:"progress"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type HealthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Listen        string `yaml:"listen"`
	LivenessPath  string `yaml:"liveness_path"`
	ReadinessPath string `yaml:"readiness_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Workload.Name {
	case WorkloadCheckpoints, WorkloadFilesystem, WorkloadScientific:
	default:
		return fmt.Errorf("workload.name %q is not one of %s, %s, %s",
			c.Workload.Name, WorkloadCheckpoints, WorkloadFilesystem, WorkloadScientific)
	}

	if c.Workload.Name == WorkloadScientific && c.Workload.Runtime <= 0 {
		return fmt.Errorf("workload.runtime must be > 0 for %s", WorkloadScientific)
	}

	switch c.Workload.Filesystem.Variant {
	case FilesystemLANL, FilesystemCoarse, FilesystemCoarseReserved, FilesystemCoarseReservedSync:
	default:
		return fmt.Errorf("workload.filesystem.variant %q is unknown", c.Workload.Filesystem.Variant)
	}
	if c.Workload.Filesystem.ReadBufferSize <= 0 {
		return fmt.Errorf("workload.filesystem.read_buffer_size must be > 0")
	}
	if c.Workload.Filesystem.Runs <= 0 {
		return fmt.Errorf("workload.filesystem.runs must be > 0")
	}

	if c.Engine.Metadata.Path == "" {
		return fmt.Errorf("engine.metadata.path is required")
	}

	for _, t := range types.Tiers {
		tc := c.Engine.Tiers.ByTier(t)
		if tc.Capacity <= 0 {
			return fmt.Errorf("engine.tiers.%s.capacity must be > 0", t)
		}
		switch tc.Backend {
		case BackendMemory:
		case BackendFile:
			if tc.DataDir == "" {
				return fmt.Errorf("engine.tiers.%s: file backend requires data_dir", t)
			}
		case BackendBlob:
			if tc.Blob.Endpoint == "" {
				return fmt.Errorf("engine.tiers.%s: blob backend requires endpoint", t)
			}
			if tc.Blob.Bucket == "" {
				return fmt.Errorf("engine.tiers.%s: blob backend requires bucket", t)
			}
		case BackendNATS:
			if c.NATS.URL == "" {
				return fmt.Errorf("engine.tiers.%s: nats backend requires nats.url", t)
			}
			if tc.NATSBucket == "" {
				return fmt.Errorf("engine.tiers.%s: nats backend requires nats_bucket", t)
			}
		default:
			return fmt.Errorf("engine.tiers.%s.backend %q is unknown", t, tc.Backend)
		}
	}

	return nil
}

// UsesNATS reports whether any tier is backed by a JetStream object store.
func (c *Config) UsesNATS() bool {
	for _, t := range types.Tiers {
		if c.Engine.Tiers.ByTier(t).Backend == BackendNATS {
			return true
		}
	}
	return false
}

// Duration wraps time.Duration for YAML unmarshaling of strings like "5m", "24h".
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ByteSize wraps int64 for YAML unmarshaling of strings like "256MB", "10GB".
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		var n int64
		if err2 := value.Decode(&n); err2 != nil {
			return err
		}
		*b = ByteSize(n)
		return nil
	}
	parsed, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(parsed)
	return nil
}

func parseByteSize(s string) (int64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty byte size")
	}

	var multiplier int64 = 1
	numStr := s

	switch {
	case len(s) >= 2 && s[len(s)-2:] == "KB":
		multiplier = 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "MB":
		multiplier = 1024 * 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "GB":
		multiplier = 1024 * 1024 * 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "TB":
		multiplier = 1024 * 1024 * 1024 * 1024
		numStr = s[:len(s)-2]
	case s[len(s)-1] == 'B':
		numStr = s[:len(s)-1]
	}

	var n int64
	_, err := fmt.Sscanf(numStr, "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return n * multiplier, nil
}
